// Package catalog provides the signal catalog: the static table that maps a
// symbolic signal name to the holding register, bit span and decode rule
// behind it.
package catalog

import "fmt"

// Kind identifies how a signal is packed into its register word(s).
type Kind string

const (
	KindRegister       Kind = "register"        // whole word, unsigned, divided by scale
	KindSignedRegister Kind = "signed_register" // whole word, two's complement, divided by scale
	KindBit            Kind = "bit"             // single bit flag
	KindBitRange       Kind = "bit_range"       // multi-bit unsigned sub-field
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindRegister, KindSignedRegister, KindBit, KindBitRange}

// IsBitField reports whether the kind addresses a part of a word.
func (k Kind) IsBitField() bool {
	return k == KindBit || k == KindBitRange
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindRegister, KindSignedRegister, KindBit, KindBitRange:
		return true
	default:
		return false
	}
}

// Access is the direction a signal may be used in.
type Access string

const (
	AccessRead  Access = "read"
	AccessWrite Access = "write" // read and write
)

// Category groups signals the way the controller manual does.
type Category string

const (
	CategorySensors  Category = "sensors"
	CategorySettings Category = "settings"
	CategoryStatus   Category = "status"
)

// Signal describes one named signal.
type Signal struct {
	Name        string
	Label       string
	Kind        Kind
	Access      Access
	Address     uint16
	Bit         *int // bit kind only
	BitStart    *int // bit_range kind only
	BitEnd      *int // bit_range kind only
	Scale       float64
	Unit        string
	WordCount   int
	Sensor      bool
	Alias       string // signals sharing an alias may overlap at one address
	Description string
}

// Writable is the single source of truth for write permission: the signal
// must declare write access and occupy exactly one word.
func (s *Signal) Writable() bool {
	return s.Access == AccessWrite && s.WordCount == 1
}

// Category classifies the signal for listings.
func (s *Signal) Category() Category {
	switch {
	case s.Sensor:
		return CategorySensors
	case s.Writable():
		return CategorySettings
	default:
		return CategoryStatus
	}
}

// Span returns the inclusive bit span the signal occupies in its word.
// Whole-register signals span 0..15.
func (s *Signal) Span() (start, end int) {
	switch s.Kind {
	case KindBit:
		return *s.Bit, *s.Bit
	case KindBitRange:
		return *s.BitStart, *s.BitEnd
	default:
		return 0, 15
	}
}

// Width returns the number of bits in the signal's span.
func (s *Signal) Width() int {
	start, end := s.Span()
	return end - start + 1
}

// Mask returns the unshifted field mask, (1<<width)-1.
func (s *Signal) Mask() uint16 {
	return uint16((uint32(1) << uint(s.Width())) - 1)
}

// BitsString renders the span for listings: "-", "5" or "11-15".
func (s *Signal) BitsString() string {
	switch s.Kind {
	case KindBit:
		return fmt.Sprintf("%d", *s.Bit)
	case KindBitRange:
		return fmt.Sprintf("%d-%d", *s.BitStart, *s.BitEnd)
	default:
		return "-"
	}
}

// File represents a catalog YAML file.
type File struct {
	Version int       `yaml:"version"`
	Name    string    `yaml:"name"`
	Signals []*Signal `yaml:"signals"`
}

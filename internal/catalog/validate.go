package catalog

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidationError represents a catalog validation error.
type ValidationError struct {
	Key     string
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Key, e.Field, e.Message)
}

// ValidationResult holds results from catalog linting.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if no errors were found.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Validate checks the catalog file for consistency and returns the first
// violation found.
func (f *File) Validate() error {
	if f.Version != 1 {
		return fmt.Errorf("unsupported catalog version: %d", f.Version)
	}
	if len(f.Signals) == 0 {
		return fmt.Errorf("catalog %q has no signals", f.Name)
	}

	names := make(map[string]bool, len(f.Signals))
	for i, s := range f.Signals {
		if s == nil {
			return ValidationError{Key: fmt.Sprintf("signal %d", i), Field: "-", Message: "empty entry"}
		}
		if s.Name == "" {
			return ValidationError{Key: fmt.Sprintf("signal %d", i), Field: "name", Message: "missing name"}
		}
		if names[s.Name] {
			return ValidationError{Key: s.Name, Field: "name", Message: "duplicate name"}
		}
		names[s.Name] = true

		if err := validateSignal(s); err != nil {
			return err
		}
	}

	return validateLayout(f.Signals)
}

func validateSignal(s *Signal) error {
	fail := func(field, format string, args ...any) error {
		return ValidationError{Key: s.Name, Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if !namePattern.MatchString(s.Name) {
		return fail("name", "must be an ASCII identifier")
	}
	if !s.Kind.Valid() {
		return fail("kind", "unknown kind %q", s.Kind)
	}
	switch s.Access {
	case AccessRead, AccessWrite:
	case "":
		return fail("access", "missing access")
	default:
		return fail("access", "unknown access %q", s.Access)
	}
	if s.Scale <= 0 || math.IsNaN(s.Scale) || math.IsInf(s.Scale, 0) {
		return fail("scale", "must be a positive number, got %v", s.Scale)
	}

	switch s.Kind {
	case KindBit:
		if s.BitStart != nil || s.BitEnd != nil {
			return fail("bit_start", "bit signals must not declare bit_start/bit_end")
		}
		if s.Bit == nil {
			return fail("bit", "bit signals require bit")
		}
		if *s.Bit < 0 || *s.Bit > 15 {
			return fail("bit", "bit %d out of range 0-15", *s.Bit)
		}
	case KindBitRange:
		if s.Bit != nil {
			return fail("bit", "bit_range signals must not declare bit")
		}
		if s.BitStart == nil || s.BitEnd == nil {
			return fail("bit_start", "bit_range signals require bit_start and bit_end")
		}
		if *s.BitStart < 0 || *s.BitEnd > 15 {
			return fail("bit_start", "span %d-%d out of range 0-15", *s.BitStart, *s.BitEnd)
		}
		if *s.BitEnd < *s.BitStart {
			return fail("bit_end", "bit_end %d before bit_start %d", *s.BitEnd, *s.BitStart)
		}
	default:
		if s.Bit != nil || s.BitStart != nil || s.BitEnd != nil {
			return fail("bit", "%s signals must not declare bit positions", s.Kind)
		}
	}

	if s.Kind.IsBitField() && s.Scale != 1 {
		return fail("scale", "bit fields are unscaled")
	}

	switch s.WordCount {
	case 1:
	case 2:
		if s.Kind != KindRegister {
			return fail("word_count", "two-word signals must be unsigned registers")
		}
		if s.Scale != 1 {
			return fail("word_count", "two-word signals are unscaled")
		}
		if s.Access != AccessRead {
			return fail("word_count", "two-word signals are read-only")
		}
		if s.Address == math.MaxUint16 {
			return fail("address", "two-word signal overflows the address space")
		}
	default:
		return fail("word_count", "must be 1 or 2, got %d", s.WordCount)
	}

	return nil
}

// validateLayout checks that no two signals claim the same bits of a word.
// Whole-register signals claim all 16 bits; two-word signals claim both words.
func validateLayout(signals []*Signal) error {
	type claim struct {
		sig        *Signal
		start, end int
	}
	byAddr := make(map[uint16][]claim)
	for _, s := range signals {
		start, end := s.Span()
		for w := 0; w < s.WordCount; w++ {
			addr := s.Address + uint16(w)
			byAddr[addr] = append(byAddr[addr], claim{sig: s, start: start, end: end})
		}
	}

	addrs := make([]int, 0, len(byAddr))
	for a := range byAddr {
		addrs = append(addrs, int(a))
	}
	sort.Ints(addrs)

	for _, a := range addrs {
		claims := byAddr[uint16(a)]
		for i := 0; i < len(claims); i++ {
			for j := i + 1; j < len(claims); j++ {
				x, y := claims[i], claims[j]
				if x.end < y.start || y.end < x.start {
					continue
				}
				if x.sig.Alias != "" && x.sig.Alias == y.sig.Alias {
					continue
				}
				return ValidationError{
					Key:   y.sig.Name,
					Field: "address",
					Message: fmt.Sprintf("bits %d-%d at address %d overlap %q (bits %d-%d)",
						y.start, y.end, a, x.sig.Name, x.start, x.end),
				}
			}
		}
	}
	return nil
}

// Lint reports non-fatal findings for an already valid catalog: free bit
// slots in packed words, and whole-register signals whose label or name
// suggests a temperature while the kind is unsigned.
func Lint(c *Catalog) *ValidationResult {
	result := &ValidationResult{}

	for _, s := range c.ListAll() {
		if s.Kind == KindRegister && s.WordCount == 1 && looksLikeTemperature(s) {
			result.Warnings = append(result.Warnings, ValidationError{
				Key:     s.Name,
				Field:   "kind",
				Message: "temperature-like signal decoded as unsigned; sub-zero values will read as large positives",
			})
		}
	}

	for _, addr := range c.Addresses() {
		var used uint16
		packed := false
		for _, s := range c.ByAddress(addr) {
			if !s.Kind.IsBitField() {
				packed = false
				break
			}
			packed = true
			start, _ := s.Span()
			used |= s.Mask() << uint(start)
		}
		if packed && used != 0xFFFF {
			result.Warnings = append(result.Warnings, ValidationError{
				Key:     fmt.Sprintf("address %d", addr),
				Field:   "bits",
				Message: fmt.Sprintf("reserved bits %s", freeBits(used)),
			})
		}
	}

	return result
}

func looksLikeTemperature(s *Signal) bool {
	return strings.Contains(strings.ToLower(s.Name), "temperature") ||
		strings.Contains(s.Label, "온도") ||
		s.Unit == "°C"
}

func freeBits(used uint16) string {
	var parts []string
	for bit := 0; bit < 16; {
		if used&(1<<uint(bit)) != 0 {
			bit++
			continue
		}
		start := bit
		for bit < 16 && used&(1<<uint(bit)) == 0 {
			bit++
		}
		if bit-1 == start {
			parts = append(parts, fmt.Sprintf("%d", start))
		} else {
			parts = append(parts, fmt.Sprintf("%d-%d", start, bit-1))
		}
	}
	return strings.Join(parts, ",")
}

package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// signalYAML is the on-disk representation. Address accepts decimal or
// 0x-prefixed hex.
type signalYAML struct {
	Name        string   `yaml:"name"`
	Label       string   `yaml:"label,omitempty"`
	Kind        Kind     `yaml:"kind"`
	Access      Access   `yaml:"access"`
	Address     string   `yaml:"address"`
	Bit         *int     `yaml:"bit,omitempty"`
	BitStart    *int     `yaml:"bit_start,omitempty"`
	BitEnd      *int     `yaml:"bit_end,omitempty"`
	Scale       *float64 `yaml:"scale,omitempty"`
	Unit        string   `yaml:"unit,omitempty"`
	WordCount   int      `yaml:"word_count,omitempty"`
	Sensor      bool     `yaml:"sensor,omitempty"`
	Alias       string   `yaml:"alias,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler for Signal.
func (s *Signal) UnmarshalYAML(value *yaml.Node) error {
	var raw signalYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}

	address, err := parseAddress(raw.Address)
	if err != nil {
		return fmt.Errorf("signal %q: address: %w", raw.Name, err)
	}

	scale := 1.0
	if raw.Scale != nil {
		scale = *raw.Scale
	}
	wordCount := raw.WordCount
	if wordCount == 0 {
		wordCount = 1
	}

	*s = Signal{
		Name:        raw.Name,
		Label:       raw.Label,
		Kind:        raw.Kind,
		Access:      raw.Access,
		Address:     address,
		Bit:         raw.Bit,
		BitStart:    raw.BitStart,
		BitEnd:      raw.BitEnd,
		Scale:       scale,
		Unit:        raw.Unit,
		WordCount:   wordCount,
		Sensor:      raw.Sensor,
		Alias:       raw.Alias,
		Description: raw.Description,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler for Signal.
func (s Signal) MarshalYAML() (interface{}, error) {
	out := signalYAML{
		Name:        s.Name,
		Label:       s.Label,
		Kind:        s.Kind,
		Access:      s.Access,
		Address:     strconv.Itoa(int(s.Address)),
		Bit:         s.Bit,
		BitStart:    s.BitStart,
		BitEnd:      s.BitEnd,
		Unit:        s.Unit,
		Sensor:      s.Sensor,
		Alias:       s.Alias,
		Description: s.Description,
	}
	if s.Scale != 1 {
		scale := s.Scale
		out.Scale = &scale
	}
	if s.WordCount != 1 {
		out.WordCount = s.WordCount
	}
	return out, nil
}

func parseAddress(s string) (uint16, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("missing")
	}

	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s = s[2:]
		base = 16
	}

	v, err := strconv.ParseUint(s, base, 16)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", s, err)
	}
	return uint16(v), nil
}

package modbus

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SeedFile is the YAML layout of a simulator seed file:
//
//	registers:
//	  66: 0x4000
//	  70: 253
type SeedFile struct {
	Registers map[uint16]uint16 `yaml:"registers"`
}

// LoadSeedFile reads register values for the simulator from path.
func LoadSeedFile(path string) (map[uint16]uint16, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}

	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	return seed.Registers, nil
}

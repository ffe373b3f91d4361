package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed greenhouse.yaml
var greenhouseYAML []byte

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the embedded greenhouse controller catalog. An invalid
// embedded table is a build defect and panics on first use.
func Default() *Catalog {
	defaultOnce.Do(func() {
		file, err := Parse(greenhouseYAML)
		if err == nil {
			err = file.Validate()
		}
		if err != nil {
			panic(fmt.Sprintf("embedded catalog: %v", err))
		}
		defaultCat = NewCatalog(file)
	})
	return defaultCat
}

// Parse decodes catalog YAML without validating it.
func Parse(data []byte) (*File, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog YAML: %w", err)
	}
	return &file, nil
}

// Load reads a catalog from a YAML file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return Parse(data)
}

// LoadAndValidate reads a catalog and validates it.
func LoadAndValidate(path string) (*File, error) {
	file, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := file.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	return file, nil
}

// Open returns the catalog at path, or the embedded default when path is empty.
func Open(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	file, err := LoadAndValidate(path)
	if err != nil {
		return nil, err
	}
	return NewCatalog(file), nil
}

// Save writes a catalog to a YAML file.
func Save(path string, file *File) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write catalog file: %w", err)
	}

	return nil
}

// Catalog provides indexed, read-only access to a validated catalog file.
type Catalog struct {
	file      *File
	names     []string
	byName    map[string]*Signal
	byKind    map[Kind][]string
	byAddress map[uint16][]*Signal
	addresses []uint16
}

// NewCatalog creates an indexed catalog from a validated file.
func NewCatalog(file *File) *Catalog {
	c := &Catalog{
		file:      file,
		names:     make([]string, 0, len(file.Signals)),
		byName:    make(map[string]*Signal, len(file.Signals)),
		byKind:    make(map[Kind][]string),
		byAddress: make(map[uint16][]*Signal),
	}

	for _, s := range file.Signals {
		c.names = append(c.names, s.Name)
		c.byName[s.Name] = s
		c.byKind[s.Kind] = append(c.byKind[s.Kind], s.Name)
		if _, seen := c.byAddress[s.Address]; !seen {
			c.addresses = append(c.addresses, s.Address)
		}
		c.byAddress[s.Address] = append(c.byAddress[s.Address], s)
	}
	sort.Slice(c.addresses, func(i, j int) bool { return c.addresses[i] < c.addresses[j] })

	return c
}

// Name returns the catalog name.
func (c *Catalog) Name() string {
	return c.file.Name
}

// Len returns the number of signals.
func (c *Catalog) Len() int {
	return len(c.names)
}

// Lookup finds a signal by exact, case-sensitive name.
func (c *Catalog) Lookup(name string) (*Signal, bool) {
	s, ok := c.byName[name]
	return s, ok
}

// MustLookup finds a signal by name or panics.
func (c *Catalog) MustLookup(name string) *Signal {
	s, ok := c.byName[name]
	if !ok {
		panic(fmt.Sprintf("catalog signal not found: %s", name))
	}
	return s
}

// Names returns every signal name in catalog file order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// ByKind returns the names of all signals of kind.
func (c *Catalog) ByKind(kind Kind) []string {
	src := c.byKind[kind]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// ByAddress returns the signals stored at addr, in catalog order.
func (c *Catalog) ByAddress(addr uint16) []*Signal {
	src := c.byAddress[addr]
	out := make([]*Signal, len(src))
	copy(out, src)
	return out
}

// ByCategory returns the names of all signals in category.
func (c *Catalog) ByCategory(category Category) []string {
	var out []string
	for _, s := range c.file.Signals {
		if s.Category() == category {
			out = append(out, s.Name)
		}
	}
	return out
}

// Addresses returns the distinct addresses in use, ascending.
func (c *Catalog) Addresses() []uint16 {
	out := make([]uint16, len(c.addresses))
	copy(out, c.addresses)
	return out
}

// ListAll returns all signals in catalog order.
func (c *Catalog) ListAll() []*Signal {
	return c.file.Signals
}

// Search finds signals whose name, label or description contains query.
func (c *Catalog) Search(query string) []*Signal {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return c.file.Signals
	}

	var matches []*Signal
	for _, s := range c.file.Signals {
		if strings.Contains(strings.ToLower(s.Name), query) ||
			strings.Contains(strings.ToLower(s.Label), query) ||
			strings.Contains(strings.ToLower(s.Description), query) {
			matches = append(matches, s)
		}
	}

	return matches
}

// File returns the underlying catalog file.
func (c *Catalog) File() *File {
	return c.file
}

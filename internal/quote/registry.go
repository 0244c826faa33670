package quote

import (
	_ "embed"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed catalogs.yaml
var defaultCatalogs []byte

// Registry indexes catalogs by service key, preserving file order.
type Registry struct {
	order    []string
	catalogs map[string]*Catalog
}

type catalogFile struct {
	Catalogs []*Catalog `yaml:"catalogs"`
}

// LoadRegistry parses a YAML catalog document and validates every catalog.
// Catalogs that declare no periods get DefaultPeriods.
func LoadRegistry(data []byte) (*Registry, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode catalogs: %w", err)
	}
	if len(file.Catalogs) == 0 {
		return nil, errors.New("catalog document contains no catalogs")
	}

	reg := &Registry{catalogs: make(map[string]*Catalog, len(file.Catalogs))}
	for _, c := range file.Catalogs {
		if c == nil {
			continue
		}
		if len(c.Periods) == 0 {
			c.Periods = DefaultPeriods()
		}
		if err := c.Validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.catalogs[c.Service]; dup {
			return nil, fmt.Errorf("duplicate catalog for service %q", c.Service)
		}
		reg.catalogs[c.Service] = c
		reg.order = append(reg.order, c.Service)
	}
	return reg, nil
}

// DefaultRegistry loads the catalogs compiled into the binary.
func DefaultRegistry() (*Registry, error) {
	return LoadRegistry(defaultCatalogs)
}

// MustDefaultRegistry panics if the embedded catalogs are invalid.
func MustDefaultRegistry() *Registry {
	reg, err := DefaultRegistry()
	if err != nil {
		panic(fmt.Sprintf("load default catalogs: %v", err))
	}
	return reg
}

// Get returns the catalog for service.
func (r *Registry) Get(service string) (*Catalog, error) {
	c, ok := r.catalogs[service]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownService, service)
	}
	return c, nil
}

// Catalogs returns every catalog in file order.
func (r *Registry) Catalogs() []*Catalog {
	out := make([]*Catalog, 0, len(r.order))
	for _, s := range r.order {
		out = append(out, r.catalogs[s])
	}
	return out
}

// Quote is Compute on the catalog for service.
func (r *Registry) Quote(service string, cfg Configuration) (Breakdown, error) {
	c, err := r.Get(service)
	if err != nil {
		return Breakdown{}, err
	}
	return Compute(c, cfg)
}

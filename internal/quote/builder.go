package quote

import (
	"fmt"
	"maps"
)

// Builder holds the state of one calculator session. Changing package resets
// quantities to the new baseline and clears add-ons so no overage carries over.
type Builder struct {
	catalog *Catalog
	cfg     Configuration
}

// NewBuilder starts a session on the given package.
func NewBuilder(c *Catalog, packageKey string) (*Builder, error) {
	b := &Builder{catalog: c}
	if err := b.SelectPackage(packageKey); err != nil {
		return nil, err
	}
	return b, nil
}

// SelectPackage switches package and resets the configuration.
func (b *Builder) SelectPackage(key string) error {
	pkg, ok := b.catalog.Package(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPackage, key)
	}
	period := b.cfg.Period
	if period == "" {
		if p, ok := b.catalog.Period(""); ok {
			period = p.Key
		}
	}

	quantities := make(map[string]int, len(b.catalog.Resources))
	for _, r := range b.catalog.Resources {
		quantities[r.Key] = pkg.Baseline[r.Key]
	}
	b.cfg = Configuration{
		Package:    pkg.Key,
		Quantities: quantities,
		AddOns:     make(map[string]bool),
		Period:     period,
	}
	return nil
}

// SetQuantity sets a resource quantity, clamped to [baseline, Limit].
// It returns the value actually stored.
func (b *Builder) SetQuantity(key string, q int) (int, error) {
	r, ok := b.catalog.Resource(key)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownResource, key)
	}
	pkg, _ := b.catalog.Package(b.cfg.Package)
	q = min(max(q, pkg.Baseline[key]), r.Limit(pkg.Baseline[key]))
	b.cfg.Quantities[key] = q
	return q, nil
}

// SetAddOn toggles an add-on.
func (b *Builder) SetAddOn(key string, enabled bool) error {
	if _, ok := b.catalog.AddOn(key); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAddOn, key)
	}
	if enabled {
		b.cfg.AddOns[key] = true
	} else {
		delete(b.cfg.AddOns, key)
	}
	return nil
}

// SetPeriod selects the billing period.
func (b *Builder) SetPeriod(key string) error {
	p, ok := b.catalog.Period(key)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPeriod, key)
	}
	b.cfg.Period = p.Key
	return nil
}

// Configuration returns a copy of the current configuration.
func (b *Builder) Configuration() Configuration {
	return Configuration{
		Package:    b.cfg.Package,
		Quantities: maps.Clone(b.cfg.Quantities),
		AddOns:     maps.Clone(b.cfg.AddOns),
		Period:     b.cfg.Period,
	}
}

// Quote prices the current configuration.
func (b *Builder) Quote() (Breakdown, error) {
	return Compute(b.catalog, b.cfg)
}

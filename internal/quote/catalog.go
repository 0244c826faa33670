// Package quote prices service configurations (hosting, email, domain, cloud)
// against declarative catalogs.
package quote

import (
	"errors"
	"fmt"
)

// Service keys served by the default catalogs.
const (
	ServiceHosting = "hosting"
	ServiceEmail   = "email"
	ServiceDomain  = "domain"
	ServiceCloud   = "cloud"
)

// Period keys.
const (
	PeriodMonthly   = "monthly"
	PeriodQuarterly = "quarterly"
	PeriodYearly    = "yearly"
)

// MaxQuantity caps resources that do not declare their own max.
const MaxQuantity = 100000

// maxExactAmount is 2^53, the largest VND amount float64 rounding keeps exact.
const maxExactAmount = 1 << 53

// Lookup errors returned by the registry, Compute and Builder.
var (
	ErrUnknownService  = errors.New("quote: unknown service")
	ErrUnknownPackage  = errors.New("quote: unknown package")
	ErrUnknownPeriod   = errors.New("quote: unknown period")
	ErrUnknownResource = errors.New("quote: unknown resource")
	ErrUnknownAddOn    = errors.New("quote: unknown add-on")
)

// Resource is a metered quantity billed per unit above the package baseline.
// When Per names another resource, each overage unit is charged once per
// requested unit of that resource (storage per mailbox, for instance).
type Resource struct {
	Key       string `yaml:"key" json:"key"`
	Label     string `yaml:"label" json:"label"`
	Unit      string `yaml:"unit" json:"unit"`
	UnitPrice int64  `yaml:"unit_price" json:"unit_price"`
	Per       string `yaml:"per,omitempty" json:"per,omitempty"`
	Max       int    `yaml:"max,omitempty" json:"max,omitempty"`
}

// Limit is the largest quantity priced for the resource when the package
// includes baseline units. Resources without Max are capped at MaxQuantity.
func (r Resource) Limit(baseline int) int {
	limit := r.Max
	if limit <= 0 {
		limit = MaxQuantity
	}
	return max(limit, baseline)
}

// AddOn is an optional flat-priced feature.
type AddOn struct {
	Key   string `yaml:"key" json:"key"`
	Label string `yaml:"label" json:"label"`
	Price int64  `yaml:"price" json:"price"`
	Per   string `yaml:"per,omitempty" json:"per,omitempty"`
}

// Package is a named plan: a monthly base price, the resource quantities it
// includes and the add-ons that come free with it.
type Package struct {
	Key       string         `yaml:"key" json:"key"`
	Name      string         `yaml:"name" json:"name"`
	BasePrice int64          `yaml:"base_price" json:"base_price"`
	Baseline  map[string]int `yaml:"baseline" json:"baseline"`
	Included  []string       `yaml:"included,omitempty" json:"included,omitempty"`
	Popular   bool           `yaml:"popular,omitempty" json:"popular,omitempty"`
}

// Includes reports whether the add-on is part of the package.
func (p Package) Includes(addOn string) bool {
	for _, k := range p.Included {
		if k == addOn {
			return true
		}
	}
	return false
}

// Period is a billing term. A customer pays ChargedMonths for Months of service.
type Period struct {
	Key           string  `yaml:"key" json:"key"`
	Label         string  `yaml:"label" json:"label"`
	Months        int     `yaml:"months" json:"months"`
	ChargedMonths float64 `yaml:"charged_months" json:"charged_months"`
}

// Discount is the fraction of the term given away, 1 - ChargedMonths/Months.
func (p Period) Discount() float64 {
	if p.Months <= 0 {
		return 0
	}
	return 1 - p.ChargedMonths/float64(p.Months)
}

// DefaultPeriods returns monthly, quarterly (one half month free) and yearly
// (two months free).
func DefaultPeriods() []Period {
	return []Period{
		{Key: PeriodMonthly, Label: "Hàng tháng", Months: 1, ChargedMonths: 1},
		{Key: PeriodQuarterly, Label: "Hàng quý", Months: 3, ChargedMonths: 2.5},
		{Key: PeriodYearly, Label: "Hàng năm", Months: 12, ChargedMonths: 10},
	}
}

// Catalog is everything needed to price one service.
type Catalog struct {
	Service   string     `yaml:"service" json:"service"`
	Title     string     `yaml:"title" json:"title"`
	VATRate   float64    `yaml:"vat_rate" json:"vat_rate"`
	Resources []Resource `yaml:"resources" json:"resources"`
	AddOns    []AddOn    `yaml:"add_ons" json:"add_ons"`
	Packages  []Package  `yaml:"packages" json:"packages"`
	Periods   []Period   `yaml:"periods" json:"periods"`
}

// Package looks up a package by key.
func (c *Catalog) Package(key string) (Package, bool) {
	for _, p := range c.Packages {
		if p.Key == key {
			return p, true
		}
	}
	return Package{}, false
}

// Resource looks up a resource by key.
func (c *Catalog) Resource(key string) (Resource, bool) {
	for _, r := range c.Resources {
		if r.Key == key {
			return r, true
		}
	}
	return Resource{}, false
}

// AddOn looks up an add-on by key.
func (c *Catalog) AddOn(key string) (AddOn, bool) {
	for _, a := range c.AddOns {
		if a.Key == key {
			return a, true
		}
	}
	return AddOn{}, false
}

// Period looks up a billing period; the empty key selects the first period.
func (c *Catalog) Period(key string) (Period, bool) {
	if key == "" && len(c.Periods) > 0 {
		return c.Periods[0], true
	}
	for _, p := range c.Periods {
		if p.Key == key {
			return p, true
		}
	}
	return Period{}, false
}

// Validate checks that every cross reference in the catalog resolves.
func (c *Catalog) Validate() error {
	if c.Service == "" {
		return errors.New("catalog service is required")
	}
	if c.VATRate < 0 || c.VATRate >= 1 {
		return fmt.Errorf("catalog %s: vat_rate %v out of range [0,1)", c.Service, c.VATRate)
	}
	if len(c.Packages) == 0 {
		return fmt.Errorf("catalog %s: at least one package is required", c.Service)
	}

	resources := make(map[string]struct{}, len(c.Resources))
	for _, r := range c.Resources {
		if r.Key == "" {
			return fmt.Errorf("catalog %s: resource key is required", c.Service)
		}
		if _, dup := resources[r.Key]; dup {
			return fmt.Errorf("catalog %s: duplicate resource %q", c.Service, r.Key)
		}
		if r.UnitPrice < 0 {
			return fmt.Errorf("catalog %s: resource %q has a negative price", c.Service, r.Key)
		}
		resources[r.Key] = struct{}{}
	}
	for _, r := range c.Resources {
		if r.Per == "" {
			continue
		}
		if r.Per == r.Key {
			return fmt.Errorf("catalog %s: resource %q cannot be priced per itself", c.Service, r.Key)
		}
		if _, ok := resources[r.Per]; !ok {
			return fmt.Errorf("catalog %s: resource %q priced per unknown resource %q", c.Service, r.Key, r.Per)
		}
	}

	addOns := make(map[string]struct{}, len(c.AddOns))
	for _, a := range c.AddOns {
		if a.Key == "" {
			return fmt.Errorf("catalog %s: add-on key is required", c.Service)
		}
		if _, dup := addOns[a.Key]; dup {
			return fmt.Errorf("catalog %s: duplicate add-on %q", c.Service, a.Key)
		}
		if a.Price < 0 {
			return fmt.Errorf("catalog %s: add-on %q has a negative price", c.Service, a.Key)
		}
		if a.Per != "" {
			if _, ok := resources[a.Per]; !ok {
				return fmt.Errorf("catalog %s: add-on %q priced per unknown resource %q", c.Service, a.Key, a.Per)
			}
		}
		addOns[a.Key] = struct{}{}
	}

	packages := make(map[string]struct{}, len(c.Packages))
	for _, p := range c.Packages {
		if p.Key == "" {
			return fmt.Errorf("catalog %s: package key is required", c.Service)
		}
		if _, dup := packages[p.Key]; dup {
			return fmt.Errorf("catalog %s: duplicate package %q", c.Service, p.Key)
		}
		if p.BasePrice < 0 {
			return fmt.Errorf("catalog %s: package %q has a negative price", c.Service, p.Key)
		}
		for k, q := range p.Baseline {
			if _, ok := resources[k]; !ok {
				return fmt.Errorf("catalog %s: package %q baseline names unknown resource %q", c.Service, p.Key, k)
			}
			if q < 0 {
				return fmt.Errorf("catalog %s: package %q baseline %q is negative", c.Service, p.Key, k)
			}
		}
		for _, k := range p.Included {
			if _, ok := addOns[k]; !ok {
				return fmt.Errorf("catalog %s: package %q includes unknown add-on %q", c.Service, p.Key, k)
			}
		}
		packages[p.Key] = struct{}{}
	}

	if len(c.Periods) == 0 {
		return fmt.Errorf("catalog %s: at least one period is required", c.Service)
	}
	periods := make(map[string]struct{}, len(c.Periods))
	for _, p := range c.Periods {
		if p.Key == "" {
			return fmt.Errorf("catalog %s: period key is required", c.Service)
		}
		if _, dup := periods[p.Key]; dup {
			return fmt.Errorf("catalog %s: duplicate period %q", c.Service, p.Key)
		}
		if p.Months <= 0 || p.ChargedMonths <= 0 || p.ChargedMonths > float64(p.Months) {
			return fmt.Errorf("catalog %s: period %q must satisfy 0 < charged_months <= months", c.Service, p.Key)
		}
		periods[p.Key] = struct{}{}
	}

	for _, p := range c.Packages {
		if worst := c.worstCaseTotal(p); worst > maxExactAmount {
			return fmt.Errorf("catalog %s: package %q can reach %.0f, above the exact money range", c.Service, p.Key, worst)
		}
	}
	return nil
}

// worstCaseTotal is the total with every resource at its limit, every add-on
// enabled and the longest period.
func (c *Catalog) worstCaseTotal(p Package) float64 {
	limit := func(key string) float64 {
		r, _ := c.Resource(key)
		return float64(r.Limit(p.Baseline[key]))
	}
	subtotal := float64(p.BasePrice)
	for _, r := range c.Resources {
		mult := 1.0
		if r.Per != "" {
			mult = limit(r.Per)
		}
		subtotal += limit(r.Key) * float64(r.UnitPrice) * mult
	}
	for _, a := range c.AddOns {
		mult := 1.0
		if a.Per != "" {
			mult = limit(a.Per)
		}
		subtotal += float64(a.Price) * mult
	}
	charged := 0.0
	for _, period := range c.Periods {
		charged = max(charged, period.ChargedMonths)
	}
	return subtotal * (1 + c.VATRate) * charged
}

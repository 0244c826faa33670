package quote

import (
	"fmt"
	"math"
)

// Configuration is what the customer picked on the calculator.
// Quantities missing from the map default to the package baseline.
type Configuration struct {
	Package    string          `json:"package" binding:"required"`
	Quantities map[string]int  `json:"quantities"`
	AddOns     map[string]bool `json:"add_ons"`
	Period     string          `json:"period"`
}

// Line is the overage charge for one resource.
type Line struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Unit       string `json:"unit"`
	Requested  int    `json:"requested"`
	Baseline   int    `json:"baseline"`
	Overage    int    `json:"overage"`
	UnitPrice  int64  `json:"unit_price"`
	Multiplier int    `json:"multiplier"`
	Amount     int64  `json:"amount"`
}

// AddOnLine is an enabled add-on. Included add-ons are listed with a zero amount.
type AddOnLine struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Price      int64  `json:"price"`
	Multiplier int    `json:"multiplier"`
	Included   bool   `json:"included"`
	Amount     int64  `json:"amount"`
}

// Breakdown is the itemised price of a configuration. Amounts are VND.
type Breakdown struct {
	Service     string      `json:"service"`
	Package     string      `json:"package"`
	PackageName string      `json:"package_name"`
	BasePrice   int64       `json:"base_price"`
	Lines       []Line      `json:"lines"`
	AddOns      []AddOnLine `json:"add_ons"`
	Subtotal    int64       `json:"subtotal"`
	VATRate     float64     `json:"vat_rate"`
	VAT         int64       `json:"vat"`
	Period      string      `json:"period"`
	Months      int         `json:"months"`
	Multiplier  float64     `json:"multiplier"`
	Discount    float64     `json:"discount"`
	Total       int64       `json:"total"`
}

// Compute prices cfg against the catalog. Unknown resource or add-on keys in
// cfg are ignored; unknown package or period keys are errors. Quantities are
// clamped to [0, Resource.Limit], so a validated catalog never leaves the
// exact int64/float64 range.
func Compute(c *Catalog, cfg Configuration) (Breakdown, error) {
	pkg, ok := c.Package(cfg.Package)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownPackage, cfg.Package)
	}
	period, ok := c.Period(cfg.Period)
	if !ok {
		return Breakdown{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, cfg.Period)
	}

	limits := make(map[string]int, len(c.Resources))
	for _, r := range c.Resources {
		limits[r.Key] = r.Limit(pkg.Baseline[r.Key])
	}
	requested := func(key string) int {
		q, ok := cfg.Quantities[key]
		if !ok {
			q = pkg.Baseline[key]
		}
		return min(max(q, 0), limits[key])
	}

	b := Breakdown{
		Service:     c.Service,
		Package:     pkg.Key,
		PackageName: pkg.Name,
		BasePrice:   pkg.BasePrice,
		Lines:       make([]Line, 0, len(c.Resources)),
		AddOns:      make([]AddOnLine, 0),
		VATRate:     c.VATRate,
		Period:      period.Key,
		Months:      period.Months,
		Multiplier:  period.ChargedMonths,
		Discount:    period.Discount(),
	}
	subtotal := pkg.BasePrice

	for _, r := range c.Resources {
		line := Line{
			Key:        r.Key,
			Label:      r.Label,
			Unit:       r.Unit,
			Requested:  requested(r.Key),
			Baseline:   pkg.Baseline[r.Key],
			UnitPrice:  r.UnitPrice,
			Multiplier: 1,
		}
		line.Overage = max(line.Requested-line.Baseline, 0)
		if r.Per != "" {
			line.Multiplier = requested(r.Per)
		}
		line.Amount = int64(line.Overage) * r.UnitPrice * int64(line.Multiplier)
		subtotal += line.Amount
		b.Lines = append(b.Lines, line)
	}

	for _, a := range c.AddOns {
		if !cfg.AddOns[a.Key] {
			continue
		}
		line := AddOnLine{
			Key:        a.Key,
			Label:      a.Label,
			Price:      a.Price,
			Multiplier: 1,
			Included:   pkg.Includes(a.Key),
		}
		if a.Per != "" {
			line.Multiplier = requested(a.Per)
		}
		if !line.Included {
			line.Amount = a.Price * int64(line.Multiplier)
		}
		subtotal += line.Amount
		b.AddOns = append(b.AddOns, line)
	}

	b.Subtotal = subtotal
	b.VAT = VAT(subtotal, c.VATRate)
	b.Total = int64(math.Round(float64(subtotal+b.VAT) * period.ChargedMonths))
	return b, nil
}

// VAT rounds amount × rate to the nearest dong.
func VAT(amount int64, rate float64) int64 {
	return int64(math.Round(float64(amount) * rate))
}

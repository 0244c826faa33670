// Package checkout turns an equipment cart into a persisted order.
package checkout

import (
	"errors"

	"infrasite/internal/quote"
)

var ErrInvalidQuantity = errors.New("checkout: quantity must be positive")

// CartLine is one equipment item in the cart. UnitPrice is what the customer
// was shown; PlaceOrder reprices every line from the database.
type CartLine struct {
	EquipmentID uint   `json:"equipment_id"`
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	UnitPrice   int64  `json:"unit_price"`
	Quantity    int    `json:"quantity"`
}

// Total is UnitPrice × Quantity.
func (l CartLine) Total() int64 {
	return l.UnitPrice * int64(l.Quantity)
}

// Totals summarises a cart or an order.
type Totals struct {
	Subtotal   int64   `json:"subtotal"`
	VATPercent float64 `json:"vat_percent"`
	VAT        int64   `json:"vat"`
	Total      int64   `json:"total"`
}

// ComputeTotals applies VAT to subtotal.
func ComputeTotals(subtotal int64, vatPercent float64) Totals {
	vat := quote.VAT(subtotal, vatPercent/100)
	return Totals{
		Subtotal:   subtotal,
		VATPercent: vatPercent,
		VAT:        vat,
		Total:      subtotal + vat,
	}
}

// Cart is owned by one checkout session; it is not safe for concurrent use.
type Cart struct {
	lines []CartLine
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{}
}

// Add puts an item in the cart, merging quantities for equipment already present.
func (c *Cart) Add(line CartLine) error {
	if line.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.lines {
		if c.lines[i].EquipmentID == line.EquipmentID {
			c.lines[i].Quantity += line.Quantity
			return nil
		}
	}
	c.lines = append(c.lines, line)
	return nil
}

// SetQuantity replaces the quantity of an item; zero or less removes it.
func (c *Cart) SetQuantity(equipmentID uint, quantity int) {
	if quantity <= 0 {
		c.Remove(equipmentID)
		return
	}
	for i := range c.lines {
		if c.lines[i].EquipmentID == equipmentID {
			c.lines[i].Quantity = quantity
			return
		}
	}
}

// Remove drops an item.
func (c *Cart) Remove(equipmentID uint) {
	for i := range c.lines {
		if c.lines[i].EquipmentID == equipmentID {
			c.lines = append(c.lines[:i], c.lines[i+1:]...)
			return
		}
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.lines = nil
}

// Lines returns a copy of the cart contents in insertion order.
func (c *Cart) Lines() []CartLine {
	out := make([]CartLine, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len is the number of distinct items.
func (c *Cart) Len() int {
	return len(c.lines)
}

// Totals prices the cart at the prices stored in its lines.
func (c *Cart) Totals(vatPercent float64) Totals {
	var subtotal int64
	for _, l := range c.lines {
		subtotal += l.Total()
	}
	return ComputeTotals(subtotal, vatPercent)
}

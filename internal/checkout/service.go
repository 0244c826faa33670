package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"infrasite/internal/database"
	"infrasite/internal/events"
)

var (
	ErrEmptyCart            = errors.New("checkout: cart is empty")
	ErrEquipmentUnavailable = errors.New("checkout: equipment unavailable")
	errReferenceExhausted   = errors.New("checkout: could not allocate a unique reference")
)

const referenceAttempts = 5

// InvoiceQueue schedules invoice rendering for a new order.
type InvoiceQueue interface {
	EnqueueInvoice(ctx context.Context, orderID uint, correlationID string) error
}

// Service places orders.
type Service struct {
	db         *gorm.DB
	vatPercent float64
	invoices   InvoiceQueue
	events     events.Publisher
	logger     *slog.Logger
}

// NewService builds a checkout service. invoices and publisher may be nil.
func NewService(db *gorm.DB, vatPercent float64, invoices InvoiceQueue, publisher events.Publisher, logger *slog.Logger) *Service {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		db:         db,
		vatPercent: vatPercent,
		invoices:   invoices,
		events:     publisher,
		logger:     logger,
	}
}

// VATPercent is the rate applied to equipment orders.
func (s *Service) VATPercent() float64 {
	return s.vatPercent
}

// PlaceOrder reprices the cart from the equipment table and stores the order
// with its items in one transaction. The cart is cleared only when the order
// has been committed; on any error it is left untouched.
func (s *Service) PlaceOrder(ctx context.Context, cart *Cart, customer Customer, correlationID string) (*database.Order, error) {
	if cart == nil || cart.Len() == 0 {
		return nil, ErrEmptyCart
	}
	customer = customer.Normalize()
	if err := customer.Validate(); err != nil {
		return nil, err
	}

	lines := cart.Lines()
	var order database.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		items, subtotal, err := priceLines(tx, lines)
		if err != nil {
			return err
		}
		ref, err := allocateReference(tx)
		if err != nil {
			return err
		}

		totals := ComputeTotals(subtotal, s.vatPercent)
		order = database.Order{
			Reference:     ref,
			CustomerName:  customer.Name,
			CustomerEmail: customer.Email,
			CustomerPhone: customer.Phone,
			CompanyName:   customer.CompanyName,
			TaxCode:       customer.TaxCode,
			Address:       customer.Address,
			City:          customer.City,
			Notes:         customer.Notes,
			PaymentMethod: customer.PaymentMethod,
			Subtotal:      totals.Subtotal,
			VATPercent:    totals.VATPercent,
			VAT:           totals.VAT,
			Total:         totals.Total,
			Status:        database.OrderStatusPending,
			Items:         items,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	cart.Clear()

	log := s.logger.With(
		slog.String("correlation_id", correlationID),
		slog.Uint64("order_id", uint64(order.ID)),
		slog.String("reference", order.Reference),
	)
	log.Info("order placed", slog.Int64("total", order.Total), slog.Int("items", len(order.Items)))

	if s.invoices != nil {
		if err := s.invoices.EnqueueInvoice(ctx, order.ID, correlationID); err != nil {
			log.Error("enqueue invoice failed", slog.Any("error", err))
		}
	}
	if err := s.events.Publish(ctx, events.Event{
		Type:          events.TypeOrderCreated,
		OrderID:       order.ID,
		Reference:     order.Reference,
		Total:         order.Total,
		CorrelationID: correlationID,
	}); err != nil {
		log.Error("publish order event failed", slog.Any("error", err))
	}

	return &order, nil
}

func priceLines(tx *gorm.DB, lines []CartLine) ([]database.OrderItem, int64, error) {
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		if l.Quantity <= 0 {
			return nil, 0, ErrInvalidQuantity
		}
		ids = append(ids, l.EquipmentID)
	}

	var equipment []database.Equipment
	if err := tx.Where("id IN ? AND active = ?", ids, true).Find(&equipment).Error; err != nil {
		return nil, 0, fmt.Errorf("load equipment: %w", err)
	}
	byID := make(map[uint]database.Equipment, len(equipment))
	for _, e := range equipment {
		byID[e.ID] = e
	}

	items := make([]database.OrderItem, 0, len(lines))
	var subtotal int64
	for _, l := range lines {
		e, ok := byID[l.EquipmentID]
		if !ok {
			return nil, 0, fmt.Errorf("%w: id %d", ErrEquipmentUnavailable, l.EquipmentID)
		}
		lineTotal := e.Price * int64(l.Quantity)
		items = append(items, database.OrderItem{
			EquipmentID: e.ID,
			Name:        e.Name,
			SKU:         e.SKU,
			UnitPrice:   e.Price,
			Quantity:    l.Quantity,
			LineTotal:   lineTotal,
		})
		subtotal += lineTotal
	}
	return items, subtotal, nil
}

func allocateReference(tx *gorm.DB) (string, error) {
	for range referenceAttempts {
		ref, err := NewReference()
		if err != nil {
			return "", err
		}
		var count int64
		if err := tx.Model(&database.Order{}).Where("reference = ?", ref).Count(&count).Error; err != nil {
			return "", fmt.Errorf("check reference: %w", err)
		}
		if count == 0 {
			return ref, nil
		}
	}
	return "", errReferenceExhausted
}

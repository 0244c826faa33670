package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

// Task types shared by the API (producer) and the worker (consumer).
const (
	TypeOrderInvoice = "order:invoice"
)

// OrderInvoicePayload identifies the order whose invoice PDF must be rendered.
type OrderInvoicePayload struct {
	OrderID       uint   `json:"order_id"`
	CorrelationID string `json:"correlation_id"`
}

// NewOrderInvoiceTask builds an invoice rendering task.
func NewOrderInvoiceTask(orderID uint, correlationID string) (*asynq.Task, error) {
	payload, err := json.Marshal(OrderInvoicePayload{
		OrderID:       orderID,
		CorrelationID: correlationID,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeOrderInvoice, payload), nil
}

package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	invoiceMaxRetry = 5
	invoiceTimeout  = 2 * time.Minute
)

type taskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// InvoiceQueue enqueues invoice rendering tasks on asynq.
type InvoiceQueue struct {
	client taskEnqueuer
}

// NewInvoiceQueue wraps an asynq client.
func NewInvoiceQueue(client taskEnqueuer) *InvoiceQueue {
	return &InvoiceQueue{client: client}
}

// EnqueueInvoice schedules rendering of the invoice for orderID.
func (q *InvoiceQueue) EnqueueInvoice(ctx context.Context, orderID uint, correlationID string) error {
	task, err := NewOrderInvoiceTask(orderID, correlationID)
	if err != nil {
		return fmt.Errorf("build invoice task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task, asynq.MaxRetry(invoiceMaxRetry), asynq.Timeout(invoiceTimeout)); err != nil {
		return fmt.Errorf("enqueue invoice task: %w", err)
	}
	return nil
}

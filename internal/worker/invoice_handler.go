// Package worker consumes asynq tasks produced by the API.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/minio/minio-go/v7"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"infrasite/internal/config"
	"infrasite/internal/database"
	"infrasite/internal/errcode"
	"infrasite/internal/events"
	"infrasite/internal/metrics"
	"infrasite/internal/storage"
	"infrasite/internal/tasks"
)

// Renderer turns an HTML document into PDF bytes.
type Renderer interface {
	Render(ctx context.Context, html string) ([]byte, error)
}

type invoiceUploader interface {
	UploadFile(ctx context.Context, objectName string, reader io.Reader, size int64, contentType string) (*minio.UploadInfo, error)
}

// InvoiceTaskHandler renders order invoices to PDF and stores them.
type InvoiceTaskHandler struct {
	db       *gorm.DB
	storage  invoiceUploader
	renderer Renderer
	events   events.Publisher
	seller   config.CheckoutConfig
	logger   *slog.Logger

	finalAttempt func(context.Context) bool
}

func NewInvoiceTaskHandler(db *gorm.DB, storageClient invoiceUploader, renderer Renderer, publisher events.Publisher, seller config.CheckoutConfig, logger *slog.Logger) *InvoiceTaskHandler {
	if publisher == nil {
		publisher = events.Discard{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InvoiceTaskHandler{
		db:           db,
		storage:      storageClient,
		renderer:     renderer,
		events:       publisher,
		seller:       seller,
		logger:       logger,
		finalAttempt: isFinalAsynqAttempt,
	}
}

// ProcessTask implements asynq.Handler.
func (h *InvoiceTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.OrderInvoicePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal invoice payload failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	log := h.logger.With(
		slog.String("correlation_id", payload.CorrelationID),
		slog.Uint64("order_id", uint64(payload.OrderID)),
	)

	var order database.Order
	if err := h.db.WithContext(ctx).Preload("Items").First(&order, payload.OrderID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warn("order not found, skipping invoice")
			return nil
		}
		log.Error("load order failed", slog.Any("error", err))
		return err
	}
	log = log.With(slog.String("reference", order.Reference))
	log.Info("rendering invoice")

	defer func() {
		if retErr == nil {
			metrics.InvoiceRendered("ok")
			return
		}
		if !h.finalAttempt(ctx) {
			return
		}
		metrics.InvoiceRendered("failed")
		code := errcode.SystemError
		if errors.Is(retErr, errRender) {
			code = errcode.RenderFailed
		}
		if err := h.events.Publish(ctx, events.Event{
			Type:          events.TypeInvoiceFailed,
			OrderID:       order.ID,
			Reference:     order.Reference,
			CorrelationID: payload.CorrelationID,
			ErrorCode:     code,
			ErrorMessage:  strings.TrimSpace(retErr.Error()),
		}); err != nil {
			log.Error("publish invoice failure failed", slog.Any("error", err))
		}
	}()

	html, err := renderInvoiceHTML(&order, h.seller)
	if err != nil {
		log.Error("build invoice html failed", slog.Any("error", err))
		return err
	}
	pdfBytes, err := h.renderer.Render(ctx, html)
	if err != nil {
		log.Error("render invoice pdf failed", slog.Any("error", err))
		return fmt.Errorf("%w: %v", errRender, err)
	}

	objectKey := storage.InvoiceObjectKey(order.Reference)
	if _, err := h.storage.UploadFile(ctx, objectKey, bytes.NewReader(pdfBytes), int64(len(pdfBytes)), "application/pdf"); err != nil {
		log.Error("upload invoice failed", slog.Any("error", err))
		return err
	}

	invoice := database.OrderInvoice{OrderID: order.ID, ObjectKey: objectKey}
	if err := h.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "order_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"object_key"}),
	}).Create(&invoice).Error; err != nil {
		log.Error("record invoice failed", slog.Any("error", err))
		return err
	}

	if err := h.events.Publish(ctx, events.Event{
		Type:          events.TypeInvoiceReady,
		OrderID:       order.ID,
		Reference:     order.Reference,
		Total:         order.Total,
		CorrelationID: payload.CorrelationID,
		ErrorCode:     errcode.OK,
		At:            time.Now().UTC(),
	}); err != nil {
		log.Warn("publish invoice ready failed", slog.Any("error", err))
	}

	log.Info("invoice stored", slog.String("object_key", objectKey), slog.Int("bytes", len(pdfBytes)))
	return nil
}

var errRender = errors.New("render invoice")

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}

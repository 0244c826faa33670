package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"infrasite/internal/api/middleware"
	"infrasite/internal/checkout"
	"infrasite/internal/config"
	"infrasite/internal/database"
	"infrasite/internal/metrics"
)

const (
	ordersRatePrefix = "rate:orders:"
	invoiceURLTTL    = 10 * time.Minute
)

type invoiceLinker interface {
	GeneratePresignedURLWithParams(ctx context.Context, objectKey string, duration time.Duration, params map[string]string) (string, error)
}

// OrderHandler serves equipment checkout and order lookups.
type OrderHandler struct {
	db       *gorm.DB
	checkout *checkout.Service
	kv       redisKV
	invoices invoiceLinker
	cfg      config.CheckoutConfig
}

func NewOrderHandler(db *gorm.DB, svc *checkout.Service, kv redisKV, invoices invoiceLinker, cfg config.CheckoutConfig) *OrderHandler {
	return &OrderHandler{db: db, checkout: svc, kv: kv, invoices: invoices, cfg: cfg}
}

type orderLineRequest struct {
	EquipmentID uint `json:"equipment_id" binding:"required"`
	Quantity    int  `json:"quantity" binding:"required,gt=0,lte=1000"`
}

type placeOrderRequest struct {
	Items    []orderLineRequest `json:"items" binding:"required,min=1,max=50,dive"`
	Customer checkout.Customer  `json:"customer"`
}

// BankTransfer is shown to the customer after an order is placed.
type BankTransfer struct {
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountHolder string `json:"account_holder"`
	Branch        string `json:"branch,omitempty"`
	Amount        int64  `json:"amount"`
	TransferNote  string `json:"transfer_note"`
}

type placeOrderResponse struct {
	Order        *database.Order `json:"order"`
	BankTransfer *BankTransfer   `json:"bank_transfer,omitempty"`
}

// PlaceOrder handles POST /v1/orders.
func (h *OrderHandler) PlaceOrder(c *gin.Context) {
	ctx := c.Request.Context()
	log := middleware.LoggerFromContext(c)

	if h.kv != nil && hourlyLimitExceeded(ctx, h.kv, ordersRatePrefix, c.ClientIP(), h.cfg.OrdersPerHourPerIP) {
		log.Warn("order rate limit exceeded", slog.String("client_ip", c.ClientIP()))
		TooManyRequests(c)
		return
	}

	var req placeOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBindError(c, err, &req)
		return
	}

	cart := checkout.NewCart()
	for _, item := range req.Items {
		if err := cart.Add(checkout.CartLine{EquipmentID: item.EquipmentID, Quantity: item.Quantity}); err != nil {
			BadRequest(c, err.Error())
			return
		}
	}

	order, err := h.checkout.PlaceOrder(ctx, cart, req.Customer, middleware.GetCorrelationID(c))
	if err != nil {
		var verr *checkout.ValidationError
		switch {
		case errors.As(err, &verr):
			ValidationFailed(c, verr.Fields)
		case errors.Is(err, checkout.ErrEmptyCart), errors.Is(err, checkout.ErrInvalidQuantity):
			BadRequest(c, err.Error())
		case errors.Is(err, checkout.ErrEquipmentUnavailable):
			Conflict(c, err.Error())
		default:
			log.Error("place order failed", slog.Any("error", err))
			Internal(c, "failed to place order")
		}
		return
	}

	metrics.OrderCreated()
	resp := placeOrderResponse{Order: order}
	if order.PaymentMethod == checkout.PaymentBankTransfer {
		resp.BankTransfer = h.bankTransfer(order)
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *OrderHandler) bankTransfer(order *database.Order) *BankTransfer {
	return &BankTransfer{
		BankName:      h.cfg.BankName,
		AccountNumber: h.cfg.BankAccountNumber,
		AccountHolder: h.cfg.BankAccountHolder,
		Branch:        h.cfg.BankBranch,
		Amount:        order.Total,
		TransferNote:  order.Reference,
	}
}

// GetByReference handles GET /v1/orders/:ref.
func (h *OrderHandler) GetByReference(c *gin.Context) {
	order, ok := h.loadByReference(c)
	if !ok {
		return
	}
	resp := placeOrderResponse{Order: order}
	if order.PaymentMethod == checkout.PaymentBankTransfer {
		resp.BankTransfer = h.bankTransfer(order)
	}
	c.JSON(http.StatusOK, resp)
}

// InvoiceURL handles GET /v1/orders/:ref/invoice; 404 until the worker has stored the PDF.
func (h *OrderHandler) InvoiceURL(c *gin.Context) {
	ctx := c.Request.Context()
	order, ok := h.loadByReference(c)
	if !ok {
		return
	}

	var invoice database.OrderInvoice
	if err := h.db.WithContext(ctx).Where("order_id = ?", order.ID).First(&invoice).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "invoice not ready")
			return
		}
		Internal(c, "failed to load invoice")
		return
	}

	url, err := h.invoices.GeneratePresignedURLWithParams(ctx, invoice.ObjectKey, invoiceURLTTL, map[string]string{
		"response-content-disposition": `attachment; filename="invoice-` + order.Reference + `.pdf"`,
		"response-content-type":        "application/pdf",
	})
	if err != nil {
		middleware.LoggerFromContext(c).Error("presign invoice failed", slog.String("object_key", invoice.ObjectKey), slog.Any("error", err))
		Internal(c, "failed to generate invoice url")
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": url, "expires_in": int(invoiceURLTTL.Seconds())})
}

// AdminList handles GET /v1/admin/orders.
func (h *OrderHandler) AdminList(c *gin.Context) {
	var orders []database.Order
	if err := h.db.WithContext(c.Request.Context()).Preload("Items").Order("id DESC").Find(&orders).Error; err != nil {
		middleware.LoggerFromContext(c).Error("list orders failed", slog.Any("error", err))
		Internal(c, "failed to list orders")
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": orders})
}

// AdminGet handles GET /v1/admin/orders/:id.
func (h *OrderHandler) AdminGet(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		BadRequest(c, "invalid id")
		return
	}
	var order database.Order
	if err := h.db.WithContext(c.Request.Context()).Preload("Items").First(&order, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "order not found")
			return
		}
		Internal(c, "failed to load order")
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *OrderHandler) loadByReference(c *gin.Context) (*database.Order, bool) {
	ref := strings.ToUpper(strings.TrimSpace(c.Param("ref")))
	if !checkout.ValidReference(ref) {
		NotFound(c, "order not found")
		return nil, false
	}
	var order database.Order
	if err := h.db.WithContext(c.Request.Context()).Preload("Items").Where("reference = ?", ref).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "order not found")
			return nil, false
		}
		Internal(c, "failed to load order")
		return nil, false
	}
	return &order, true
}

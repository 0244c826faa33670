package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"infrasite/internal/api/middleware"
	"infrasite/internal/metrics"
	"infrasite/internal/quote"
)

// QuoteHandler exposes the service catalogs and prices calculator configurations.
type QuoteHandler struct {
	registry *quote.Registry
}

func NewQuoteHandler(registry *quote.Registry) *QuoteHandler {
	return &QuoteHandler{registry: registry}
}

// ListCatalogs returns every catalog in declaration order.
func (h *QuoteHandler) ListCatalogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"items": h.registry.Catalogs()})
}

// GetCatalog returns the packages, resources, add-ons and periods of one service.
func (h *QuoteHandler) GetCatalog(c *gin.Context) {
	catalog, err := h.registry.Get(c.Param("service"))
	if err != nil {
		NotFound(c, "unknown service")
		return
	}
	c.JSON(http.StatusOK, catalog)
}

// Quote prices the posted configuration.
func (h *QuoteHandler) Quote(c *gin.Context) {
	service := c.Param("service")
	if _, err := h.registry.Get(service); err != nil {
		NotFound(c, "unknown service")
		return
	}

	var cfg quote.Configuration
	if err := c.ShouldBindJSON(&cfg); err != nil {
		respondBindError(c, err, &cfg)
		return
	}

	breakdown, err := h.registry.Quote(service, cfg)
	switch {
	case err == nil:
	case errors.Is(err, quote.ErrUnknownPackage), errors.Is(err, quote.ErrUnknownPeriod):
		BadRequest(c, err.Error())
		return
	default:
		middleware.LoggerFromContext(c).Error("quote failed", slog.String("service", service), slog.Any("error", err))
		Internal(c, "failed to compute quote")
		return
	}

	metrics.QuoteComputed(service)
	c.JSON(http.StatusOK, breakdown)
}

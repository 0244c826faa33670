package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGinMiddleware_RecordsRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(GinMiddleware())
	router.GET("/v1/articles/:slug", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := testutil.ToFloat64(requestTotal.WithLabelValues(http.MethodGet, "/v1/articles/:slug", "200"))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/articles/hello", nil))
	require.Equal(t, http.StatusOK, w.Code)

	after := testutil.ToFloat64(requestTotal.WithLabelValues(http.MethodGet, "/v1/articles/:slug", "200"))
	assert.Equal(t, before+1, after)
}

func TestBusinessCounters(t *testing.T) {
	before := testutil.ToFloat64(quotesComputed.WithLabelValues("hosting"))
	QuoteComputed("hosting")
	assert.Equal(t, before+1, testutil.ToFloat64(quotesComputed.WithLabelValues("hosting")))

	orders := testutil.ToFloat64(ordersCreated)
	OrderCreated()
	assert.Equal(t, orders+1, testutil.ToFloat64(ordersCreated))
}

func TestHandler_ExposesCollectors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	OrderCreated()

	router := gin.New()
	router.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "infrasite_orders_created_total")
}

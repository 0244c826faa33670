package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	quotesComputed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_computed_total",
			Help:      "Quotes priced by the calculator API.",
		},
		[]string{"service"},
	)

	ordersCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_created_total",
			Help:      "Equipment orders committed.",
		},
	)

	invoicesRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invoices_rendered_total",
			Help:      "Invoice PDFs rendered by the worker, by outcome.",
		},
		[]string{"outcome"},
	)
)

// QuoteComputed counts one priced quote.
func QuoteComputed(service string) {
	quotesComputed.WithLabelValues(service).Inc()
}

// OrderCreated counts one committed order.
func OrderCreated() {
	ordersCreated.Inc()
}

// InvoiceRendered counts one invoice attempt; outcome is "ok" or "failed".
func InvoiceRendered(outcome string) {
	invoicesRendered.WithLabelValues(outcome).Inc()
}

// Package metrics exposes the counters for the events operators watch:
// confirmed orders, duplicate confirmations, fulfillment failures and refunds.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	OrdersCreated          prometheus.Counter
	DuplicateConfirmations prometheus.Counter
	FulfillmentFailures    prometheus.Counter
	Refunds                prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OrdersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout", Name: "orders_created_total",
			Help: "Orders created by confirmed payments.",
		}),
		DuplicateConfirmations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout", Name: "duplicate_confirmations_total",
			Help: "Payment confirmations ignored as duplicates.",
		}),
		FulfillmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout", Name: "fulfillment_failures_total",
			Help: "Confirmed payments that could not reserve inventory.",
		}),
		Refunds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "checkout", Name: "refunds_total",
			Help: "Orders refunded.",
		}),
	}
	reg.MustRegister(m.OrdersCreated, m.DuplicateConfirmations, m.FulfillmentFailures, m.Refunds)
	return m
}

// NewNop returns metrics bound to a throwaway registry, for tests.
func NewNop() *Metrics { return New(prometheus.NewRegistry()) }

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service counters. Registered once at startup via
// promauto; construct with New and share the instance.
type Metrics struct {
	OrdersCreated     *prometheus.CounterVec   // by payment outcome of the promo (applied/skipped)
	PaymentsInitiated *prometheus.CounterVec   // by type
	WebhookEvents     *prometheus.CounterVec   // by event type and result
	GatewayCalls      *prometheus.HistogramVec // by operation
	DiscountChecks    *prometheus.CounterVec   // by result
	PlansDefaulted    prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		OrdersCreated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsreg_orders_created_total",
				Help: "Total number of orders created",
			},
			[]string{"promo"},
		),
		PaymentsInitiated: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsreg_payments_initiated_total",
				Help: "Total number of payments initiated",
			},
			[]string{"type"},
		),
		WebhookEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsreg_webhook_events_total",
				Help: "Total number of gateway webhook events received",
			},
			[]string{"type", "result"}, // result: applied/duplicate/unmatched/error
		),
		GatewayCalls: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "sportsreg_gateway_call_duration_seconds",
				Help:    "Duration of payment gateway calls",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		DiscountChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sportsreg_discount_checks_total",
				Help: "Total number of promo code validations",
			},
			[]string{"result"}, // result: valid/invalid
		),
		PlansDefaulted: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "sportsreg_plans_defaulted_total",
				Help: "Total number of installment plans that defaulted",
			},
		),
	}
}

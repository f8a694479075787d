package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		gatewayCallsTotal,
		gatewayCallDuration,
		paymentsRevenueTotal,
	)
}

var (
	gatewayCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_gateway_calls_total",
			Help: "Payment gateway calls by provider, operation and result.",
		},
		[]string{"provider", "op", "result"}, // op: charge|cancel|lookup; result: ok|rejected|transient
	)

	gatewayCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_gateway_call_duration_seconds",
			Help:    "Payment gateway call latency including retries.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"provider", "op"},
	)

	paymentsRevenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_revenue_total",
			Help: "Charged minus canceled amounts, labeled by provider.",
		},
		[]string{"provider"},
	)
)

func ObserveGatewayCall(provider, op, result string, seconds float64) {
	gatewayCallsTotal.WithLabelValues(norm(provider), norm(op), norm(result)).Inc()
	gatewayCallDuration.WithLabelValues(norm(provider), norm(op)).Observe(seconds)
}

// AddPaymentRevenue adds amount, which is negative for cancellations.
func AddPaymentRevenue(provider string, amount int64) {
	if amount < 0 {
		// counters only grow; cancellations are tracked as their own series
		paymentsRevenueTotal.WithLabelValues(norm(provider) + "_canceled").Add(float64(-amount))
		return
	}
	paymentsRevenueTotal.WithLabelValues(norm(provider)).Add(float64(amount))
}

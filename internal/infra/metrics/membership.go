package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		membershipTransitionsTotal,
		membershipsActive,
	)
}

var (
	membershipTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "membership_transitions_total",
			Help: "Membership actions by kind and result.",
		},
		[]string{"action", "result"}, // action: subscribe|unsubscribe; result: ok|rejected|payment_failed|error
	)

	membershipsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "memberships_active",
			Help: "Active memberships counted at the last renewal sweep.",
		},
	)
)

func IncMembershipTransition(action, result string) {
	membershipTransitionsTotal.WithLabelValues(norm(action), norm(result)).Inc()
}

func SetMembershipsActive(n int) {
	membershipsActive.Set(float64(n))
}

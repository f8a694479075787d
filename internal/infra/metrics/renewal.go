package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		renewalsTotal,
		renewalSweepsTotal,
		renewalSweepDuration,
		renewalSweepLastSuccess,
	)
}

var (
	renewalsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewals_total",
			Help: "Renewal units by outcome.",
		},
		[]string{"outcome"}, // paid|free|skipped|failed
	)

	renewalSweepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "renewal_sweeps_total",
			Help: "Renewal sweeps by trigger and result.",
		},
		[]string{"trigger", "result"}, // result: ok|partial|locked|error
	)

	renewalSweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "renewal_sweep_duration_seconds",
			Help:    "Wall time of a renewal sweep.",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 900},
		},
	)

	renewalSweepLastSuccess = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "renewal_sweep_last_success_timestamp_seconds",
			Help: "Unix time of the last sweep that finished without failures.",
		},
	)
)

func IncRenewal(outcome string) {
	renewalsTotal.WithLabelValues(norm(outcome)).Inc()
}

func ObserveRenewalSweep(trigger, result string, seconds float64, finishedAt int64) {
	renewalSweepsTotal.WithLabelValues(norm(trigger), norm(result)).Inc()
	if result == "locked" {
		return
	}
	renewalSweepDuration.Observe(seconds)
	if result == "ok" {
		renewalSweepLastSuccess.Set(float64(finishedAt))
	}
}

package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counter-per-outcome, grounded on services/validator/metrics.go's
// promauto + init-guard shape, collapsed to a single labeled vector
// since the rule vocabulary here is data (Phase/Rule), not a fixed set
// of package-level globals.
var (
	rulesEvaluated   prometheus.Counter
	rulesRejected    *prometheus.CounterVec
	rulesMetricsOnce = false
)

func initRulesMetrics() {
	if rulesMetricsOnce {
		return
	}

	rulesEvaluated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "evaluations_total",
		Help:      "Number of ruleset evaluations performed",
	})
	rulesRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rules",
		Name:      "rejections_total",
		Help:      "Number of ruleset evaluations rejected, by phase and rule",
	}, []string{"phase", "rule"})

	rulesMetricsOnce = true
}

func recordOutcome(phase, rule string, ok bool) {
	initRulesMetrics()

	rulesEvaluated.Inc()
	if !ok {
		rulesRejected.WithLabelValues(phase, rule).Inc()
	}
}

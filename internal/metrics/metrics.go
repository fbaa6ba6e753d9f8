package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Poller metrics
	PollCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_poll_cycles_total",
			Help: "Total number of poll cycles by outcome",
		},
		[]string{"status"}, // status: ok, error
	)

	ReadingsProcessedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firewatch_readings_processed_total",
			Help: "Total number of readings handed to the rule engine",
		},
	)

	ReadingsPreFilteredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "firewatch_readings_prefiltered_total",
			Help: "Total number of readings skipped as within safe thresholds",
		},
	)

	// Rule engine metrics
	AlertsFiredTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_alerts_fired_total",
			Help: "Total number of alerts fired",
		},
		[]string{"rule", "priority"},
	)

	RuleEvalErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_rule_eval_errors_total",
			Help: "Total number of rule condition evaluation errors",
		},
		[]string{"rule"},
	)

	RuleCooldownSkipsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_rule_cooldown_skips_total",
			Help: "Total number of rule firings suppressed by cooldown",
		},
		[]string{"rule"},
	)

	// Dispatcher metrics
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_dispatch_total",
			Help: "Total number of per-channel dispatch attempts",
		},
		[]string{"channel", "status"}, // status: delivered, failed, skipped
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "firewatch_dispatch_duration_seconds",
			Help:    "Time taken to deliver an alert to one channel",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"channel"},
	)

	// Ledger metrics
	ActiveAlerts = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "firewatch_active_alerts",
			Help: "Current number of active (unresolved) alerts",
		},
	)

	// Panic recovery
	PanicsRecovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "firewatch_panics_recovered_total",
			Help: "Total number of panics recovered",
		},
		[]string{"component"},
	)
)

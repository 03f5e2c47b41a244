package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// namespace prefixes every metric (prcycle_...).
const namespace = "prcycle"

// evalBuckets cover single-rule batches from a handful of records to a few thousand.
var evalBuckets = []float64{.0005, .001, .002, .005, .010, .025, .050, .100, .250, 1}

var (
	// FireDuration measures one Fire call over a batch.
	// Metric: prcycle_engine_fire_seconds
	FireDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "fire_seconds",
		Help:      "Time taken to fire one rule over a batch of records",
		Buckets:   evalBuckets,
	})

	// RecordEvaluations counts per-record outcomes.
	// Metric: prcycle_engine_record_evaluations_total
	RecordEvaluations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "record_evaluations_total",
		Help:      "Total (rule, record) evaluations by outcome",
	}, []string{"outcome"})

	// QueriesGenerated counts rendered queries.
	QueriesGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "queries_generated_total",
		Help:      "Total generated queries",
	})

	// ValidationFailures counts rejected rules by the offending rule field.
	ValidationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "validation_failures_total",
		Help:      "Total rules rejected by validation",
	}, []string{"field"})

	// --- Condition cache ---

	ConditionCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "condition_cache",
		Name:      "hits_total",
		Help:      "Total compiled-condition cache hits",
	})

	ConditionCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "condition_cache",
		Name:      "misses_total",
		Help:      "Total compiled-condition cache misses (condition parsed)",
	})

	// RulesLoaded tracks the number of rules with a compiled entry.
	RulesLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "engine",
		Name:      "rules_compiled",
		Help:      "Current number of rules with a compiled condition",
	})
)

package engine

import "github.com/prometheus/client_golang/prometheus"

// Mode labels used in metrics and logs.
const (
	ModeDirect = "direct"
	ModeTiled  = "tiled"
	ModeInterp = "interp"
	ModeObase  = "obase"
	ModeMerge  = "merge"
)

var (
	plansGenerated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stencil_plans_generated_total",
			Help: "Total number of plans generated.",
		},
		[]string{"mode"},
	)

	epochsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stencil_epochs_executed_total",
			Help: "Total number of plan epochs executed.",
		},
		[]string{"mode"},
	)

	regionsExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stencil_regions_executed_total",
			Help: "Total number of plan regions executed.",
		},
		[]string{"mode"},
	)

	runDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stencil_run_seconds",
			Help:    "Wall time of plan executions in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)
)

func init() {
	prometheus.MustRegister(plansGenerated)
	prometheus.MustRegister(epochsExecuted)
	prometheus.MustRegister(regionsExecuted)
	prometheus.MustRegister(runDuration)
}

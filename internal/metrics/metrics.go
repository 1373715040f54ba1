package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the import pipeline.
type Metrics struct {
	RunsStarted      prometheus.Counter
	RunsFinished     *prometheus.CounterVec
	SegmentsRun      prometheus.Counter
	ProductsUpserted *prometheus.CounterVec
	BatchErrors      prometheus.Counter
	StalledRuns      prometheus.Counter
}

// New registers the import pipeline collectors with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RunsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_import_runs_started_total",
			Help: "Number of import runs started.",
		}),
		RunsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_import_runs_finished_total",
			Help: "Number of import runs finished, by terminal status.",
		}, []string{"status"}),
		SegmentsRun: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_import_segments_total",
			Help: "Number of bounded-duration import segments executed.",
		}),
		ProductsUpserted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "catalog_import_products_upserted_total",
			Help: "Number of products written by import runs, by outcome.",
		}, []string{"outcome"}),
		BatchErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_import_batch_errors_total",
			Help: "Number of batch-level errors tolerated by import runs.",
		}),
		StalledRuns: factory.NewCounter(prometheus.CounterOpts{
			Name: "catalog_import_stalled_runs_total",
			Help: "Number of stalled runs resolved by the watchdog.",
		}),
	}
}

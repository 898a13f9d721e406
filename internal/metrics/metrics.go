// Package metrics registers the prometheus counters/histograms the
// orchestrator reports into at the end of a sweep, and exposes the
// registry for internal/server's /metrics handler.
//
// Grounded on jordigilh-kubernaut's prometheus/client_golang usage
// (counter-per-outcome registered once at package init, labeled by a
// small cardinality dimension) and GoogleChrome-webstatus.dev's own
// direct dependency on the same library.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"jobpipeline/internal/models"
)

// Collector owns the registry and the counters/histograms derived from
// SweepStats. cmd/sweep always wires a real one into each Orchestrator;
// orchestrator.Recorder is a plain interface, and a nil Metrics field
// there disables reporting, so tests need no Collector at all.
type Collector struct {
	registry *prometheus.Registry

	companiesProcessed *prometheus.CounterVec
	companiesSkipped   *prometheus.CounterVec
	jobsScraped        *prometheus.CounterVec
	jobsWrittenRaw     *prometheus.CounterVec
	jobsDuplicate      *prometheus.CounterVec
	jobsClassified     *prometheus.CounterVec
	jobsAgencyFiltered *prometheus.CounterVec
	jobsWrittenEnriched *prometheus.CounterVec
	costClassification *prometheus.CounterVec
	costSaved          *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
}

// New builds a Collector with every metric registered against a fresh
// registry.
func New() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		companiesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "companies_processed_total",
			Help: "Employers processed per sweep, by source.",
		}, []string{"source"}),
		companiesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "companies_skipped_total",
			Help: "Employers skipped via the resume window, by source.",
		}, []string{"source"}),
		jobsScraped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "jobs_scraped_total",
			Help: "Postings retrieved from a source before any filter.",
		}, []string{"source"}),
		jobsWrittenRaw: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "jobs_written_raw_total",
			Help: "Postings upserted into the raw store as new or changed.",
		}, []string{"source"}),
		jobsDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "jobs_duplicate_total",
			Help: "Re-sights whose content hash was unchanged.",
		}, []string{"source"}),
		jobsClassified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "jobs_classified_total",
			Help: "Postings successfully classified.",
		}, []string{"source"}),
		jobsAgencyFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "jobs_agency_filtered_total",
			Help: "Postings filtered or flagged as recruitment agencies.",
		}, []string{"source"}),
		jobsWrittenEnriched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "jobs_written_enriched_total",
			Help: "Enriched rows written.",
		}, []string{"source"}),
		costClassification: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "classification_cost_usd_total",
			Help: "Cumulative classifier RPC cost in USD.",
		}, []string{"source"}),
		costSaved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "jobpipeline", Name: "cost_saved_usd_total",
			Help: "Classifier cost avoided via pre-classification filtering.",
		}, []string{"source"}),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "jobpipeline", Name: "sweep_duration_seconds",
			Help:    "Wall-clock duration of one RunSource invocation.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"source"}),
	}

	registry.MustRegister(
		c.companiesProcessed, c.companiesSkipped, c.jobsScraped, c.jobsWrittenRaw,
		c.jobsDuplicate, c.jobsClassified, c.jobsAgencyFiltered, c.jobsWrittenEnriched,
		c.costClassification, c.costSaved, c.sweepDuration,
	)

	return c
}

// Registry exposes the underlying prometheus registry for internal/server.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

// ObserveSweep records one sweep's final SweepStats, satisfying
// orchestrator.Recorder.
func (c *Collector) ObserveSweep(source string, stats models.SweepStats) {
	c.companiesProcessed.WithLabelValues(source).Add(float64(stats.CompaniesProcessed))
	c.companiesSkipped.WithLabelValues(source).Add(float64(stats.CompaniesSkipped))
	c.jobsScraped.WithLabelValues(source).Add(float64(stats.JobsScraped))
	c.jobsWrittenRaw.WithLabelValues(source).Add(float64(stats.JobsWrittenRaw))
	c.jobsDuplicate.WithLabelValues(source).Add(float64(stats.JobsDuplicate))
	c.jobsClassified.WithLabelValues(source).Add(float64(stats.JobsClassified))
	c.jobsAgencyFiltered.WithLabelValues(source).Add(float64(stats.JobsAgencyFiltered))
	c.jobsWrittenEnriched.WithLabelValues(source).Add(float64(stats.JobsWrittenEnriched))
	c.costClassification.WithLabelValues(source).Add(stats.CostClassificationTotal)
	c.costSaved.WithLabelValues(source).Add(stats.CostSavedFromFiltering)
	c.sweepDuration.WithLabelValues(source).Observe(stats.Elapsed.Seconds())
}

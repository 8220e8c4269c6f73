package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the record module. All methods are
// nil-safe so services constructed without metrics (tests) need no stubs.
type Metrics struct {
	Repairs           prometheus.Counter
	RepairedRecords   prometheus.Counter
	IndexPushFailures prometheus.Counter
	QuotaRejections   prometheus.Counter
	TombstonesPurged  prometheus.Counter
	ListDuration      prometheus.Histogram
}

// New creates a Metrics instance with all record module metrics registered.
// Call once per process; promauto registers against the default registry.
func New() *Metrics {
	return &Metrics{
		Repairs: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roadlog_index_repairs_total",
			Help: "Total number of index rebuilds triggered by divergence detection",
		}),
		RepairedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roadlog_index_repaired_records_total",
			Help: "Total number of records re-indexed by repair scans",
		}),
		IndexPushFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roadlog_index_push_failures_total",
			Help: "Total number of best-effort index pushes that failed after an authoritative write",
		}),
		QuotaRejections: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roadlog_quota_rejections_total",
			Help: "Total number of creations rejected by the monthly quota",
		}),
		TombstonesPurged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "roadlog_tombstones_purged_total",
			Help: "Total number of tombstones hard-deleted via permanent delete or empty trash",
		}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "roadlog_list_duration_seconds",
			Help:    "Duration of list operations including any repair",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncRepair records one divergence-triggered index rebuild.
func (m *Metrics) IncRepair() {
	if m != nil {
		m.Repairs.Inc()
	}
}

// AddRepairedRecords records how many records a repair scan re-indexed.
func (m *Metrics) AddRepairedRecords(n int) {
	if m != nil {
		m.RepairedRecords.Add(float64(n))
	}
}

// IncIndexPushFailure records one swallowed index push failure.
func (m *Metrics) IncIndexPushFailure() {
	if m != nil {
		m.IndexPushFailures.Inc()
	}
}

// IncQuotaRejection records one creation blocked by the monthly quota.
func (m *Metrics) IncQuotaRejection() {
	if m != nil {
		m.QuotaRejections.Inc()
	}
}

// AddTombstonesPurged records hard-deleted tombstones.
func (m *Metrics) AddTombstonesPurged(n int) {
	if m != nil {
		m.TombstonesPurged.Add(float64(n))
	}
}

// ObserveList records the duration of a list operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveList(start time.Time) {
	if m != nil {
		m.ListDuration.Observe(time.Since(start).Seconds())
	}
}

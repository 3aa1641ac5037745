package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	snapshotsStored *prometheus.CounterVec
	errorsTotal     *prometheus.CounterVec
	lastPrice       *prometheus.GaugeVec
	latency         *prometheus.HistogramVec
	queries         *prometheus.CounterVec
	storeEntries    prometheus.Gauge
	storeUnique     prometheus.Gauge
	sourceDegraded  prometheus.Gauge
	generativeUp    prometheus.Gauge
	cycleFailures   prometheus.Histogram
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		snapshotsStored: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_snapshots_stored_total",
			Help: "Snapshots appended to the store by provenance",
		}, []string{"provenance", "symbol"}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_errors_total",
			Help: "Total number of errors encountered",
		}, []string{"type"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "finpulse_last_price",
			Help: "Last recorded price for a symbol",
		}, []string{"symbol"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "finpulse_operation_duration_seconds",
			Help:    "Duration of operations in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation"}),
		queries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "finpulse_queries_total",
			Help: "Answered questions by answer mode",
		}, []string{"mode"}),
		storeEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "finpulse_store_entries",
			Help: "Snapshots currently held in memory",
		}),
		storeUnique: f.NewGauge(prometheus.GaugeOpts{
			Name: "finpulse_store_unique_instruments",
			Help: "Distinct instruments currently held in memory",
		}),
		sourceDegraded: f.NewGauge(prometheus.GaugeOpts{
			Name: "finpulse_source_degraded",
			Help: "1 when ingestion has switched to synthetic data",
		}),
		generativeUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "finpulse_generative_online",
			Help: "1 when the generative answer engine is online",
		}),
		cycleFailures: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "finpulse_cycle_failure_ratio",
			Help:    "Share of instruments that failed per ingestion cycle",
			Buckets: []float64{0, 0.1, 0.2, 0.4, 0.6, 0.8, 1},
		}),
	}
}

func (r *Recorder) RecordSnapshotStored(provenance, symbol string) {
	r.snapshotsStored.WithLabelValues(provenance, symbol).Inc()
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordLastPrice(symbol string, price float64) {
	r.lastPrice.WithLabelValues(symbol).Set(price)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordQuery(mode string) {
	r.queries.WithLabelValues(mode).Inc()
}

func (r *Recorder) RecordCycle(attempted, failed int) {
	if attempted == 0 {
		return
	}
	r.cycleFailures.Observe(float64(failed) / float64(attempted))
}

func (r *Recorder) SetStoreSize(entries, unique int) {
	r.storeEntries.Set(float64(entries))
	r.storeUnique.Set(float64(unique))
}

func (r *Recorder) SetModes(sourceDegraded, generativeOnline bool) {
	r.sourceDegraded.Set(boolGauge(sourceDegraded))
	r.generativeUp.Set(boolGauge(generativeOnline))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Package metrics exposes the collector's Prometheus instrumentation.
//
// Metrics exposed:
//   - satrack_fetch_total: Counter of fetch cycles by result (ok, fetch_error, rejected)
//   - satrack_fetch_duration_seconds: Histogram of upstream fetch latency
//   - satrack_positions_inserted_total: Counter of stored records
//   - satrack_positions_evicted_total: Counter of records removed by retention
//   - satrack_store_records: Gauge of live records after the last cycle
//   - satrack_sink_errors_total: Counter of failed sink publishes by sink
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	FetchTotal        *prometheus.CounterVec
	FetchDuration     prometheus.Histogram
	PositionsInserted prometheus.Counter
	PositionsEvicted  prometheus.Counter
	StoreRecords      prometheus.Gauge
	SinkErrors        *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "satrack_fetch_total",
			Help: "Total fetch cycles by result",
		}, []string{"result"}),

		FetchDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "satrack_fetch_duration_seconds",
			Help:    "Duration of upstream telemetry fetches",
			Buckets: prometheus.DefBuckets,
		}),

		PositionsInserted: factory.NewCounter(prometheus.CounterOpts{
			Name: "satrack_positions_inserted_total",
			Help: "Total positions stored",
		}),

		PositionsEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "satrack_positions_evicted_total",
			Help: "Total positions removed by retention",
		}),

		StoreRecords: factory.NewGauge(prometheus.GaugeOpts{
			Name: "satrack_store_records",
			Help: "Live records in the store after the last collector cycle",
		}),

		SinkErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "satrack_sink_errors_total",
			Help: "Total failed sink publishes by sink",
		}, []string{"sink"}),
	}
}

func (m *Metrics) RecordFetch(result string, seconds float64) {
	m.FetchTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(seconds)
}

func (m *Metrics) RecordInsert() {
	m.PositionsInserted.Inc()
}

func (m *Metrics) RecordEvicted(n int64) {
	m.PositionsEvicted.Add(float64(n))
}

func (m *Metrics) SetStoreRecords(n int64) {
	m.StoreRecords.Set(float64(n))
}

func (m *Metrics) RecordSinkError(sink string) {
	m.SinkErrors.WithLabelValues(sink).Inc()
}

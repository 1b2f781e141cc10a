// Package metrics exposes Prometheus collectors for tracefile stores.
//
// Stores record into a *Metrics passed with their WithMetrics option. A nil
// *Metrics is valid and records nothing, so stores built without the option pay
// only a nil check.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "tracefile"

// Metrics groups the store collectors.
type Metrics struct {
	RecordsWritten  *prometheus.CounterVec
	BytesWritten    *prometheus.CounterVec
	PacketsWritten  prometheus.Counter
	FootersWritten  *prometheus.CounterVec
	FootersDecoded  *prometheus.CounterVec
	FooterBytes     *prometheus.HistogramVec
	SeriesRejected  *prometheus.CounterVec
	OpenStores      *prometheus.GaugeVec
	FooterDefaulted *prometheus.CounterVec
}

// New creates unregistered collectors.
func New() *Metrics {
	return &Metrics{
		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_written_total",
				Help:      "Total records written by mode.",
			},
			[]string{"mode"},
		),
		BytesWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bytes_written_total",
				Help:      "Total payload bytes written per file kind.",
			},
			[]string{"kind"},
		),
		PacketsWritten: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "packets_written_total",
				Help:      "Total channel packets written.",
			},
		),
		FootersWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "footers_written_total",
				Help:      "Total footers committed per file kind.",
			},
			[]string{"kind"},
		),
		FootersDecoded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "footers_decoded_total",
				Help:      "Total footers decoded per file kind and result.",
			},
			[]string{"kind", "result"},
		),
		FooterBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "footer_bytes",
				Help:      "Stored footer size in bytes.",
				Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
			},
			[]string{"kind"},
		),
		SeriesRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "series_rejected_total",
				Help:      "Total series members rejected by rule.",
			},
			[]string{"rule"},
		),
		OpenStores: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_stores",
				Help:      "Stores currently open per file kind.",
			},
			[]string{"kind"},
		),
		FooterDefaulted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "footer_defaulted_keys_total",
				Help:      "Footer keys filled with defaults when reading older schema versions.",
			},
			[]string{"kind", "key"},
		),
	}
}

// MustRegister registers every collector with reg and panics on conflict.
func (m *Metrics) MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		m.RecordsWritten,
		m.BytesWritten,
		m.PacketsWritten,
		m.FootersWritten,
		m.FootersDecoded,
		m.FooterBytes,
		m.SeriesRejected,
		m.OpenStores,
		m.FooterDefaulted,
	)
}

// RecordWritten counts one record append or overwrite.
func (m *Metrics) RecordWritten(overwrite bool, n int) {
	if m == nil {
		return
	}

	mode := "append"
	if overwrite {
		mode = "overwrite"
	}
	m.RecordsWritten.WithLabelValues(mode).Inc()
	m.BytesWritten.WithLabelValues("records").Add(float64(n))
}

// PacketWritten counts one channel packet.
func (m *Metrics) PacketWritten(n int) {
	if m == nil {
		return
	}

	m.PacketsWritten.Inc()
	m.BytesWritten.WithLabelValues("channels").Add(float64(n))
}

// FooterWritten counts a committed footer of the given stored size.
func (m *Metrics) FooterWritten(kind string, size int) {
	if m == nil {
		return
	}

	m.FootersWritten.WithLabelValues(kind).Inc()
	m.FooterBytes.WithLabelValues(kind).Observe(float64(size))
}

// FooterDecoded counts a footer decode attempt and the keys it defaulted.
func (m *Metrics) FooterDecoded(kind string, err error, defaulted []string) {
	if m == nil {
		return
	}

	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FootersDecoded.WithLabelValues(kind, result).Inc()
	for _, key := range defaulted {
		m.FooterDefaulted.WithLabelValues(kind, key).Inc()
	}
}

// StoreOpened tracks the number of open stores.
func (m *Metrics) StoreOpened(kind string) {
	if m == nil {
		return
	}
	m.OpenStores.WithLabelValues(kind).Inc()
}

// StoreClosed is the counterpart of StoreOpened.
func (m *Metrics) StoreClosed(kind string) {
	if m == nil {
		return
	}
	m.OpenStores.WithLabelValues(kind).Dec()
}

// Rejected counts a series member rejected by rule.
func (m *Metrics) Rejected(rule string) {
	if m == nil {
		return
	}
	m.SeriesRejected.WithLabelValues(rule).Inc()
}

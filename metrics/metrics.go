// Package metrics exposes decoder activity as Prometheus collectors.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ugparu/twig"
	"github.com/ugparu/twig/decoder/h264"
)

// Metrics counts decoder events. It implements h264.Observer.
type Metrics struct {
	FramesDecoded  atomic.Uint64
	SlicesDecoded  atomic.Uint64
	IDRFrames      atomic.Uint64
	SlotsAllocated atomic.Uint64
	FramesRecycled atomic.Uint64
	Timeouts       atomic.Uint64

	failures *prometheus.CounterVec
	latency  prometheus.Histogram
	registry *prometheus.Registry
}

var _ h264.Observer = (*Metrics)(nil)

var kindLabels = map[error]string{
	twig.ErrMalformedParameterSet: "malformed_parameter_set",
	twig.ErrMalformedSliceHeader:  "malformed_slice_header",
	twig.ErrUnsupportedFeature:    "unsupported_feature",
	twig.ErrResourceExhausted:     "resource_exhausted",
	twig.ErrHardwareTimeout:       "hardware_timeout",
	twig.ErrHardwareError:         "hardware_error",
	twig.ErrAllocationFailed:      "allocation_failed",
	twig.ErrNoParameterSets:       "no_parameter_sets",
}

// KindLabel returns the failure label of err.
func KindLabel(err error) string {
	if label, ok := kindLabels[twig.Kind(err)]; ok {
		return label
	}
	return "other"
}

// New creates a Metrics with its own registry, including the Go runtime collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "twig_decode_failures_total",
			Help: "Failed decode calls by error kind",
		}, []string{"kind"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "twig_decode_seconds",
			Help:    "Time from access unit to decoded picture",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), //nolint:mnd // 0.5ms to about 1s
		}),
	}
	m.registry.MustRegister(m.failures, m.latency, collectors.NewGoCollector())
	m.registerCounters()
	return m
}

func (m *Metrics) registerCounters() {
	for _, c := range []struct {
		name, help string
		value      *atomic.Uint64
	}{
		{"twig_frames_decoded_total", "Decoded pictures", &m.FramesDecoded},
		{"twig_slices_decoded_total", "Decoded slices", &m.SlicesDecoded},
		{"twig_idr_frames_total", "Decoded IDR pictures", &m.IDRFrames},
		{"twig_pool_slots_allocated_total", "Frame pool slots allocated", &m.SlotsAllocated},
		{"twig_pool_forced_recycles_total", "Reference frames evicted to free a decode target", &m.FramesRecycled},
		{"twig_hardware_timeouts_total", "Engine operations that did not finish in time", &m.Timeouts},
	} {
		value := c.value
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(value.Load()) },
		))
	}
}

func (m *Metrics) FrameDecoded(pic *h264.Picture, elapsed time.Duration) {
	m.FramesDecoded.Add(1)
	m.SlicesDecoded.Add(uint64(pic.Slices)) //nolint:gosec // slice count is positive
	if pic.IDR {
		m.IDRFrames.Add(1)
	}
	m.latency.Observe(elapsed.Seconds())
}

func (m *Metrics) DecodeFailed(err error) {
	if errors.Is(err, twig.ErrHardwareTimeout) {
		m.Timeouts.Add(1)
	}
	m.failures.WithLabelValues(KindLabel(err)).Inc()
}

func (m *Metrics) SlotAllocated() {
	m.SlotsAllocated.Add(1)
}

func (m *Metrics) FrameRecycled() {
	m.FramesRecycled.Add(1)
}

// Registry returns the registry holding every collector.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

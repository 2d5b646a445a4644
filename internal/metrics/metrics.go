// Package metrics provides the Recorder interface used by the codec and its
// noop and Prometheus implementations.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder observes codec operations.
type Recorder interface {
	ObserveEncode(schema string, bytes int, d time.Duration, err error)
	ObserveDecode(schema string, bytes int, d time.Duration, err error)
}

// Noop is a Recorder that discards all data.
type Noop struct{}

func (Noop) ObserveEncode(schema string, bytes int, d time.Duration, err error) {}
func (Noop) ObserveDecode(schema string, bytes int, d time.Duration, err error) {}

// Prometheus records codec operations as Prometheus collectors.
type Prometheus struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	registered bool

	messagesTotal *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	sizeBytes     *prometheus.HistogramVec
	duration      *prometheus.HistogramVec
}

// newCounterVec creates a counter vec in the dccl/codec namespace.
func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	return prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "dccl",
			Subsystem: "codec",
			Name:      name,
			Help:      help,
		},
		labels,
	)
}

// newHistogramVec creates a histogram vec in the dccl/codec namespace.
func newHistogramVec(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "dccl",
			Subsystem: "codec",
			Name:      name,
			Help:      help,
			Buckets:   buckets,
		},
		labels,
	)
}

// NewPrometheus creates a recorder. A nil registerer selects the default
// registerer.
func NewPrometheus(registerer prometheus.Registerer) *Prometheus {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	labels := []string{"op", "schema"}
	return &Prometheus{
		registerer:    registerer,
		messagesTotal: newCounterVec("messages_total", "Total number of messages encoded or decoded", labels),
		errorsTotal:   newCounterVec("errors_total", "Total number of failed encode or decode calls", labels),
		sizeBytes:     newHistogramVec("message_size_bytes", "Size of encoded messages", []float64{4, 8, 16, 32, 64, 128, 256, 1024, 4096}, labels),
		duration:      newHistogramVec("duration_seconds", "Time spent encoding or decoding a message", prometheus.ExponentialBuckets(1e-6, 4, 10), labels),
	}
}

// Register registers the collectors. Safe to call multiple times.
func (p *Prometheus) Register() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.registered {
		return nil
	}

	collectors := []prometheus.Collector{
		p.messagesTotal,
		p.errorsTotal,
		p.sizeBytes,
		p.duration,
	}
	for _, c := range collectors {
		if err := p.registerer.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}

	p.registered = true
	return nil
}

// ObserveEncode records one encode call.
func (p *Prometheus) ObserveEncode(schema string, bytes int, d time.Duration, err error) {
	p.observe("encode", schema, bytes, d, err)
}

// ObserveDecode records one decode call.
func (p *Prometheus) ObserveDecode(schema string, bytes int, d time.Duration, err error) {
	p.observe("decode", schema, bytes, d, err)
}

func (p *Prometheus) observe(op, schema string, bytes int, d time.Duration, err error) {
	if err != nil {
		p.errorsTotal.WithLabelValues(op, schema).Inc()
		return
	}
	p.messagesTotal.WithLabelValues(op, schema).Inc()
	p.sizeBytes.WithLabelValues(op, schema).Observe(float64(bytes))
	p.duration.WithLabelValues(op, schema).Observe(d.Seconds())
}

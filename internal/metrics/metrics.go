// Package metrics exports Prometheus metrics for downloads.
//
// A Collector is fed exclusively by download signals, so canceled downloads,
// which emit no did-finish signal, only show up through the bytes they
// received before cancellation.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ligustah/urlfetch/internal/download"
)

// OutcomeSuccess labels downloads that finished without error. Failed
// downloads are labeled with their download.Kind.
const OutcomeSuccess = "success"

// Collector holds the download metrics.
type Collector struct {
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	status   *prometheus.CounterVec
	bytes    prometheus.Counter
	chunks   prometheus.Counter
}

// NewCollector creates the metrics with the given namespace prefix.
// They are not registered; use Register or MustRegister.
func NewCollector(namespace string) *Collector {
	return &Collector{
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloads_finished_total",
			Help:      "Downloads that reached did-finish, by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "download_duration_seconds",
			Help:      "Time from start to did-finish, by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"outcome"}),
		status: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_responses_total",
			Help:      "Finished downloads by HTTP status code.",
		}, []string{"code"}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_received_bytes_total",
			Help:      "Response body bytes written to download outputs.",
		}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "download_chunks_total",
			Help:      "Progress signals delivered.",
		}),
	}
}

// Register registers all metrics with reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, m := range []prometheus.Collector{c.finished, c.duration, c.status, c.bytes, c.chunks} {
		if err := reg.Register(m); err != nil {
			return err
		}
	}
	return nil
}

// MustRegister is like Register but panics on error.
func (c *Collector) MustRegister(reg prometheus.Registerer) {
	if err := c.Register(reg); err != nil {
		panic(err)
	}
}

// Observe subscribes the collector to d. Call it before d.Start.
func (c *Collector) Observe(d *download.Download) {
	var (
		mu   sync.Mutex
		seen int64
	)
	// addReceived accounts bytes received since the last signal.
	addReceived := func() {
		mu.Lock()
		defer mu.Unlock()
		n := d.BytesReceived()
		if n > seen {
			c.bytes.Add(float64(n - seen))
			seen = n
		}
	}

	d.Subscribe(download.SignalProgress, func(*download.Download) {
		c.chunks.Inc()
		addReceived()
	})
	d.Subscribe(download.SignalDidFinish, func(d *download.Download) {
		addReceived()

		outcome := OutcomeSuccess
		if err := d.Err(); err != nil {
			outcome = download.KindOf(err).String()
		}
		c.finished.WithLabelValues(outcome).Inc()
		c.duration.WithLabelValues(outcome).Observe(d.Duration().Seconds())
		if code := d.StatusCode(); code != 0 {
			c.status.WithLabelValues(strconv.Itoa(code)).Inc()
		}
	})
}

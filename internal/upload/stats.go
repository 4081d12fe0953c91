package upload

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type outcome int

const (
	outcomePut outcome = iota
	outcomeSkipped
	outcomeRetried
	outcomeFailed
)

type result struct {
	outcome outcome
	size    int64
	elapsed time.Duration
}

// Summary totals one bulk upload.
type Summary struct {
	Files    int64
	Bytes    int64
	Skipped  int64
	Retries  int64
	Failed   int64
	Duration time.Duration
}

func (s Summary) String() string {
	secs := s.Duration.Seconds()
	var bps, fps float64
	if secs > 0 {
		bps = float64(s.Bytes) / secs
		fps = float64(s.Files) / secs
	}
	return fmt.Sprintf("put %d bytes in %d files in %.1f seconds (%d bytes/s, %.1f files/s)",
		s.Bytes, s.Files, secs, int64(bps), fps)
}

// Stats collects upload metrics in a private registry.
type Stats struct {
	registry *prometheus.Registry
	files    prometheus.Counter
	bytes    prometheus.Counter
	skipped  prometheus.Counter
	retries  prometheus.Counter
	failures prometheus.Counter
	latency  prometheus.Histogram
}

// NewStats creates and registers the upload metrics.
func NewStats() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emrpipe", Subsystem: "upload", Name: "files_total",
			Help: "Objects written.",
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emrpipe", Subsystem: "upload", Name: "bytes_total",
			Help: "Bytes of local content written.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emrpipe", Subsystem: "upload", Name: "skipped_total",
			Help: "Objects left untouched by the put mode.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emrpipe", Subsystem: "upload", Name: "retries_total",
			Help: "Items re-queued after a transient error.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "emrpipe", Subsystem: "upload", Name: "failures_total",
			Help: "Items abandoned after an error.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "emrpipe", Subsystem: "upload", Name: "put_seconds",
			Help:    "Time spent writing one object.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
	}
	s.registry.MustRegister(s.files, s.bytes, s.skipped, s.retries, s.failures, s.latency)
	return s
}

// Registry exposes the metrics for scraping or export.
func (s *Stats) Registry() *prometheus.Registry { return s.registry }

// WriteTextfile writes the metrics in the node exporter textfile format.
func (s *Stats) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, s.registry)
}

// consume tallies results until the channel closes.
func (s *Stats) consume(results <-chan result, start time.Time) Summary {
	var sum Summary
	for r := range results {
		switch r.outcome {
		case outcomePut:
			sum.Files++
			sum.Bytes += r.size
			s.files.Inc()
			s.bytes.Add(float64(r.size))
			s.latency.Observe(r.elapsed.Seconds())
		case outcomeSkipped:
			sum.Skipped++
			s.skipped.Inc()
		case outcomeRetried:
			sum.Retries++
			s.retries.Inc()
		case outcomeFailed:
			sum.Failed++
			s.failures.Inc()
		}
	}
	sum.Duration = time.Since(start)
	return sum
}

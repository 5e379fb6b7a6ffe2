package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pokt_rotate"

// Recorder collects per-run counters on a private registry. A nil Recorder
// is valid and records nothing.
type Recorder struct {
	registry      *prometheus.Registry
	attempts      *prometheus.CounterVec
	outcomes      *prometheus.CounterVec
	chunkDuration *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	lastRun       *prometheus.GaugeVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_attempts_total",
			Help:      "Transaction submission attempts by action and result.",
		}, []string{"action", "result"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "outcomes_total",
			Help:      "Settled per-key outcomes by action and result.",
		}, []string{"action", "result"}),
		chunkDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_duration_seconds",
			Help:      "Wall time to settle one chunk of submissions.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"action"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "App verification checks by result.",
		}, []string{"result"}),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_success",
			Help:      "1 if the last run of the action had no failed outcome.",
		}, []string{"action"}),
	}
	r.registry.MustRegister(r.attempts, r.outcomes, r.chunkDuration, r.verifications, r.lastRun)
	return r
}

func (r *Recorder) Attempt(action string, err error) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(action, result(err == nil)).Inc()
}

func (r *Recorder) Outcome(action string, success bool) {
	if r == nil {
		return
	}
	r.outcomes.WithLabelValues(action, result(success)).Inc()
}

func (r *Recorder) ObserveChunk(action string, d time.Duration) {
	if r == nil {
		return
	}
	r.chunkDuration.WithLabelValues(action).Observe(d.Seconds())
}

func (r *Recorder) Verified(staked bool) {
	if r == nil {
		return
	}
	r.verifications.WithLabelValues(result(staked)).Inc()
}

func (r *Recorder) RunFinished(action string, success bool) {
	if r == nil {
		return
	}
	v := 0.0
	if success {
		v = 1
	}
	r.lastRun.WithLabelValues(action).Set(v)
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	if r == nil {
		return prometheus.NewRegistry()
	}
	return r.registry
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
// An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

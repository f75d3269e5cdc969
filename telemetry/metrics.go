// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	Cycles              prometheus.Counter
	CyclesFailed        prometheus.Counter
	WentLive            prometheus.Counter
	WentOffline         prometheus.Counter
	NewUploads          prometheus.Counter
	NotificationsSent   prometheus.Counter
	NotificationsFailed prometheus.Counter
	PollErrors          *prometheus.CounterVec

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	TrackedGauge prometheus.Gauge
	LiveGauge    prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Cycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_cycles_total", Help: "Number of monitor cycles started"})
		CyclesFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_cycles_failed_total", Help: "Number of monitor cycles aborted by an error or panic"})
		WentLive = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_went_live_total", Help: "Number of offline-to-live transitions detected"})
		WentOffline = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_went_offline_total", Help: "Number of live-to-offline transitions detected"})
		NewUploads = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_new_uploads_total", Help: "Number of new uploads detected"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_notifications_sent_total", Help: "Number of Discord notifications delivered"})
		NotificationsFailed = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_notifications_failed_total", Help: "Number of Discord notifications that failed to deliver"})
		PollErrors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "streamwatch_poll_errors_total", Help: "Number of poll failures by platform"}, []string{"platform"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamwatch_cycle_duration_seconds", Help: "Monitor cycle duration seconds", Buckets: prometheus.DefBuckets})
		TrackedGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_tracked_streamers", Help: "Current number of tracked streamers"})
		LiveGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_live_streamers", Help: "Current number of streamers with a live snapshot"})
	})
}

// IncPollError bumps the per-platform poll error counter if metrics are initialized.
func IncPollError(platform string) {
	if PollErrors != nil {
		PollErrors.WithLabelValues(platform).Inc()
	}
}

// SetTracked records the tracked-streamer count.
func SetTracked(n int) {
	if TrackedGauge != nil {
		TrackedGauge.Set(float64(n))
	}
}

// SetLive records the live-snapshot count.
func SetLive(n int) {
	if LiveGauge != nil {
		LiveGauge.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}

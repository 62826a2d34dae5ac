package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	ResultOK       = "ok"
	ResultRejected = "rejected"
	ResultError    = "error"
)

var (
	registerOnce sync.Once

	handshakes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hpfeeds",
			Subsystem: "session",
			Name:      "handshakes_total",
			Help:      "Broker handshakes by outcome kind.",
		},
		[]string{"broker", "result", "kind"},
	)
	handshakeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "hpfeeds",
			Subsystem: "session",
			Name:      "handshake_duration_seconds",
			Help:      "Dial plus INFO/AUTH exchange duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"result"},
	)
	publishes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hpfeeds",
			Subsystem: "publish",
			Name:      "frames_total",
			Help:      "PUBLISH frames attempted by channel and outcome.",
		},
		[]string{"channel", "result"},
	)
	publishBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hpfeeds",
			Subsystem: "publish",
			Name:      "bytes_total",
			Help:      "Bytes written in PUBLISH frames, header included.",
		},
		[]string{"channel"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(handshakes, handshakeDuration, publishes, publishBytes)
	})
}

// RecordHandshake counts one Connect outcome. kind is the error taxonomy kind, empty on success.
func RecordHandshake(broker, result, kind string, duration time.Duration) {
	RegisterMetrics()
	handshakes.WithLabelValues(broker, result, kind).Inc()
	handshakeDuration.WithLabelValues(result).Observe(duration.Seconds())
}

func RecordPublish(channel, result string, frameBytes int) {
	RegisterMetrics()
	publishes.WithLabelValues(channel, result).Inc()
	if frameBytes > 0 {
		publishBytes.WithLabelValues(channel).Add(float64(frameBytes))
	}
}

// StatusLabel renders an HTTP status for label use.
func StatusLabel(status int) string {
	return strconv.Itoa(status)
}

// Package metrics holds Prometheus instruments for the capture and session loops.
// All methods are safe on a nil *Metrics so components can run unmetered.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Drop reasons reported by FrameDropped.
const (
	DropInactive = "inactive"
	DropOversize = "oversize"
	DropRate     = "rate"
	DropBusy     = "busy"
	DropEmpty    = "empty"
)

// Metrics holds Prometheus counters and gauges for go-gesture.
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal        prometheus.Counter
	framesCaptured    prometheus.Counter
	encodeErrors      *prometheus.CounterVec
	framesSent        prometheus.Counter
	framesDropped     *prometheus.CounterVec
	framePayloadBytes prometheus.Histogram
	stateUpdates      prometheus.Counter
	sessionsStarted   prometheus.Counter
	sessionErrors     *prometheus.CounterVec
	sessionActive     prometheus.Gauge
	feedClients       prometheus.Gauge
}

// New creates and registers the instruments on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_capture_ticks_total",
			Help: "Capture timer ticks",
		}),
		framesCaptured: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_frames_captured_total",
			Help: "Frames captured and encoded successfully",
		}),
		encodeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gesture_frame_encode_errors_total",
			Help: "Per-tick capture, encode or conversion failures",
		}, []string{"stage"}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_frames_sent_total",
			Help: "Frames written to the live session",
		}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gesture_frames_dropped_total",
			Help: "Frames dropped before reaching the live session",
		}, []string{"reason"}),
		framePayloadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gesture_frame_payload_bytes",
			Help:    "Size of the text-encoded frame payloads sent",
			Buckets: prometheus.ExponentialBuckets(4096, 2, 8),
		}),
		stateUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_state_updates_total",
			Help: "Partial particle state updates received",
		}),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gesture_sessions_started_total",
			Help: "Live sessions that reached the active state",
		}),
		sessionErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gesture_session_errors_total",
			Help: "Errors surfaced to the state sink",
		}, []string{"kind"}),
		sessionActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gesture_session_active",
			Help: "1 while a live session is active",
		}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gesture_feed_clients",
			Help: "Connected state feed websocket clients",
		}),
	}

	m.registry.MustRegister(
		m.ticksTotal,
		m.framesCaptured,
		m.encodeErrors,
		m.framesSent,
		m.framesDropped,
		m.framePayloadBytes,
		m.stateUpdates,
		m.sessionsStarted,
		m.sessionErrors,
		m.sessionActive,
		m.feedClients,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Tick counts one capture timer tick.
func (m *Metrics) Tick() {
	if m != nil {
		m.ticksTotal.Inc()
	}
}

// FrameCaptured counts a frame that made it through capture and encoding.
func (m *Metrics) FrameCaptured() {
	if m != nil {
		m.framesCaptured.Inc()
	}
}

// EncodeError counts a per-tick failure at the given stage.
func (m *Metrics) EncodeError(stage string) {
	if m != nil {
		m.encodeErrors.WithLabelValues(stage).Inc()
	}
}

// FrameSent counts a frame written to the session.
func (m *Metrics) FrameSent(payloadBytes int) {
	if m != nil {
		m.framesSent.Inc()
		m.framePayloadBytes.Observe(float64(payloadBytes))
	}
}

// FrameDropped counts a frame the session refused.
func (m *Metrics) FrameDropped(reason string) {
	if m != nil {
		m.framesDropped.WithLabelValues(reason).Inc()
	}
}

// StateUpdate counts an inbound partial update.
func (m *Metrics) StateUpdate() {
	if m != nil {
		m.stateUpdates.Inc()
	}
}

// SessionStarted records a session reaching the active state.
func (m *Metrics) SessionStarted() {
	if m != nil {
		m.sessionsStarted.Inc()
		m.sessionActive.Set(1)
	}
}

// SessionEnded records a session leaving the active state.
func (m *Metrics) SessionEnded() {
	if m != nil {
		m.sessionActive.Set(0)
	}
}

// SessionError counts an error surfaced to the sink.
func (m *Metrics) SessionError(kind string) {
	if m != nil {
		m.sessionErrors.WithLabelValues(kind).Inc()
	}
}

// SetFeedClients sets the connected feed client gauge.
func (m *Metrics) SetFeedClients(n int) {
	if m != nil {
		m.feedClients.Set(float64(n))
	}
}

// Handler returns an http.Handler that serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

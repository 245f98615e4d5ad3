// Package metrics exposes Prometheus collectors for voice sessions, the
// text channel and the shared customer card.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "nora"

// Metrics holds all collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	SessionsStarted   prometheus.Counter
	SessionsEnded     *prometheus.CounterVec
	SessionsActive    prometheus.Gauge
	SessionDuration   prometheus.Histogram
	MicFramesSent     prometheus.Counter
	MicFramesDropped  prometheus.Counter
	ChunksScheduled   prometheus.Counter
	DecodeErrors      prometheus.Counter
	Interruptions     prometheus.Counter
	ToolInvocations   *prometheus.CounterVec
	RecordMerges      *prometheus.CounterVec
	BridgeNotices     prometheus.Counter
	ChatTurns         prometheus.Counter
	ChatFailures      prometheus.Counter
	PersistenceErrors prometheus.Counter
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_started_total",
			Help:      "Total number of voice sessions that reached the active state",
		}),
		SessionsEnded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "voice_sessions_ended_total",
			Help:      "Total number of voice sessions torn down, by final state and reason",
		}, []string{"state", "reason"}),
		SessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "voice_sessions_active",
			Help:      "Current number of active voice sessions",
		}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "voice_session_duration_seconds",
			Help:      "Duration of active voice sessions",
			Buckets:   []float64{5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		MicFramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mic_frames_sent_total",
			Help:      "Microphone blocks pushed to the live session",
		}),
		MicFramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mic_frames_dropped_total",
			Help:      "Microphone blocks dropped because the live session was not ready or its queue was full",
		}),
		ChunksScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_chunks_scheduled_total",
			Help:      "Agent audio chunks scheduled for playback",
		}),
		DecodeErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_decode_errors_total",
			Help:      "Agent audio chunks dropped because they could not be decoded",
		}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "playback_interruptions_total",
			Help:      "Server interruptions that flushed playback",
		}),
		ToolInvocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_invocations_total",
			Help:      "Tool invocations dispatched, by tool and channel",
		}, []string{"tool", "channel"}),
		RecordMerges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_merges_total",
			Help:      "Customer card merges, by origin",
		}, []string{"origin"}),
		BridgeNotices: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_bridge_notices_total",
			Help:      "Card change notices injected into a live voice session",
		}),
		ChatTurns: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_turns_total",
			Help:      "Text channel turns sent",
		}),
		ChatFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_failures_total",
			Help:      "Text channel turns that failed and fell back to an apology",
		}),
		PersistenceErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_persistence_errors_total",
			Help:      "Failed saves or loads of the customer card",
		}),
	}
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSessionStart() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd is called once per torn-down session; wasActive tells
// whether it had been counted by RecordSessionStart.
func (m *Metrics) RecordSessionEnd(state, reason string, wasActive bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.SessionsEnded.WithLabelValues(state, reason).Inc()
	if wasActive {
		m.SessionsActive.Dec()
		m.SessionDuration.Observe(duration.Seconds())
	}
}

func (m *Metrics) RecordMicFrame(sent bool) {
	if m == nil {
		return
	}
	if sent {
		m.MicFramesSent.Inc()
		return
	}
	m.MicFramesDropped.Inc()
}

func (m *Metrics) RecordChunk(decoded bool) {
	if m == nil {
		return
	}
	if decoded {
		m.ChunksScheduled.Inc()
		return
	}
	m.DecodeErrors.Inc()
}

func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

func (m *Metrics) RecordToolInvocation(tool, channel string) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(tool, channel).Inc()
}

func (m *Metrics) RecordMerge(origin string) {
	if m == nil {
		return
	}
	m.RecordMerges.WithLabelValues(origin).Inc()
}

func (m *Metrics) RecordBridgeNotice() {
	if m == nil {
		return
	}
	m.BridgeNotices.Inc()
}

func (m *Metrics) RecordChatTurn(failed bool) {
	if m == nil {
		return
	}
	m.ChatTurns.Inc()
	if failed {
		m.ChatFailures.Inc()
	}
}

func (m *Metrics) RecordPersistenceError() {
	if m == nil {
		return
	}
	m.PersistenceErrors.Inc()
}

// Server serves /metrics until Shutdown.
type Server struct {
	logger   *slog.Logger
	server   *http.Server
	listener net.Listener
}

// Listen binds addr and starts serving in the background.
func Listen(addr string, m *Metrics, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	s := &Server{
		logger:   logger,
		listener: listener,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server stopped", slog.Any("error", err))
		}
	}()
	logger.Info("metrics server listening", slog.String("addr", listener.Addr().String()))
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

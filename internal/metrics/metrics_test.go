package metrics

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.RecordSessionStart()
	m.RecordSessionEnd("idle", "user_ended", true, time.Second)
	m.RecordMicFrame(true)
	m.RecordChunk(false)
	m.RecordInterruption()
	m.RecordToolInvocation("end_call", "voice")
	m.RecordMerge("text")
	m.RecordBridgeNotice()
	m.RecordChatTurn(true)
	m.RecordPersistenceError()
}

func TestSessionLifecycleCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordSessionStart()
	if got := testutil.ToFloat64(m.SessionsActive); got != 1 {
		t.Fatalf("expected one active session, got %v", got)
	}

	m.RecordSessionEnd("idle", "user_ended", true, 3*time.Second)
	m.RecordSessionEnd("permission_denied", "microphone_denied", false, 0)

	if got := testutil.ToFloat64(m.SessionsActive); got != 0 {
		t.Fatalf("expected no active sessions, got %v", got)
	}
	if got := testutil.ToFloat64(m.SessionsEnded.WithLabelValues("permission_denied", "microphone_denied")); got != 1 {
		t.Fatalf("expected one denied session, got %v", got)
	}
}

func TestFrameAndChunkCounters(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordMicFrame(true)
	m.RecordMicFrame(false)
	m.RecordMicFrame(false)
	m.RecordChunk(true)
	m.RecordChunk(false)
	m.RecordChatTurn(true)

	if got := testutil.ToFloat64(m.MicFramesDropped); got != 2 {
		t.Fatalf("expected two dropped frames, got %v", got)
	}
	if got := testutil.ToFloat64(m.DecodeErrors); got != 1 {
		t.Fatalf("expected one decode error, got %v", got)
	}
	if got := testutil.ToFloat64(m.ChatFailures); got != 1 {
		t.Fatalf("expected one chat failure, got %v", got)
	}
}

func TestServerExposesRegistry(t *testing.T) {
	t.Parallel()

	m := New()
	m.RecordToolInvocation("show_company_photo", "text")

	server, err := Listen("127.0.0.1:0", m, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer server.Shutdown(context.Background())

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !strings.Contains(string(body), `nora_tool_invocations_total{channel="text",tool="show_company_photo"} 1`) {
		t.Fatalf("unexpected metrics body:\n%s", body)
	}
}

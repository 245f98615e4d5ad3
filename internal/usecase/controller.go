package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/mimetype"

	"nora/internal/domain"
	"nora/internal/metrics"
	"nora/internal/pcm"
	"nora/internal/persona"
	"nora/internal/playback"
	"nora/internal/ports"
	"nora/internal/record"
)

var (
	ErrNoActiveSession = errors.New("no active voice session")
	ErrNotAnImage      = errors.New("upload is not an image")
)

// VoiceConfig controls the live call.
type VoiceConfig struct {
	Capture        ports.CaptureConfig
	Output         ports.OutputConfig
	FrameSize      int
	EndCallGrace   time.Duration
	ServerGreeting string
	Voice          string
}

// VoiceController owns the lifecycle of at most one live voice call.
type VoiceController struct {
	capture  ports.AudioCapture
	output   ports.AudioOutput
	provider ports.LiveProvider
	tools    *ToolDispatcher
	store    *record.Store
	persona  persona.Persona
	events   ports.EventSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	cfg      VoiceConfig

	mu      sync.Mutex
	current *voiceSession
	last    domain.Status

	// emitMu orders state and speaking events across goroutines. The sink
	// must not call back into the controller.
	emitMu sync.Mutex
}

func NewVoiceController(
	capture ports.AudioCapture,
	output ports.AudioOutput,
	provider ports.LiveProvider,
	tools *ToolDispatcher,
	store *record.Store,
	p persona.Persona,
	events ports.EventSink,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg VoiceConfig,
) *VoiceController {
	if cfg.FrameSize < 256 {
		cfg.FrameSize = 4096
	}
	if cfg.Capture.SampleRate <= 0 {
		cfg.Capture.SampleRate = pcm.CaptureSampleRate
	}
	if cfg.Capture.Channels <= 0 {
		cfg.Capture.Channels = 1
	}
	if cfg.Output.SampleRate <= 0 {
		cfg.Output.SampleRate = pcm.PlaybackSampleRate
	}
	if cfg.Output.Channels <= 0 {
		cfg.Output.Channels = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &VoiceController{
		capture:  capture,
		output:   output,
		provider: provider,
		tools:    tools,
		store:    store,
		persona:  p,
		events:   events,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
		last:     domain.Status{State: domain.SessionStateIdle},
	}
	if tools != nil {
		tools.SetCallEnder(c)
	}
	return c
}

// Start opens a call. It is a no-op while a call exists. Failures are
// reported through the event sink and returned.
func (c *VoiceController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}
	sessionCtx, cancel := context.WithCancel(ctx)
	s := newVoiceSession(uuid.NewString(), cancel)
	c.current = s
	c.mu.Unlock()

	logger := c.logger.With(slog.String("session", s.id))
	c.emitState(s, domain.SessionStateConnecting, domain.SessionReasonConnecting, c.persona.ConnectingCaption())

	mic, err := c.capture.Start(sessionCtx, c.cfg.Capture)
	if err != nil {
		logger.Warn("microphone unavailable", slog.Any("err", err))
		c.finish(s, domain.SessionStatePermissionDenied, domain.SessionReasonMicrophoneDenied, domain.ErrorCodeMicrophone, err)
		return err
	}
	if !s.attachMic(mic) {
		_ = mic.Stop()
		close(s.pumpDone)
		return nil
	}
	go c.pumpMicrophone(s, mic)

	pipeline, err := c.output.Open(sessionCtx, c.cfg.Output)
	if err != nil {
		logger.Warn("playback unavailable", slog.Any("err", err))
		c.finish(s, domain.SessionStateError, domain.SessionReasonPlaybackFailed, domain.ErrorCodePlayback, err)
		return err
	}
	scheduler := playback.NewScheduler(pipeline, playback.Config{
		SampleRate: c.cfg.Output.SampleRate,
		Channels:   c.cfg.Output.Channels,
	}, func() { c.setSpeaking(s, false) })
	if !s.attachScheduler(scheduler) {
		_ = scheduler.Teardown()
		return nil
	}

	snapshot := c.store.Snapshot()
	setup := ports.LiveSetup{SystemInstruction: c.persona.SystemPrompt(snapshot), Voice: c.cfg.Voice}
	remote, err := c.provider.Connect(sessionCtx, setup, c.handlers(s))
	if err != nil {
		if sessionCtx.Err() != nil && s.isFinished() {
			return nil
		}
		logger.Warn("live connect failed", slog.Any("err", err))
		c.finish(s, domain.SessionStateError, domain.SessionReasonTransportFailed, domain.ErrorCodeTransport, err)
		return err
	}
	if !s.attachRemote(remote) {
		_ = remote.Close()
		return nil
	}

	c.emitMu.Lock()
	if s.markActive(time.Now()) {
		c.metrics.RecordSessionStart()
		c.events.SessionStateChanged(domain.SessionStateActive, domain.SessionReasonConnected)
		c.events.Caption(c.persona.Greeting(snapshot.Name))
	}
	c.emitMu.Unlock()
	logger.Info("voice session active")

	if greeting := strings.TrimSpace(c.cfg.ServerGreeting); greeting != "" {
		if err := remote.SendText(greeting); err != nil {
			logger.Debug("server greeting not sent", slog.Any("err", err))
		}
	}
	return nil
}

// End hangs up the current call.
func (c *VoiceController) End() error {
	s := c.session()
	if s == nil {
		return ErrNoActiveSession
	}
	c.finish(s, domain.SessionStateIdle, domain.SessionReasonUserEnded, "", nil)
	return nil
}

// ScheduleEnd hangs up after the configured grace so the agent's farewell
// can finish playing. Repeated calls keep the first deadline.
func (c *VoiceController) ScheduleEnd() {
	s := c.session()
	if s == nil {
		return
	}
	s.armEnd(c.cfg.EndCallGrace, func() {
		c.finish(s, domain.SessionStateIdle, domain.SessionReasonAgentEnded, "", nil)
	})
}

// Shutdown ends any call as part of process exit.
func (c *VoiceController) Shutdown() {
	if s := c.session(); s != nil {
		c.finish(s, domain.SessionStateIdle, domain.SessionReasonShutdown, "", nil)
	}
}

// InjectText sends a text turn into the established call.
func (c *VoiceController) InjectText(text string) error {
	remote, err := c.remote()
	if err != nil {
		return err
	}
	return remote.SendText(text)
}

// UploadImage forwards a data URL or bare base64 image into the call.
func (c *VoiceController) UploadImage(data string) error {
	mimeType, payload := splitDataURL(data)
	raw, err := pcm.TextDecode(payload)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if mimeType == "" {
		mimeType = mimetype.Detect(raw).String()
	}
	return c.sendImage(mimeType, raw)
}

// UploadImageFile reads an image from disk and forwards it into the call.
func (c *VoiceController) UploadImageFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	return c.sendImage(mimetype.Detect(raw).String(), raw)
}

func (c *VoiceController) sendImage(mimeType string, raw []byte) error {
	if !strings.HasPrefix(mimeType, "image/") {
		return fmt.Errorf("%w: %s", ErrNotAnImage, mimeType)
	}
	remote, err := c.remote()
	if err != nil {
		return err
	}
	if err := remote.SendMedia(domain.MediaBlob{MIMEType: mimeType, Data: pcm.TextEncode(raw)}); err != nil {
		return err
	}
	c.events.Caption(c.persona.ImageCaption())
	return nil
}

// Status reports the current call, or how the last one ended.
func (c *VoiceController) Status() domain.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return c.current.status()
	}
	return c.last
}

func (c *VoiceController) handlers(s *voiceSession) ports.LiveHandlers {
	return ports.LiveHandlers{
		OnAudio: func(data string) {
			scheduler := s.playback()
			if scheduler == nil {
				return
			}
			raw, err := pcm.TextDecode(data)
			if err == nil {
				err = c.play(s, scheduler, raw)
			}
			if errors.Is(err, playback.ErrClosed) {
				return
			}
			if err != nil {
				c.metrics.RecordChunk(false)
				c.logger.Warn("dropping undecodable audio chunk", slog.String("session", s.id), slog.Any("err", err))
				return
			}
			c.metrics.RecordChunk(true)
		},
		OnInterrupted: func() {
			scheduler := s.playback()
			if scheduler == nil {
				return
			}
			scheduler.Interrupt()
			c.metrics.RecordInterruption()
			c.setSpeaking(s, false)
		},
		OnToolCall: func(calls []domain.ToolInvocation) []domain.ToolResult {
			if s.isFinished() || c.tools == nil {
				results := make([]domain.ToolResult, 0, len(calls))
				for _, call := range calls {
					results = append(results, domain.SuccessResult(call))
				}
				return results
			}
			return c.tools.Dispatch(context.Background(), domain.OriginVoice, calls)
		},
		OnTranscription: func(source domain.TranscriptSource, text string) {
			if s.isFinished() || source != domain.TranscriptSourceUser {
				return
			}
			if text = strings.TrimSpace(text); text != "" {
				c.events.Caption(text)
			}
		},
		OnError: func(err error) {
			c.logger.Warn("live session failed", slog.String("session", s.id), slog.Any("err", err))
			c.finish(s, domain.SessionStateError, domain.SessionReasonTransportFailed, domain.ErrorCodeTransport, err)
		},
		OnClose: func() {
			c.finish(s, domain.SessionStateIdle, domain.SessionReasonRemoteClosed, "", nil)
		},
	}
}

// play schedules a chunk and raises the speaking flag under emitMu. The
// drain callback takes emitMu as well, so a chunk that finishes at once
// cannot clear the flag before it is raised.
func (c *VoiceController) play(s *voiceSession, scheduler *playback.Scheduler, chunk []byte) error {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if _, err := scheduler.Enqueue(chunk); err != nil {
		return err
	}
	if s.setSpeaking(true) {
		c.events.SpeakingChanged(true)
	}
	return nil
}

func (c *VoiceController) setSpeaking(s *voiceSession, speaking bool) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if s.setSpeaking(speaking) {
		c.events.SpeakingChanged(speaking)
	}
}

func (c *VoiceController) emitState(s *voiceSession, state domain.SessionState, reason domain.SessionStateReason, caption string) {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()
	if s.isFinished() {
		return
	}
	c.events.SessionStateChanged(state, reason)
	if caption != "" {
		c.events.Caption(caption)
	}
}

// finish tears s down once. It may run on any goroutine, including the
// pump and the provider's reader, so it never waits on either.
func (c *VoiceController) finish(s *voiceSession, state domain.SessionState, reason domain.SessionStateReason, code domain.ErrorCode, cause error) {
	res, ok := s.finish(state)
	if !ok {
		return
	}
	s.cancel()

	if res.endTimer != nil {
		res.endTimer.Stop()
	}
	if res.mic != nil {
		if err := res.mic.Stop(); err != nil {
			c.logger.Debug("microphone stop", slog.String("session", s.id), slog.Any("err", err))
		}
	}
	if res.scheduler != nil {
		if err := res.scheduler.Teardown(); err != nil {
			c.logger.Debug("playback teardown", slog.String("session", s.id), slog.Any("err", err))
		}
	}
	if res.remote != nil {
		_ = res.remote.Close()
	}

	wasActive := !res.activeAt.IsZero()
	var lived time.Duration
	if wasActive {
		lived = time.Since(res.activeAt)
	}
	c.metrics.RecordSessionEnd(string(state), string(reason), wasActive, lived)

	status := domain.Status{State: state, SessionID: s.id}
	if cause != nil {
		status.Message = cause.Error()
	}

	c.emitMu.Lock()
	if code != "" {
		detail := string(reason)
		if cause != nil {
			detail = cause.Error()
		}
		c.events.SessionError(code, detail)
	}
	if res.speaking {
		c.events.SpeakingChanged(false)
	}
	c.events.SessionStateChanged(state, reason)
	c.emitMu.Unlock()

	c.mu.Lock()
	if c.current == s {
		c.current = nil
		c.last = status
	}
	c.mu.Unlock()

	c.logger.Info("voice session ended", slog.String("session", s.id), slog.String("state", string(state)), slog.String("reason", string(reason)))
}

func (c *VoiceController) session() *voiceSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *VoiceController) remote() (ports.LiveSession, error) {
	s := c.session()
	if s == nil {
		return nil, ErrNoActiveSession
	}
	remote := s.link()
	if remote == nil {
		return nil, ErrNoActiveSession
	}
	return remote, nil
}

// splitDataURL separates "data:<mime>;base64,<payload>". Input without a
// header is returned as payload with an empty MIME type.
func splitDataURL(data string) (string, string) {
	data = strings.TrimSpace(data)
	if !strings.HasPrefix(data, "data:") {
		return "", data
	}
	header, payload, ok := strings.Cut(data, ",")
	if !ok {
		return "", strings.TrimPrefix(data, "data:")
	}
	mimeType, _, _ := strings.Cut(strings.TrimPrefix(header, "data:"), ";")
	return strings.TrimSpace(mimeType), payload
}

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"nora/internal/audio"
	"nora/internal/audio/malgo"
	"nora/internal/audio/speaker"
	"nora/internal/config"
	"nora/internal/metrics"
	"nora/internal/pcm"
	"nora/internal/persona"
	"nora/internal/ports"
	"nora/internal/providers/gemini"
	"nora/internal/record"
	"nora/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Voice      *usecase.VoiceController
	Chat       *usecase.ChatController
	Store      *record.Store
	Transcript *usecase.Transcript
	Config     config.Config
	Logger     *slog.Logger

	email   *usecase.EmailDispatcher
	metrics *metrics.Server
}

// Build wires all backend dependencies for the current runtime.
func Build(eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWith(cfg, eventSink, os.Stderr)
}

// BuildWith wires the graph from an already loaded config. Logs go to w.
func BuildWith(cfg config.Config, eventSink ports.EventSink, w io.Writer) (Services, error) {
	logger := newLogger(cfg.Logging, w)
	m := metrics.New()

	var metricsServer *metrics.Server
	if cfg.Metrics.Addr != "" {
		server, err := metrics.Listen(cfg.Metrics.Addr, m, logger)
		if err != nil {
			return Services{}, fmt.Errorf("metrics listener: %w", err)
		}
		metricsServer = server
	}

	p := persona.Persona{
		AssistantName: cfg.Persona.AssistantName,
		Company:       cfg.Persona.Company,
		OwnerName:     cfg.Persona.OwnerName,
		OwnerPhone:    cfg.Persona.OwnerPhone,
		Style:         cfg.Persona.Style,
	}.WithDefaults()

	store := record.NewStore(record.NewFileStore(cfg.Memory.Path, cfg.Memory.Key))
	if _, err := store.Restore(context.Background()); err != nil {
		if !record.IsMalformed(err) {
			_ = metricsServer.Shutdown(context.Background())
			return Services{}, fmt.Errorf("restore customer card: %w", err)
		}
		logger.Warn("ignoring malformed customer card", slog.String("path", cfg.Memory.Path), slog.Any("err", err))
	}

	photos := usecase.NewPhotoCatalog(cfg.Photos.URLs, cfg.Photos.Default)
	transcript := usecase.NewTranscript(eventSink, p.ChatGreeting())
	email := usecase.NewEmailDispatcher(eventSink, transcript, p, cfg.Session.EmailSendDelay(), cfg.Session.EmailSentHold(), logger)
	tools := usecase.NewToolDispatcher(store, transcript, photos, email, eventSink, m, logger)

	live := gemini.NewLiveProvider(gemini.LiveConfig{
		APIKey:          cfg.Gemini.APIKey,
		BaseURL:         cfg.Gemini.LiveBaseURL,
		Model:           cfg.Gemini.LiveModel,
		Voice:           cfg.Gemini.Voice,
		PhotoCategories: photos.Categories(),
	}, logger.With(slog.String("component", "live")))
	chatProvider := gemini.NewChatProvider(gemini.ChatConfig{
		APIKey:          cfg.Gemini.APIKey,
		Model:           cfg.Gemini.ChatModel,
		PhotoCategories: photos.Categories(),
	}, logger.With(slog.String("component", "chat")))

	voice := usecase.NewVoiceController(
		newCapture(cfg.Audio),
		speaker.NewOutput(),
		live,
		tools,
		store,
		p,
		eventSink,
		m,
		logger.With(slog.String("component", "voice")),
		usecase.VoiceConfig{
			Capture: ports.CaptureConfig{
				SampleRate:  pcm.CaptureSampleRate,
				Channels:    1,
				InputFormat: cfg.Audio.InputFormat,
				InputDevice: cfg.Audio.InputDevice,
			},
			Output: ports.OutputConfig{
				SampleRate: pcm.PlaybackSampleRate,
				Channels:   1,
			},
			FrameSize:      cfg.Session.FrameSize,
			EndCallGrace:   cfg.Session.EndCallGrace(),
			ServerGreeting: cfg.Session.ServerGreeting,
			Voice:          cfg.Gemini.Voice,
		},
	)
	bridge := usecase.NewRecordBridge(voice, p, eventSink, m, logger.With(slog.String("component", "bridge")))
	bridge.Seed(store.Snapshot())
	store.Subscribe(bridge.Observe)

	chat := usecase.NewChatController(chatProvider, tools, store, transcript, p, eventSink, m, logger.With(slog.String("component", "chat")))

	logger.Info("services ready",
		slog.String("audio_backend", cfg.Audio.Backend),
		slog.String("live_model", cfg.Gemini.LiveModel),
		slog.String("chat_model", cfg.Gemini.ChatModel),
		slog.Bool("api_key", cfg.Gemini.APIKey != ""),
		slog.String("config", cfg.Source),
	)

	return Services{
		Voice:      voice,
		Chat:       chat,
		Store:      store,
		Transcript: transcript,
		Config:     cfg,
		Logger:     logger,
		email:      email,
		metrics:    metricsServer,
	}, nil
}

// Shutdown ends any call and stops background work.
func (s Services) Shutdown(ctx context.Context) error {
	if s.Voice != nil {
		s.Voice.Shutdown()
	}
	if s.email != nil {
		s.email.Stop()
	}
	if err := s.metrics.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// MetricsAddr is the bound metrics address, or "" when disabled.
func (s Services) MetricsAddr() string {
	if s.metrics == nil {
		return ""
	}
	return s.metrics.Addr()
}

func newCapture(cfg config.AudioConfig) ports.AudioCapture {
	if cfg.Backend == config.AudioBackendFFMPEG {
		return audio.NewFFMPEGCapture(cfg.RecorderCommand)
	}
	return malgo.NewCapture()
}

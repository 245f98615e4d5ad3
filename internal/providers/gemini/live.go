package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"nora/internal/domain"
	"nora/internal/ports"
)

const (
	defaultLiveBaseURL = "wss://generativelanguage.googleapis.com"
	liveServicePath    = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	defaultSendQueue   = 64
)

var (
	ErrSessionClosed = errors.New("live session closed")
	ErrSendQueueFull = errors.New("live session send queue is full")
)

// LiveConfig controls the duplex websocket client.
type LiveConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	Voice           string
	PhotoCategories []string
	SendQueue       int
}

// LiveProvider implements ports.LiveProvider over the Gemini Live websocket.
type LiveProvider struct {
	cfg    LiveConfig
	dialer *websocket.Dialer
	logger *slog.Logger
}

func NewLiveProvider(cfg LiveConfig, logger *slog.Logger) *LiveProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultLiveBaseURL
	}
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = defaultSendQueue
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveProvider{cfg: cfg, dialer: websocket.DefaultDialer, logger: logger}
}

// Connect dials, sends the setup frame and blocks until the server confirms
// it or ctx is cancelled.
func (p *LiveProvider) Connect(ctx context.Context, setup ports.LiveSetup, handlers ports.LiveHandlers) (ports.LiveSession, error) {
	if strings.TrimSpace(p.cfg.APIKey) == "" {
		return nil, errors.New("GEMINI_API_KEY is not configured")
	}

	wsURL, err := buildLiveURL(p.cfg.BaseURL, p.cfg.APIKey)
	if err != nil {
		return nil, err
	}

	conn, _, err := p.dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to live endpoint: %w", err)
	}

	// The handshake reads block; closing the socket is the only way to
	// abandon them when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	err = p.handshake(conn, setup)
	if !stop() || ctx.Err() != nil {
		_ = conn.Close()
		return nil, ctx.Err()
	}
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	session := &liveSession{
		conn:     conn,
		handlers: handlers,
		logger:   p.logger,
		outbound:  make(chan []byte, p.cfg.SendQueue),
		closing:   make(chan struct{}),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		_ = conn.Close()
	}()

	return session, nil
}

func (p *LiveProvider) handshake(conn *websocket.Conn, setup ports.LiveSetup) error {
	payload, err := json.Marshal(clientMessage{Setup: p.buildSetup(setup)})
	if err != nil {
		return fmt.Errorf("failed to encode setup: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("failed to send setup: %w", err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("live endpoint rejected setup: %w", err)
		}
		var message serverMessage
		if err := json.Unmarshal(frame, &message); err != nil {
			continue
		}
		if message.SetupComplete != nil {
			return nil
		}
	}
}

func (p *LiveProvider) buildSetup(setup ports.LiveSetup) *setupMessage {
	voice := firstNonEmpty(setup.Voice, p.cfg.Voice)
	message := &setupMessage{
		Model: modelResource(p.cfg.Model),
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		Tools:                    Tools(p.cfg.PhotoCategories),
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if voice != "" {
		message.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: voice}},
		}
	}
	if strings.TrimSpace(setup.SystemInstruction) != "" {
		message.SystemInstruction = &wireContent{Parts: []wirePart{{Text: setup.SystemInstruction}}}
	}
	return message
}

type liveSession struct {
	conn     *websocket.Conn
	handlers ports.LiveHandlers
	logger   *slog.Logger

	outbound  chan []byte
	closing   chan struct{}
	readDone  chan struct{}
	writeDone chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (s *liveSession) SendAudio(blob domain.MediaBlob) error {
	return s.offer(clientMessage{RealtimeInput: &realtimeInput{Audio: &wireBlob{MIMEType: blob.MIMEType, Data: blob.Data}}})
}

func (s *liveSession) SendMedia(blob domain.MediaBlob) error {
	return s.offer(clientMessage{RealtimeInput: &realtimeInput{Video: &wireBlob{MIMEType: blob.MIMEType, Data: blob.Data}}})
}

func (s *liveSession) SendText(text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.offer(clientMessage{RealtimeInput: &realtimeInput{Text: text}})
}

// Close detaches from the remote side without waiting for it.
func (s *liveSession) Close() error {
	s.closeOnce.Do(func() {
		close(s.closing)
	})
	return nil
}

func (s *liveSession) closed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// offer queues a frame without blocking.
func (s *liveSession) offer(message clientMessage) error {
	if s.closed() {
		return ErrSessionClosed
	}
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode realtime input: %w", err)
	}
	select {
	case s.outbound <- payload:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	case <-s.writeDone:
		return ErrSessionClosed
	default:
		return ErrSendQueueFull
	}
}

// push queues a frame that must not be dropped, waiting for queue space.
// A frame that fits is queued even when Close has already been called; the
// writer flushes the queue before the close frame.
func (s *liveSession) push(message clientMessage) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to encode tool response: %w", err)
	}
	select {
	case s.outbound <- payload:
		return nil
	default:
	}
	select {
	case s.outbound <- payload:
		return nil
	case <-s.closing:
		return ErrSessionClosed
	case <-s.writeDone:
		return ErrSessionClosed
	}
}

func (s *liveSession) writeLoop() {
	defer s.wg.Done()
	defer close(s.writeDone)

	for {
		select {
		case payload := <-s.outbound:
			if !s.write(payload) {
				return
			}
		case <-s.closing:
			s.flush()
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = s.conn.Close()
			return
		case <-s.readDone:
			return
		}
	}
}

// flush writes whatever is already queued without waiting for more.
func (s *liveSession) flush() {
	for {
		select {
		case payload := <-s.outbound:
			if !s.write(payload) {
				return
			}
		default:
			return
		}
	}
}

func (s *liveSession) write(payload []byte) bool {
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !s.closed() {
			s.logger.Warn("live write failed", slog.Any("error", err))
		}
		_ = s.conn.Close()
		return false
	}
	return true
}

func (s *liveSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			s.finish(err)
			return
		}

		var message serverMessage
		if err := json.Unmarshal(frame, &message); err != nil {
			s.logger.Debug("ignoring undecodable live frame", slog.Any("error", err))
			continue
		}
		s.dispatch(message)
	}
}

// finish reports how the read side ended. Nothing is reported once Close
// has been called locally.
func (s *liveSession) finish(err error) {
	if s.closed() {
		return
	}
	if !isNormalClose(err) && s.handlers.OnError != nil {
		s.handlers.OnError(fmt.Errorf("live connection failed: %w", err))
		return
	}
	if s.handlers.OnClose != nil {
		s.handlers.OnClose()
	}
}

func (s *liveSession) dispatch(message serverMessage) {
	if content := message.ServerContent; content != nil {
		if content.ModelTurn != nil && s.handlers.OnAudio != nil {
			for _, part := range content.ModelTurn.Parts {
				if part.InlineData == nil || part.InlineData.Data == "" {
					continue
				}
				if !strings.HasPrefix(part.InlineData.MIMEType, "audio/") && part.InlineData.MIMEType != "" {
					continue
				}
				s.handlers.OnAudio(part.InlineData.Data)
			}
		}
		if content.Interrupted && s.handlers.OnInterrupted != nil {
			s.handlers.OnInterrupted()
		}
		if s.handlers.OnTranscription != nil {
			if content.InputTranscription != nil && content.InputTranscription.Text != "" {
				s.handlers.OnTranscription(domain.TranscriptSourceUser, content.InputTranscription.Text)
			}
			if content.OutputTranscription != nil && content.OutputTranscription.Text != "" {
				s.handlers.OnTranscription(domain.TranscriptSourceAgent, content.OutputTranscription.Text)
			}
		}
	}

	if message.ToolCall != nil && len(message.ToolCall.FunctionCalls) > 0 {
		s.handleToolCall(message.ToolCall.FunctionCalls)
	}

	if message.ToolCallCancellation != nil {
		s.logger.Info("live tool calls cancelled", slog.Any("ids", message.ToolCallCancellation.IDs))
	}
	if message.GoAway != nil {
		s.logger.Warn("live endpoint going away", slog.String("time_left", message.GoAway.TimeLeft))
	}
}

// handleToolCall hands the calls to the caller and acknowledges every one of
// them; calls the handler did not answer are acknowledged as successful.
func (s *liveSession) handleToolCall(wireCalls []wireFunctionCall) {
	calls := make([]domain.ToolInvocation, 0, len(wireCalls))
	for _, call := range wireCalls {
		calls = append(calls, domain.ToolInvocation{ID: call.ID, Name: domain.ToolName(call.Name), Args: call.Args})
	}

	var results []domain.ToolResult
	if s.handlers.OnToolCall != nil {
		results = s.handlers.OnToolCall(calls)
	}

	if err := s.push(clientMessage{ToolResponse: buildToolResponse(calls, results)}); err != nil && !errors.Is(err, ErrSessionClosed) {
		s.logger.Warn("failed to acknowledge tool calls", slog.Any("error", err))
	}
}

func buildToolResponse(calls []domain.ToolInvocation, results []domain.ToolResult) *toolResponse {
	byID := make(map[string]domain.ToolResult, len(results))
	for _, result := range results {
		byID[result.ID] = result
	}

	response := &toolResponse{FunctionResponses: make([]wireFunctionResponse, 0, len(calls))}
	for _, call := range calls {
		result, ok := byID[call.ID]
		if !ok || result.Response == nil {
			result = domain.SuccessResult(call)
		}
		response.FunctionResponses = append(response.FunctionResponses, wireFunctionResponse{
			ID:       call.ID,
			Name:     string(call.Name),
			Response: result.Response,
		})
	}
	return response
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

func buildLiveURL(base string, apiKey string) (string, error) {
	base = strings.TrimSpace(base)
	if base == "" {
		base = defaultLiveBaseURL
	}
	if strings.HasPrefix(base, "https://") {
		base = "wss://" + strings.TrimPrefix(base, "https://")
	} else if strings.HasPrefix(base, "http://") {
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	base = strings.TrimRight(base, "/")

	liveURL, err := url.Parse(base + liveServicePath)
	if err != nil {
		return "", fmt.Errorf("invalid live base URL: %w", err)
	}
	if liveURL.Scheme != "ws" && liveURL.Scheme != "wss" {
		return "", fmt.Errorf("invalid live base URL scheme %q", liveURL.Scheme)
	}

	query := liveURL.Query()
	query.Set("key", apiKey)
	liveURL.RawQuery = query.Encode()
	return liveURL.String(), nil
}

func modelResource(model string) string {
	model = strings.TrimSpace(model)
	if model == "" || strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

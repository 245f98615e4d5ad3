package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"nora/internal/domain"
	"nora/internal/metrics"
	"nora/internal/persona"
	"nora/internal/ports"
	"nora/internal/record"
)

var ErrChatBusy = errors.New("a chat turn is already in flight")

// maxToolRounds bounds how many acknowledge round trips one turn may take.
const maxToolRounds = 4

// ChatController runs the text channel with tool calling.
type ChatController struct {
	provider   ports.ChatProvider
	tools      *ToolDispatcher
	store      *record.Store
	transcript *Transcript
	persona    persona.Persona
	events     ports.EventSink
	metrics    *metrics.Metrics
	logger     *slog.Logger

	turnMu      sync.Mutex
	busy        bool
	chat        ports.ChatSession
	seenVersion uint64
}

func NewChatController(
	provider ports.ChatProvider,
	tools *ToolDispatcher,
	store *record.Store,
	transcript *Transcript,
	p persona.Persona,
	events ports.EventSink,
	m *metrics.Metrics,
	logger *slog.Logger,
) *ChatController {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatController{
		provider:   provider,
		tools:      tools,
		store:      store,
		transcript: transcript,
		persona:    p,
		events:     events,
		metrics:    m,
		logger:     logger,
	}
}

// Send runs one user turn. Model failures are answered with an apology in
// the transcript; only ErrChatBusy and blank input are returned.
func (c *ChatController) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty chat message")
	}

	c.turnMu.Lock()
	if c.busy {
		c.turnMu.Unlock()
		return ErrChatBusy
	}
	c.busy = true
	c.turnMu.Unlock()

	c.transcript.Append(domain.RoleUser, text)
	c.events.ChatPending(true)

	reply, err := c.runTurn(ctx, text)
	if err != nil {
		c.logger.Warn("chat turn failed", slog.Any("err", err))
		c.metrics.RecordChatTurn(true)
		c.events.SessionError(domain.ErrorCodeChat, err.Error())
		reply = c.persona.Apology()
	} else {
		c.metrics.RecordChatTurn(false)
	}
	c.transcript.Append(domain.RoleModel, reply)

	c.turnMu.Lock()
	c.busy = false
	c.turnMu.Unlock()
	c.events.ChatPending(false)
	return nil
}

func (c *ChatController) Messages() []domain.ChatMessage {
	return c.transcript.Messages()
}

func (c *ChatController) runTurn(ctx context.Context, text string) (string, error) {
	chat, err := c.session(ctx)
	if err != nil {
		return "", err
	}

	turn := ports.ChatTurn{Text: text}
	if version := c.store.Version(); version != c.seenVersion {
		turn.Context = "Current customer card: " + persona.Memory(c.store.Snapshot())
	}

	reply, err := chat.Send(ctx, turn)
	if err != nil {
		return "", err
	}

	var texts []string
	for round := 0; ; round++ {
		if s := strings.TrimSpace(reply.Text); s != "" {
			texts = append(texts, s)
		}
		if len(reply.Calls) == 0 {
			break
		}
		if round == maxToolRounds {
			c.logger.Warn("chat tool rounds exhausted", slog.Int("pending", len(reply.Calls)))
			break
		}
		results := c.tools.Dispatch(ctx, domain.OriginText, reply.Calls)
		reply, err = chat.Acknowledge(ctx, results)
		if err != nil {
			return "", fmt.Errorf("acknowledge tool calls: %w", err)
		}
	}

	// Merges from this turn's own tools are already known to the model.
	c.seenVersion = c.store.Version()

	if len(texts) == 0 {
		return c.persona.NotedReply(), nil
	}
	return strings.Join(texts, "\n"), nil
}

func (c *ChatController) session(ctx context.Context) (ports.ChatSession, error) {
	if c.chat != nil {
		return c.chat, nil
	}
	version := c.store.Version()
	chat, err := c.provider.StartChat(ctx, c.persona.SystemPrompt(c.store.Snapshot()))
	if err != nil {
		return nil, fmt.Errorf("start chat: %w", err)
	}
	c.chat = chat
	c.seenVersion = version
	return chat, nil
}

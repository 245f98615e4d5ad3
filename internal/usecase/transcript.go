package usecase

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"nora/internal/domain"
	"nora/internal/ports"
)

// Transcript is the text-channel message log shared by both agents.
type Transcript struct {
	events ports.EventSink

	mu       sync.Mutex
	messages []domain.ChatMessage
}

// NewTranscript seeds the log with the assistant's opening line.
func NewTranscript(events ports.EventSink, greeting string) *Transcript {
	t := &Transcript{events: events}
	if greeting = strings.TrimSpace(greeting); greeting != "" {
		t.messages = append(t.messages, newMessage(domain.RoleModel, greeting))
	}
	return t
}

// Append records a message and publishes it. Blank text is ignored.
func (t *Transcript) Append(role domain.Role, text string) (domain.ChatMessage, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, false
	}
	message := newMessage(role, text)

	t.mu.Lock()
	t.messages = append(t.messages, message)
	t.mu.Unlock()

	t.events.ChatMessage(message)
	return message, true
}

func (t *Transcript) Messages() []domain.ChatMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.ChatMessage, len(t.messages))
	copy(out, t.messages)
	return out
}

func newMessage(role domain.Role, text string) domain.ChatMessage {
	return domain.ChatMessage{ID: uuid.NewString(), Role: role, Text: text, SentAt: time.Now()}
}

package usecase

import (
	"log/slog"
	"sync"

	"nora/internal/domain"
	"nora/internal/metrics"
	"nora/internal/persona"
	"nora/internal/ports"
	"nora/internal/record"
)

// TextInjector delivers a text turn into the live call.
type TextInjector interface {
	InjectText(text string) error
}

// RecordBridge publishes card changes and tells a live call about fields
// changed by anything other than the call itself. It diffs against the last
// card it observed, which it advances on every change.
type RecordBridge struct {
	voice   TextInjector
	persona persona.Persona
	events  ports.EventSink
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu   sync.Mutex
	last domain.CustomerRecord
}

func NewRecordBridge(voice TextInjector, p persona.Persona, events ports.EventSink, m *metrics.Metrics, logger *slog.Logger) *RecordBridge {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecordBridge{voice: voice, persona: p, events: events, metrics: m, logger: logger}
}

// Seed sets the card the first change is diffed against.
func (b *RecordBridge) Seed(rec domain.CustomerRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = rec
}

// Observe is a record.Listener.
func (b *RecordBridge) Observe(change record.Change) {
	b.metrics.RecordMerge(string(change.Origin))
	b.events.RecordChanged(change.Current)

	b.mu.Lock()
	previous := b.last
	b.last = change.Current
	b.mu.Unlock()

	if change.Origin == domain.OriginVoice {
		return
	}
	field, ok := domain.FirstFilledField(previous, change.Current)
	if !ok {
		return
	}

	value := change.Current.Get(field)
	if err := b.voice.InjectText(b.persona.RecordNotice(field, value)); err != nil {
		// No live call; the prompt of the next call carries the card.
		b.logger.Debug("record notice not delivered", slog.String("field", string(field)), slog.Any("err", err))
		return
	}
	b.metrics.RecordBridgeNotice()
	b.events.Caption(b.persona.RecordCaption(field))
}

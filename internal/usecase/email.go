package usecase

import (
	"log/slog"
	"sync"
	"time"

	"nora/internal/domain"
	"nora/internal/persona"
	"nora/internal/ports"
)

// EmailDispatcher simulates sending a confirmation email: sending, then sent
// with a chat confirmation after sendDelay, then idle after sentHold.
type EmailDispatcher struct {
	events     ports.EventSink
	transcript *Transcript
	persona    persona.Persona
	logger     *slog.Logger
	sendDelay  time.Duration
	sentHold   time.Duration

	mu         sync.Mutex
	generation uint64
	timers     []*time.Timer
	stopped    bool
}

func NewEmailDispatcher(
	events ports.EventSink,
	transcript *Transcript,
	p persona.Persona,
	sendDelay time.Duration,
	sentHold time.Duration,
	logger *slog.Logger,
) *EmailDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailDispatcher{
		events:     events,
		transcript: transcript,
		persona:    p,
		logger:     logger,
		sendDelay:  sendDelay,
		sentHold:   sentHold,
	}
}

// Send starts a new dispatch. A newer dispatch supersedes the badge state
// of an older one, but every dispatch still posts its confirmation.
func (e *EmailDispatcher) Send(address string, details string) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.generation++
	generation := e.generation
	e.mu.Unlock()

	e.logger.Info("sending confirmation email", slog.String("email", address), slog.Int("details_len", len(details)))
	e.events.EmailStatusChanged(domain.EmailStatusSending)

	e.after(e.sendDelay, func() {
		if e.current(generation) {
			e.events.EmailStatusChanged(domain.EmailStatusSent)
		}
		e.transcript.Append(domain.RoleModel, e.persona.EmailSentMessage(address))

		e.after(e.sentHold, func() {
			if e.current(generation) {
				e.events.EmailStatusChanged(domain.EmailStatusIdle)
			}
		})
	})
}

// Stop cancels pending transitions.
func (e *EmailDispatcher) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopped = true
	for _, timer := range e.timers {
		timer.Stop()
	}
	e.timers = nil
}

func (e *EmailDispatcher) after(delay time.Duration, fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		e.forget(timer)
		fn()
	})
	e.timers = append(e.timers, timer)
}

func (e *EmailDispatcher) forget(timer *time.Timer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, t := range e.timers {
		if t == timer {
			e.timers = append(e.timers[:i], e.timers[i+1:]...)
			return
		}
	}
}

func (e *EmailDispatcher) current(generation uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.stopped && e.generation == generation
}

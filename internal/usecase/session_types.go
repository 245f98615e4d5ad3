package usecase

import (
	"context"
	"sync"
	"time"

	"nora/internal/domain"
	"nora/internal/playback"
	"nora/internal/ports"
)

// voiceSession is one call. Resources are attached as Start progresses; an
// attach after finish reports false and the caller releases the resource.
type voiceSession struct {
	id       string
	cancel   context.CancelFunc
	pumpDone chan struct{}

	mu        sync.Mutex
	state     domain.SessionState
	speaking  bool
	finished  bool
	activeAt  time.Time
	mic       ports.AudioSession
	scheduler *playback.Scheduler
	remote    ports.LiveSession
	endTimer  *time.Timer
}

// sessionResources is what finish has to release.
type sessionResources struct {
	mic       ports.AudioSession
	scheduler *playback.Scheduler
	remote    ports.LiveSession
	endTimer  *time.Timer
	speaking  bool
	activeAt  time.Time
}

func newVoiceSession(id string, cancel context.CancelFunc) *voiceSession {
	return &voiceSession{
		id:       id,
		cancel:   cancel,
		pumpDone: make(chan struct{}),
		state:    domain.SessionStateConnecting,
	}
}

func (s *voiceSession) attachMic(mic ports.AudioSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.mic = mic
	return true
}

func (s *voiceSession) attachScheduler(scheduler *playback.Scheduler) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.scheduler = scheduler
	return true
}

func (s *voiceSession) attachRemote(remote ports.LiveSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.remote = remote
	return true
}

func (s *voiceSession) markActive(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return false
	}
	s.state = domain.SessionStateActive
	s.activeAt = now
	return true
}

// link returns the remote once it is attached and the session is live.
func (s *voiceSession) link() ports.LiveSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	return s.remote
}

func (s *voiceSession) playback() *playback.Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return nil
	}
	return s.scheduler
}

// setSpeaking reports whether the flag actually changed.
func (s *voiceSession) setSpeaking(speaking bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.speaking == speaking {
		return false
	}
	s.speaking = speaking
	return true
}

func (s *voiceSession) armEnd(grace time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished || s.endTimer != nil {
		return
	}
	s.endTimer = time.AfterFunc(grace, fn)
}

func (s *voiceSession) isFinished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// finish claims the session for teardown exactly once.
func (s *voiceSession) finish(state domain.SessionState) (sessionResources, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return sessionResources{}, false
	}
	s.finished = true
	s.state = state
	res := sessionResources{
		mic:       s.mic,
		scheduler: s.scheduler,
		remote:    s.remote,
		endTimer:  s.endTimer,
		speaking:  s.speaking,
		activeAt:  s.activeAt,
	}
	s.speaking = false
	return res, true
}

func (s *voiceSession) status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Status{
		State:     s.state,
		Active:    !s.finished,
		Speaking:  s.speaking,
		SessionID: s.id,
	}
}

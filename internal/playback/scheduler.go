// Package playback schedules agent audio chunks back-to-back on an output
// pipeline and supports immediate interruption.
package playback

import (
	"errors"
	"sync"
	"time"

	"nora/internal/pcm"
)

var ErrClosed = errors.New("playback: scheduler is torn down")

// Pipeline is an output clock that can start buffers at absolute times.
// onEnded fires once a buffer has fully played; it must not be invoked from
// within Start itself.
type Pipeline interface {
	CurrentTime() time.Duration
	Start(buf pcm.Buffer, at time.Duration, onEnded func()) (Source, error)
	Close() error
}

// Source is a scheduled buffer that has not finished playing.
type Source interface {
	Stop()
}

// Config fixes the format of incoming chunks.
type Config struct {
	SampleRate int
	Channels   int
}

// Scheduler owns the active source set for one voice session.
type Scheduler struct {
	pipeline  Pipeline
	cfg       Config
	onDrained func()

	mu     sync.Mutex
	cursor time.Duration
	nextID uint64
	active map[uint64]Source
	closed bool
}

// NewScheduler starts the cursor at the pipeline's current time. onDrained is
// called whenever the last active source finishes naturally.
func NewScheduler(pipeline Pipeline, cfg Config, onDrained func()) *Scheduler {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = pcm.PlaybackSampleRate
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}
	return &Scheduler{
		pipeline:  pipeline,
		cfg:       cfg,
		onDrained: onDrained,
		cursor:    pipeline.CurrentTime(),
		active:    make(map[uint64]Source),
	}
}

// Enqueue decodes a chunk and schedules it right after the previous one, or
// at the live clock if the cursor has fallen behind. It returns the start time.
func (s *Scheduler) Enqueue(chunk []byte) (time.Duration, error) {
	buf, err := pcm.DecodeBytes(chunk, s.cfg.SampleRate, s.cfg.Channels)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	start := s.cursor
	if now := s.pipeline.CurrentTime(); now > start {
		start = now
	}

	s.nextID++
	id := s.nextID
	source, err := s.pipeline.Start(buf, start, func() { s.ended(id) })
	if err != nil {
		return 0, err
	}
	s.cursor = start + buf.Duration()
	s.active[id] = source
	return start, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	if _, ok := s.active[id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.active, id)
	drained := len(s.active) == 0 && !s.closed
	s.mu.Unlock()

	if drained && s.onDrained != nil {
		s.onDrained()
	}
}

// Interrupt stops every active source. The cursor is left alone so the next
// chunk starts from the live clock rather than a stale future position.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	sources := s.drainLocked()
	s.mu.Unlock()

	for _, source := range sources {
		source.Stop()
	}
}

// Teardown stops all sources, releases the pipeline and resets the cursor.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cursor = 0
	sources := s.drainLocked()
	s.mu.Unlock()

	for _, source := range sources {
		source.Stop()
	}
	return s.pipeline.Close()
}

// Active reports the number of scheduled, unfinished sources.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// Cursor is the time at which the next chunk would start if the clock has
// not passed it.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

func (s *Scheduler) drainLocked() []Source {
	if len(s.active) == 0 {
		return nil
	}
	sources := make([]Source, 0, len(s.active))
	for id, source := range s.active {
		sources = append(sources, source)
		delete(s.active, id)
	}
	return sources
}

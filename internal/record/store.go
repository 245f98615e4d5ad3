// Package record owns the customer card shared by the voice and text
// channels and its persisted copy.
package record

import (
	"context"
	"errors"
	"sync"

	"nora/internal/domain"
	"nora/internal/ports"
)

// Change describes one merge. Previous and Current are full snapshots.
type Change struct {
	Origin   domain.RecordOrigin
	Previous domain.CustomerRecord
	Current  domain.CustomerRecord
}

// Listener observes merges. Listeners run synchronously, in merge order, and
// must not call Merge themselves.
type Listener func(Change)

// Store is the single source of truth for the customer card. All writes are
// merges; a field absent from an update is never touched.
type Store struct {
	persister ports.RecordPersister

	mergeMu sync.Mutex

	mu        sync.RWMutex
	current   domain.CustomerRecord
	version   uint64
	listeners []Listener
}

func NewStore(persister ports.RecordPersister) *Store {
	return &Store{persister: persister}
}

// Subscribe registers a listener for subsequent merges.
func (s *Store) Subscribe(fn Listener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns a copy of the current card.
func (s *Store) Snapshot() domain.CustomerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Version increases by one on every merge.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Merge applies update, persists the result and notifies listeners. The
// returned error only reports a persistence failure; the merge itself always
// takes effect.
func (s *Store) Merge(ctx context.Context, origin domain.RecordOrigin, update domain.RecordUpdate) (domain.CustomerRecord, error) {
	return s.merge(ctx, origin, update, true)
}

// Restore loads the persisted card once at startup. Malformed stored data is
// reported but leaves the card empty.
func (s *Store) Restore(ctx context.Context) (domain.CustomerRecord, error) {
	if s.persister == nil {
		return s.Snapshot(), nil
	}
	loaded, err := s.persister.Load(ctx)
	if err != nil {
		return s.Snapshot(), err
	}
	update := domain.RecordUpdate{}
	for _, field := range domain.RecordFields {
		update[field] = loaded.Get(field)
	}
	return s.merge(ctx, domain.OriginRestore, update, false)
}

func (s *Store) merge(ctx context.Context, origin domain.RecordOrigin, update domain.RecordUpdate, persist bool) (domain.CustomerRecord, error) {
	s.mergeMu.Lock()
	defer s.mergeMu.Unlock()

	s.mu.Lock()
	change := Change{Origin: origin, Previous: s.current}
	s.current = s.current.Merge(update)
	s.version++
	change.Current = s.current
	listeners := append([]Listener(nil), s.listeners...)
	s.mu.Unlock()

	var saveErr error
	if persist && s.persister != nil {
		saveErr = s.persister.Save(ctx, change.Current)
	}

	for _, fn := range listeners {
		fn(change)
	}
	return change.Current, saveErr
}

// IsMalformed reports whether err came from unreadable stored data.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedRecord)
}

package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/HatiCode/corecast/pkg/scaling"
)

type memoryEntry struct {
	model    scaling.Model
	storedAt time.Time
}

// MemoryStore implements an in-memory model cache.
// It is safe for concurrent use by multiple goroutines.
//
// If TTL is configured, a background goroutine removes models older than
// the TTL. Use RedisStore when several corecastd replicas should share
// fitted models.
type MemoryStore struct {
	mu            sync.RWMutex
	models        map[string]memoryEntry
	ttl           time.Duration
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory store with no TTL.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		models: make(map[string]memoryEntry),
		now:    time.Now,
	}
}

// NewMemoryStoreWithTTL creates an in-memory store that evicts models older
// than ttl. Eviction runs every cleanupInterval (one minute when <= 0), and
// Get never returns an expired model even between cleanups.
//
// Stop must be called when the store is no longer needed.
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		models:        make(map[string]memoryEntry),
		ttl:           ttl,
		now:           time.Now,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine and blocks until it exits.
// Calling Stop multiple times or on a store without TTL does nothing.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 {
		return
	}

	now := s.now()
	for key, e := range s.models {
		if s.expired(e, now) {
			delete(s.models, key)
		}
	}
}

func (s *MemoryStore) expired(e memoryEntry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.storedAt) > s.ttl
}

// Put stores a model under key, replacing any existing one.
func (s *MemoryStore) Put(ctx context.Context, key string, model scaling.Model) error {
	if key == "" {
		return fmt.Errorf("model key cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.models[key] = memoryEntry{model: model, storedAt: s.now()}
	return nil
}

// Get retrieves the model stored under key. found is false when no model
// exists or it has expired.
func (s *MemoryStore) Get(ctx context.Context, key string) (scaling.Model, bool, error) {
	select {
	case <-ctx.Done():
		return scaling.Model{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	e, found := s.models[key]
	if !found || s.expired(e, s.now()) {
		return scaling.Model{}, false, nil
	}
	return e.model, true, nil
}

// Len returns the number of models currently stored, expired ones included
// until the next cleanup.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// Delete removes the model stored under key and reports whether one existed.
func (s *MemoryStore) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.models[key]
	delete(s.models, key)
	return existed
}

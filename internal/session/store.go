package session

import (
	"sync"
	"time"

	"engagemeter/internal/errors"

	"github.com/google/uuid"
)

// Store holds the live sessions of a server process, keyed by id.
// Sessions untouched for longer than the idle timeout are evicted.
type Store struct {
	mu          sync.Mutex
	sessions    map[string]*Tracker
	lastSeen    map[string]time.Time
	historySize int
	idleTimeout time.Duration
	created     int64
	evicted     int64
	done        chan struct{}
	closeOnce   sync.Once
	logger      *errors.Logger
	now         func() time.Time
	onEvict     func(n int)
}

// NewStore creates a store and starts its eviction goroutine.
// A non-positive idleTimeout disables eviction.
func NewStore(historySize int, idleTimeout time.Duration, logger *errors.Logger) *Store {
	s := &Store{
		sessions:    make(map[string]*Tracker),
		lastSeen:    make(map[string]time.Time),
		historySize: historySize,
		idleTimeout: idleTimeout,
		done:        make(chan struct{}),
		logger:      logger,
		now:         time.Now,
	}

	if idleTimeout > 0 {
		go s.cleanupRoutine(cleanupInterval(idleTimeout))
	}
	return s
}

// Create starts a new session with a random id
func (s *Store) Create() *Tracker {
	t := New(s.historySize)
	t.id = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[t.id] = t
	s.lastSeen[t.id] = s.now()
	s.created++
	return t
}

// Get returns the session and marks it active
func (s *Store) Get(id string) (*Tracker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.sessions[id]
	if ok {
		s.lastSeen[id] = s.now()
	}
	return t, ok
}

// Touch marks a live session active and reports whether it still exists
func (s *Store) Touch(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	s.lastSeen[id] = s.now()
	return true
}

// Delete removes a session and reports whether it existed
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	delete(s.lastSeen, id)
	return ok
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// GetStats returns current store statistics
func (s *Store) GetStats() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	return map[string]any{
		"active_sessions":  len(s.sessions),
		"created_sessions": s.created,
		"evicted_sessions": s.evicted,
		"history_size":     s.historySize,
		"idle_timeout":     s.idleTimeout.String(),
	}
}

func (s *Store) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.evictIdle()
		case <-s.done:
			return
		}
	}
}

// evictIdle drops sessions idle for longer than the timeout and returns how many
func (s *Store) evictIdle() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for id, seen := range s.lastSeen {
		if now.Sub(seen) > s.idleTimeout {
			delete(s.sessions, id)
			delete(s.lastSeen, id)
			removed++
		}
	}
	s.evicted += int64(removed)
	if s.onEvict != nil && removed > 0 {
		s.onEvict(removed)
	}

	if s.logger != nil && removed > 0 {
		s.logger.Debug("Session cleanup completed",
			"evicted", removed,
			"remaining_sessions", len(s.sessions))
	}
	return removed
}

// OnEvict registers fn to be called with the number of sessions removed by each cleanup pass
func (s *Store) OnEvict(fn func(n int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onEvict = fn
}

// Close stops the eviction goroutine. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

func cleanupInterval(idle time.Duration) time.Duration {
	return min(max(idle/4, time.Second), time.Minute)
}

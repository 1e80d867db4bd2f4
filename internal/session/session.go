// Package session gives every browser session its own feedback store and
// story memory, and discards them once the session goes idle.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/database"
	"github.com/TobiSchelling/FeedbackLens/internal/story"
)

// Session is the state owned by one user session.
type Session struct {
	ID    string
	Store *database.DB
	Story *story.Memory

	lastSeen time.Time
	inflight int
}

// Manager creates, looks up and expires sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	idle     time.Duration
	now      func() time.Time
	log      *zap.Logger

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewManager starts a Manager whose janitor closes sessions that have not
// been used for idle. A non-positive idle keeps sessions until Close.
func NewManager(idle time.Duration, log *zap.Logger) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		idle:     idle,
		now:      time.Now,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	if idle > 0 {
		go m.janitor(sweepInterval(idle))
	} else {
		close(m.done)
	}
	return m
}

func sweepInterval(idle time.Duration) time.Duration {
	interval := idle / 4
	if interval < time.Second {
		interval = time.Second
	}
	if interval > time.Minute {
		interval = time.Minute
	}
	return interval
}

// Get returns the session for id, creating a fresh one when id is empty or
// unknown. created reports whether a new session was made.
func (m *Manager) Get(id string) (s *Session, created bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.get(id)
}

// Acquire is Get for callers that use the session for a while, such as an
// HTTP request waiting on the model. The session is not swept until release
// is called; release may be called more than once.
func (m *Manager) Acquire(id string) (s *Session, created bool, release func(), err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, created, err = m.get(id)
	if err != nil {
		return nil, false, nil, err
	}
	s.inflight++

	var once sync.Once
	release = func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			s.inflight--
			s.lastSeen = m.now()
		})
	}
	return s, created, release, nil
}

func (m *Manager) get(id string) (*Session, bool, error) {
	if s, ok := m.sessions[id]; ok && id != "" {
		s.lastSeen = m.now()
		return s, false, nil
	}

	store, err := database.OpenMemory()
	if err != nil {
		return nil, false, fmt.Errorf("opening session store: %w", err)
	}
	s := &Session{
		ID:       uuid.NewString(),
		Store:    store,
		Story:    story.NewMemory(),
		lastSeen: m.now(),
	}
	m.sessions[s.ID] = s
	m.log.Debug("session created", zap.String("session", s.ID))
	return s, true, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle for longer than the idle timeout and returns
// how many were removed. Sessions held through Acquire are kept.
func (m *Manager) Sweep() int {
	if m.idle <= 0 {
		return 0
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-m.idle)
	removed := 0
	for id, s := range m.sessions {
		if s.inflight == 0 && s.lastSeen.Before(cutoff) {
			m.closeSession(s)
			delete(m.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		m.log.Info("expired idle sessions", zap.Int("count", removed))
	}
	return removed
}

func (m *Manager) janitor(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Close stops the janitor and closes every session store.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() { close(m.stop) })
	<-m.done

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		m.closeSession(s)
		delete(m.sessions, id)
	}
	return nil
}

func (m *Manager) closeSession(s *Session) {
	if err := s.Store.Close(); err != nil {
		m.log.Warn("closing session store", zap.String("session", s.ID), zap.Error(err))
	}
}

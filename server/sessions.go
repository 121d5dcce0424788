package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chazu/squirrel/vm"
)

// Session is an isolated workspace: its own VM, and with it its own
// root table, behind its own worker.
type Session struct {
	ID      string
	Name    string
	Created time.Time
	Worker  *VMWorker

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

// LastUsed reports when the session was last looked up.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionStore manages workspace sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	newVM    func() *vm.VM
}

// NewSessionStore creates a session store. newVM builds the VM for each
// session.
func NewSessionStore(newVM func() *vm.VM) *SessionStore {
	return &SessionStore{
		sessions: make(map[string]*Session),
		newVM:    newVM,
	}
}

// Create starts a new session with an optional name.
func (s *SessionStore) Create(name string) *Session {
	now := time.Now()
	session := &Session{
		ID:       uuid.NewString(),
		Name:     name,
		Created:  now,
		Worker:   NewVMWorker(s.newVM()),
		lastUsed: now,
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	log.Infof("session %s created (%q)", session.ID, name)
	return session
}

// Get retrieves a session by ID.
func (s *SessionStore) Get(id string) (*Session, bool) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if ok {
		session.touch()
	}
	return session, ok
}

// Len returns the number of live sessions.
func (s *SessionStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Destroy removes a session, destroys its VM and stops its worker.
// It reports whether the session existed.
func (s *SessionStore) Destroy(id string) bool {
	s.mu.Lock()
	session, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()

	if !ok {
		return false
	}
	shutdown(session.Worker)
	log.Infof("session %s destroyed", id)
	return true
}

// DestroyAll destroys every session.
func (s *SessionStore) DestroyAll() {
	s.mu.Lock()
	sessions := s.sessions
	s.sessions = make(map[string]*Session)
	s.mu.Unlock()

	for _, session := range sessions {
		shutdown(session.Worker)
	}
}

// Sweep destroys sessions that haven't been used within the TTL.
func (s *SessionStore) Sweep(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	s.mu.Lock()
	var idle []*Session
	for id, session := range s.sessions {
		if session.LastUsed().Before(cutoff) {
			idle = append(idle, session)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, session := range idle {
		shutdown(session.Worker)
		log.Infof("session %s expired", session.ID)
	}
	return len(idle)
}

// StartSweeper runs periodic TTL sweeps in the background.
// Returns a stop function.
func (s *SessionStore) StartSweeper(interval, ttl time.Duration) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				s.Sweep(ttl)
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()
	return func() { close(done) }
}

// shutdown aborts whatever the worker is running, destroys its VM on the
// worker goroutine and stops it.
func shutdown(w *VMWorker) {
	w.VM().Abort()
	if _, err := w.Do(func(v *vm.VM) interface{} {
		v.Destroy()
		return nil
	}); err != nil {
		log.Warningf("destroying vm %s: %v", w.VM().ID(), err)
	}
	w.Stop()
}

package assistant

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PendingAction is a mutating intent parked while the user's confirmation
// is awaited.
type PendingAction struct {
	Action    string
	Task      *TaskData
	Response  string
	CreatedAt time.Time
}

// Sessions owns every pending action, keyed by an opaque session token.
// All access goes through the locked operations below; callers never see
// the map itself. Sessions have no expiry and are lost on restart.
type Sessions struct {
	mu      sync.Mutex
	pending map[string]*PendingAction
}

// NewSessions creates an empty session table.
func NewSessions() *Sessions {
	return &Sessions{pending: make(map[string]*PendingAction)}
}

// Create parks an action under a freshly generated token and returns it.
func (s *Sessions) Create(pa *PendingAction) string {
	pa.CreatedAt = time.Now()
	id := uuid.New().String()
	s.mu.Lock()
	s.pending[id] = pa
	s.mu.Unlock()
	return id
}

// Lookup returns the pending action for id without removing it.
func (s *Sessions) Lookup(id string) (*PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pa, ok := s.pending[id]
	return pa, ok
}

// Consume removes and returns the pending action for id. The caller owns
// the returned action; a second Consume for the same id fails.
func (s *Sessions) Consume(id string) (*PendingAction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pa, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return pa, ok
}

// Repark replaces the pending action under an existing token, keeping the
// session alive after an unconfirmed reply suggested a revised action.
func (s *Sessions) Repark(id string, pa *PendingAction) {
	pa.CreatedAt = time.Now()
	s.mu.Lock()
	s.pending[id] = pa
	s.mu.Unlock()
}

// Len reports how many actions are currently parked.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

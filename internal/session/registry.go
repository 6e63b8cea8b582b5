// Package session tracks per-chat mailbox state. Everything is
// memory-resident; a restart starts every chat from scratch.
package session

import "sync"

// Session is the per-chat state snapshot handed out by the registry.
type Session struct {
	ChatID        int64
	ActiveAddress string
	// LastSeenMailID is the dedup cursor: the newest provider mail id
	// already delivered for the active address.
	LastSeenMailID uint64
	// UsernamePrefix, when set, seeds the local part of generated addresses.
	UsernamePrefix string
	AutoRotate     bool
}

// Registry owns all sessions. All mutations go through it so the
// cursor-reset-on-address-change invariant holds in exactly one place.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[int64]*Session)}
}

// get returns the live session, creating it on first touch.
// Caller must hold mu.
func (r *Registry) get(chatID int64) *Session {
	s, ok := r.sessions[chatID]
	if !ok {
		s = &Session{ChatID: chatID}
		r.sessions[chatID] = s
	}
	return s
}

// Get returns a copy of the chat's session, creating it on first touch.
func (r *Registry) Get(chatID int64) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.get(chatID)
}

// SetAddress makes addr the chat's active mailbox and resets the dedup
// cursor. Every address change, user-driven or rotation, funnels here.
func (r *Registry) SetAddress(chatID int64, addr string) Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(chatID)
	s.ActiveAddress = addr
	s.LastSeenMailID = 0
	return *s
}

// AdvanceCursor moves the dedup cursor forward for addr. The update is
// dropped when the chat has since switched to another address or when
// id does not actually advance the cursor.
func (r *Registry) AdvanceCursor(chatID int64, addr string, id uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[chatID]
	if !ok || s.ActiveAddress != addr || id <= s.LastSeenMailID {
		return false
	}
	s.LastSeenMailID = id
	return true
}

// SetPrefix records the chat's username prefix. Validation happens at
// the command layer; the registry stores what it is given.
func (r *Registry) SetPrefix(chatID int64, prefix string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.get(chatID).UsernamePrefix = prefix
}

// ToggleAutoRotate flips the flag and returns the new value.
func (r *Registry) ToggleAutoRotate(chatID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := r.get(chatID)
	s.AutoRotate = !s.AutoRotate
	return s.AutoRotate
}

// Active returns a snapshot of every session that has a mailbox,
// for the poll loop to walk.
func (r *Registry) Active() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.ActiveAddress != "" {
			out = append(out, *s)
		}
	}
	return out
}

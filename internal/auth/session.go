// Package auth exposes the identity the reminder pipeline acts for.
package auth

import "sync"

// Session reports the currently signed-in user. Absence of a user means
// "no data", not an error: stores skip subscribing, controllers refuse writes.
type Session interface {
	CurrentUserID() (string, bool)
}

// Memory is an in-process session that can be signed in and out. The bot
// holds one per chat; tests drive sign-out directly.
type Memory struct {
	mu  sync.Mutex
	uid string
}

// NewMemory returns a session already signed in as uid. An empty uid means
// signed out.
func NewMemory(uid string) *Memory {
	return &Memory{uid: uid}
}

func (m *Memory) CurrentUserID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.uid, m.uid != ""
}

// SignOut clears the identity. Subsequent CurrentUserID calls report no user.
func (m *Memory) SignOut() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uid = ""
}

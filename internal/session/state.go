// Package session holds the browsing state of the single local session.
package session

import (
	"sync"

	"docuflex/internal/store"
)

// MaxRecent bounds the recently opened documents list.
const MaxRecent = 4

type State struct {
	mu       sync.RWMutex
	user     store.User
	activeID string
	recent   []string
}

func New(user store.User, activeID string) *State {
	return &State{user: user, activeID: activeID}
}

func (s *State) CurrentUser() store.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// SwitchUser replaces the current user. The active item is left as is;
// callers re-check access against the new user.
func (s *State) SwitchUser(user store.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// RefreshUser replaces the session snapshot of user if they are the
// current user.
func (s *State) RefreshUser(user store.User) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user.ID != user.ID {
		return false
	}
	s.user = user
	return true
}

func (s *State) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

func (s *State) SetActive(id string) {
	s.mu.Lock()
	s.activeID = id
	s.mu.Unlock()
}

// RecordOpened moves id to the front of the recent list, inserting it if
// needed and truncating to MaxRecent.
func (s *State) RecordOpened(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]string, 0, MaxRecent)
	next = append(next, id)
	for _, existing := range s.recent {
		if existing != id && len(next) < MaxRecent {
			next = append(next, existing)
		}
	}
	s.recent = next
}

// Recent returns the recent ids, most recent first.
func (s *State) Recent() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.recent))
	copy(out, s.recent)
	return out
}

// Forget purges ids from the recent list.
func (s *State) Forget(ids ...string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.recent[:0:0]
	for _, id := range s.recent {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	s.recent = kept
}

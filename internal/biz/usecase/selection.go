package usecase

import (
	"sync"
	"time"

	"github.com/kvantora/comment-bridge/internal/biz/domain"
)

// Selection is the post a user picked through a deep link
type Selection struct {
	Post       domain.PostRef
	SelectedAt time.Time
}

// SelectionStore keeps the pending post selection per user in memory.
// Selections do not survive a restart.
type SelectionStore struct {
	mu    sync.Mutex
	items map[int64]Selection
}

// NewSelectionStore creates an empty store
func NewSelectionStore() *SelectionStore {
	return &SelectionStore{items: make(map[int64]Selection)}
}

// Set replaces the user's selection
func (s *SelectionStore) Set(userID int64, post domain.PostRef, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[userID] = Selection{Post: post, SelectedAt: now}
}

// Get returns the user's selection
func (s *SelectionStore) Get(userID int64) (domain.PostRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sel, ok := s.items[userID]
	return sel.Post, ok
}

// Clear drops the user's selection
func (s *SelectionStore) Clear(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, userID)
}

// ExpireBefore drops selections made before the cutoff and returns how many were dropped
func (s *SelectionStore) ExpireBefore(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for userID, sel := range s.items {
		if sel.SelectedAt.Before(cutoff) {
			delete(s.items, userID)
			n++
		}
	}
	return n
}

// List returns a snapshot of all selections keyed by user id
func (s *SelectionStore) List() map[int64]Selection {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]Selection, len(s.items))
	for k, v := range s.items {
		out[k] = v
	}
	return out
}

// Count returns the number of pending selections
func (s *SelectionStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Package state holds the latest attribute values decoded from the bus.
// Values only ever enter through decoded frames, never from command
// parameters, so the registry reflects what the boards actually reported.
package state

import (
	"sort"
	"sync"

	"mqtt-cerebro-bridge/pkg/config"
)

// ChangeListener is notified once per attribute whose value changed
type ChangeListener func(board config.Board, attr, value string)

// Registry is the latest-known per-board attribute store
type Registry struct {
	mu       sync.RWMutex
	boards   map[string]map[string]string // board ID -> attr -> value
	listener ChangeListener
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		boards: make(map[string]map[string]string),
	}
}

// SetListener installs the change listener. Must be called before the
// registry receives traffic.
func (r *Registry) SetListener(l ChangeListener) {
	r.mu.Lock()
	r.listener = l
	r.mu.Unlock()
}

// Apply merges decoded attributes for a board and returns the attribute
// names whose values changed, sorted. The listener fires for changed
// attributes only; callers publish the full set regardless (retained state
// topics are refreshed on every poll).
func (r *Registry) Apply(board config.Board, attrs map[string]string) []string {
	if len(attrs) == 0 {
		return nil
	}

	r.mu.Lock()
	current := r.boards[board.ID]
	if current == nil {
		current = make(map[string]string)
		r.boards[board.ID] = current
	}

	var changed []string
	for attr, value := range attrs {
		if prev, seen := current[attr]; !seen || prev != value {
			current[attr] = value
			changed = append(changed, attr)
		}
	}
	listener := r.listener
	r.mu.Unlock()

	sort.Strings(changed)
	if listener != nil {
		for _, attr := range changed {
			listener(board, attr, attrs[attr])
		}
	}
	return changed
}

// Get returns the stored value of one attribute
func (r *Registry) Get(boardID, attr string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.boards[boardID][attr]
	return v, ok
}

// Snapshot returns a copy of a board's attributes
func (r *Registry) Snapshot(boardID string) map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	attrs := r.boards[boardID]
	if attrs == nil {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for k, v := range attrs {
		out[k] = v
	}
	return out
}

// Forget drops all state for a board, used when a board is removed from the
// configuration
func (r *Registry) Forget(boardID string) {
	r.mu.Lock()
	delete(r.boards, boardID)
	r.mu.Unlock()
}

package session

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tunedesk/tunedesk/internal/observability"
)

// MemoryStore keeps thread state in process memory. The default
// backend for the CLI and for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*State
}

// NewMemoryStore creates a new MemoryStore
func NewMemoryStore() *MemoryStore {
	observability.EnsureRegistered()
	return &MemoryStore{
		threads: make(map[string]*State),
	}
}

// Get returns the state for a thread, or a fresh empty state.
func (m *MemoryStore) Get(ctx context.Context, threadID string) (*State, error) {
	if threadID == "" {
		return nil, fmt.Errorf("thread id cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if state, ok := m.threads[threadID]; ok {
		return state.Clone(), nil
	}
	return NewState(threadID), nil
}

// Put saves the state for its thread.
func (m *MemoryStore) Put(ctx context.Context, state *State) error {
	if state == nil || state.ThreadID == "" {
		return fmt.Errorf("state must carry a thread id")
	}

	m.mu.Lock()
	m.threads[state.ThreadID] = state.Clone()
	total := len(m.threads)
	m.mu.Unlock()

	observability.SetActiveThreads(total)
	return nil
}

// List returns the known thread ids in stable order.
func (m *MemoryStore) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes a thread.
func (m *MemoryStore) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	delete(m.threads, threadID)
	total := len(m.threads)
	m.mu.Unlock()

	observability.SetActiveThreads(total)
	return nil
}

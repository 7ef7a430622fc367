// Package session holds per-thread conversation state and its
// persistence backends.
package session

import (
	"context"
	"time"

	"github.com/tunedesk/tunedesk/pkg/agent"
)

// State is everything the engine knows about one conversation thread.
// CustomerID and LoadedMemory persist across turns; RemainingSteps is
// reset by the engine at the start of each turn.
type State struct {
	ThreadID       string          `json:"thread_id"`
	CustomerID     string          `json:"customer_id,omitempty"`
	Messages       []agent.Message `json:"messages"`
	LoadedMemory   string          `json:"loaded_memory,omitempty"`
	RemainingSteps int             `json:"remaining_steps"`
	NextAgent      string          `json:"next_agent,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// NewState creates an empty state for a thread.
func NewState(threadID string) *State {
	return &State{
		ThreadID:  threadID,
		Messages:  []agent.Message{},
		UpdatedAt: time.Now(),
	}
}

// Clone returns a deep copy. Callers mutate clones, never the stored
// state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	dup := *s
	dup.Messages = make([]agent.Message, len(s.Messages))
	copy(dup.Messages, s.Messages)
	return &dup
}

// Store persists thread state between turns.
type Store interface {
	// Get returns the state for a thread, or a fresh empty state when
	// the thread is unknown.
	Get(ctx context.Context, threadID string) (*State, error)
	// Put saves the state for its thread.
	Put(ctx context.Context, state *State) error
	// List returns the known thread ids.
	List(ctx context.Context) ([]string, error)
	// Delete removes a thread.
	Delete(ctx context.Context, threadID string) error
}

package session

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedesk/tunedesk/pkg/agent"
)

func sampleState(threadID string) *State {
	state := NewState(threadID)
	state.CustomerID = "1"
	state.LoadedMemory = "I like U2"
	state.NextAgent = "music_catalog"
	state.Messages = []agent.Message{
		{Role: agent.RoleUser, Content: "What albums do you have by U2?"},
		{Role: agent.RoleAssistant, Content: "Achtung Baby and War."},
	}
	return state
}

func TestClone(t *testing.T) {
	t.Run("should not share message slices", func(t *testing.T) {
		original := sampleState("t1")
		clone := original.Clone()
		clone.Messages[0].Content = "changed"
		clone.Messages = append(clone.Messages, agent.Message{Role: agent.RoleUser, Content: "more"})

		assert.Equal(t, "What albums do you have by U2?", original.Messages[0].Content)
		assert.Len(t, original.Messages, 2)
	})

	t.Run("should handle nil", func(t *testing.T) {
		var s *State
		assert.Nil(t, s.Clone())
	})
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should return fresh state for unknown thread", func(t *testing.T) {
		s := NewMemoryStore()
		state, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, "missing", state.ThreadID)
		assert.Empty(t, state.Messages)
	})

	t.Run("should reject empty thread id", func(t *testing.T) {
		s := NewMemoryStore()
		_, err := s.Get(ctx, "")
		assert.Error(t, err)
	})

	t.Run("should round-trip state", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, sampleState("t1")))

		state, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "1", state.CustomerID)
		assert.Equal(t, "I like U2", state.LoadedMemory)
		assert.Len(t, state.Messages, 2)
	})

	t.Run("should isolate stored state from caller mutation", func(t *testing.T) {
		s := NewMemoryStore()
		state := sampleState("t1")
		require.NoError(t, s.Put(ctx, state))

		state.Messages[0].Content = "mutated after put"

		loaded, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "What albums do you have by U2?", loaded.Messages[0].Content)
	})

	t.Run("should list and delete threads", func(t *testing.T) {
		s := NewMemoryStore()
		require.NoError(t, s.Put(ctx, sampleState("b")))
		require.NoError(t, s.Put(ctx, sampleState("a")))

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids)

		require.NoError(t, s.Delete(ctx, "a"))
		ids, _ = s.List(ctx)
		assert.Equal(t, []string{"b"}, ids)
	})
}

func newTestJSONLStore(t *testing.T) *JSONLStore {
	t.Helper()
	s, err := NewJSONLStore(JSONLConfig{
		Dir:    t.TempDir(),
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)
	return s
}

func TestJSONLStore(t *testing.T) {
	ctx := context.Background()

	t.Run("should return fresh state for unknown thread", func(t *testing.T) {
		s := newTestJSONLStore(t)
		state, err := s.Get(ctx, "missing")
		require.NoError(t, err)
		assert.Equal(t, "missing", state.ThreadID)
	})

	t.Run("should round-trip state through disk", func(t *testing.T) {
		s := newTestJSONLStore(t)
		require.NoError(t, s.Put(ctx, sampleState("t1")))

		state, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "1", state.CustomerID)
		assert.Equal(t, "music_catalog", state.NextAgent)
		require.Len(t, state.Messages, 2)
		assert.Equal(t, agent.RoleAssistant, state.Messages[1].Role)
	})

	t.Run("should keep the latest snapshot", func(t *testing.T) {
		s := newTestJSONLStore(t)

		first := sampleState("t1")
		require.NoError(t, s.Put(ctx, first))

		second := first.Clone()
		second.Messages = append(second.Messages, agent.Message{
			Role: agent.RoleUser, Content: "And by Miles Davis?",
		})
		require.NoError(t, s.Put(ctx, second))

		state, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Len(t, state.Messages, 3)
	})

	t.Run("should skip corrupted lines", func(t *testing.T) {
		s := newTestJSONLStore(t)
		require.NoError(t, s.Put(ctx, sampleState("t1")))

		path := filepath.Join(s.dir, "t1.jsonl")
		f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
		require.NoError(t, err)
		_, err = f.WriteString("{not json\n")
		require.NoError(t, err)
		f.Close()

		state, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "1", state.CustomerID)
	})

	t.Run("should reject path traversal thread ids", func(t *testing.T) {
		s := newTestJSONLStore(t)
		_, err := s.Get(ctx, "../escape")
		assert.Error(t, err)
		err = s.Put(ctx, sampleState("a/b"))
		assert.Error(t, err)
	})

	t.Run("should compact to a single snapshot", func(t *testing.T) {
		s := newTestJSONLStore(t)
		state := sampleState("t1")
		require.NoError(t, s.Put(ctx, state))
		require.NoError(t, s.Put(ctx, state))
		require.NoError(t, s.Put(ctx, state))

		require.NoError(t, s.Compact(ctx, "t1"))

		data, err := os.ReadFile(filepath.Join(s.dir, "t1.jsonl"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, 1)

		loaded, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "1", loaded.CustomerID)
	})

	t.Run("should compact automatically after repeated saves", func(t *testing.T) {
		s := newTestJSONLStore(t)
		state := sampleState("t1")
		for i := 0; i < compactEvery; i++ {
			require.NoError(t, s.Put(ctx, state))
		}

		data, err := os.ReadFile(filepath.Join(s.dir, "t1.jsonl"))
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		assert.Len(t, lines, 1)

		loaded, err := s.Get(ctx, "t1")
		require.NoError(t, err)
		assert.Equal(t, "1", loaded.CustomerID)
	})

	t.Run("should list and delete threads", func(t *testing.T) {
		s := newTestJSONLStore(t)
		require.NoError(t, s.Put(ctx, sampleState("t1")))
		require.NoError(t, s.Put(ctx, sampleState("t2")))

		ids, err := s.List(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"t1", "t2"}, ids)

		require.NoError(t, s.Delete(ctx, "t1"))
		ids, _ = s.List(ctx)
		assert.Equal(t, []string{"t2"}, ids)
	})
}

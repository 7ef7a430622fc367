package tooldispatch

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T, timeout time.Duration) *Dispatcher {
	t.Helper()
	return New(Config{
		Timeout: timeout,
		Logger:  zerolog.Nop(),
	})
}

func echoDefinition() Definition {
	return Definition{
		Name:        "echo",
		Description: "Echoes back the input text",
		Parameters: []Parameter{
			{Name: "text", Type: "string", Description: "Text to echo", Required: true},
		},
		Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
			return params["text"].(string), nil
		},
	}
}

func TestRegister(t *testing.T) {
	t.Run("should register a valid tool", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		err := d.Register(echoDefinition())
		require.NoError(t, err)
		assert.NotNil(t, d.Get("echo"))
		assert.Contains(t, d.List(), "echo")
	})

	t.Run("should reject duplicate registration", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		require.NoError(t, d.Register(echoDefinition()))
		err := d.Register(echoDefinition())
		assert.ErrorContains(t, err, "already registered")
	})

	t.Run("should reject empty name", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		def := echoDefinition()
		def.Name = ""
		assert.Error(t, d.Register(def))
	})

	t.Run("should reject nil handler", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		def := echoDefinition()
		def.Handler = nil
		assert.Error(t, d.Register(def))
	})

	t.Run("should reject invalid parameter type", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		def := echoDefinition()
		def.Parameters[0].Type = "text"
		assert.Error(t, d.Register(def))
	})
}

func TestInvoke(t *testing.T) {
	t.Run("should run a tool and return its output", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		require.NoError(t, d.Register(echoDefinition()))

		res := d.Invoke(context.Background(), Invocation{
			ID:         "call_1",
			Name:       "echo",
			Parameters: map[string]interface{}{"text": "hello"},
		})

		assert.False(t, res.IsError)
		assert.Equal(t, "hello", res.Output)
		assert.Equal(t, "call_1", res.CallID)
		assert.Equal(t, "echo", res.Name)
	})

	t.Run("should generate a call id when missing", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		require.NoError(t, d.Register(echoDefinition()))

		res := d.Invoke(context.Background(), Invocation{
			Name:       "echo",
			Parameters: map[string]interface{}{"text": "hello"},
		})

		assert.NotEmpty(t, res.CallID)
	})

	t.Run("should flag unknown tool as error result", func(t *testing.T) {
		d := newTestDispatcher(t, 0)

		res := d.Invoke(context.Background(), Invocation{ID: "x", Name: "missing"})

		assert.True(t, res.IsError)
		assert.Contains(t, res.Output, "tool not found")
	})

	t.Run("should flag invalid arguments as error result", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		require.NoError(t, d.Register(echoDefinition()))

		res := d.Invoke(context.Background(), Invocation{
			ID:         "x",
			Name:       "echo",
			Parameters: map[string]interface{}{},
		})

		assert.True(t, res.IsError)
		assert.Contains(t, res.Output, "invalid arguments")
	})

	t.Run("should flag handler error as error result", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		require.NoError(t, d.Register(Definition{
			Name:        "boom",
			Description: "Always fails",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				return "", fmt.Errorf("database unavailable")
			},
		}))

		res := d.Invoke(context.Background(), Invocation{ID: "x", Name: "boom"})

		assert.True(t, res.IsError)
		assert.Contains(t, res.Output, "database unavailable")
	})

	t.Run("should recover from a panicking handler", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		require.NoError(t, d.Register(Definition{
			Name:        "panic",
			Description: "Always panics",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				panic("bad index")
			},
		}))

		res := d.Invoke(context.Background(), Invocation{ID: "x", Name: "panic"})

		assert.True(t, res.IsError)
		assert.Contains(t, res.Output, "panicked")
	})

	t.Run("should time out slow handlers", func(t *testing.T) {
		d := newTestDispatcher(t, 50*time.Millisecond)
		require.NoError(t, d.Register(Definition{
			Name:        "slow",
			Description: "Sleeps past the timeout",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				time.Sleep(500 * time.Millisecond)
				return "done", nil
			},
		}))

		res := d.Invoke(context.Background(), Invocation{ID: "x", Name: "slow"})

		assert.True(t, res.IsError)
		assert.Contains(t, res.Output, "timed out")
	})
}

func TestDispatchAll(t *testing.T) {
	t.Run("should run a batch concurrently and preserve order", func(t *testing.T) {
		d := newTestDispatcher(t, time.Second)
		require.NoError(t, d.Register(Definition{
			Name:        "sleepy_echo",
			Description: "Echoes text after a short sleep",
			Parameters: []Parameter{
				{Name: "text", Type: "string", Description: "Text to echo", Required: true},
			},
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				time.Sleep(100 * time.Millisecond)
				return params["text"].(string), nil
			},
		}))

		invs := make([]Invocation, 4)
		for i := range invs {
			invs[i] = Invocation{
				ID:         fmt.Sprintf("call_%d", i),
				Name:       "sleepy_echo",
				Parameters: map[string]interface{}{"text": fmt.Sprintf("out_%d", i)},
			}
		}

		start := time.Now()
		results := d.DispatchAll(context.Background(), invs)
		elapsed := time.Since(start)

		require.Len(t, results, 4)
		for i, res := range results {
			assert.Equal(t, fmt.Sprintf("call_%d", i), res.CallID)
			assert.Equal(t, fmt.Sprintf("out_%d", i), res.Output)
		}
		// Sequential execution would take 400ms+.
		assert.Less(t, elapsed, 350*time.Millisecond)
	})

	t.Run("should isolate failures inside a batch", func(t *testing.T) {
		d := newTestDispatcher(t, time.Second)
		require.NoError(t, d.Register(echoDefinition()))
		require.NoError(t, d.Register(Definition{
			Name:        "boom",
			Description: "Always fails",
			Handler: func(ctx context.Context, params map[string]interface{}) (string, error) {
				return "", fmt.Errorf("boom")
			},
		}))

		results := d.DispatchAll(context.Background(), []Invocation{
			{ID: "a", Name: "echo", Parameters: map[string]interface{}{"text": "ok"}},
			{ID: "b", Name: "boom"},
			{ID: "c", Name: "echo", Parameters: map[string]interface{}{"text": "still ok"}},
		})

		require.Len(t, results, 3)
		assert.False(t, results[0].IsError)
		assert.True(t, results[1].IsError)
		assert.False(t, results[2].IsError)
		assert.Equal(t, "still ok", results[2].Output)
	})

	t.Run("should return nil for empty batch", func(t *testing.T) {
		d := newTestDispatcher(t, 0)
		assert.Nil(t, d.DispatchAll(context.Background(), nil))
	})
}

func TestInputSchema(t *testing.T) {
	t.Run("should render required and optional parameters", func(t *testing.T) {
		def := Definition{
			Name:        "search",
			Description: "Search for things",
			Parameters: []Parameter{
				{Name: "query", Type: "string", Description: "Search query", Required: true},
				{Name: "limit", Type: "integer", Description: "Max results"},
			},
		}

		schema := def.InputSchema()

		assert.Equal(t, "object", schema["type"])
		props := schema["properties"].(map[string]interface{})
		assert.Contains(t, props, "query")
		assert.Contains(t, props, "limit")
		required := schema["required"].([]string)
		assert.Equal(t, []string{"query"}, required)
	})

	t.Run("should omit required key when nothing is required", func(t *testing.T) {
		def := Definition{Name: "noop", Description: "No parameters"}
		schema := def.InputSchema()
		_, ok := schema["required"]
		assert.False(t, ok)
		assert.False(t, strings.Contains(fmt.Sprint(schema), "required"))
	})
}

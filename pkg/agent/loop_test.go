package agent

import (
	"context"
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
)

// scriptedProvider replays a fixed sequence of responses, failing
// each call errBeforeSuccess times first.
type scriptedProvider struct {
	responses        []*Response
	calls            int
	errBeforeSuccess int
	err              error
	requests         []Request
}

func (p *scriptedProvider) Call(ctx context.Context, req Request) (*Response, error) {
	p.requests = append(p.requests, req)
	p.calls++
	if p.errBeforeSuccess > 0 {
		p.errBeforeSuccess--
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return nil, fmt.Errorf("scripted provider exhausted")
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) Provider() string { return "scripted" }

// recordingRunner answers every invocation with a canned output.
type recordingRunner struct {
	batches [][]tooldispatch.Invocation
	output  string
}

func (r *recordingRunner) DispatchAll(ctx context.Context, invs []tooldispatch.Invocation) []tooldispatch.Result {
	r.batches = append(r.batches, invs)
	results := make([]tooldispatch.Result, len(invs))
	for i, inv := range invs {
		results[i] = tooldispatch.Result{CallID: inv.ID, Name: inv.Name, Output: r.output}
	}
	return results
}

func newTestLoop(t *testing.T, provider Provider, runner ToolRunner) *Loop {
	t.Helper()
	tools := []ToolSpec{}
	if runner != nil {
		tools = append(tools, ToolSpec{
			Name:        "lookup",
			Description: "Looks things up",
			InputSchema: map[string]interface{}{"type": "object"},
		})
	}
	loop, err := NewLoop(LoopConfig{
		Name:     "test_agent",
		Provider: provider,
		Runner:   runner,
		Tools:    tools,
		Model:    "test-model",
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, err)
	return loop
}

func TestNewLoop(t *testing.T) {
	t.Run("should require a name", func(t *testing.T) {
		_, err := NewLoop(LoopConfig{Provider: &scriptedProvider{}, Model: "m"})
		assert.ErrorContains(t, err, "name is required")
	})

	t.Run("should require a provider", func(t *testing.T) {
		_, err := NewLoop(LoopConfig{Name: "a", Model: "m"})
		assert.ErrorContains(t, err, "provider is required")
	})

	t.Run("should require a runner when tools are configured", func(t *testing.T) {
		_, err := NewLoop(LoopConfig{
			Name:     "a",
			Provider: &scriptedProvider{},
			Model:    "m",
			Tools:    []ToolSpec{{Name: "x"}},
		})
		assert.ErrorContains(t, err, "runner is required")
	})
}

func TestLoopRun(t *testing.T) {
	t.Run("should finish immediately on a plain text reply", func(t *testing.T) {
		provider := &scriptedProvider{responses: []*Response{
			{Content: "The Beatles released Abbey Road in 1969."},
		}}
		loop := newTestLoop(t, provider, nil)

		outcome, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "When was Abbey Road released?"},
		}, 10)

		require.NoError(t, err)
		assert.Equal(t, "The Beatles released Abbey Road in 1969.", outcome.FinalContent)
		assert.Equal(t, 9, outcome.RemainingSteps)
		assert.False(t, outcome.BudgetExhausted)
		require.Len(t, outcome.Messages, 1)
		assert.Equal(t, RoleAssistant, outcome.Messages[0].Role)
	})

	t.Run("should run tools and feed results back to the model", func(t *testing.T) {
		provider := &scriptedProvider{responses: []*Response{
			{ToolCalls: []ToolCall{{
				ID:         "call_1",
				Name:       "lookup",
				Parameters: map[string]interface{}{"artist": "U2"},
			}}},
			{Content: "U2 has 2 albums in the catalog."},
		}}
		runner := &recordingRunner{output: "[{'Title': 'Achtung Baby'}]"}
		loop := newTestLoop(t, provider, runner)

		outcome, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "What albums do you have by U2?"},
		}, 10)

		require.NoError(t, err)
		assert.Equal(t, "U2 has 2 albums in the catalog.", outcome.FinalContent)
		assert.Equal(t, 8, outcome.RemainingSteps)

		// tool-call message, tool result, final reply
		require.Len(t, outcome.Messages, 3)
		assert.Equal(t, RoleAssistant, outcome.Messages[0].Role)
		assert.Equal(t, RoleTool, outcome.Messages[1].Role)
		assert.Equal(t, "call_1", outcome.Messages[1].ToolCallID)
		assert.Equal(t, "[{'Title': 'Achtung Baby'}]", outcome.Messages[1].Content)
		assert.Equal(t, RoleAssistant, outcome.Messages[2].Role)

		require.Len(t, runner.batches, 1)
		assert.Equal(t, "lookup", runner.batches[0][0].Name)

		// second model call must see the tool result
		require.Len(t, provider.requests, 2)
		second := provider.requests[1]
		assert.Equal(t, RoleTool, second.Messages[len(second.Messages)-1].Role)
	})

	t.Run("should dispatch parallel tool calls as one batch", func(t *testing.T) {
		provider := &scriptedProvider{responses: []*Response{
			{ToolCalls: []ToolCall{
				{ID: "call_1", Name: "lookup", Parameters: map[string]interface{}{"artist": "U2"}},
				{ID: "call_2", Name: "lookup", Parameters: map[string]interface{}{"artist": "Miles Davis"}},
			}},
			{Content: "Found both."},
		}}
		runner := &recordingRunner{output: "[]"}
		loop := newTestLoop(t, provider, runner)

		outcome, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "Compare U2 and Miles Davis."},
		}, 10)

		require.NoError(t, err)
		require.Len(t, runner.batches, 1)
		assert.Len(t, runner.batches[0], 2)
		// one tool-call message, two tool results, one final reply
		assert.Len(t, outcome.Messages, 4)
	})

	t.Run("should close the turn with a notice when the budget runs out", func(t *testing.T) {
		// Every response requests another tool call, so the loop can
		// only stop via the budget.
		responses := make([]*Response, 5)
		for i := range responses {
			responses[i] = &Response{ToolCalls: []ToolCall{{
				ID:   fmt.Sprintf("call_%d", i),
				Name: "lookup",
			}}}
		}
		provider := &scriptedProvider{responses: responses}
		runner := &recordingRunner{output: "[]"}
		loop := newTestLoop(t, provider, runner)

		outcome, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "loop forever"},
		}, 3)

		require.NoError(t, err)
		assert.True(t, outcome.BudgetExhausted)
		assert.Equal(t, 0, outcome.RemainingSteps)
		assert.Equal(t, "Sorry, need more steps to process this request.", outcome.FinalContent)
		assert.Equal(t, 3, provider.calls)
	})

	t.Run("should close the turn immediately with zero budget", func(t *testing.T) {
		provider := &scriptedProvider{responses: []*Response{{Content: "never called"}}}
		loop := newTestLoop(t, provider, nil)

		outcome, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "hi"},
		}, 0)

		require.NoError(t, err)
		assert.True(t, outcome.BudgetExhausted)
		assert.Equal(t, 0, provider.calls)
	})

	t.Run("should retry transient model errors", func(t *testing.T) {
		provider := &scriptedProvider{
			responses:        []*Response{{Content: "recovered"}},
			errBeforeSuccess: 1,
			err:              fmt.Errorf("rate limit exceeded"),
		}
		loop := newTestLoop(t, provider, nil)

		outcome, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "hi"},
		}, 10)

		require.NoError(t, err)
		assert.Equal(t, "recovered", outcome.FinalContent)
		assert.Equal(t, 2, provider.calls)
	})

	t.Run("should not retry permanent model errors", func(t *testing.T) {
		provider := &scriptedProvider{
			errBeforeSuccess: 3,
			err:              fmt.Errorf("invalid api key"),
		}
		loop := newTestLoop(t, provider, nil)

		_, err := loop.Run(context.Background(), []Message{
			{Role: RoleUser, Content: "hi"},
		}, 10)

		require.Error(t, err)
		assert.Equal(t, 1, provider.calls)
	})

	t.Run("should not mutate the caller's history", func(t *testing.T) {
		provider := &scriptedProvider{responses: []*Response{{Content: "done"}}}
		loop := newTestLoop(t, provider, nil)

		history := []Message{{Role: RoleUser, Content: "hi"}}
		_, err := loop.Run(context.Background(), history, 10)

		require.NoError(t, err)
		assert.Len(t, history, 1)
	})
}

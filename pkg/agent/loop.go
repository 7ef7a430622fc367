package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/internal/tracing"
	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
)

// loopState tracks where a turn is inside the tool-call loop.
type loopState int

const (
	stateAskModel loopState = iota
	stateRunTools
	stateDone
)

// budgetNotice is the assistant reply emitted when a turn runs out of
// steps before the model produces a final answer.
const budgetNotice = "Sorry, need more steps to process this request."

// ToolRunner executes a batch of tool invocations. Implemented by
// tooldispatch.Dispatcher.
type ToolRunner interface {
	DispatchAll(ctx context.Context, invs []tooldispatch.Invocation) []tooldispatch.Result
}

// Loop drives one agent through the ask-model / run-tools cycle until
// the model answers in plain text or the step budget runs out.
type Loop struct {
	name         string
	provider     Provider
	runner       ToolRunner
	tools        []ToolSpec
	model        string
	temperature  float64
	maxTokens    int
	systemPrompt string
	maxRetries   int
	callTimeout  time.Duration
	logger       zerolog.Logger
}

// LoopConfig holds configuration for a Loop
type LoopConfig struct {
	// Name identifies the agent in logs, traces and metrics.
	Name     string
	Provider Provider
	// Runner may be nil when Tools is empty.
	Runner       ToolRunner
	Tools        []ToolSpec
	Model        string
	Temperature  float64
	MaxTokens    int
	SystemPrompt string
	// MaxRetries bounds retries on transient model errors. Zero means 3.
	MaxRetries int
	// CallTimeout bounds a single model call. Zero means 60s.
	CallTimeout time.Duration
	Logger      zerolog.Logger
}

// Outcome is the result of running one turn through the loop.
type Outcome struct {
	// Messages holds the messages appended during this turn, in order:
	// assistant tool-call messages, tool results, and the final reply.
	Messages []Message
	// FinalContent is the text of the closing assistant message.
	FinalContent string
	// RemainingSteps is the budget left after this turn.
	RemainingSteps int
	// BudgetExhausted reports whether the turn was cut off by the
	// step budget rather than finished by the model.
	BudgetExhausted bool
}

// NewLoop creates a new Loop
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("agent name is required")
	}
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if len(cfg.Tools) > 0 && cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required when tools are configured")
	}

	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 60 * time.Second
	}

	observability.EnsureRegistered()

	return &Loop{
		name:         cfg.Name,
		provider:     cfg.Provider,
		runner:       cfg.Runner,
		tools:        cfg.Tools,
		model:        cfg.Model,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		systemPrompt: cfg.SystemPrompt,
		maxRetries:   maxRetries,
		callTimeout:  callTimeout,
		logger:       cfg.Logger,
	}, nil
}

// Name returns the agent name
func (l *Loop) Name() string {
	return l.name
}

// WithSystemPrompt returns a copy of the loop using the given system
// prompt. Used to re-render per-customer context into the prompt on
// every turn.
func (l *Loop) WithSystemPrompt(prompt string) *Loop {
	dup := *l
	dup.systemPrompt = prompt
	return &dup
}

// Run executes one turn. The conversation history goes in, the
// messages produced by this turn come out. Each model call consumes
// one step from remainingSteps; when the budget hits zero before the
// model finishes, the loop closes the turn with a budget notice
// instead of calling the model again.
func (l *Loop) Run(ctx context.Context, history []Message, remainingSteps int) (*Outcome, error) {
	ctx = tracing.WithAgentName(ctx, l.name)
	ctx, span := tracing.StartSpan(ctx, "tunedesk.agent", "agent.run")
	defer span.End()

	logger := tracing.LoggerFromContext(ctx, l.logger)
	logger.Debug().
		Int("history_len", len(history)).
		Int("remaining_steps", remainingSteps).
		Msg("Agent turn started")

	messages := make([]Message, len(history))
	copy(messages, history)

	outcome := &Outcome{RemainingSteps: remainingSteps}
	state := stateAskModel
	iterations := 0

	for state != stateDone {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		switch state {
		case stateAskModel:
			if outcome.RemainingSteps <= 0 {
				logger.Warn().Msg("Step budget exhausted")
				observability.RecordBudgetExhausted()
				notice := Message{Role: RoleAssistant, Content: budgetNotice}
				messages = append(messages, notice)
				outcome.Messages = append(outcome.Messages, notice)
				outcome.FinalContent = budgetNotice
				outcome.BudgetExhausted = true
				state = stateDone
				continue
			}

			resp, err := l.callModelWithRetry(ctx, messages)
			if err != nil {
				span.RecordError(err)
				return nil, fmt.Errorf("model call failed: %w", err)
			}

			outcome.RemainingSteps--
			iterations++

			reply := Message{
				Role:      RoleAssistant,
				Content:   resp.Content,
				ToolCalls: resp.ToolCalls,
			}
			messages = append(messages, reply)
			outcome.Messages = append(outcome.Messages, reply)

			if resp.IsFinal() {
				outcome.FinalContent = resp.Content
				state = stateDone
			} else {
				state = stateRunTools
			}

		case stateRunTools:
			if l.runner == nil {
				err := fmt.Errorf("model requested tools but none are configured")
				span.RecordError(err)
				return nil, err
			}
			last := messages[len(messages)-1]
			invs := make([]tooldispatch.Invocation, 0, len(last.ToolCalls))
			for _, call := range last.ToolCalls {
				invs = append(invs, tooldispatch.Invocation{
					ID:         call.ID,
					Name:       call.Name,
					Parameters: call.Parameters,
				})
			}

			logger.Debug().Int("tool_calls", len(invs)).Msg("Dispatching tool calls")

			for _, res := range l.runner.DispatchAll(ctx, invs) {
				toolMsg := Message{
					Role:       RoleTool,
					Content:    res.Output,
					ToolCallID: res.CallID,
				}
				messages = append(messages, toolMsg)
				outcome.Messages = append(outcome.Messages, toolMsg)
			}

			state = stateAskModel
		}
	}

	observability.RecordLoopIterations(iterations)
	logger.Debug().
		Int("iterations", iterations).
		Int("remaining_steps", outcome.RemainingSteps).
		Bool("budget_exhausted", outcome.BudgetExhausted).
		Msg("Agent turn finished")

	return outcome, nil
}

// callModelWithRetry calls the provider, retrying transient failures
// with exponential backoff (1s, 2s, 4s, ...).
func (l *Loop) callModelWithRetry(ctx context.Context, messages []Message) (*Response, error) {
	req := Request{
		Model:        l.model,
		Messages:     messages,
		Tools:        l.tools,
		Temperature:  l.temperature,
		MaxTokens:    l.maxTokens,
		SystemPrompt: l.systemPrompt,
	}

	var lastErr error
	for attempt := 0; attempt < l.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			l.logger.Warn().
				Int("attempt", attempt+1).
				Dur("backoff", backoff).
				Err(lastErr).
				Msg("Retrying model call")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
		start := time.Now()
		resp, err := l.provider.Call(callCtx, req)
		duration := time.Since(start)
		cancel()

		if err == nil {
			observability.RecordModelCall(l.provider.Provider(), duration, true)
			return resp, nil
		}

		observability.RecordModelCall(l.provider.Provider(), duration, false)
		lastErr = err

		if !IsRetryableError(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("model call failed after %d attempts: %w", l.maxRetries, lastErr)
}

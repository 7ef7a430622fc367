package supervisor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/internal/tracing"
	"github.com/tunedesk/tunedesk/pkg/agent"
	"github.com/tunedesk/tunedesk/pkg/identity"
	"github.com/tunedesk/tunedesk/pkg/preferences"
	"github.com/tunedesk/tunedesk/pkg/session"
	"github.com/tunedesk/tunedesk/pkg/tooldispatch"
	"github.com/tunedesk/tunedesk/pkg/tools"
)

// Engine runs complete customer turns: it resolves who is talking,
// loads what we know about them, routes to a sub-agent, drives that
// agent's tool-call loop, and persists what came out.
type Engine struct {
	router     *Router
	resolver   *identity.Resolver
	prefs      *preferences.Store
	sessions   session.Store
	loops      map[string]*agent.Loop
	stepBudget int
	logger     zerolog.Logger
}

// Config holds engine configuration
type Config struct {
	Provider    agent.Provider
	Dispatcher  *tooldispatch.Dispatcher
	Resolver    *identity.Resolver
	Prefs       *preferences.Store
	Sessions    session.Store
	Model       string
	Temperature float64
	MaxTokens   int
	// StepBudget is the per-turn model-call budget handed to the
	// sub-agent loop. Zero means 10.
	StepBudget  int
	MaxRetries  int
	CallTimeout time.Duration
	Logger      zerolog.Logger
}

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	ThreadID   string `json:"thread_id"`
	CustomerID string `json:"customer_id,omitempty"`
	AgentName  string `json:"agent_name"`
	Message    string `json:"message"`
}

// New creates a new Engine
func New(cfg Config) (*Engine, error) {
	if cfg.Provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if cfg.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if cfg.Prefs == nil {
		return nil, fmt.Errorf("preference store is required")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	stepBudget := cfg.StepBudget
	if stepBudget <= 0 {
		stepBudget = 10
	}

	observability.EnsureRegistered()

	loops := make(map[string]*agent.Loop, 2)
	for name, toolNames := range map[string][]string{
		AgentMusic:   tools.MusicToolNames(),
		AgentInvoice: tools.InvoiceToolNames(),
	} {
		loop, err := agent.NewLoop(agent.LoopConfig{
			Name:        name,
			Provider:    cfg.Provider,
			Runner:      cfg.Dispatcher,
			Tools:       toolSpecs(cfg.Dispatcher.Definitions(toolNames...)),
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			MaxRetries:  cfg.MaxRetries,
			CallTimeout: cfg.CallTimeout,
			Logger:      cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to build %s agent: %w", name, err)
		}
		loops[name] = loop
	}

	return &Engine{
		router: NewRouter(RouterConfig{
			Provider: cfg.Provider,
			Model:    cfg.Model,
			Logger:   cfg.Logger,
		}),
		resolver:   cfg.Resolver,
		prefs:      cfg.Prefs,
		sessions:   cfg.Sessions,
		loops:      loops,
		stepBudget: stepBudget,
		logger:     cfg.Logger,
	}, nil
}

// Turn processes one customer message on a thread and returns the
// assistant's answer. customerID may be empty; identity is then
// resolved from the conversation if possible.
func (e *Engine) Turn(ctx context.Context, threadID, message, customerID string) (*TurnResult, error) {
	ctx = tracing.WithThreadID(ctx, threadID)
	ctx, span := tracing.StartSpan(
		ctx,
		"tunedesk.supervisor",
		"supervisor.turn",
		attribute.String("thread_id", threadID),
	)
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, e.logger)
	start := time.Now()

	if message == "" {
		return nil, fmt.Errorf("message cannot be empty")
	}

	state, err := e.sessions.Get(ctx, threadID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	state.Messages = append(state.Messages, agent.Message{
		Role:    agent.RoleUser,
		Content: message,
	})

	if customerID != "" {
		state.CustomerID = customerID
	} else if state.CustomerID == "" {
		if id, ok := e.resolver.Resolve(ctx, state.Messages); ok {
			state.CustomerID = id
		}
	}

	memory := e.prefs.Load(state.CustomerID)
	state.LoadedMemory = memory
	state.RemainingSteps = e.stepBudget

	agentName := e.router.Route(ctx, message)
	state.NextAgent = agentName
	logger.Info().
		Str("agent", agentName).
		Str("customer_id", state.CustomerID).
		Msg("Turn routed")

	loop := e.loops[agentName].WithSystemPrompt(
		renderPrompt(promptFor(agentName), map[string]string{"memory": memory}),
	)

	outcome, err := loop.Run(ctx, state.Messages, state.RemainingSteps)
	if err != nil {
		span.RecordError(err)
		observability.RecordTurn(agentName, time.Since(start), false)
		return nil, fmt.Errorf("agent turn failed: %w", err)
	}

	state.Messages = append(state.Messages, outcome.Messages...)
	state.RemainingSteps = outcome.RemainingSteps
	state.UpdatedAt = time.Now()

	if state.CustomerID != "" {
		if extracted := preferences.Extract(message); extracted != "" {
			e.prefs.Save(state.CustomerID, extracted)
			state.LoadedMemory = extracted
		}
	}

	if err := e.sessions.Put(ctx, state); err != nil {
		span.RecordError(err)
		observability.RecordTurn(agentName, time.Since(start), false)
		return nil, fmt.Errorf("failed to save thread: %w", err)
	}

	observability.RecordTurn(agentName, time.Since(start), true)
	logger.Info().
		Str("agent", agentName).
		Dur("duration", time.Since(start)).
		Bool("budget_exhausted", outcome.BudgetExhausted).
		Msg("Turn completed")

	return &TurnResult{
		ThreadID:   threadID,
		CustomerID: state.CustomerID,
		AgentName:  agentName,
		Message:    outcome.FinalContent,
	}, nil
}

// History returns the conversation history for a thread.
func (e *Engine) History(ctx context.Context, threadID string) (*session.State, error) {
	return e.sessions.Get(ctx, threadID)
}

// DeleteConversation removes a thread and its stored history. Stored
// preferences survive; they belong to the customer, not the thread.
func (e *Engine) DeleteConversation(ctx context.Context, threadID string) error {
	e.logger.Info().Str("thread_id", threadID).Msg("Deleting conversation")
	return e.sessions.Delete(ctx, threadID)
}

func promptFor(agentName string) string {
	if agentName == AgentInvoice {
		return invoicePrompt
	}
	return musicPrompt
}

func toolSpecs(defs []tooldispatch.Definition) []agent.ToolSpec {
	specs := make([]agent.ToolSpec, 0, len(defs))
	for _, def := range defs {
		specs = append(specs, agent.ToolSpec{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema(),
		})
	}
	return specs
}

package supervisor

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/internal/tracing"
	"github.com/tunedesk/tunedesk/pkg/agent"
)

// Routing tiers, used as metric labels.
const (
	tierKeyword = "keyword"
	tierModel   = "model"
	tierDefault = "default"
)

var invoiceKeywords = []string{
	"invoice", "purchase", "bill", "payment", "order", "transaction", "paid",
}

var musicKeywords = []string{
	"album", "song", "artist", "track", "music", "genre", "playlist",
}

// Router decides which sub-agent handles a customer message. The
// keyword tier settles unambiguous messages for free; everything else
// costs one constrained model call.
type Router struct {
	provider agent.Provider
	model    string
	logger   zerolog.Logger
}

// RouterConfig holds router configuration
type RouterConfig struct {
	Provider agent.Provider
	Model    string
	Logger   zerolog.Logger
}

// NewRouter creates a new Router
func NewRouter(cfg RouterConfig) *Router {
	observability.EnsureRegistered()
	return &Router{
		provider: cfg.Provider,
		model:    cfg.Model,
		logger:   cfg.Logger,
	}
}

// Route picks the sub-agent for a message. Routing is re-evaluated on
// every turn; a thread can switch agents mid-conversation.
func (r *Router) Route(ctx context.Context, message string) string {
	ctx, span := tracing.StartSpan(ctx, "tunedesk.supervisor", "supervisor.route")
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	lower := strings.ToLower(message)
	invoiceHit := containsAny(lower, invoiceKeywords)
	musicHit := containsAny(lower, musicKeywords)

	if invoiceHit != musicHit {
		name := AgentMusic
		if invoiceHit {
			name = AgentInvoice
		}
		logger.Debug().Str("agent", name).Msg("Routed by keyword")
		observability.RecordRoutingDecision(name, tierKeyword)
		return name
	}

	name, tier := r.routeByModel(ctx, message)
	logger.Debug().Str("agent", name).Str("tier", tier).Msg("Routed by model")
	observability.RecordRoutingDecision(name, tier)
	return name
}

// routeByModel asks the model for a single digit. Anything that fails
// or comes back unparseable falls through to the music agent.
func (r *Router) routeByModel(ctx context.Context, message string) (string, string) {
	start := time.Now()
	resp, err := r.provider.Call(ctx, agent.Request{
		Model:       r.model,
		Messages:    []agent.Message{{Role: agent.RoleUser, Content: renderPrompt(routingPrompt, map[string]string{"message": message})}},
		Temperature: 0,
		MaxTokens:   8,
	})
	if err != nil {
		observability.RecordModelCall(r.provider.Provider(), time.Since(start), false)
		r.logger.Warn().Err(err).Msg("Routing model call failed, defaulting to music")
		return AgentMusic, tierDefault
	}
	observability.RecordModelCall(r.provider.Provider(), time.Since(start), true)

	for _, c := range resp.Content {
		switch c {
		case '1':
			return AgentMusic, tierModel
		case '2':
			return AgentInvoice, tierModel
		}
	}
	return AgentMusic, tierDefault
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

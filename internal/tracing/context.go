package tracing

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// ThreadIDKey is the context key for conversation thread ID
	ThreadIDKey ContextKey = "thread_id"
	// AgentNameKey is the context key for the active sub-agent name
	AgentNameKey ContextKey = "agent_name"
)

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithThreadID adds a conversation thread ID to the context
func WithThreadID(ctx context.Context, threadID string) context.Context {
	return context.WithValue(ctx, ThreadIDKey, threadID)
}

// WithAgentName adds the active sub-agent name to the context
func WithAgentName(ctx context.Context, agentName string) context.Context {
	return context.WithValue(ctx, AgentNameKey, agentName)
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// GetThreadID retrieves the conversation thread ID from the context
func GetThreadID(ctx context.Context) string {
	if threadID, ok := ctx.Value(ThreadIDKey).(string); ok {
		return threadID
	}
	return ""
}

// GetAgentName retrieves the active sub-agent name from the context
func GetAgentName(ctx context.Context) string {
	if agentName, ok := ctx.Value(AgentNameKey).(string); ok {
		return agentName
	}
	return ""
}

// NewRequestContext creates a new context for an inbound turn with a fresh trace ID.
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// LoggerFromContext returns a logger enriched with whatever tracing
// fields are present on the context.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	logCtx := base.With()
	if traceID := GetTraceID(ctx); traceID != "" {
		logCtx = logCtx.Str("trace_id", traceID)
	}
	if threadID := GetThreadID(ctx); threadID != "" {
		logCtx = logCtx.Str("thread_id", threadID)
	}
	if agentName := GetAgentName(ctx); agentName != "" {
		logCtx = logCtx.Str("agent", agentName)
	}
	return logCtx.Logger()
}

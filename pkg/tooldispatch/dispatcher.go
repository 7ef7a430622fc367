package tooldispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/tunedesk/tunedesk/internal/observability"
	"github.com/tunedesk/tunedesk/internal/tracing"
)

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Definition defines a tool's metadata and handler
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
}

// Handler is the function signature for tool execution. The returned
// string is the tool output handed back to the model.
type Handler func(ctx context.Context, params map[string]interface{}) (string, error)

// Invocation is one tool call requested by the model
type Invocation struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// Result is the outcome of one invocation. IsError marks validation or
// execution failures; the output then carries a human-readable message
// so the model can recover instead of the loop crashing.
type Result struct {
	CallID  string `json:"call_id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}

// Dispatcher holds the static tool table and executes invocations
// against it. Dispatch is by name lookup only.
type Dispatcher struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	timeout time.Duration
	logger  zerolog.Logger
	mu      sync.RWMutex
}

// Config holds dispatcher configuration
type Config struct {
	// Timeout bounds a single tool invocation. Zero means 30s.
	Timeout time.Duration
	Logger  zerolog.Logger
}

// New creates a new Dispatcher
func New(cfg Config) *Dispatcher {
	observability.EnsureRegistered()

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Dispatcher{
		tools:   make(map[string]*Definition),
		schemas: make(map[string]*gojsonschema.Schema),
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Register registers a new tool
func (d *Dispatcher) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(def.InputSchema()))
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.tools[def.Name]; exists {
		return fmt.Errorf("tool already registered: %s", def.Name)
	}

	d.tools[def.Name] = &def
	d.schemas[def.Name] = schema

	d.logger.Info().Str("tool", def.Name).Msg("Tool registered")

	return nil
}

// Get returns a tool definition by name
func (d *Dispatcher) Get(name string) *Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.tools[name]
}

// Definitions returns the definitions for the named tools, skipping
// unknown names.
func (d *Dispatcher) Definitions(names ...string) []Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()

	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		if def, ok := d.tools[name]; ok {
			defs = append(defs, *def)
		}
	}
	return defs
}

// List returns all registered tool names
func (d *Dispatcher) List() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.tools))
	for name := range d.tools {
		names = append(names, name)
	}
	return names
}

// Invoke executes a single invocation. Validation failures, handler
// errors, panics, and timeouts all come back as an error-flagged
// Result, never as a raised error.
func (d *Dispatcher) Invoke(ctx context.Context, inv Invocation) Result {
	ctx, span := tracing.StartSpan(ctx, "tunedesk.tooldispatch", "tool.invoke")
	defer span.End()
	start := time.Now()

	if inv.ID == "" {
		if id, err := gonanoid.New(); err == nil {
			inv.ID = id
		}
	}

	d.mu.RLock()
	tool := d.tools[inv.Name]
	schema := d.schemas[inv.Name]
	d.mu.RUnlock()

	if tool == nil {
		d.logger.Error().Str("tool", inv.Name).Msg("Tool not found")
		observability.RecordToolInvocation(inv.Name, time.Since(start), false)
		return Result{
			CallID:  inv.ID,
			Name:    inv.Name,
			Output:  fmt.Sprintf("Error: tool not found: %s", inv.Name),
			IsError: true,
		}
	}

	if err := validateParameters(schema, inv.Parameters); err != nil {
		d.logger.Warn().Str("tool", inv.Name).Err(err).Msg("Parameter validation failed")
		observability.RecordToolInvocation(inv.Name, time.Since(start), false)
		return Result{
			CallID:  inv.ID,
			Name:    inv.Name,
			Output:  fmt.Sprintf("Error: invalid arguments for %s: %v", inv.Name, err),
			IsError: true,
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	outputChan := make(chan string, 1)
	errChan := make(chan error, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				errChan <- fmt.Errorf("tool panicked: %v", r)
			}
		}()
		output, err := tool.Handler(timeoutCtx, inv.Parameters)
		if err != nil {
			errChan <- err
			return
		}
		outputChan <- output
	}()

	select {
	case output := <-outputChan:
		duration := time.Since(start)
		observability.RecordToolInvocation(inv.Name, duration, true)
		d.logger.Debug().
			Str("tool", inv.Name).
			Dur("duration", duration).
			Msg("Tool invocation completed")
		return Result{
			CallID: inv.ID,
			Name:   inv.Name,
			Output: output,
		}

	case err := <-errChan:
		duration := time.Since(start)
		observability.RecordToolInvocation(inv.Name, duration, false)
		d.logger.Error().
			Str("tool", inv.Name).
			Dur("duration", duration).
			Err(err).
			Msg("Tool invocation failed")
		return Result{
			CallID:  inv.ID,
			Name:    inv.Name,
			Output:  fmt.Sprintf("Error: %v", err),
			IsError: true,
		}

	case <-timeoutCtx.Done():
		duration := time.Since(start)
		observability.RecordToolInvocation(inv.Name, duration, false)
		d.logger.Error().
			Str("tool", inv.Name).
			Dur("duration", duration).
			Msg("Tool invocation timeout")
		return Result{
			CallID:  inv.ID,
			Name:    inv.Name,
			Output:  fmt.Sprintf("Error: tool %s timed out after %v", inv.Name, d.timeout),
			IsError: true,
		}
	}
}

// DispatchAll runs a batch of invocations concurrently and joins
// before returning. Results preserve request order. A failure in one
// invocation never cancels its siblings.
func (d *Dispatcher) DispatchAll(ctx context.Context, invs []Invocation) []Result {
	if len(invs) == 0 {
		return nil
	}
	if len(invs) == 1 {
		return []Result{d.Invoke(ctx, invs[0])}
	}

	results := make([]Result, len(invs))
	var wg sync.WaitGroup

	for i, inv := range invs {
		wg.Add(1)
		go func(i int, inv Invocation) {
			defer wg.Done()
			results[i] = d.Invoke(ctx, inv)
		}(i, inv)
	}

	wg.Wait()
	return results
}

// InputSchema renders the definition's parameters as a JSON Schema map.
func (def Definition) InputSchema() map[string]interface{} {
	properties := make(map[string]interface{})
	required := []string{}

	for _, param := range def.Parameters {
		properties[param.Name] = map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}

	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %s for %s", param.Type, param.Name)
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
	}

	return nil
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}
	if params == nil {
		params = map[string]interface{}{}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}

	if !result.Valid() {
		errs := []string{}
		for _, e := range result.Errors() {
			errs = append(errs, e.String())
		}
		return fmt.Errorf("validation errors: %v", errs)
	}

	return nil
}

// Package tools exposes memory operations to agents as named tools with
// JSON arguments.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"

	"github.com/dhawansolanki/weavium-ai/internal/domain"
	"github.com/dhawansolanki/weavium-ai/internal/policy"
)

// ExecutorFunc runs a tool with validated arguments.
type ExecutorFunc func(ctx context.Context, args json.RawMessage) (json.RawMessage, error)

// Tool describes a callable tool.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	// Mutating tools change stored data.
	Mutating bool
	Executor ExecutorFunc
}

// Definition is the public description of a tool.
type Definition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Mutating    bool            `json:"mutating"`
}

type entry struct {
	tool   Tool
	schema *gojsonschema.Schema
}

// Option configures a Registry.
type Option func(*Registry)

// WithPolicy gates every call through engine.
func WithPolicy(engine *policy.Engine) Option {
	return func(r *Registry) { r.policy = engine }
}

// WithReadOnly reports the store as read-only to the policy.
func WithReadOnly(readOnly bool) Option {
	return func(r *Registry) { r.readOnly = readOnly }
}

// WithLogger sets the logger for tool calls.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// Registry stores tools keyed by name.
type Registry struct {
	mu       sync.RWMutex
	tools    map[string]entry
	policy   *policy.Engine
	readOnly bool
	logger   zerolog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		tools:  make(map[string]entry),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	if tool.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if tool.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	if len(tool.InputSchema) == 0 {
		tool.InputSchema = json.RawMessage(`{"type":"object"}`)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(tool.InputSchema))
	if err != nil {
		return fmt.Errorf("invalid input schema for %s: %w", tool.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool already registered: %s", tool.Name)
	}
	r.tools[tool.Name] = entry{tool: tool, schema: schema}
	return nil
}

// MustRegister adds a tool or panics.
func (r *Registry) MustRegister(tool Tool) {
	if err := r.Register(tool); err != nil {
		panic(err)
	}
}

// List returns every tool definition sorted by name.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, 0, len(r.tools))
	for _, e := range r.tools {
		defs = append(defs, Definition{
			Name:        e.tool.Name,
			Description: e.tool.Description,
			InputSchema: e.tool.InputSchema,
			Mutating:    e.tool.Mutating,
		})
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute validates args against the tool's schema, asks the policy engine,
// then runs the tool on behalf of caller.
func (r *Registry) Execute(ctx context.Context, caller, toolName string, args json.RawMessage) (json.RawMessage, error) {
	if toolName == "" {
		return nil, fmt.Errorf("%w: tool name is required", domain.ErrInvalidArgument)
	}
	r.mu.RLock()
	e, ok := r.tools[toolName]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tool %s", domain.ErrNotFound, toolName)
	}

	if len(strings.TrimSpace(string(args))) == 0 {
		args = json.RawMessage(`{}`)
	}
	if err := validateArgs(e.schema, args); err != nil {
		return nil, err
	}

	log := r.logger.With().Str("tool", toolName).Str("caller", caller).Logger()
	if r.policy != nil {
		var parsed map[string]interface{}
		_ = json.Unmarshal(args, &parsed)
		decision, reason, err := r.policy.Evaluate(ctx, policy.Input{
			ToolName: toolName,
			Caller:   caller,
			Mutating: e.tool.Mutating,
			ReadOnly: r.readOnly,
			Args:     parsed,
		})
		if err != nil {
			return nil, err
		}
		if decision != policy.DecisionAllow {
			log.Warn().Str("decision", decision).Str("reason", reason).Msg("tool call denied")
			return nil, fmt.Errorf("%w: %s: %s", domain.ErrPolicyDenied, toolName, reason)
		}
	}

	log.Debug().Msg("executing tool")
	return e.tool.Executor(ctx, args)
}

func validateArgs(schema *gojsonschema.Schema, args json.RawMessage) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return fmt.Errorf("%w: arguments are not valid JSON: %v", domain.ErrInvalidArgument, err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}

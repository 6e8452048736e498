// Package policy gates memory tool calls with an OPA rego policy.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions a policy may return.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a policy engine. The module must declare
// package memory_policy with a decision rule and may add deny messages.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.memory_policy"),
		rego.Module("memory_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Input is what a tool call is judged on.
type Input struct {
	ToolName string
	Caller   string
	Mutating bool
	ReadOnly bool
	Args     map[string]interface{}
}

func (in Input) toMap() map[string]interface{} {
	args := in.Args
	if args == nil {
		args = map[string]interface{}{}
	}
	return map[string]interface{}{
		"tool_name": in.ToolName,
		"caller":    in.Caller,
		"mutating":  in.Mutating,
		"read_only": in.ReadOnly,
		"args":      args,
	}
}

// Evaluate returns the decision for a call and, when blocked, the deny
// messages joined as the reason.
func (e *Engine) Evaluate(ctx context.Context, in Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(in.toMap()))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return DecisionAllow, "default", nil
	}

	doc, ok := results[0].Expressions[0].Value.(map[string]interface{})
	if !ok {
		return DecisionAllow, "unexpected return type", nil
	}
	decision, _ := doc["decision"].(string)
	if decision == "" {
		decision = DecisionAllow
	}

	var reasons []string
	if deny, ok := doc["deny"].([]interface{}); ok {
		for _, d := range deny {
			if s, ok := d.(string); ok {
				reasons = append(reasons, s)
			}
		}
	}
	sort.Strings(reasons)
	return decision, strings.Join(reasons, "; "), nil
}

// DefaultPolicy allows every call except writes against a read-only store
// and deletes from anonymous callers.
const DefaultPolicy = `
package memory_policy

default decision = "allow"

decision = "block" {
	count(deny) > 0
}

deny["memory store is read-only"] {
	input.read_only
	input.mutating
}

deny["anonymous callers may not delete memories"] {
	input.tool_name == "memory.delete"
	input.caller == ""
}
`

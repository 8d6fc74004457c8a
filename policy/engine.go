// Package policy evaluates OPA protection rules. Protected-pattern rules
// that do not fit the static config lists live here as rego, so new rules
// are data, not new code paths.
package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/v1/rego"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/raivaus/telemetry"
	"github.com/yairfalse/raivaus/types"
)

// Engine evaluates compiled protection policies against resources.
// Evaluation is read-only; the engine never modifies infrastructure.
type Engine struct {
	logger  *telemetry.Logger
	tracer  trace.Tracer
	queries map[string]rego.PreparedEvalQuery
}

// Input is the document handed to each policy.
type Input struct {
	Resource types.ResourceRecord `json:"resource"`
	Account  string               `json:"account"`
	Region   string               `json:"region"`
}

// Result is the combined outcome across all loaded policies.
type Result struct {
	Protect  bool     `json:"protect"`
	Reason   string   `json:"reason,omitempty"`
	Policies []string `json:"policies,omitempty"`
}

// NewEngine creates a policy engine with no policies loaded.
func NewEngine() *Engine {
	return &Engine{
		logger:  telemetry.NewLogger("policy-engine"),
		tracer:  otel.Tracer("policy-engine"),
		queries: make(map[string]rego.PreparedEvalQuery),
	}
}

// Len returns the number of loaded policies.
func (e *Engine) Len() int {
	return len(e.queries)
}

// LoadPolicy compiles and registers a rego module. Policies live in the
// raivaus package and may define `protect` and `reason`.
func (e *Engine) LoadPolicy(ctx context.Context, name, regoCode string) error {
	ctx, span := e.tracer.Start(ctx, "policy.load",
		trace.WithAttributes(attribute.String("policy.name", name)))
	defer span.End()

	query := rego.New(
		rego.Query("data.raivaus"),
		rego.Module(name, regoCode),
	)

	prepared, err := query.PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("failed to compile policy %s: %w", name, err)
	}

	e.queries[name] = prepared

	e.logger.WithContext(ctx).Info().
		Str("policy_name", name).
		Msg("policy loaded")

	return nil
}

// Evaluate runs every loaded policy against the input. The combined
// result is an OR: any policy voting protect marks the resource
// Protected. A policy evaluation error is returned to the caller, which
// must fail closed.
func (e *Engine) Evaluate(ctx context.Context, input Input) (Result, error) {
	ctx, span := e.tracer.Start(ctx, "policy.evaluate",
		trace.WithAttributes(attribute.String("resource.id", input.Resource.ID)))
	defer span.End()

	var combined Result
	for name, prepared := range e.queries {
		rs, err := prepared.Eval(ctx, rego.EvalInput(input))
		if err != nil {
			return Result{}, fmt.Errorf("policy %s evaluation failed: %w", name, err)
		}

		protect, reason := extractVerdict(rs)
		if protect {
			combined.Protect = true
			combined.Policies = append(combined.Policies, name)
			if combined.Reason == "" {
				combined.Reason = reason
			}
		}
	}

	if combined.Protect && combined.Reason == "" {
		combined.Reason = "matched protection policy"
	}
	return combined, nil
}

// extractVerdict pulls protect/reason out of the rego result set. OPA
// returns arbitrary JSON shapes, so this is one of the few places a
// map[string]any is unavoidable.
func extractVerdict(rs rego.ResultSet) (bool, string) {
	for _, result := range rs {
		for _, expr := range result.Expressions {
			doc, ok := expr.Value.(map[string]any)
			if !ok {
				continue
			}
			protect, _ := doc["protect"].(bool)
			reason, _ := doc["reason"].(string)
			if protect {
				return true, reason
			}
		}
	}
	return false, ""
}

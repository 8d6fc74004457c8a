// Package classify decides whether a discovered resource is Protected,
// InUse, or Eligible for deletion. The classifier is a logical OR over
// signals: any single positive protection signal is enough. This is
// deliberately false-positive tolerant: skipping a deletable resource is
// cheap, deleting a production resource is not.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/yairfalse/raivaus/config"
	"github.com/yairfalse/raivaus/policy"
	"github.com/yairfalse/raivaus/telemetry"
	"github.com/yairfalse/raivaus/types"
)

// Inspector answers structural questions about a resource: is it owned by
// an orchestrator workload, is something still alive attached to it.
// Implementations may call describe/list APIs but must not mutate state.
type Inspector interface {
	// ManagedBy returns the name of the workload (launch template,
	// autoscaling group, cluster, running compute) that owns the
	// resource, or "" when nothing does.
	ManagedBy(ctx context.Context, rec types.ResourceRecord) (string, error)

	// InUseBy returns the IDs of live dependents of the resource.
	InUseBy(ctx context.Context, rec types.ResourceRecord) ([]string, error)
}

// Classifier produces one Verdict per resource per run. Verdicts are
// never recomputed mid-run.
type Classifier struct {
	rules     config.Protection
	policies  *policy.Engine
	inspector Inspector
	logger    *telemetry.Logger
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPolicyEngine adds OPA protection rules.
func WithPolicyEngine(e *policy.Engine) Option {
	return func(c *Classifier) { c.policies = e }
}

// WithInspector adds structural signal checks.
func WithInspector(i Inspector) Option {
	return func(c *Classifier) { c.inspector = i }
}

// New creates a Classifier from the declarative protection rule list.
func New(rules config.Protection, opts ...Option) *Classifier {
	c := &Classifier{
		rules:  rules,
		logger: telemetry.NewLogger("classifier"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Classify returns the verdict for one resource. runSet holds the IDs of
// every resource discovered in this run, so an in-use blocker that is
// itself being torn down does not cause a skip. If a structural or policy
// check errors, Classify fails closed and returns Protected rather than
// risk a false Eligible.
func (c *Classifier) Classify(ctx context.Context, rec types.ResourceRecord, runSet types.ReferenceSet) types.Verdict {
	if reason := c.patternSignal(rec); reason != "" {
		return types.Protected(reason)
	}

	verdict, checked := c.structuralSignal(ctx, rec)
	if checked {
		return verdict
	}

	if c.policies != nil && c.policies.Len() > 0 {
		result, err := c.policies.Evaluate(ctx, policy.Input{
			Resource: rec,
			Account:  rec.Account,
			Region:   rec.Region,
		})
		if err != nil {
			c.logger.WithContext(ctx).Warn().
				Err(err).
				Str("resource_id", rec.ID).
				Msg("policy evaluation failed, failing closed")
			return types.Protected("classification inconclusive: " + err.Error())
		}
		if result.Protect {
			return types.Protected(result.Reason)
		}
	}

	if verdict, hit := c.inUseSignal(ctx, rec, runSet); hit {
		return verdict
	}

	return types.Eligible()
}

// patternSignal checks the declarative name/description/tag rules.
func (c *Classifier) patternSignal(rec types.ResourceRecord) string {
	for _, pattern := range c.rules.NamePatterns {
		if pattern != "" && strings.Contains(rec.Name, pattern) {
			return fmt.Sprintf("name matches protected pattern %q", pattern)
		}
	}

	description := rec.AttrString("description")
	for _, pattern := range c.rules.DescriptionPatterns {
		if pattern != "" && strings.Contains(description, pattern) {
			return fmt.Sprintf("description matches protected pattern %q", pattern)
		}
	}

	tags := rec.Tags()
	for key, value := range tags {
		for _, prefix := range c.rules.TagKeyPrefixes {
			if prefix != "" && strings.HasPrefix(key, prefix) {
				return fmt.Sprintf("tag %s matches orchestrator prefix %q", key, prefix)
			}
		}
		if want, ok := c.rules.TagMatches[key]; ok && want == value {
			return fmt.Sprintf("tag %s=%s is protected", key, value)
		}
	}

	return ""
}

// structuralSignal asks the inspector whether an orchestrator workload
// owns the resource. The second return is true when the check produced a
// verdict (protection or fail-closed).
func (c *Classifier) structuralSignal(ctx context.Context, rec types.ResourceRecord) (types.Verdict, bool) {
	if c.inspector == nil {
		return types.Verdict{}, false
	}

	owner, err := c.inspector.ManagedBy(ctx, rec)
	if err != nil {
		c.logger.WithContext(ctx).Warn().
			Err(err).
			Str("resource_id", rec.ID).
			Msg("structural check failed, failing closed")
		return types.Protected("classification inconclusive: " + err.Error()), true
	}
	if owner != "" {
		return types.Protected(fmt.Sprintf("referenced by workload %s", owner)), true
	}
	return types.Verdict{}, false
}

// inUseSignal asks the inspector for live dependents outside this run.
func (c *Classifier) inUseSignal(ctx context.Context, rec types.ResourceRecord, runSet types.ReferenceSet) (types.Verdict, bool) {
	if c.inspector == nil {
		return types.Verdict{}, false
	}

	dependents, err := c.inspector.InUseBy(ctx, rec)
	if err != nil {
		c.logger.WithContext(ctx).Warn().
			Err(err).
			Str("resource_id", rec.ID).
			Msg("in-use check failed, failing closed")
		return types.Protected("classification inconclusive: " + err.Error()), true
	}

	var external []string
	for _, dep := range dependents {
		if !runSet.Contains(dep) {
			external = append(external, dep)
		}
	}
	if len(external) > 0 {
		reason := fmt.Sprintf("in use by %s", strings.Join(external, ", "))
		return types.InUse(reason, external...), true
	}
	return types.Verdict{}, false
}

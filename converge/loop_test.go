package converge

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yairfalse/raivaus/breaker"
	"github.com/yairfalse/raivaus/resolve"
	"github.com/yairfalse/raivaus/types"
)

// scriptedProvider serves canned outcomes per resource, one per call.
type scriptedProvider struct {
	outcomes map[string][]types.Outcome
	clears   map[string]types.ClearResult
	deletes  []string
	// clearOnePerCall makes each ClearReference call succeed exactly
	// once, mimicking AWS revoking one rule at a time.
	calls map[string]int
}

func newScripted() *scriptedProvider {
	return &scriptedProvider{
		outcomes: make(map[string][]types.Outcome),
		clears:   make(map[string]types.ClearResult),
		calls:    make(map[string]int),
	}
}

func (p *scriptedProvider) script(id string, outcomes ...types.Outcome) {
	p.outcomes[id] = outcomes
}

func (p *scriptedProvider) Type() string { return "security_group" }
func (p *scriptedProvider) List(ctx context.Context, account, region string) ([]types.ResourceRecord, error) {
	return nil, nil
}
func (p *scriptedProvider) Describe(ctx context.Context, id string) (map[string]any, error) {
	return nil, nil
}
func (p *scriptedProvider) Delete(ctx context.Context, id string) types.Outcome {
	p.deletes = append(p.deletes, id)
	n := p.calls[id]
	p.calls[id]++
	script := p.outcomes[id]
	if n < len(script) {
		return script[n]
	}
	if len(script) > 0 {
		return script[len(script)-1]
	}
	return types.Deleted()
}
func (p *scriptedProvider) ClearReference(ctx context.Context, id, ref string) types.ClearResult {
	if r, ok := p.clears[ref]; ok {
		return r
	}
	return types.ClearResult{Kind: types.ClearCleared}
}

func noSleep(ctx context.Context, d time.Duration) {}

func testLoop(opts Options, loopOpts ...Option) *Loop {
	b := breaker.New(0, breaker.WithSleep(noSleep))
	loopOpts = append(loopOpts, WithSleep(noSleep))
	return New(opts, b, loopOpts...)
}

func linearPhase(recs ...types.ResourceRecord) resolve.Phase {
	return resolve.Phase{Kind: resolve.Linear, ResourceType: "security_group", Resources: recs}
}

func TestRunConvergesImmediately(t *testing.T) {
	p := newScripted()
	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3})

	result := l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-1", Type: "security_group"},
	), p)

	assert.True(t, result.Converged)
	assert.Equal(t, 1, result.Passes)
	assert.Len(t, result.Deleted, 1)
	assert.Empty(t, result.Remaining)
}

func TestRunNotFoundIsDeleted(t *testing.T) {
	p := newScripted()
	p.script("sg-1", types.NotFound())
	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3})

	result := l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-1", Type: "security_group"},
	), p)

	assert.True(t, result.Converged)
	assert.Len(t, result.Deleted, 1)
}

func TestRunBlockedThenDeleted(t *testing.T) {
	p := newScripted()
	p.script("sg-1", types.Blocked("DependencyViolation"), types.Deleted())
	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3})

	result := l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-1", Type: "security_group"},
	), p)

	assert.True(t, result.Converged)
	assert.Equal(t, 2, result.Passes)
	assert.Len(t, result.Deleted, 1)
}

// A cyclic pair where each pass clears rules converges within 2 passes.
func TestRunCyclicPairConverges(t *testing.T) {
	p := newScripted()
	// First delete of each group is blocked until references clear.
	p.script("sg-x", types.Blocked("DependencyViolation"), types.Deleted())
	p.script("sg-y", types.Deleted())

	x := types.ResourceRecord{ID: "sg-x", Type: "security_group", References: types.NewReferenceSet("sg-y")}
	y := types.ResourceRecord{ID: "sg-y", Type: "security_group", References: types.NewReferenceSet("sg-x")}
	phase := resolve.Phase{Kind: resolve.Cyclic, ResourceType: "security_group", Resources: []types.ResourceRecord{x, y}}

	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3})
	result := l.Run(context.Background(), phase, p)

	assert.True(t, result.Converged)
	assert.LessOrEqual(t, result.Passes, 2)
	assert.Len(t, result.Deleted, 2)
	assert.Empty(t, result.Remaining)
}

// A resource that is always blocked exits at the stagnation threshold
// instead of looping forever or burning the full budget.
func TestRunStagnationExit(t *testing.T) {
	p := newScripted()
	p.script("sg-stuck", types.Blocked("DependencyViolation"))

	l := testLoop(Options{MaxPasses: 100, StagnationThreshold: 3})
	result := l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-stuck", Type: "security_group"},
	), p)

	assert.False(t, result.Converged)
	assert.Equal(t, 3, result.Passes)
	require.Len(t, result.Remaining, 1)
	assert.Contains(t, result.Remaining[0].Reason, "DependencyViolation")
	assert.False(t, result.Remaining[0].Fatal, "a stagnated blocked resource is not a fatal exit")
}

func TestRunPassBudgetExhausted(t *testing.T) {
	p := newScripted()
	// Shrinks by one each pass, so no stagnation, but budget is 2.
	p.script("sg-a", types.Deleted())
	p.script("sg-b", types.Blocked("busy"), types.Deleted())
	p.script("sg-c", types.Blocked("busy"), types.Blocked("busy"), types.Deleted())

	l := testLoop(Options{MaxPasses: 2, StagnationThreshold: 5})
	result := l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-a", Type: "security_group"},
		types.ResourceRecord{ID: "sg-b", Type: "security_group"},
		types.ResourceRecord{ID: "sg-c", Type: "security_group"},
	), p)

	assert.False(t, result.Converged)
	assert.Equal(t, 2, result.Passes)
	assert.Len(t, result.Deleted, 2)
	require.Len(t, result.Remaining, 1)
	assert.Equal(t, "sg-c", result.Remaining[0].Resource.ID)
}

func TestRunFatalFailureNotRetried(t *testing.T) {
	p := newScripted()
	p.script("sg-1", types.Fatal(errors.New("AuthFailure")))

	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3})
	result := l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-1", Type: "security_group"},
	), p)

	assert.False(t, result.Converged)
	assert.Equal(t, 1, p.calls["sg-1"], "fatal failure must not be retried")
	require.Len(t, result.Remaining, 1)
	assert.Contains(t, result.Remaining[0].Reason, "AuthFailure")
	assert.True(t, result.Remaining[0].Fatal, "fatal exit must be distinguishable from budget exhaustion")
}

func TestRunUnattachedFirst(t *testing.T) {
	p := newScripted()
	attached := types.ResourceRecord{
		ID: "sg-attached", Type: "security_group",
		Attributes: map[string]any{"attached": true},
	}
	free := types.ResourceRecord{ID: "sg-free", Type: "security_group"}

	l := testLoop(Options{MaxPasses: 3, StagnationThreshold: 3})
	l.Run(context.Background(), linearPhase(attached, free), p)

	require.Len(t, p.deletes, 2)
	assert.Equal(t, "sg-free", p.deletes[0])
	assert.Equal(t, "sg-attached", p.deletes[1])
}

func TestRunCancellation(t *testing.T) {
	p := newScripted()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3})
	result := l.Run(ctx, linearPhase(
		types.ResourceRecord{ID: "sg-1", Type: "security_group"},
	), p)

	assert.False(t, result.Converged)
	assert.Empty(t, p.deletes, "no attempts after cancellation")
	require.Len(t, result.Remaining, 1)
	assert.Equal(t, "run canceled", result.Remaining[0].Reason)
}

func TestRunAttemptObserver(t *testing.T) {
	p := newScripted()
	p.script("sg-1", types.Blocked("busy"), types.Deleted())

	var attempts []types.DeletionAttempt
	l := testLoop(Options{MaxPasses: 5, StagnationThreshold: 3},
		WithAttemptObserver(func(a types.DeletionAttempt) { attempts = append(attempts, a) }))

	l.Run(context.Background(), linearPhase(
		types.ResourceRecord{ID: "sg-1", Type: "security_group"},
	), p)

	require.Len(t, attempts, 2)
	assert.Equal(t, 1, attempts[0].PassNumber)
	assert.Equal(t, types.OutcomeBlocked, attempts[0].Outcome.Kind)
	assert.Equal(t, 2, attempts[1].PassNumber)
	assert.Equal(t, types.OutcomeDeleted, attempts[1].Outcome.Kind)
}

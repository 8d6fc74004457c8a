// Package converge drives repeated deletion attempts over a phase's
// working set until it is empty or a pass budget is exhausted.
package converge

import (
	"context"
	"time"

	"github.com/yairfalse/raivaus/breaker"
	"github.com/yairfalse/raivaus/providers"
	"github.com/yairfalse/raivaus/resolve"
	"github.com/yairfalse/raivaus/telemetry"
	"github.com/yairfalse/raivaus/types"
)

// Options bound the loop. These are configuration, not per-type
// constants.
type Options struct {
	MaxPasses           int
	StagnationThreshold int
	InterPassDelay      time.Duration
}

// Remaining is a resource the loop never managed to delete, with the
// last-seen blocking reason. Remaining resources are surfaced, never
// silently dropped. Fatal marks remainders that left the set on a
// non-retryable outcome rather than by exhausting the pass budget.
type Remaining struct {
	Resource types.ResourceRecord
	Reason   string
	Fatal    bool
}

// Result is the terminal state of one phase.
type Result struct {
	Deleted   []types.ResourceRecord
	Remaining []Remaining
	Passes    int
	// Converged is true when the working set emptied within budget;
	// false means the loop gave up (stagnation or pass budget).
	Converged bool
}

// Loop is the retry engine for one run. It is safe to reuse across
// phases.
type Loop struct {
	opts      Options
	breaker   *breaker.Breaker
	logger    *telemetry.Logger
	sleep     func(ctx context.Context, d time.Duration)
	onAttempt func(types.DeletionAttempt)
}

// Option configures a Loop.
type Option func(*Loop)

// WithSleep replaces the inter-pass sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(l *Loop) { l.sleep = sleep }
}

// WithAttemptObserver registers a callback invoked for every deletion
// attempt, used for audit logging and aggregation.
func WithAttemptObserver(fn func(types.DeletionAttempt)) Option {
	return func(l *Loop) { l.onAttempt = fn }
}

// New creates a Loop.
func New(opts Options, b *breaker.Breaker, loopOpts ...Option) *Loop {
	l := &Loop{
		opts:    opts,
		breaker: b,
		logger:  telemetry.NewLogger("converge"),
		sleep:   sleepCtx,
	}
	for _, opt := range loopOpts {
		opt(l)
	}
	return l
}

// Run attempts deletion of every resource in the phase until the set
// converges to empty, stagnates, or the pass budget runs out. The
// breaker runs immediately before each attempt in cyclic phases, and in
// linear phases for any resource still carrying references (a role with
// attached policies, say). Fatal (non-retryable) failures leave the
// working set at once.
func (l *Loop) Run(ctx context.Context, phase resolve.Phase, provider providers.ResourceProvider) Result {
	working := make([]types.ResourceRecord, len(phase.Resources))
	copy(working, phase.Resources)

	lastReason := make(map[string]string)
	var result Result

	prevSize := -1
	for len(working) > 0 && result.Passes < l.opts.MaxPasses {
		result.Passes++

		resolve.SortByPriority(working)

		next, canceled := l.runPass(ctx, phase, provider, working, lastReason, &result)
		if canceled {
			working = next
			break
		}

		if len(next) == 0 {
			working = nil
			break
		}

		if len(next) == prevSize && result.Passes >= l.opts.StagnationThreshold {
			l.logger.WithContext(ctx).Warn().
				Str("resource_type", phase.ResourceType).
				Int("stuck", len(next)).
				Int("passes", result.Passes).
				Msg("working set stagnated, giving up early")
			working = next
			break
		}
		prevSize = len(next)
		working = next

		if result.Passes < l.opts.MaxPasses {
			l.sleep(ctx, l.opts.InterPassDelay)
		}
	}

	for _, rec := range working {
		reason := lastReason[rec.ID]
		if reason == "" {
			reason = "never attempted"
		}
		result.Remaining = append(result.Remaining, Remaining{Resource: rec, Reason: reason})
	}

	result.Converged = len(result.Remaining) == 0
	return result
}

// runPass sweeps the working set once. Returns the survivors and whether
// the run context was canceled mid-pass.
func (l *Loop) runPass(
	ctx context.Context,
	phase resolve.Phase,
	provider providers.ResourceProvider,
	working []types.ResourceRecord,
	lastReason map[string]string,
	result *Result,
) (next []types.ResourceRecord, canceled bool) {
	for i := range working {
		rec := &working[i]

		if ctx.Err() != nil {
			// Operator interrupt: keep whatever is left as remaining,
			// no rollback of already-deleted resources.
			for _, rest := range working[i:] {
				if lastReason[rest.ID] == "" {
					lastReason[rest.ID] = "run canceled"
				}
				next = append(next, rest)
			}
			return next, true
		}

		if phase.Kind == resolve.Cyclic || len(rec.References) > 0 {
			l.breaker.BreakReferences(ctx, provider, rec)
		}

		outcome := provider.Delete(ctx, rec.ID)
		l.observe(*rec, result.Passes, outcome)

		switch {
		case outcome.Succeeded():
			result.Deleted = append(result.Deleted, *rec)
		case outcome.Retryable():
			lastReason[rec.ID] = outcome.String()
			next = append(next, *rec)
		default:
			// Fatal: recorded as remaining immediately, never retried.
			result.Remaining = append(result.Remaining, Remaining{
				Resource: *rec,
				Reason:   outcome.String(),
				Fatal:    true,
			})
		}
	}
	return next, false
}

func (l *Loop) observe(rec types.ResourceRecord, pass int, outcome types.Outcome) {
	if l.onAttempt == nil {
		return
	}
	l.onAttempt(types.DeletionAttempt{
		Resource:   rec,
		PassNumber: pass,
		Outcome:    outcome,
		Timestamp:  time.Now(),
	})
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Package breaker clears cyclic peer references (e.g. security group
// rules naming other groups) so deletion can make progress.
package breaker

import (
	"context"
	"sort"
	"time"

	"github.com/yairfalse/raivaus/providers"
	"github.com/yairfalse/raivaus/telemetry"
	"github.com/yairfalse/raivaus/types"
)

// Breaker removes a resource's outbound references one at a time through
// the provider.
type Breaker struct {
	settle  time.Duration
	logger  *telemetry.Logger
	sleep   func(ctx context.Context, d time.Duration)
	onClear func(resourceID, reference string)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithSleep replaces the settle sleep, for tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(b *Breaker) { b.sleep = sleep }
}

// WithClearObserver registers a callback invoked for every reference the
// breaker actually removes, used for audit logging. Skipped permanent
// references and already-gone references do not fire it.
func WithClearObserver(fn func(resourceID, reference string)) Option {
	return func(b *Breaker) { b.onClear = fn }
}

// New creates a Breaker. settle is the propagation delay to wait after
// clearing anything; distributed control planes may not honor a rule
// removal atomically with the next delete call.
func New(settle time.Duration, opts ...Option) *Breaker {
	b := &Breaker{
		settle: settle,
		logger: telemetry.NewLogger("breaker"),
		sleep:  sleepCtx,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// BreakReferences clears every removable outbound reference of rec via
// the provider, shrinking rec.References as rules disappear. Permanent
// provider defaults are skipped, not attempted. "Already removed" counts
// as success; other clear failures are logged and left for the next pass.
// Returns true when no removable reference remains.
func (b *Breaker) BreakReferences(ctx context.Context, provider providers.ResourceProvider, rec *types.ResourceRecord) bool {
	refs := rec.References.IDs()
	sort.Strings(refs)

	classifier, _ := provider.(providers.ReferenceClassifier)

	cleared := 0
	remaining := 0
	for _, ref := range refs {
		if classifier != nil && classifier.IsPermanentReference(ref) {
			continue
		}

		result := provider.ClearReference(ctx, rec.ID, ref)
		if result.Cleared() {
			rec.References.Remove(ref)
			if result.Kind == types.ClearCleared {
				cleared++
				if b.onClear != nil {
					b.onClear(rec.ID, ref)
				}
			}
			continue
		}

		remaining++
		b.logger.WithContext(ctx).Warn().
			Err(result.Err).
			Str("resource_id", rec.ID).
			Str("reference", ref).
			Msg("failed to clear reference")
	}

	if cleared > 0 && b.settle > 0 {
		b.sleep(ctx, b.settle)
	}

	return remaining == 0
}

func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Package teardown is the run driver: it walks (account, region) tasks
// sequentially, discovers resources through registered providers,
// classifies them, resolves deletion phases, and drives the convergence
// loop, recording every terminal outcome.
package teardown

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/raivaus/breaker"
	"github.com/yairfalse/raivaus/classify"
	"github.com/yairfalse/raivaus/config"
	"github.com/yairfalse/raivaus/converge"
	"github.com/yairfalse/raivaus/history"
	"github.com/yairfalse/raivaus/providers"
	"github.com/yairfalse/raivaus/report"
	"github.com/yairfalse/raivaus/resolve"
	"github.com/yairfalse/raivaus/telemetry"
	"github.com/yairfalse/raivaus/types"
	"github.com/yairfalse/raivaus/wal"
)

// ConfirmToken is the literal an operator must type before the engine
// deletes anything.
const ConfirmToken = "DELETE"

// fatalAbortThreshold is how many fatal outcomes (dead credentials,
// revoked permissions) one task tolerates before the rest of the task is
// skipped. A fatal recurring across resources will not heal mid-run.
const fatalAbortThreshold = 3

// Task is one (account, region) unit of work. Tasks run strictly
// sequentially; there is no overlap between accounts or regions.
type Task struct {
	Account string
	Region  string
}

// Params wires an Engine. Registry, Classifier, Resolver and Config are
// required; the rest are optional.
type Params struct {
	Registry   *providers.Registry
	Classifier *classify.Classifier
	Resolver   *resolve.Resolver
	Config     *config.Config

	Aggregator *report.Aggregator
	WAL        *wal.WAL
	History    *history.Store
	Metrics    *telemetry.Metrics

	ExecutedBy string
	DryRun     bool
}

// Engine owns one teardown run. Each run gets its own aggregator with an
// explicit lifecycle: created at run start, read at run end, never
// ambient state.
type Engine struct {
	registry   *providers.Registry
	classifier *classify.Classifier
	resolver   *resolve.Resolver
	cfg        *config.Config
	aggregator *report.Aggregator
	wal        *wal.WAL
	hist       *history.Store
	metrics    *telemetry.Metrics
	dryRun     bool
	logger     *telemetry.Logger
	tracer     trace.Tracer
	sleep      func(ctx context.Context, d time.Duration)
}

// Option configures an Engine.
type Option func(*Engine)

// WithSleep replaces every delay in the run (inter-pass, settle), for
// tests.
func WithSleep(sleep func(ctx context.Context, d time.Duration)) Option {
	return func(e *Engine) { e.sleep = sleep }
}

// NewEngine builds an engine from params.
func NewEngine(p Params, opts ...Option) (*Engine, error) {
	if p.Registry == nil || p.Classifier == nil || p.Resolver == nil || p.Config == nil {
		return nil, fmt.Errorf("registry, classifier, resolver and config are required")
	}

	aggregator := p.Aggregator
	if aggregator == nil {
		aggregator = report.NewAggregator(p.Config.CleanupType, p.ExecutedBy)
	}

	e := &Engine{
		registry:   p.Registry,
		classifier: p.Classifier,
		resolver:   p.Resolver,
		cfg:        p.Config,
		aggregator: aggregator,
		wal:        p.WAL,
		hist:       p.History,
		metrics:    p.Metrics,
		dryRun:     p.DryRun,
		logger:     telemetry.NewLogger("teardown"),
		tracer:     otel.Tracer("teardown"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Aggregator exposes the run aggregator, e.g. for a snapshot after an
// interrupt.
func (e *Engine) Aggregator() *report.Aggregator {
	return e.aggregator
}

// Run executes every task sequentially. Nothing is deleted unless
// confirmation equals ConfirmToken; a mismatch is a no-op cancellation,
// not an error. The returned snapshot is valid even after partial
// failures or an interrupt.
func (e *Engine) Run(ctx context.Context, confirmation string, tasks []Task) (report.TeardownResult, error) {
	if confirmation != ConfirmToken {
		e.logger.WithContext(ctx).Warn().
			Msg("confirmation token mismatch, nothing will be deleted")
		return e.aggregator.Snapshot(), nil
	}

	ctx, span := e.tracer.Start(ctx, "teardown.run",
		trace.WithAttributes(attribute.Int("tasks", len(tasks))))
	defer span.End()

	for _, task := range tasks {
		if ctx.Err() != nil {
			break
		}
		e.runTask(ctx, task)
		e.aggregator.TaskProcessed(task.Account, task.Region)
	}

	return e.aggregator.Snapshot(), nil
}

// runTask processes one (account, region). No error from a single
// resource or type may abort the run; every failure is recorded and the
// driver moves on.
func (e *Engine) runTask(ctx context.Context, task Task) {
	ctx, span := e.tracer.Start(ctx, "teardown.task",
		trace.WithAttributes(
			attribute.String("account", task.Account),
			attribute.String("region", task.Region)))
	defer span.End()

	logger := e.logger.WithContext(ctx)
	logger.Info().
		Str("account", task.Account).
		Str("region", task.Region).
		Msg("starting task")

	e.appendWAL(wal.EntryTask, "", map[string]string{
		"account": task.Account,
		"region":  task.Region,
	})

	discovered := e.discover(ctx, task)
	if len(discovered) == 0 {
		logger.Info().Msg("nothing discovered")
		return
	}

	runSet := types.NewReferenceSet()
	for _, rec := range discovered {
		runSet.Add(rec.ID)
	}

	eligible := e.classifyAll(ctx, discovered, runSet)

	phases := e.resolver.Resolve(eligible)
	fatals := 0
	for _, phase := range phases {
		if ctx.Err() != nil {
			return
		}
		fatals += e.runPhase(ctx, phase)
		if fatals >= fatalAbortThreshold {
			msg := fmt.Sprintf("task aborted after %d fatal outcomes", fatals)
			logger.Error().
				Int("fatals", fatals).
				Msg("aborting task, credentials are not coming back")
			e.aggregator.RecordError(task.Account, task.Region, msg)
			e.appendWAL(wal.EntryTask, "", map[string]string{
				"account": task.Account,
				"region":  task.Region,
				"aborted": msg,
			})
			return
		}
	}
}

// discover lists every configured resource type through its provider.
func (e *Engine) discover(ctx context.Context, task Task) []types.ResourceRecord {
	typs := e.cfg.ResourceTypes
	if len(typs) == 0 {
		typs = e.registry.Types()
	}

	var discovered []types.ResourceRecord
	for _, typ := range typs {
		provider, err := e.registry.Get(typ)
		if err != nil {
			e.aggregator.RecordError(task.Account, task.Region, err.Error())
			continue
		}

		recs, err := provider.List(ctx, task.Account, task.Region)
		if err != nil {
			// A listing failure (auth, throttle) skips this type, not
			// the run.
			e.logger.WithContext(ctx).Error().
				Err(err).
				Str("resource_type", typ).
				Msg("discovery failed")
			e.aggregator.RecordError(task.Account, task.Region,
				fmt.Sprintf("listing %s: %v", typ, err))
			continue
		}

		for _, rec := range recs {
			e.appendWAL(wal.EntryDiscovered, rec.ID, rec)
		}
		discovered = append(discovered, recs...)
	}
	return discovered
}

// classifyAll partitions discovered resources, recording skips, and
// returns the eligible set.
func (e *Engine) classifyAll(ctx context.Context, discovered []types.ResourceRecord, runSet types.ReferenceSet) []types.ResourceRecord {
	var eligible []types.ResourceRecord
	for _, rec := range discovered {
		verdict := e.classifier.Classify(ctx, rec, runSet)
		e.appendWAL(wal.EntryClassified, rec.ID, verdict)

		if e.hist != nil {
			if failures := e.hist.PriorFailures(rec.Type, rec.ID); failures > 0 {
				e.logger.WithContext(ctx).Info().
					Str("resource_id", rec.ID).
					Int("prior_failures", failures).
					Msg("resource failed in earlier runs")
			}
		}

		switch verdict.Decision {
		case types.DecisionEligible:
			eligible = append(eligible, rec)
		default:
			e.aggregator.RecordSkipped(rec, verdict)
			e.appendWAL(wal.EntrySkipped, rec.ID, verdict)
			if e.metrics != nil {
				e.metrics.RecordSkipped(ctx, rec.Type, string(verdict.Decision))
			}
		}
	}
	return eligible
}

// runPhase drives one phase through the convergence loop and returns how
// many resources left it on a fatal outcome. A later phase never starts
// before this one reaches a terminal state.
func (e *Engine) runPhase(ctx context.Context, phase resolve.Phase) int {
	provider, err := e.registry.Get(phase.ResourceType)
	if err != nil {
		for _, rec := range phase.Resources {
			e.aggregator.RecordFailed(rec, err.Error())
		}
		return 0
	}

	if e.dryRun {
		for _, rec := range phase.Resources {
			e.aggregator.RecordSkipped(rec, types.Verdict{
				Decision: types.DecisionEligible,
				Reason:   "dry run: would delete",
			})
		}
		e.logger.WithContext(ctx).Info().
			Str("resource_type", phase.ResourceType).
			Str("kind", string(phase.Kind)).
			Int("resources", len(phase.Resources)).
			Msg("dry run: skipping deletion")
		return 0
	}

	tuning := e.cfg.ConvergeFor(phase.Family)

	breakerOpts := []breaker.Option{
		breaker.WithClearObserver(func(resourceID, reference string) {
			e.appendWAL(wal.EntryCleared, resourceID, map[string]string{"reference": reference})
		}),
	}
	loopOpts := []converge.Option{
		converge.WithAttemptObserver(func(a types.DeletionAttempt) {
			e.appendWAL(wal.EntryAttempt, a.Resource.ID, a)
		}),
	}
	if e.sleep != nil {
		breakerOpts = append(breakerOpts, breaker.WithSleep(e.sleep))
		loopOpts = append(loopOpts, converge.WithSleep(e.sleep))
	}

	loop := converge.New(converge.Options{
		MaxPasses:           tuning.MaxPasses,
		StagnationThreshold: tuning.StagnationThreshold,
		InterPassDelay:      tuning.InterPassDelay,
	}, breaker.New(tuning.SettleDelay, breakerOpts...), loopOpts...)

	result := loop.Run(ctx, phase, provider)

	for _, rec := range result.Deleted {
		e.aggregator.RecordDeleted(rec)
		e.appendWAL(wal.EntryDeleted, rec.ID, nil)
		if e.metrics != nil {
			e.metrics.RecordDeleted(ctx, rec.Type, rec.Region)
		}
	}
	fatals := 0
	for _, rem := range result.Remaining {
		if rem.Fatal {
			// Authorization-class failure: not a property of the
			// resource, so it lands under run errors, not failed.
			fatals++
			e.aggregator.RecordError(rem.Resource.Account, rem.Resource.Region,
				fmt.Sprintf("%s %s: %s", rem.Resource.Type, rem.Resource.ID, rem.Reason))
		} else {
			e.aggregator.RecordFailed(rem.Resource, rem.Reason)
		}
		e.appendWAL(wal.EntryFailed, rem.Resource.ID, map[string]string{"reason": rem.Reason})
		if e.metrics != nil {
			e.metrics.RecordFailed(ctx, rem.Resource.Type, rem.Resource.Region)
		}
	}
	if e.metrics != nil {
		e.metrics.RecordPasses(ctx, phase.Family, result.Passes, result.Converged)
	}

	e.logger.WithContext(ctx).Info().
		Str("resource_type", phase.ResourceType).
		Int("passes", result.Passes).
		Int("deleted", len(result.Deleted)).
		Int("remaining", len(result.Remaining)).
		Bool("converged", result.Converged).
		Msg("phase finished")
	return fatals
}

func (e *Engine) appendWAL(entryType wal.EntryType, resourceID string, data any) {
	if e.wal == nil {
		return
	}
	if err := e.wal.Append(entryType, resourceID, data); err != nil {
		e.logger.Warn().Err(err).Msg("audit log append failed")
	}
}

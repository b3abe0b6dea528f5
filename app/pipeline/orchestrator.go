package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lysyi3m/uni-comb/app/metrics"
)

// Orchestrator runs extract, transform and stage strictly in sequence.
type Orchestrator struct {
	extractor   Extractor
	transformer Transformer
	stager      Stager
	metrics     *metrics.Metrics
	policy      OverlapPolicy
	now         func() time.Time

	// runMu is held for the whole of a run.
	runMu sync.Mutex

	mu         sync.RWMutex
	state      State
	lastResult *RunResult
}

type Option func(*Orchestrator)

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithOverlapPolicy(p OverlapPolicy) Option {
	return func(o *Orchestrator) { o.policy = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(extractor Extractor, transformer Transformer, stager Stager, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:   extractor,
		transformer: transformer,
		stager:      stager,
		policy:      OverlapQueue,
		now:         time.Now,
		state:       StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// LastResult returns the most recent finished run, or nil before the first.
func (o *Orchestrator) LastResult() *RunResult {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.lastResult == nil {
		return nil
	}
	result := *o.lastResult
	return &result
}

func (o *Orchestrator) Policy() OverlapPolicy {
	return o.policy
}

// Run executes one pipeline pass. It never returns an error: failures are
// reported in the result.
func (o *Orchestrator) Run(ctx context.Context, trigger Trigger) RunResult {
	if o.policy == OverlapSkip {
		if !o.runMu.TryLock() {
			slog.Warn("Refresh skipped, another run is in flight", "trigger", trigger)
			now := o.now().UTC()
			return RunResult{
				Trigger:    trigger,
				StartedAt:  now,
				FinishedAt: now,
				Error:      ErrRunInProgress.Error(),
				err:        ErrRunInProgress,
			}
		}
	} else {
		o.runMu.Lock()
	}
	defer o.runMu.Unlock()

	o.metrics.RunStarted()
	result := o.execute(ctx, trigger)

	outcome := "success"
	if !result.Success {
		outcome = "failure"
	}
	o.metrics.RunFinished(string(trigger), outcome, result.Duration(), result.RecordCount)
	o.finish(result)

	return result
}

func (o *Orchestrator) execute(ctx context.Context, trigger Trigger) (result RunResult) {
	result = RunResult{Trigger: trigger, StartedAt: o.now().UTC()}

	defer func() {
		if r := recover(); r != nil {
			result = o.fail(result, fmt.Errorf("pipeline panic: %v", r))
		}
	}()

	slog.Info("Pipeline run started", "trigger", trigger)

	o.setState(StateExtracting)
	extracted, err := o.extractor.Run(ctx)
	if err != nil || extracted == nil {
		slog.Warn("Extraction returned no data, nothing to stage", "trigger", trigger, "error", err)
		result.Success = true
		result.FinishedAt = o.now().UTC()
		return result
	}
	result.Sources = extracted.Countries

	o.setState(StateTransforming)
	records, stats := o.transformer.Run(extracted.Records, o.now().UTC())
	result.Stats = stats
	o.metrics.ObserveDropped(stats.DroppedIncomplete, stats.DroppedInvalid)
	slog.Info("Records normalized", "raw", stats.Input, "accepted", stats.Accepted, "dropped", stats.Dropped())

	o.setState(StateStaging)
	if err := o.stager.Write(ctx, records); err != nil {
		return o.fail(result, fmt.Errorf("staging failed: %w", err))
	}

	result.Success = true
	result.RecordCount = len(records)
	result.FinishedAt = o.now().UTC()

	slog.Info("Pipeline run completed",
		"trigger", trigger,
		"records", result.RecordCount,
		"failed_sources", countFailed(result),
		"duration", result.Duration())

	return result
}

func (o *Orchestrator) fail(result RunResult, err error) RunResult {
	result.Success = false
	result.RecordCount = 0
	result.Error = err.Error()
	result.err = err
	result.FinishedAt = o.now().UTC()
	slog.Error("Pipeline run failed", "trigger", result.Trigger, "error", err)
	return result
}

func (o *Orchestrator) finish(result RunResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateIdle
	o.lastResult = &result
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = state
}

func countFailed(result RunResult) int {
	failed := 0
	for _, s := range result.Sources {
		if !s.OK {
			failed++
		}
	}
	return failed
}

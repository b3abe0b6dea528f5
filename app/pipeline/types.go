package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/lysyi3m/uni-comb/app/source"
	"github.com/lysyi3m/uni-comb/app/university"
)

// ErrRunInProgress is reported when the skip policy rejects an overlapping run.
var ErrRunInProgress = errors.New("refresh already in progress")

type Trigger string

const (
	TriggerStartup   Trigger = "startup"
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
)

type State string

const (
	StateIdle         State = "idle"
	StateExtracting   State = "extracting"
	StateTransforming State = "transforming"
	StateStaging      State = "staging"
)

// OverlapPolicy decides what happens when a run is requested while another
// one is in flight.
type OverlapPolicy string

const (
	// OverlapQueue waits for the in-flight run and then runs.
	OverlapQueue OverlapPolicy = "queue"
	// OverlapSkip rejects the new run with ErrRunInProgress.
	OverlapSkip OverlapPolicy = "skip"
)

func ParseOverlapPolicy(s string) (OverlapPolicy, error) {
	switch OverlapPolicy(s) {
	case OverlapQueue, OverlapSkip:
		return OverlapPolicy(s), nil
	default:
		return "", errors.New("overlap policy must be 'queue' or 'skip'")
	}
}

// RunResult is the outcome of a single orchestrator run.
type RunResult struct {
	Success     bool                    `json:"success"`
	RecordCount int                     `json:"record_count"`
	Error       string                  `json:"error,omitempty"`
	Trigger     Trigger                 `json:"trigger"`
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Stats       university.Stats        `json:"stats"`
	Sources     []source.CountryOutcome `json:"sources,omitempty"`

	err error
}

// Err returns the underlying failure, if any.
func (r RunResult) Err() error {
	return r.err
}

func (r RunResult) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Extractor interface {
	Run(ctx context.Context) (*source.Result, error)
}

type Transformer interface {
	Run(raw []university.RawRecord, now time.Time) ([]university.Record, university.Stats)
}

type Stager interface {
	Write(ctx context.Context, records []university.Record) error
}

var (
	_ Extractor   = (*source.Gateway)(nil)
	_ Transformer = (*university.Normalizer)(nil)
)

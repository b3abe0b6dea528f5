package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/uni-comb/app/pipeline"
)

// TaskSchedulerInterface is the scheduler surface used by the application.
//
//	scheduler, err := NewScheduler(orchestrator, "0 0 * * *")
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	NextRun() time.Time
}

// Refresher runs the pipeline once.
type Refresher interface {
	Run(ctx context.Context, trigger pipeline.Trigger) pipeline.RunResult
}

var _ Refresher = (*pipeline.Orchestrator)(nil)

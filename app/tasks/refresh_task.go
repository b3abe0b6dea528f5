package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/uni-comb/app/pipeline"
)

type RefreshTask struct {
	Task
	Trigger   pipeline.Trigger
	refresher Refresher
	result    *pipeline.RunResult
}

func NewRefreshTask(trigger pipeline.Trigger, refresher Refresher) *RefreshTask {
	return &RefreshTask{
		Task:      NewTask(TaskTypeRefresh),
		Trigger:   trigger,
		refresher: refresher,
	}
}

func (t *RefreshTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	result := t.refresher.Run(ctx, t.Trigger)
	t.result = &result

	if !result.Success {
		return fmt.Errorf("refresh failed: %s", result.Error)
	}

	slog.Info("Task completed",
		"type", t.GetType(),
		"trigger", t.Trigger,
		"duration", t.GetDuration(),
		"records", result.RecordCount)

	return nil
}

// Result returns the run result once the task has executed.
func (t *RefreshTask) Result() *pipeline.RunResult {
	return t.result
}

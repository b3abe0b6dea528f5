package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lysyi3m/uni-comb/app/pipeline"
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

const queueSize = 1

// Scheduler turns cron ticks into refresh tasks. Ticks are evaluated in UTC
// and drained by a single worker, so scheduled runs never overlap each other.
type Scheduler struct {
	refresher Refresher
	cron      *cron.Cron
	entryID   cron.EntryID
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
	stopOnce  sync.Once
}

func NewScheduler(refresher Refresher, schedule string) (*Scheduler, error) {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Scheduler{
		refresher: refresher,
		cron:      cron.New(cron.WithLocation(time.UTC)),
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, queueSize),
	}

	entryID, err := s.cron.AddFunc(schedule, s.enqueueRefresh)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("invalid refresh schedule %q: %w", schedule, err)
	}
	s.entryID = entryID

	return s, nil
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.cron.Start()
	slog.Info("Scheduler started", "next_run", s.NextRun())
}

func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		<-s.cron.Stop().Done()
		s.cancel()
		s.wg.Wait()
	})
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

// NextRun reports when the next scheduled refresh fires, or the zero time
// before Start.
func (s *Scheduler) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

func (s *Scheduler) enqueueRefresh() {
	task := NewRefreshTask(pipeline.TriggerScheduled, s.refresher)
	if err := s.EnqueueTask(task); err != nil {
		slog.Warn("Failed to enqueue RefreshTask", "id", task.GetID(), "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	// Runs are not cancelled by Stop; only the queue stops draining.
	if err := task.Execute(context.WithoutCancel(s.ctx)); err != nil {
		slog.Error("Worker task execution failed", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
	}
}

package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/metrics"
)

// Claimer grants a single scheduler replica the right to execute a task.
// Implemented by lease.Manager.
type Claimer interface {
	Acquire(ctx context.Context, taskID int64) (bool, error)
	Renew(ctx context.Context, taskID int64) (bool, error)
	Release(ctx context.Context, taskID int64) (bool, error)
}

// StatusSink receives the scheduler status after every tick.
type StatusSink interface {
	PublishStatus(ctx context.Context, s Status) error
}

// Request describes a task to schedule.
type Request struct {
	Name         model.TaskName
	Params       any
	Delay        time.Duration
	Interval     time.Duration
	ParentTaskID *int64
	// Source labels the scheduled-task metric: api, driver, interval, rerun, cron.
	Source string
}

// Scheduler writes tasks to the store and runs the polling loop that executes
// them when due.
type Scheduler struct {
	store    Store
	registry *Registry
	executor *Executor
	claimer  Claimer
	sink     StatusSink
	logger   *zap.Logger
	now      func() time.Time

	instance   string
	interval   time.Duration
	batchSize  int
	renewEvery time.Duration

	mu     sync.RWMutex
	status Status

	// next occurrences whose insert failed, retried on the following tick
	unscheduled []*model.Task
}

func NewScheduler(store Store, registry *Registry, executor *Executor, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		store:      store,
		registry:   registry,
		executor:   executor,
		logger:     logger,
		now:        time.Now,
		interval:   time.Second,
		batchSize:  25,
		renewEvery: 10 * time.Second,
	}
}

// WithInterval 设置轮询间隔
func (s *Scheduler) WithInterval(interval time.Duration) *Scheduler {
	s.interval = interval
	return s
}

// WithBatchSize 设置每次轮询最多执行的任务数
func (s *Scheduler) WithBatchSize(batchSize int) *Scheduler {
	s.batchSize = batchSize
	return s
}

// WithClaimer enables per-task leases; leases are renewed every ttl/3 while a task runs.
func (s *Scheduler) WithClaimer(c Claimer, instance string, ttl time.Duration) *Scheduler {
	s.claimer = c
	s.instance = instance
	if ttl > 0 {
		s.renewEvery = ttl / 3
	}
	return s
}

// WithStatusSink mirrors the status to an external store.
func (s *Scheduler) WithStatusSink(sink StatusSink) *Scheduler {
	s.sink = sink
	return s
}

// Schedule validates the request against the registry and stores a pending
// task due after req.Delay. Nothing is executed.
func (s *Scheduler) Schedule(ctx context.Context, req Request) (int64, error) {
	handler, err := s.registry.Lookup(req.Name)
	if err != nil {
		return 0, err
	}

	params, err := marshalParams(req.Params)
	if err != nil {
		return 0, err
	}
	if err := handler.Validate(params); err != nil {
		return 0, err
	}

	delay := req.Delay
	if delay < 0 {
		delay = 0
	}

	task := &model.Task{
		Name:         req.Name,
		Params:       params,
		Date:         s.now().Add(delay),
		ParentTaskID: req.ParentTaskID,
	}
	if req.Interval > 0 {
		ms := req.Interval.Milliseconds()
		task.IntervalMs = &ms
	}

	id, err := s.store.Insert(ctx, task)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}

	source := req.Source
	if source == "" {
		source = "api"
	}
	metrics.IncrementTaskScheduled(string(req.Name), source)
	return id, nil
}

// Rerun schedules a fresh copy of an executed task with ParentTaskID set.
// The original row is not modified and the interval is not carried over.
func (s *Scheduler) Rerun(ctx context.Context, taskID int64) (int64, error) {
	original, err := s.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return 0, fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
		}
		return 0, err
	}
	if !original.Executed() {
		return 0, fmt.Errorf("%w: %d", ErrNotExecuted, taskID)
	}

	parent := original.ID
	return s.Schedule(ctx, Request{
		Name:         original.Name,
		Params:       original.Params,
		ParentTaskID: &parent,
		Source:       "rerun",
	})
}

func marshalParams(params any) (json.RawMessage, error) {
	switch p := params.(type) {
	case nil:
		return json.RawMessage("{}"), nil
	case json.RawMessage:
		if len(p) == 0 {
			return json.RawMessage("{}"), nil
		}
		if !json.Valid(p) {
			return nil, fmt.Errorf("%w: params are not valid JSON", ErrInvalidParams)
		}
		return p, nil
	default:
		raw, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		return raw, nil
	}
}

// Start runs the polling loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting task scheduler",
		zap.Duration("interval", s.interval),
		zap.Int("batch_size", s.batchSize),
		zap.String("instance", s.instance),
	)
	s.setRunning(ctx, true)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.setRunning(context.Background(), false)
			s.logger.Info("Task scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick executes every due task in one batch. A failing task never aborts the batch.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.now()
	s.retryUnscheduled(ctx)

	due, err := s.store.ListDue(ctx, now, s.batchSize)
	if err != nil {
		s.logger.Error("Failed to list due tasks", zap.Error(err))
	}

	invoked := 0
	for i := range due {
		if ctx.Err() != nil {
			break
		}
		if s.run(ctx, &due[i]) {
			invoked++
		}
	}

	metrics.RecordSchedulerTick(now)
	s.mu.Lock()
	s.status.LastExecution = &now
	s.status.ExecutionCount++
	s.status.InvocationCount += int64(invoked)
	s.status.Instance = s.instance
	snapshot := s.status
	s.mu.Unlock()

	s.publish(ctx, snapshot)
}

// run claims, executes and reschedules one task. Returns whether it was executed here.
func (s *Scheduler) run(ctx context.Context, task *model.Task) bool {
	log := s.logger.With(zap.Int64("task_id", task.ID), zap.String("task_name", string(task.Name)))

	if s.claimer != nil {
		ok, err := s.claimer.Acquire(ctx, task.ID)
		if err != nil {
			log.Warn("Failed to acquire task lease", zap.Error(err))
			return false
		}
		if !ok {
			log.Debug("Task claimed by another scheduler")
			return false
		}
		stop := s.keepAlive(ctx, task.ID)
		defer func() {
			stop()
			if _, err := s.claimer.Release(context.Background(), task.ID); err != nil {
				log.Warn("Failed to release task lease", zap.Error(err))
			}
		}()
	}

	result, err := s.executor.Execute(ctx, task.ID)
	if err != nil {
		if errors.Is(err, ErrAlreadyExecuted) {
			log.Debug("Task already executed elsewhere")
		} else {
			log.Error("Task execution failed", zap.Error(err))
		}
		return false
	}

	if task.IntervalMs != nil && *task.IntervalMs > 0 && result != model.TaskResultError {
		next := nextOccurrence(task)
		if err := s.insertNext(ctx, next, log); err != nil {
			s.mu.Lock()
			s.unscheduled = append(s.unscheduled, next)
			s.mu.Unlock()
		}
	}
	return true
}

func nextOccurrence(task *model.Task) *model.Task {
	interval := *task.IntervalMs
	return &model.Task{
		Name:       task.Name,
		Params:     task.Params,
		Date:       task.Date.Add(time.Duration(interval) * time.Millisecond),
		IntervalMs: &interval,
	}
}

// insertNext stores the next occurrence of an executed interval task. It runs
// detached from ctx cancellation since the previous occurrence is already done.
func (s *Scheduler) insertNext(ctx context.Context, next *model.Task, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()

	id, err := s.store.Insert(ctx, next)
	if err != nil {
		metrics.IncrementRescheduleFailure(string(next.Name))
		log.Error("Failed to schedule next occurrence",
			zap.Time("scheduled_date", next.Date),
			zap.Error(err),
		)
		return err
	}
	metrics.IncrementTaskScheduled(string(next.Name), "interval")
	log.Debug("Scheduled next occurrence",
		zap.Int64("next_task_id", id),
		zap.Time("scheduled_date", next.Date),
	)
	return nil
}

// retryUnscheduled re-attempts next occurrences that failed to insert earlier.
func (s *Scheduler) retryUnscheduled(ctx context.Context) {
	s.mu.Lock()
	pending := s.unscheduled
	s.unscheduled = nil
	s.mu.Unlock()

	var failed []*model.Task
	for _, next := range pending {
		log := s.logger.With(zap.String("task_name", string(next.Name)))
		if err := s.insertNext(ctx, next, log); err != nil {
			failed = append(failed, next)
		}
	}
	if len(failed) > 0 {
		s.mu.Lock()
		s.unscheduled = append(failed, s.unscheduled...)
		s.mu.Unlock()
	}
}

// keepAlive renews the task lease until the returned func is called.
func (s *Scheduler) keepAlive(ctx context.Context, taskID int64) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.renewEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if ok, err := s.claimer.Renew(ctx, taskID); err != nil || !ok {
					s.logger.Warn("Task lease renewal failed",
						zap.Int64("task_id", taskID),
						zap.Bool("held", ok),
						zap.Error(err),
					)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) setRunning(ctx context.Context, running bool) {
	s.mu.Lock()
	s.status.Running = running
	s.status.Instance = s.instance
	snapshot := s.status
	s.mu.Unlock()
	s.publish(ctx, snapshot)
}

func (s *Scheduler) publish(ctx context.Context, st Status) {
	if s.sink == nil {
		return
	}
	if err := s.sink.PublishStatus(ctx, st); err != nil {
		s.logger.Warn("Failed to publish scheduler status", zap.Error(err))
	}
}

// Status returns a snapshot of the loop counters.
func (s *Scheduler) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

package tasks

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/logger"
	"volunteer-manager/pkg/metrics"
	"volunteer-manager/pkg/otel"
	"volunteer-manager/pkg/trace"
)

// Store persists task rows. Implemented by repository.TaskRepository.
type Store interface {
	Insert(ctx context.Context, t *model.Task) (int64, error)
	Get(ctx context.Context, id int64) (*model.Task, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]model.Task, error)
	// Complete writes the outcome once; model.ErrConflict if already written.
	Complete(ctx context.Context, t *model.Task, outcome model.TaskOutcome) error
}

const outcomeWriteTimeout = 10 * time.Second

// Executor runs a single stored task through its handler.
type Executor struct {
	store    Store
	registry *Registry
	logger   *zap.Logger
	now      func() time.Time
}

func NewExecutor(store Store, registry *Registry, logger *zap.Logger) *Executor {
	return &Executor{
		store:    store,
		registry: registry,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute loads the task, invokes its handler and writes result, logs and
// duration back exactly once. Handler failures are reported through the
// returned result, not the error.
func (e *Executor) Execute(ctx context.Context, taskID int64) (result model.TaskResult, err error) {
	ctx, _ = trace.Ensure(ctx)
	ctx, span := otel.StartSpan(ctx, "tasks.execute")
	span.SetAttributes(attribute.Int64("task.id", taskID))
	defer func() { otel.EndSpan(span, err) }()

	log := logger.WithTrace(ctx, e.logger).With(zap.Int64("task_id", taskID))

	task, err := e.store.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return "", fmt.Errorf("%w: %d", ErrTaskNotFound, taskID)
		}
		return "", fmt.Errorf("load task %d: %w", taskID, err)
	}
	if task.Executed() {
		return task.Result, fmt.Errorf("%w: %d", ErrAlreadyExecuted, taskID)
	}
	span.SetAttributes(attribute.String("task.name", string(task.Name)))

	outcome := e.invoke(ctx, task)

	// The handler may already have delivered its message, so the outcome is
	// written even when ctx was cancelled during the invocation.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), outcomeWriteTimeout)
	defer cancel()
	if err := e.store.Complete(writeCtx, task, outcome); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return "", fmt.Errorf("%w: %d", ErrAlreadyExecuted, taskID)
		}
		log.Error("Failed to store task outcome", zap.Error(err))
		return "", fmt.Errorf("store outcome of task %d: %w", taskID, err)
	}

	metrics.RecordTaskInvocation(string(task.Name), string(outcome.Result), time.Duration(outcome.InvocationTimeMs)*time.Millisecond)
	log.Info("Task executed",
		zap.String("task_name", string(task.Name)),
		zap.String("result", string(outcome.Result)),
		zap.Int64("invocation_time_ms", outcome.InvocationTimeMs),
	)
	return outcome.Result, nil
}

// invoke runs the handler inside the timing wrapper and recovers panics.
func (e *Executor) invoke(ctx context.Context, task *model.Task) model.TaskOutcome {
	inv := newInvocation(task, e.now)
	start := e.now()

	runErr := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				inv.Log(model.SeverityException, fmt.Sprintf("panic: %v", r), map[string]string{
					"stack": string(debug.Stack()),
				})
				err = fmt.Errorf("panic: %v", r)
			}
		}()

		handler, err := e.registry.Lookup(task.Name)
		if err != nil {
			inv.Log(model.SeverityException, err.Error(), nil)
			return err
		}
		if err := handler.Run(ctx, inv, task.Params); err != nil {
			inv.Log(model.SeverityException, err.Error(), map[string]string{
				"type": fmt.Sprintf("%T", err),
			})
			return err
		}
		return nil
	}()

	elapsed := e.now().Sub(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}

	result := model.TaskResultSuccess
	switch {
	case runErr != nil:
		result = model.TaskResultError
	case inv.maxSeverity() >= model.SeverityWarning.Rank():
		result = model.TaskResultWarning
	}

	return model.TaskOutcome{
		Result:           result,
		Logs:             inv.Logs(),
		InvocationTimeMs: elapsed,
	}
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	mqcontracts "volunteer-manager/contracts/mq"
	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/outbox"
	"volunteer-manager/pkg/trace"
)

type TaskRepository struct {
	db     DB
	outbox *outbox.Repository
	logger *zap.Logger
}

func NewTaskRepository(db DB, outboxRepo *outbox.Repository, logger *zap.Logger) *TaskRepository {
	return &TaskRepository{db: db, outbox: outboxRepo, logger: logger}
}

const taskColumns = `task_id, task_parent_task_id, task_name, task_params, task_scheduled_date,
	       task_scheduled_interval_ms, task_invocation_result, task_invocation_logs,
	       task_invocation_time_ms, task_created_at`

func scanTask(row pgx.Row) (*model.Task, error) {
	var (
		t    model.Task
		logs []byte
	)
	if err := row.Scan(
		&t.ID,
		&t.ParentTaskID,
		&t.Name,
		&t.Params,
		&t.Date,
		&t.IntervalMs,
		&t.Result,
		&logs,
		&t.InvocationTimeMs,
		&t.CreatedAt,
	); err != nil {
		return nil, err
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &t.Logs); err != nil {
			return nil, fmt.Errorf("decode task logs: %w", err)
		}
	}
	return &t, nil
}

func collectTasks(rows pgx.Rows) ([]model.Task, error) {
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// Insert stores a new pending task and returns its id.
func (r *TaskRepository) Insert(ctx context.Context, t *model.Task) (int64, error) {
	query := `
        INSERT INTO tasks (task_parent_task_id, task_name, task_params, task_scheduled_date, task_scheduled_interval_ms)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING task_id, task_created_at
    `
	err := r.db.QueryRow(ctx, query,
		t.ParentTaskID,
		t.Name,
		t.Params,
		t.Date,
		t.IntervalMs,
	).Scan(&t.ID, &t.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to insert task",
			zap.String("task_name", string(t.Name)),
			zap.Error(err),
		)
		return 0, err
	}
	t.Result = model.TaskResultPending

	r.logger.Debug("Task inserted",
		zap.Int64("task_id", t.ID),
		zap.String("task_name", string(t.Name)),
		zap.Time("scheduled_date", t.Date),
	)
	return t.ID, nil
}

func (r *TaskRepository) Get(ctx context.Context, id int64) (*model.Task, error) {
	t, err := scanTask(r.db.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE task_id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListDue returns pending tasks scheduled at or before now, oldest first.
func (r *TaskRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]model.Task, error) {
	rows, err := r.db.Query(ctx, `
        SELECT `+taskColumns+`
        FROM tasks
        WHERE task_invocation_result = 'pending'
        AND task_scheduled_date <= $1
        ORDER BY task_scheduled_date ASC, task_id ASC
        LIMIT $2
    `, now, limit)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// List returns tasks for the admin listing, newest first.
func (r *TaskRepository) List(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	if f.Limit <= 0 {
		f.Limit = 50
	}
	rows, err := r.db.Query(ctx, `
        SELECT `+taskColumns+`
        FROM tasks
        WHERE ($1::TEXT = '' OR task_name = $1)
        AND ($2::TEXT = '' OR task_invocation_result = $2)
        ORDER BY task_id DESC
        LIMIT $3 OFFSET $4
    `, string(f.Name), string(f.Result), f.Limit, f.Offset)
	if err != nil {
		return nil, err
	}
	return collectTasks(rows)
}

// Complete writes the outcome of a pending task and enqueues a task.finished
// event in the same transaction. Returns model.ErrConflict when the task was
// already executed.
func (r *TaskRepository) Complete(ctx context.Context, t *model.Task, outcome model.TaskOutcome) error {
	logs, err := json.Marshal(outcome.Logs)
	if err != nil {
		return fmt.Errorf("encode task logs: %w", err)
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        UPDATE tasks
        SET task_invocation_result = $1, task_invocation_logs = $2, task_invocation_time_ms = $3
        WHERE task_id = $4 AND task_invocation_result = 'pending'
    `, outcome.Result, logs, outcome.InvocationTimeMs, t.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrConflict
	}

	payload := mqcontracts.TaskFinishedPayload{
		TaskID:           t.ID,
		ParentTaskID:     t.ParentTaskID,
		TaskName:         string(t.Name),
		Result:           string(outcome.Result),
		InvocationTimeMs: outcome.InvocationTimeMs,
		TraceID:          trace.FromContext(ctx),
		FinishedAt:       time.Now().UTC(),
	}
	if err := outbox.InsertEventInTx(ctx, tx, r.outbox, "task", &t.ID, mqcontracts.RoutingKeyTaskFinished, payload); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	r.logger.Info("Task outcome stored",
		zap.Int64("task_id", t.ID),
		zap.String("result", string(outcome.Result)),
		zap.Int64("invocation_time_ms", outcome.InvocationTimeMs),
	)
	return nil
}

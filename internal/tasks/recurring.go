package tasks

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/config"
)

// Recurring schedules configured tasks on cron expressions (with seconds field).
type Recurring struct {
	cron      *cron.Cron
	scheduler *Scheduler
	logger    *zap.Logger
}

// NewRecurring validates every entry before anything is registered.
func NewRecurring(ctx context.Context, scheduler *Scheduler, entries []config.RecurringTask, logger *zap.Logger) (*Recurring, error) {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Recurring{
		cron:      cron.New(cron.WithParser(parser)),
		scheduler: scheduler,
		logger:    logger,
	}

	for _, entry := range entries {
		name := model.TaskName(entry.Task)
		handler, err := scheduler.registry.Lookup(name)
		if err != nil {
			return nil, err
		}
		raw, err := marshalParams(entry.Params)
		if err != nil {
			return nil, err
		}
		if err := handler.Validate(raw); err != nil {
			return nil, fmt.Errorf("recurring %s: %w", entry.Task, err)
		}
		schedule, err := parser.Parse(entry.Cron)
		if err != nil {
			return nil, fmt.Errorf("recurring %s: invalid cron %q: %w", entry.Task, entry.Cron, err)
		}

		params := entry.Params
		r.cron.Schedule(schedule, cron.FuncJob(func() {
			id, err := scheduler.Schedule(ctx, Request{Name: name, Params: params, Source: "cron"})
			if err != nil {
				logger.Error("Failed to schedule recurring task",
					zap.String("task_name", string(name)),
					zap.Error(err),
				)
				return
			}
			logger.Info("Recurring task scheduled",
				zap.String("task_name", string(name)),
				zap.Int64("task_id", id),
			)
		}))
	}
	return r, nil
}

func (r *Recurring) Start() {
	r.cron.Start()
}

// Stop waits for running jobs to finish.
func (r *Recurring) Stop() {
	<-r.cron.Stop().Done()
}

// Len returns the number of registered entries.
func (r *Recurring) Len() int {
	return len(r.cron.Entries())
}

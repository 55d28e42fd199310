package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"volunteer-manager/internal/model"
)

// Registered task names.
const (
	SendEmailTask    model.TaskName = "SendEmailTask"
	SendSmsTask      model.TaskName = "SendSmsTask"
	SendWhatsappTask model.TaskName = "SendWhatsappTask"
	NoopTask         model.TaskName = "NoopTask"
)

var (
	ErrUnknownTask     = errors.New("unknown task")
	ErrInvalidParams   = errors.New("invalid task params")
	ErrTaskNotFound    = errors.New("task not found")
	ErrAlreadyExecuted = errors.New("task already executed")
	ErrNotExecuted     = errors.New("task has not been executed yet")
)

// TaskNames lists every task name that must have a handler.
func TaskNames() []model.TaskName {
	return []model.TaskName{SendEmailTask, SendSmsTask, SendWhatsappTask, NoopTask}
}

// Handler runs one invocation of a task.
type Handler interface {
	// Validate is called when the task is scheduled.
	Validate(params json.RawMessage) error
	Run(ctx context.Context, inv *Invocation, params json.RawMessage) error
}

// Func builds a Handler that decodes params into P. validate may be nil.
func Func[P any](validate func(P) error, run func(ctx context.Context, inv *Invocation, params P) error) Handler {
	return funcHandler[P]{validate: validate, run: run}
}

type funcHandler[P any] struct {
	validate func(P) error
	run      func(ctx context.Context, inv *Invocation, params P) error
}

func (h funcHandler[P]) decode(raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if h.validate != nil {
		if err := h.validate(p); err != nil {
			return p, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}
	return p, nil
}

func (h funcHandler[P]) Validate(raw json.RawMessage) error {
	_, err := h.decode(raw)
	return err
}

func (h funcHandler[P]) Run(ctx context.Context, inv *Invocation, raw json.RawMessage) error {
	p, err := h.decode(raw)
	if err != nil {
		return err
	}
	return h.run(ctx, inv, p)
}

// Handlers has one field per task name. NewRegistry rejects a nil field.
type Handlers struct {
	SendEmail    Handler
	SendSms      Handler
	SendWhatsapp Handler
	Noop         Handler
}

// Registry resolves task names to handlers.
type Registry struct {
	handlers Handlers
}

// NewRegistry checks that every name in TaskNames has a handler.
func NewRegistry(h Handlers) (*Registry, error) {
	r := &Registry{handlers: h}
	for _, name := range TaskNames() {
		handler, err := r.Lookup(name)
		if err != nil {
			return nil, err
		}
		if handler == nil {
			return nil, fmt.Errorf("no handler registered for %s", name)
		}
	}
	return r, nil
}

// Lookup returns the handler for name, or ErrUnknownTask.
func (r *Registry) Lookup(name model.TaskName) (Handler, error) {
	switch name {
	case SendEmailTask:
		return r.handlers.SendEmail, nil
	case SendSmsTask:
		return r.handlers.SendSms, nil
	case SendWhatsappTask:
		return r.handlers.SendWhatsapp, nil
	case NoopTask:
		return r.handlers.Noop, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
	}
}

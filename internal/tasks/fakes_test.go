package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
)

type memStore struct {
	mu        sync.Mutex
	tasks     map[int64]*model.Task
	nextID    int64
	completes int

	// insertErr fails every Insert while set.
	insertErr error
}

func newMemStore() *memStore {
	return &memStore{tasks: map[int64]*model.Task{}}
}

func cloneTask(t *model.Task) *model.Task {
	c := *t
	c.Params = append(json.RawMessage(nil), t.Params...)
	c.Logs = append([]model.TaskLogEntry(nil), t.Logs...)
	return &c
}

func (m *memStore) Insert(_ context.Context, t *model.Task) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return 0, m.insertErr
	}
	m.nextID++
	t.ID = m.nextID
	t.Result = model.TaskResultPending
	m.tasks[t.ID] = cloneTask(t)
	return t.ID, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneTask(t), nil
}

func (m *memStore) ListDue(_ context.Context, now time.Time, limit int) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var due []model.Task
	for _, t := range m.tasks {
		if t.Result == model.TaskResultPending && !t.Date.After(now) {
			due = append(due, *cloneTask(t))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].Date.Equal(due[j].Date) {
			return due[i].ID < due[j].ID
		}
		return due[i].Date.Before(due[j].Date)
	})
	if len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memStore) Complete(ctx context.Context, t *model.Task, o model.TaskOutcome) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.tasks[t.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Executed() {
		return model.ErrConflict
	}
	m.completes++
	ms := o.InvocationTimeMs
	stored.Result = o.Result
	stored.Logs = o.Logs
	stored.InvocationTimeMs = &ms
	return nil
}

func (m *memStore) failInserts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertErr = err
}

func (m *memStore) byName(name model.TaskName) []*model.Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Task
	for id := int64(1); id <= m.nextID; id++ {
		if t, ok := m.tasks[id]; ok && t.Name == name {
			out = append(out, cloneTask(t))
		}
	}
	return out
}

type denyClaimer struct {
	deny     map[int64]bool
	released []int64
}

func (c *denyClaimer) Acquire(_ context.Context, id int64) (bool, error) { return !c.deny[id], nil }
func (c *denyClaimer) Renew(context.Context, int64) (bool, error)       { return true, nil }
func (c *denyClaimer) Release(_ context.Context, id int64) (bool, error) {
	c.released = append(c.released, id)
	return true, nil
}

type recordingSink struct {
	statuses []Status
}

func (r *recordingSink) PublishStatus(_ context.Context, s Status) error {
	r.statuses = append(r.statuses, s)
	return nil
}

func failing(msg string) Handler {
	return Func(nil, func(context.Context, *Invocation, json.RawMessage) error {
		return errors.New(msg)
	})
}

type harness struct {
	store     *memStore
	registry  *Registry
	executor  *Executor
	scheduler *Scheduler
	clock     time.Time
}

// newHarness registers noop handlers for every name, then applies overrides.
func newHarness(t *testing.T, override func(h *Handlers)) *harness {
	t.Helper()
	handlers := Handlers{
		SendEmail:    NewNoopHandler(),
		SendSms:      NewNoopHandler(),
		SendWhatsapp: NewNoopHandler(),
		Noop:         NewNoopHandler(),
	}
	if override != nil {
		override(&handlers)
	}
	registry, err := NewRegistry(handlers)
	require.NoError(t, err)

	h := &harness{
		store:    newMemStore(),
		registry: registry,
		clock:    time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
	h.executor = NewExecutor(h.store, registry, zap.NewNop())
	h.scheduler = NewScheduler(h.store, registry, h.executor, zap.NewNop())
	h.scheduler.now = func() time.Time { return h.clock }
	return h
}

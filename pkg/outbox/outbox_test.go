package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"volunteer-manager/pkg/trace"
)

type memoryStore struct {
	events map[int64]*Event
	sent   []int64
	failed []int64
}

func newMemoryStore(events ...*Event) *memoryStore {
	s := &memoryStore{events: map[int64]*Event{}}
	for _, e := range events {
		s.events[e.ID] = e
	}
	return s
}

func (s *memoryStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	var out []*Event
	for id := int64(1); id <= int64(len(s.events)) && len(out) < limit; id++ {
		if e, ok := s.events[id]; ok && e.Status == StatusPending {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) GetEventByID(_ context.Context, id int64) (*Event, error) {
	e, ok := s.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *memoryStore) GetFailedEvents(_ context.Context, _ int) ([]*Event, error) {
	var out []*Event
	for _, e := range s.events {
		if e.Status == StatusFailed {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memoryStore) MarkAsSent(_ context.Context, id int64) error {
	s.events[id].Status = StatusSent
	s.sent = append(s.sent, id)
	return nil
}

func (s *memoryStore) MarkAsFailed(_ context.Context, id int64, maxRetries int) error {
	e := s.events[id]
	e.RetryCount++
	e.Status, e.NextRetryAt = retryState(e.RetryCount, maxRetries, time.Now())
	s.failed = append(s.failed, id)
	return nil
}

type recordingPublisher struct {
	routingKeys []string
	traceIDs    []string
	failOn      string
}

func (p *recordingPublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if routingKey == p.failOn {
		return errors.New("channel closed")
	}
	p.routingKeys = append(p.routingKeys, routingKey)
	p.traceIDs = append(p.traceIDs, trace.FromContext(ctx))
	return nil
}

func event(id int64, routingKey string, payload any) *Event {
	raw, _ := json.Marshal(payload)
	return &Event{ID: id, RoutingKey: routingKey, Payload: raw, Status: StatusPending}
}

func TestDispatcherPublishesPendingEvents(t *testing.T) {
	store := newMemoryStore(
		event(1, "task.finished", map[string]any{"task_id": 1, "trace_id": "abc"}),
		event(2, "notification.created", map[string]any{"notification_id": 9}),
	)
	pub := &recordingPublisher{}

	sent := NewDispatcher(store, pub, zap.NewNop()).processPendingEvents(context.Background())

	assert.Equal(t, 2, sent)
	assert.Equal(t, []string{"task.finished", "notification.created"}, pub.routingKeys)
	assert.Equal(t, []string{"abc", ""}, pub.traceIDs)
	assert.Equal(t, StatusSent, store.events[1].Status)
	assert.Equal(t, StatusSent, store.events[2].Status)
}

func TestDispatcherMarksFailedPublishes(t *testing.T) {
	store := newMemoryStore(
		event(1, "task.finished", map[string]any{"task_id": 1}),
		event(2, "notification.created", map[string]any{"notification_id": 9}),
	)
	pub := &recordingPublisher{failOn: "task.finished"}

	d := NewDispatcher(store, pub, zap.NewNop()).WithMaxRetries(1)
	sent := d.processPendingEvents(context.Background())

	assert.Equal(t, 1, sent)
	assert.Equal(t, []int64{1}, store.failed)
	assert.Equal(t, StatusFailed, store.events[1].Status)
	assert.Equal(t, StatusSent, store.events[2].Status)
}

func TestRetryState(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	status, next := retryState(2, 5, now)
	assert.Equal(t, StatusPending, status)
	require.NotNil(t, next)
	assert.Equal(t, now.Add(10*time.Second), *next)

	status, next = retryState(5, 5, now)
	assert.Equal(t, StatusFailed, status)
	assert.Nil(t, next)
}

func TestReplayFailedEvents(t *testing.T) {
	failed := event(3, "task.finished", map[string]any{"task_id": 3})
	failed.Status = StatusFailed
	store := newMemoryStore(failed)
	pub := &recordingPublisher{}

	n, err := NewReplayService(store, pub, zap.NewNop()).ReplayFailedEvents(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, StatusSent, store.events[3].Status)
}

func TestReplayUnknownEvent(t *testing.T) {
	err := NewReplayService(newMemoryStore(), &recordingPublisher{}, zap.NewNop()).
		ReplayEvent(context.Background(), 42)
	assert.ErrorIs(t, err, ErrEventNotFound)
}

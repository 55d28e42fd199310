package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	mqcontracts "volunteer-manager/contracts/mq"
)

type memGuard struct {
	seen     map[int64]bool
	released []int64
}

func (g *memGuard) AcquireOnce(_ context.Context, _ string, id int64) bool {
	if g.seen == nil {
		g.seen = map[int64]bool{}
	}
	if g.seen[id] {
		return false
	}
	g.seen[id] = true
	return true
}

func (g *memGuard) Release(_ context.Context, _ string, id int64) {
	delete(g.seen, id)
	g.released = append(g.released, id)
}

type memMarker struct {
	delivered []int64
	err       error
}

func (m *memMarker) MarkDelivered(_ context.Context, id int64) error {
	if m.err != nil {
		return m.err
	}
	m.delivered = append(m.delivered, id)
	return nil
}

type memBroadcaster struct {
	sent map[int64][][]byte
}

func (b *memBroadcaster) Broadcast(_ context.Context, userID int64, payload []byte) error {
	if b.sent == nil {
		b.sent = map[int64][][]byte{}
	}
	b.sent[userID] = append(b.sent[userID], payload)
	return nil
}

func payload(t *testing.T, id, userID int64) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.NotificationCreatedPayload{NotificationID: id, UserID: userID, Title: "hi"})
	require.NoError(t, err)
	return raw
}

func TestNotificationDeliverHandler(t *testing.T) {
	marker := &memMarker{}
	broadcaster := &memBroadcaster{}
	guard := &memGuard{}
	h := NewNotificationDeliverHandler(marker, broadcaster, guard, zap.NewNop())

	require.NoError(t, h.HandleNotificationCreated(context.Background(), payload(t, 10, 7)))
	require.NoError(t, h.HandleNotificationCreated(context.Background(), payload(t, 10, 7)))

	assert.Equal(t, []int64{10}, marker.delivered)
	assert.Len(t, broadcaster.sent[7], 1)
	assert.Equal(t, "notifications:7", ChannelFor(7))
}

func TestNotificationDeliverHandlerBadPayload(t *testing.T) {
	h := NewNotificationDeliverHandler(&memMarker{}, &memBroadcaster{}, &memGuard{}, zap.NewNop())
	assert.NoError(t, h.HandleNotificationCreated(context.Background(), json.RawMessage(`{not json`)))
}

func TestNotificationDeliverHandlerRetryableFailure(t *testing.T) {
	marker := &memMarker{err: context.DeadlineExceeded}
	guard := &memGuard{}
	h := NewNotificationDeliverHandler(marker, &memBroadcaster{}, guard, zap.NewNop())

	err := h.HandleNotificationCreated(context.Background(), payload(t, 11, 7))
	require.Error(t, err)
	assert.Equal(t, []int64{11}, guard.released)

	marker.err = nil
	require.NoError(t, h.HandleNotificationCreated(context.Background(), payload(t, 11, 7)))
	assert.Equal(t, []int64{11}, marker.delivered)
}

func TestNotificationDeliverHandlerPermanentFailure(t *testing.T) {
	marker := &memMarker{err: errors.New("duplicate key value violates unique constraint")}
	guard := &memGuard{}
	h := NewNotificationDeliverHandler(marker, &memBroadcaster{}, guard, zap.NewNop())

	assert.NoError(t, h.HandleNotificationCreated(context.Background(), payload(t, 12, 7)))
	assert.Empty(t, guard.released)
}

func TestTaskFinishedAuditHandler(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := NewTaskFinishedAuditHandler(zap.New(core))

	raw, err := json.Marshal(mqcontracts.TaskFinishedPayload{TaskID: 3, TaskName: "SendEmailTask", Result: "error"})
	require.NoError(t, err)
	require.NoError(t, h.HandleTaskFinished(context.Background(), raw))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.ErrorLevel, entries[0].Level)
	assert.Equal(t, int64(3), entries[0].ContextMap()["task_id"])
}

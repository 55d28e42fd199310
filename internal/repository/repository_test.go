package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"volunteer-manager/internal/model"
	"volunteer-manager/pkg/outbox"
)

var recipientColumns = []string{
	"user_id", "name", "short_name", "email_address", "phone_number",
	"email", "notification", "sms", "whatsapp",
}

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

const subscribersQuery = `(?s)FROM subscriptions s.*` +
	`AND \(\$2::BIGINT IS NULL OR s\.subscription_type_id = \$2\).*` +
	`AND u\.user_state <> 'revoked'.*` +
	`subscription_channel_whatsapp\)`

func TestSubscribersForIgnoresTypeIDOfUnscopedType(t *testing.T) {
	mock := newMock(t)
	repo := NewSubscriptionRepository(mock, zap.NewNop())

	mock.ExpectQuery(subscribersQuery).
		WithArgs(model.SubscriptionHelp, (*int64)(nil)).
		WillReturnRows(pgxmock.NewRows(recipientColumns).
			AddRow(int64(7), "Ada Lovelace", "Ada", "ada@example.com", "", true, false, false, false))

	typeID := int64(5)
	got, err := repo.SubscribersFor(context.Background(), model.SubscriptionHelp, &typeID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, model.Recipient{
		UserID:       7,
		Name:         "Ada Lovelace",
		ShortName:    "Ada",
		EmailAddress: "ada@example.com",
		Channels:     model.ChannelFlags{Email: true},
	}, got[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSubscribersForNarrowsScopedType(t *testing.T) {
	mock := newMock(t)
	repo := NewSubscriptionRepository(mock, zap.NewNop())

	eventID := int64(42)
	mock.ExpectQuery(subscribersQuery).
		WithArgs(model.SubscriptionApplication, &eventID).
		WillReturnRows(pgxmock.NewRows(recipientColumns))

	got, err := repo.SubscribersFor(context.Background(), model.SubscriptionApplication, &eventID)
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSubscriptionKeyedOnCoalescedTypeID(t *testing.T) {
	mock := newMock(t)
	repo := NewSubscriptionRepository(mock, zap.NewNop())

	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (subscription_user_id, subscription_type, (COALESCE(subscription_type_id, 0)))`)).
		WithArgs(int64(7), model.SubscriptionHelp, (*int64)(nil), true, false, true, false).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Upsert(context.Background(), model.Subscription{
		UserID:   7,
		Type:     model.SubscriptionHelp,
		Channels: model.ChannelFlags{Email: true, SMS: true},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

const completeUpdate = `WHERE task_id = \$4 AND task_invocation_result = 'pending'`

func TestCompleteOnlyWritesPendingTask(t *testing.T) {
	mock := newMock(t)
	repo := NewTaskRepository(mock, outbox.NewRepository(nil), zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectExec(completeUpdate).
		WithArgs(model.TaskResultSuccess, pgxmock.AnyArg(), int64(12), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := repo.Complete(context.Background(), &model.Task{ID: 3, Name: "NoopTask"}, model.TaskOutcome{
		Result:           model.TaskResultSuccess,
		InvocationTimeMs: 12,
	})
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteEnqueuesTaskFinishedInSameTransaction(t *testing.T) {
	mock := newMock(t)
	repo := NewTaskRepository(mock, outbox.NewRepository(nil), zap.NewNop())
	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(completeUpdate).
		WithArgs(model.TaskResultError, pgxmock.AnyArg(), int64(40), int64(3)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery(`INSERT INTO outbox_events`).
		WithArgs("task", pgxmock.AnyArg(), "task.finished", pgxmock.AnyArg(), outbox.StatusPending).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(1), now, now))
	mock.ExpectCommit()

	err := repo.Complete(context.Background(), &model.Task{ID: 3, Name: "NoopTask"}, model.TaskOutcome{
		Result:           model.TaskResultError,
		InvocationTimeMs: 40,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

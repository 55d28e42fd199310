package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"volunteer-manager/internal/handler"
	"volunteer-manager/internal/model"
	"volunteer-manager/internal/notify"
	"volunteer-manager/internal/service/auth"
	"volunteer-manager/internal/tasks"
	"volunteer-manager/internal/util"
	"volunteer-manager/pkg/outbox"
)

const secret = "test-secret"

type fakeAuth struct{}

func (fakeAuth) Login(_ context.Context, email, password string) (string, error) {
	if email == "admin@example.org" && password == "pw" {
		return util.GenerateJWT(1, "admin", secret, time.Hour)
	}
	return "", auth.ErrInvalidCredentials
}

type fakeTasks struct {
	tasks     map[int64]*model.Task
	scheduled []tasks.Request
}

func (f *fakeTasks) Get(_ context.Context, id int64) (*model.Task, error) {
	if t, ok := f.tasks[id]; ok {
		return t, nil
	}
	return nil, model.ErrNotFound
}

func (f *fakeTasks) List(_ context.Context, filter model.TaskFilter) ([]model.Task, error) {
	var out []model.Task
	for _, t := range f.tasks {
		if filter.Name == "" || t.Name == filter.Name {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTasks) Schedule(_ context.Context, req tasks.Request) (int64, error) {
	if req.Name != tasks.NoopTask {
		return 0, fmt.Errorf("%w: %q", tasks.ErrUnknownTask, req.Name)
	}
	f.scheduled = append(f.scheduled, req)
	return 77, nil
}

func (f *fakeTasks) Rerun(_ context.Context, id int64) (int64, error) {
	t, ok := f.tasks[id]
	if !ok {
		return 0, tasks.ErrTaskNotFound
	}
	if !t.Executed() {
		return 0, tasks.ErrNotExecuted
	}
	return 78, nil
}

type fakePublications struct{}

func (fakePublications) Get(_ context.Context, id int64) (*model.Publication, error) {
	if id == 5 {
		return &model.Publication{ID: 5, Type: model.SubscriptionTest}, nil
	}
	return nil, model.ErrNotFound
}

func (fakePublications) List(context.Context, int, int) ([]model.Publication, error) {
	return []model.Publication{{ID: 5, Type: model.SubscriptionTest}}, nil
}

type fakeDeliveries struct{ channel model.Channel }

func (f *fakeDeliveries) List(_ context.Context, channel model.Channel, _, _ int) ([]model.Delivery, error) {
	f.channel = channel
	return []model.Delivery{}, nil
}

type fakePublisher struct{ got notify.Request }

func (f *fakePublisher) PublishReport(_ context.Context, req notify.Request) (notify.Report, error) {
	f.got = req
	return notify.Report{PublicationID: 9, Subscribers: 2, Delivered: 3}, nil
}

type fakeReplayer struct{}

func (fakeReplayer) ReplayEvent(_ context.Context, id int64) error {
	if id == 404 {
		return outbox.ErrEventNotFound
	}
	return nil
}

func (fakeReplayer) ReplayFailedEvents(context.Context, int) (int, error) { return 3, nil }

type fakeUserStores struct {
	subs []model.Subscription
}

func (f *fakeUserStores) ListForUser(_ context.Context, userID int64) ([]model.Subscription, error) {
	var out []model.Subscription
	for _, s := range f.subs {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeUserStores) Upsert(_ context.Context, s model.Subscription) error {
	f.subs = append(f.subs, s)
	return nil
}

type fakeNotifications struct{ read []int64 }

func (f *fakeNotifications) ListForUser(context.Context, int64, int) ([]model.Notification, error) {
	return []model.Notification{{ID: 1, Title: "hi"}}, nil
}

func (f *fakeNotifications) MarkRead(_ context.Context, _ int64, id int64) error {
	if id != 1 {
		return model.ErrNotFound
	}
	f.read = append(f.read, id)
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	router        *Router
	tasks         *fakeTasks
	publisher     *fakePublisher
	deliveries    *fakeDeliveries
	subscriptions *fakeUserStores
	notifications *fakeNotifications
}

func newTestServer(t *testing.T, ready Pinger) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	last := time.Now().Add(-10 * time.Minute)
	s := &testServer{
		tasks: &fakeTasks{tasks: map[int64]*model.Task{
			1: {ID: 1, Name: tasks.NoopTask, Result: model.TaskResultSuccess},
			2: {ID: 2, Name: tasks.NoopTask, Result: model.TaskResultPending},
		}},
		publisher:     &fakePublisher{},
		deliveries:    &fakeDeliveries{},
		subscriptions: &fakeUserStores{},
		notifications: &fakeNotifications{},
	}
	s.router = NewRouter(Handlers{
		Auth:      handler.NewAuthHandler(fakeAuth{}, logger),
		Tasks:     handler.NewTaskHandler(s.tasks, s.tasks, logger),
		Scheduler: handler.NewSchedulerHandler(func(context.Context) (tasks.Status, error) {
			return tasks.Status{LastExecution: &last, ExecutionCount: 12}, nil
		}, 5*time.Minute, logger),
		Publications: handler.NewPublicationHandler(fakePublications{}, s.deliveries, s.publisher, logger),
		Admin:        handler.NewAdminHandler(fakeReplayer{}, logger),
		User:         handler.NewUserHandler(s.subscriptions, s.notifications, logger),
	}, secret, ready)
	return s
}

func (s *testServer) do(t *testing.T, method, path, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := util.GenerateJWT(1, role, secret, time.Hour)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t, pinger{})
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/readyz", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/metrics", "", nil).Code)

	down := newTestServer(t, pinger{err: errors.New("db down")})
	assert.Equal(t, http.StatusInternalServerError, down.do(t, "GET", "/readyz", "", nil).Code)
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "POST", "/login", "", map[string]string{"email": "admin@example.org", "password": "pw"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, decode(t, w)["token"])

	w = s.do(t, "POST", "/login", "", map[string]string{"email": "admin@example.org", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, "POST", "/login", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequirePermission(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, "GET", "/admin/tasks", "", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, "GET", "/admin/tasks", "volunteer", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/admin/tasks", "senior", nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, "POST", "/admin/tasks", "senior", map[string]any{"task_name": "NoopTask"}).Code)
}

func TestScheduleTask(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "POST", "/admin/tasks", "admin", map[string]any{
		"task_name":   "NoopTask",
		"task_params": map[string]any{"festivalId": 42},
		"delay_ms":    1500,
		"interval_ms": 60000,
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 77, decode(t, w)["task_id"])

	require.Len(t, s.tasks.scheduled, 1)
	req := s.tasks.scheduled[0]
	assert.Equal(t, 1500*time.Millisecond, req.Delay)
	assert.Equal(t, time.Minute, req.Interval)
	assert.JSONEq(t, `{"festivalId":42}`, string(req.Params.(json.RawMessage)))

	w = s.do(t, "POST", "/admin/tasks", "admin", map[string]any{"task_name": "NoSuchTask"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskLookupAndRerun(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/admin/tasks/1", "admin", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/admin/tasks/99", "admin", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, "GET", "/admin/tasks/abc", "admin", nil).Code)

	w := s.do(t, "POST", "/admin/tasks/1/rerun", "admin", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 78, body["task_id"])
	assert.EqualValues(t, 1, body["parent_task_id"])

	assert.Equal(t, http.StatusConflict, s.do(t, "POST", "/admin/tasks/2/rerun", "admin", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "POST", "/admin/tasks/99/rerun", "admin", nil).Code)
}

func TestSchedulerStatusAlert(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "GET", "/admin/scheduler", "senior", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["not_running"])
}

func TestPublicationRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/admin/publications", "senior", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/admin/publications/5", "senior", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "GET", "/admin/publications/6", "senior", nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(t, "POST", "/admin/publications/test", "senior", map[string]string{"message": "x"}).Code)
	w := s.do(t, "POST", "/admin/publications/test", "admin", map[string]string{"message": "ping"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, notify.TestMessage{Message: "ping"}, s.publisher.got.Message)
	require.NotNil(t, s.publisher.got.SourceUserID)
	assert.Equal(t, int64(1), *s.publisher.got.SourceUserID)

	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/admin/deliveries?channel=sms", "senior", nil).Code)
	assert.Equal(t, model.ChannelSMS, s.deliveries.channel)
	assert.Equal(t, http.StatusBadRequest, s.do(t, "GET", "/admin/deliveries?channel=pigeon", "senior", nil).Code)
}

func TestPublishTypedMessages(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "POST", "/admin/publications", "admin", map[string]any{
		"type": "Application",
		"message": map[string]any{
			"event_id":  42,
			"event":     "AnimeCon 2026",
			"team":      "Stewards",
			"applicant": "Yuki",
			"link":      "https://animecon.nl/apply/42",
		},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, notify.ApplicationMessage{
		EventID:       42,
		EventName:     "AnimeCon 2026",
		TeamName:      "Stewards",
		ApplicantName: "Yuki",
		Link:          "https://animecon.nl/apply/42",
	}, s.publisher.got.Message)
	require.NotNil(t, s.publisher.got.TypeID)
	assert.Equal(t, int64(42), *s.publisher.got.TypeID)

	w = s.do(t, "POST", "/admin/publications", "admin", map[string]any{
		"type":    "Help",
		"type_id": 3,
		"message": map[string]any{"requester": "Ada", "location": "Hall B", "description": "Queue overflow"},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, notify.HelpMessage{RequesterName: "Ada", Location: "Hall B", Description: "Queue overflow"}, s.publisher.got.Message)
	assert.EqualValues(t, 9, decode(t, w)["report"].(map[string]any)["publication_id"])

	w = s.do(t, "POST", "/admin/publications", "admin", map[string]any{
		"type":    "Registration",
		"message": map[string]any{"event_id": "not a number"},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/admin/publications", "admin", map[string]any{"type": "Gossip", "message": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, "POST", "/admin/publications", "senior", map[string]any{"type": "Test", "message": map[string]any{"message": "x"}})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestOutboxReplayRoutes(t *testing.T) {
	s := newTestServer(t, nil)

	assert.Equal(t, http.StatusOK, s.do(t, "POST", "/admin/outbox/replay?id=3", "admin", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "POST", "/admin/outbox/replay?id=404", "admin", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, "POST", "/admin/outbox/replay", "admin", nil).Code)

	w := s.do(t, "POST", "/admin/outbox/replay-failed", "admin", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["success_count"])
}

func TestSubscriptionsAndNotifications(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, "PUT", "/subscriptions", "volunteer", map[string]any{
		"type":     "Help",
		"type_id":  12,
		"channels": map[string]bool{"email": true, "sms": true},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, s.subscriptions.subs, 1)
	sub := s.subscriptions.subs[0]
	assert.Equal(t, model.SubscriptionHelp, sub.Type)
	assert.Nil(t, sub.TypeID)
	assert.True(t, sub.Channels.Email)
	assert.True(t, sub.Channels.SMS)

	assert.Equal(t, http.StatusBadRequest, s.do(t, "PUT", "/subscriptions", "volunteer", map[string]any{"type": "Gossip"}).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/subscriptions", "volunteer", nil).Code)

	assert.Equal(t, http.StatusOK, s.do(t, "GET", "/notifications", "volunteer", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(t, "POST", "/notifications/1/read", "volunteer", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, "POST", "/notifications/2/read", "volunteer", nil).Code)
	assert.Equal(t, []int64{1}, s.notifications.read)
}

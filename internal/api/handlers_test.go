package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/api"
	"github.com/phrazzld/imggen-api/internal/api/middleware"
	"github.com/phrazzld/imggen-api/internal/domain"
	"github.com/phrazzld/imggen-api/internal/mocks"
	"github.com/phrazzld/imggen-api/internal/service"
	"github.com/phrazzld/imggen-api/internal/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	store  *mocks.MockTaskStore
	queue  *mocks.MockQueue
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	s := mocks.NewMockTaskStore()
	q := &mocks.MockQueue{}
	svc, err := service.NewTaskService(s, q, service.TaskServiceConfig{
		DefaultModel:    "model-a",
		DeadlineHorizon: 2 * time.Minute,
	}, setupTestLogger())
	require.NoError(t, err)

	h := api.NewTaskHandler(svc, setupTestLogger())
	owner := middleware.NewAnonOwner(false)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware(setupTestLogger()))
	r.With(owner.Ensure).Post("/api/tasks", h.CreateTask)
	r.With(owner.Identify).Get("/api/tasks", h.ListTasks)
	r.With(owner.Identify).Get("/api/tasks/{taskId}", h.GetTask)

	return &testEnv{store: s, queue: q, router: r}
}

func (e *testEnv) do(t *testing.T, method, path, body, ownerID string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	r := httptest.NewRequest(method, path, rd)
	if ownerID != "" {
		r.AddCookie(&http.Cookie{Name: middleware.OwnerCookieName, Value: ownerID})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v))
	return v
}

func TestCreateTask_Accepted(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/tasks", `{"prompt":"  a red fox  "}`, "")

	require.Equal(t, http.StatusAccepted, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1, "owner cookie issued on create")

	resp := decode[api.CreateTaskResponse](t, w)
	assert.Equal(t, "queued", resp.Status)

	id := uuid.MustParse(resp.TaskID)
	stored := env.store.Get(id)
	require.NotNil(t, stored)
	assert.Equal(t, "a red fox", stored.Prompt)
	assert.Equal(t, cookies[0].Value, stored.OwnerID)
	assert.Equal(t, []uuid.UUID{id}, env.queue.Enqueued())
}

func TestCreateTask_Errors(t *testing.T) {
	t.Parallel()

	owner := uuid.NewString()

	tests := []struct {
		name       string
		body       string
		enqueueErr error
		wantStatus int
	}{
		{name: "malformed body", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "missing prompt", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "blank prompt", body: `{"prompt":"   "}`, wantStatus: http.StatusBadRequest},
		{name: "prompt too long", body: fmt.Sprintf(`{"prompt":%q}`, strings.Repeat("x", domain.MaxPromptLength+1)), wantStatus: http.StatusBadRequest},
		{name: "enqueue failure", body: `{"prompt":"cat"}`, enqueueErr: errors.New("broker down"), wantStatus: http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.queue.Err = tt.enqueueErr

			w := env.do(t, http.MethodPost, "/api/tasks", tt.body, owner)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "broker down")
		})
	}
}

func TestCreateTask_EnqueueFailureMarksTaskFailed(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.queue.Err = errors.New("broker down")
	owner := uuid.NewString()

	w := env.do(t, http.MethodPost, "/api/tasks", `{"prompt":"cat"}`, owner)
	require.Equal(t, http.StatusBadGateway, w.Code)

	list := env.do(t, http.MethodGet, "/api/tasks", "", owner)
	resp := decode[api.ListTasksResponse](t, list)
	require.Len(t, resp.Tasks, 1)
	assert.Equal(t, "failed", resp.Tasks[0].Status)
	require.NotNil(t, resp.Tasks[0].Error)
	assert.Equal(t, domain.MsgEnqueueFailed, *resp.Tasks[0].Error)
}

func TestListTasks(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	owner := uuid.NewString()
	for _, p := range []string{"one", "two"} {
		require.Equal(t, http.StatusAccepted, env.do(t, http.MethodPost, "/api/tasks", `{"prompt":"`+p+`"}`, owner).Code)
	}
	env.do(t, http.MethodPost, "/api/tasks", `{"prompt":"someone else"}`, uuid.NewString())

	t.Run("owner sees own tasks", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks", "", owner)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[api.ListTasksResponse](t, w).Tasks, 2)
	})

	t.Run("no cookie gets empty list", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks", "", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"tasks":[]}`, w.Body.String())
		assert.Empty(t, w.Result().Cookies())
	})

	t.Run("bad limit", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks?limit=abc", "", owner)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	owner := uuid.NewString()
	created := decode[api.CreateTaskResponse](t, env.do(t, http.MethodPost, "/api/tasks", `{"prompt":"owl"}`, owner))

	t.Run("owner", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks/"+created.TaskID, "", owner)
		require.Equal(t, http.StatusOK, w.Code)

		var raw map[string]any
		require.NoError(t, json.NewDecoder(w.Body).Decode(&raw))
		for _, key := range []string{"id", "prompt", "status", "imageUrl", "error", "createdAt", "completedAt"} {
			assert.Contains(t, raw, key)
		}
		assert.Equal(t, "owl", raw["prompt"])
		assert.Nil(t, raw["imageUrl"])
	})

	t.Run("other owner", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks/"+created.TaskID, "", uuid.NewString())
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no cookie", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks/"+created.TaskID, "", "")
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("unknown", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks/"+uuid.NewString(), "", owner)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := env.do(t, http.MethodGet, "/api/tasks/nope", "", owner)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

type fakeDispatcher struct {
	res task.Result
	err error
	got uuid.UUID
}

func (f *fakeDispatcher) Dispatch(_ context.Context, id uuid.UUID) (task.Result, error) {
	f.got = id
	return f.res, f.err
}

func TestWorkerHandler_Generate(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	tests := []struct {
		name       string
		body       string
		dispatcher *fakeDispatcher
		wantStatus int
		wantBody   string
	}{
		{
			name:       "completed",
			body:       `{"taskId":"` + id.String() + `"}`,
			dispatcher: &fakeDispatcher{res: task.Result{Status: domain.TaskStatusCompleted, Claimed: true}},
			wantStatus: http.StatusOK,
			wantBody:   `{"ok":true,"status":"completed"}`,
		},
		{
			name:       "recorded failure is still ok",
			body:       `{"taskId":"` + id.String() + `"}`,
			dispatcher: &fakeDispatcher{res: task.Result{Status: domain.TaskStatusFailed, Failure: task.ErrDeadlineExceeded}},
			wantStatus: http.StatusOK,
			wantBody:   `{"ok":true,"status":"failed"}`,
		},
		{
			name:       "missing id",
			body:       `{}`,
			dispatcher: &fakeDispatcher{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "malformed id",
			body:       `{"taskId":"abc"}`,
			dispatcher: &fakeDispatcher{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown task",
			body:       `{"taskId":"` + id.String() + `"}`,
			dispatcher: &fakeDispatcher{err: fmt.Errorf("dispatch: %w", task.ErrTaskNotFound)},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "invocation failure asks for redelivery",
			body:       `{"taskId":"` + id.String() + `"}`,
			dispatcher: &fakeDispatcher{err: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := api.NewWorkerHandler(tt.dispatcher, setupTestLogger())
			w := httptest.NewRecorder()
			h.Generate(w, httptest.NewRequest(http.MethodPost, "/api/worker/generate", strings.NewReader(tt.body)))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantBody != "" {
				assert.JSONEq(t, tt.wantBody, w.Body.String())
				assert.Equal(t, id, tt.dispatcher.got)
			}
			assert.NotContains(t, w.Body.String(), "db down")
		})
	}
}

type fakeSweeper struct {
	res task.SweepResult
	err error
}

func (f fakeSweeper) Sweep(context.Context) (task.SweepResult, error) {
	return f.res, f.err
}

func TestCronHandler_Reconcile(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()

		h := api.NewCronHandler(fakeSweeper{res: task.SweepResult{DeadlineFailed: 2, LeaseFailed: 1}})
		w := httptest.NewRecorder()
		h.Reconcile(w, httptest.NewRequest(http.MethodPost, "/api/cron/reconcile", nil))

		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"ok":true,"deadlineFailed":2,"leaseFailed":1}`, w.Body.String())
	})

	t.Run("store failure", func(t *testing.T) {
		t.Parallel()

		h := api.NewCronHandler(fakeSweeper{err: errors.New("db down")})
		w := httptest.NewRecorder()
		h.Reconcile(w, httptest.NewRequest(http.MethodPost, "/api/cron/reconcile", nil))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "db down")
	})
}

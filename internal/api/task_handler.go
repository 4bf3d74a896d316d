package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/api/shared"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/service"
)

// TaskHandler serves the client-facing task endpoints.
type TaskHandler struct {
	taskService service.TaskService
	logger      *slog.Logger
}

// NewTaskHandler creates a new TaskHandler
func NewTaskHandler(taskService service.TaskService, logger *slog.Logger) *TaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskHandler{
		taskService: taskService,
		logger:      logger.With("component", "task_handler"),
	}
}

// CreateTask handles POST /api/tasks requests
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)
	ownerID := shared.OwnerIDFromContext(r.Context())

	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	t, err := h.taskService.CreateTask(r.Context(), ownerID, req.Prompt)
	if err != nil {
		status := MapErrorToStatusCode(err)
		if status >= http.StatusInternalServerError && t != nil {
			log.Error("task stored but not queued", "task_id", t.ID.String())
		}
		shared.RespondWithErrorAndLog(w, r, status, GetSafeErrorMessage(err), err)
		return
	}

	// 202: generation happens asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, CreateTaskResponse{
		TaskID: t.ID.String(),
		Status: string(t.Status),
	})
}

// ListTasks handles GET /api/tasks requests. A caller without an owner
// cookie gets an empty list.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = n
	}

	tasks, err := h.taskService.ListTasks(r.Context(), shared.OwnerIDFromContext(r.Context()), limit)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, tasksToResponse(tasks))
}

// GetTask handles GET /api/tasks/{taskId} requests
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "taskId"))
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid task ID", err)
		return
	}

	t, err := h.taskService.GetTask(r.Context(), shared.OwnerIDFromContext(r.Context()), id)
	if err != nil {
		if errors.Is(err, service.ErrTaskNotOwned) {
			logger.FromContextOrDefault(r.Context(), h.logger).Info("task read by non-owner",
				"task_id", id.String())
		}
		shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, taskToResponse(t))
}

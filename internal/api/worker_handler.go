package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/phrazzld/imggen-api/internal/api/shared"
	"github.com/phrazzld/imggen-api/internal/platform/logger"
	"github.com/phrazzld/imggen-api/internal/service"
	"github.com/phrazzld/imggen-api/internal/task"
)

// WorkerHandler is the push delivery entry point. Its status codes drive
// the sender's redelivery: 2xx and 4xx end delivery, 5xx retries.
type WorkerHandler struct {
	dispatcher service.Dispatcher
	logger     *slog.Logger
}

// NewWorkerHandler creates a WorkerHandler.
func NewWorkerHandler(dispatcher service.Dispatcher, logger *slog.Logger) *WorkerHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerHandler{
		dispatcher: dispatcher,
		logger:     logger.With("component", "worker_handler"),
	}
}

// Generate handles POST /api/worker/generate requests
func (h *WorkerHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req WorkerRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if req.TaskID == "" {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Missing taskId")
		return
	}
	id, err := uuid.Parse(req.TaskID)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid taskId", err)
		return
	}

	log := logger.FromContextOrDefault(r.Context(), h.logger).With("task_id", id.String())
	ctx := logger.WithLogger(r.Context(), log)

	res, err := h.dispatcher.Dispatch(ctx, id)
	if err != nil {
		if errors.Is(err, task.ErrTaskNotFound) {
			shared.RespondWithErrorAndLog(w, r, http.StatusNotFound, "Task not found", err)
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Task invocation failed", err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, WorkerResponse{OK: true, Status: string(res.Status)})
}

package api

import (
	"context"
	"net/http"

	"github.com/phrazzld/imggen-api/internal/api/shared"
	"github.com/phrazzld/imggen-api/internal/task"
)

// Sweeper runs one reconcile pass.
type Sweeper interface {
	Sweep(ctx context.Context) (task.SweepResult, error)
}

// CronHandler exposes the reconcile sweep to an external scheduler.
type CronHandler struct {
	sweeper Sweeper
}

// NewCronHandler creates a CronHandler.
func NewCronHandler(sweeper Sweeper) *CronHandler {
	return &CronHandler{sweeper: sweeper}
}

// Reconcile handles /api/cron/reconcile requests
func (h *CronHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	res, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Reconcile failed", err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ReconcileResponse{OK: true, SweepResult: res})
}

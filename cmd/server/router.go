package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/imggen-api/internal/api"
	apiMiddleware "github.com/phrazzld/imggen-api/internal/api/middleware"
	"github.com/phrazzld/imggen-api/internal/api/shared"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	workerHandler := api.NewWorkerHandler(app.dispatcher, app.logger)
	cronHandler := api.NewCronHandler(app.reconciler)
	owner := apiMiddleware.NewAnonOwner(secureCookies(app.config))

	r.Route("/api", func(r chi.Router) {
		// Only creation issues an owner cookie.
		r.With(owner.Ensure).Post("/tasks", taskHandler.CreateTask)
		r.Group(func(r chi.Router) {
			r.Use(owner.Identify)
			r.Get("/tasks", taskHandler.ListTasks)
			r.Get("/tasks/{taskId}", taskHandler.GetTask)
		})

		r.With(apiMiddleware.SignatureVerifier(app.signatures, app.workerURL)).
			Post("/worker/generate", workerHandler.Generate)

		r.Group(func(r chi.Router) {
			r.Use(apiMiddleware.CronAuth(app.config.Auth.CronSecret))
			r.Get("/cron/reconcile", cronHandler.Reconcile)
			r.Post("/cron/reconcile", cronHandler.Reconcile)
		})
	})

	r.Get("/health", app.health)

	return r
}

// health reports liveness, and database reachability when a database is attached.
func (app *application) health(w http.ResponseWriter, r *http.Request) {
	if app.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := app.db.PingContext(ctx); err != nil {
			shared.RespondWithErrorAndLog(w, r, http.StatusServiceUnavailable, "Database unavailable", err)
			return
		}
	}
	shared.RespondWithJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

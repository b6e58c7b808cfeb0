package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", s.handleListActions)
			r.Post("/", s.handleSubmitAction)
			r.Get("/kinds", s.handleListKinds)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetAction)
				r.Post("/cancel", s.handleCancelAction)
				r.Get("/result", s.handleActionResult)
				r.Get("/feedback", s.handleActionFeedback)
			})
		})

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.handleListRuns)
			r.Post("/", s.handleSubmitRun)
			r.Get("/{id}", s.handleGetRun)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Put("/{id}/availability", s.handleSetAvailability)
		})
	})

	return r
}

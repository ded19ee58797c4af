package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// setupRoutes creates the chi router with all endpoints mounted.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// RequestID must come first so the access log can pick it up.
	// Recoverer runs inside the logging wrapper so panics still produce an
	// access log line with the right status.
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	r.Post("/panel/webhook", s.handleWebhook)

	r.Get("/sub/{uuid}", s.handleSubscription)
	r.Get("/sub/{uuid}/info", s.handleSubscriptionInfo)

	r.Post("/api/user/{id}", s.handleProvision)

	return r
}

// loggingMiddleware emits one structured access log line per request.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/coregx/servicebus"
)

// NewRouter registers the API routes of h.
func NewRouter(h *Handler, logger servicebus.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(loggingMiddleware(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/publish", h.HandlePublish)
		r.Post("/queues", h.HandleCreateQueue)
		r.Get("/queues/{name}", h.HandleGetQueue)
		r.Get("/subscribers", h.HandleListSubscribers)
		r.Post("/subscribers/{name}/start", h.HandleStartSubscriber)
		r.Post("/subscribers/{name}/stop", h.HandleStopSubscriber)
		r.Get("/health", h.HandleHealth)
	})

	return r
}

// loggingMiddleware logs HTTP requests.
func loggingMiddleware(logger servicebus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Infof("%s %s %d %v [%s]", r.Method, r.URL.Path, ww.Status(), time.Since(start),
				middleware.GetReqID(r.Context()))
		})
	}
}

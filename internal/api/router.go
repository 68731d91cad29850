package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func Router(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.d.Logger))
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/queue/stats", h.QueueStats)
		r.Post("/queue/process", h.ProcessNext)

		r.Get("/messages", h.ListMessages)
		r.Get("/messages/{id}", h.GetMessage)
		r.Get("/messages/{id}/receipt", h.GetReceipt)

		r.Post("/notifications", h.EnqueueNotification)
		r.Post("/notifications/test", h.EnqueueTest)
		r.Post("/notifications/broadcast", h.Broadcast)

		r.Get("/templates/{category}", h.GetTemplate)
		r.Put("/templates/{category}", h.PutTemplate)

		r.Get("/scheduler/status", h.SchedulerStatus)
		r.Post("/scheduler/start", h.SchedulerStart)
		r.Post("/scheduler/stop", h.SchedulerStop)
	})

	if h.d.Metrics != nil {
		r.Handle("/metrics", h.d.Metrics)
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("notification-queue"))
	})

	return r
}

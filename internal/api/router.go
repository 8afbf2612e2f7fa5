// Package api is the HTTP surface of the assistant.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
)

// Router mounts every endpoint on a chi router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.cfg.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/start-assistant", h.StartAssistant)
	r.Post("/stop-assistant", h.StopAssistant)
	r.Get("/assistant/status", h.AssistantStatus)

	// engine-backed endpoints
	r.Group(func(r chi.Router) {
		if h.cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(h.cfg.RateLimitPerMinute, time.Minute))
		}
		r.Post("/text-to-speech", h.TextToSpeech)
		r.Post("/speech-to-text", h.SpeechToText)
	})

	r.Get("/static/audio/{filename}", h.ServeAudio)
	return r
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

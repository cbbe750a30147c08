package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lectern/internal/assistant"
	"github.com/starford/lectern/internal/lectureservice"
	"github.com/starford/lectern/internal/notify"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *lectureservice.Service, ast *assistant.Facade, notices *notify.Center, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc, ast, notices)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/lectures", func(r chi.Router) {
		r.Get("/", h.ListLectures)
		r.Post("/", h.CreateLecture)
		r.Post("/reload", h.ReloadLectures)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetLecture)
			r.Patch("/", h.UpdateLecture)
			r.Delete("/", h.DeleteLecture)
			r.Get("/audio", h.GetAudio)
			r.Put("/transcription", h.PutTranscription)
			r.Post("/transcribe", h.Transcribe)
			r.Post("/summarize", h.Summarize)
			r.Get("/export", h.Export)
		})
	})

	r.Get("/jobs/{id}", h.GetJob)
	r.Delete("/jobs/{id}", h.CancelJob)

	r.Route("/recording", func(r chi.Router) {
		r.Get("/", h.GetRecording)
		r.Post("/start", h.StartRecording)
		r.Post("/stop", h.StopRecording)
		r.Post("/cancel", h.CancelRecording)
		r.Post("/confirm", h.ConfirmRecording)
		r.Post("/chunks", h.UploadChunk)
	})

	r.Route("/assistant", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Get("/history", h.GetHistory)
		r.Delete("/history", h.ClearHistory)
		r.Get("/key", h.GetKey)
		r.Put("/key", h.PutKey)
		r.Delete("/key", h.DeleteKey)
		r.Post("/insights", h.Insights)
	})

	r.Get("/notifications", h.ListNotifications)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}

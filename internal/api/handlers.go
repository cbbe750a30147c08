package api

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lectern/internal/assistant"
	"github.com/starford/lectern/internal/export"
	"github.com/starford/lectern/internal/lectureservice"
	"github.com/starford/lectern/internal/notify"
)

// Handler holds API route handlers.
type Handler struct {
	svc       *lectureservice.Service
	assistant *assistant.Facade
	notices   *notify.Center
}

// NewHandler creates a new Handler.
func NewHandler(svc *lectureservice.Service, ast *assistant.Facade, notices *notify.Center) *Handler {
	return &Handler{svc: svc, assistant: ast, notices: notices}
}

func lectureID(r *http.Request) string {
	return strings.TrimSpace(chi.URLParam(r, "id"))
}

// ListLectures handles GET /api/lectures.
//
//	@Summary		List lectures, newest first
//	@Tags			lectures
//	@Produce		json
//	@Param			q	query		string	false	"Title filter"
//	@Success		200	{object}	LectureListResponse
//	@Security		BearerAuth
//	@Router			/lectures [get]
func (h *Handler) ListLectures(w http.ResponseWriter, r *http.Request) {
	items := h.svc.ListLectures(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, LectureListResponse{Lectures: items, Total: len(items)})
}

// ReloadLectures handles POST /api/lectures/reload.
//
//	@Summary		Re-read the lecture collection from storage
//	@Tags			lectures
//	@Produce		json
//	@Success		200	{object}	LectureListResponse
//	@Security		BearerAuth
//	@Router			/lectures/reload [post]
func (h *Handler) ReloadLectures(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ReloadLectures(r.Context())
	if err != nil {
		writeError(w, "reload lectures", err)
		return
	}
	writeJSON(w, http.StatusOK, LectureListResponse{Lectures: items, Total: len(items)})
}

// GetLecture handles GET /api/lectures/{id}.
//
//	@Summary		Get a single lecture
//	@Tags			lectures
//	@Produce		json
//	@Param			id	path		string	true	"Lecture ID"
//	@Success		200	{object}	LectureDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id} [get]
func (h *Handler) GetLecture(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.GetLecture(r.Context(), lectureID(r))
	if err != nil {
		writeError(w, "get lecture", err)
		return
	}
	w.Header().Set("ETag", `"`+l.ETag+`"`)
	writeJSON(w, http.StatusOK, l)
}

// UpdateLecture handles PATCH /api/lectures/{id}.
//
//	@Summary		Update a lecture with optimistic concurrency
//	@Tags			lectures
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Lecture ID"
//	@Param			If-Match	header		string					false	"ETag for optimistic concurrency"
//	@Param			body		body		UpdateLectureRequest	true	"Fields to change"
//	@Success		200			{object}	LectureDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id} [patch]
func (h *Handler) UpdateLecture(w http.ResponseWriter, r *http.Request) {
	var req UpdateLectureRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := h.svc.UpdateLecture(r.Context(), lectureID(r), req, ifMatch(r))
	if err != nil {
		writeError(w, "update lecture", err)
		return
	}
	w.Header().Set("ETag", `"`+l.ETag+`"`)
	writeJSON(w, http.StatusOK, l)
}

// PutTranscription handles PUT /api/lectures/{id}/transcription.
//
//	@Summary		Replace a lecture's transcription
//	@Description	Accepts JSON {"content": ...} or a raw text/markdown body. YAML frontmatter may carry summary and topics.
//	@Tags			lectures
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string					true	"Lecture ID"
//	@Param			If-Match	header		string					false	"ETag for optimistic concurrency"
//	@Param			body		body		TranscriptionRequest	true	"Transcript"
//	@Success		200			{object}	LectureDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id}/transcription [put]
func (h *Handler) PutTranscription(w http.ResponseWriter, r *http.Request) {
	var content string
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct == "application/json" {
		var req TranscriptionRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		content = req.Content
	} else {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 10<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
			return
		}
		content = string(body)
	}
	if strings.TrimSpace(content) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}
	l, err := h.svc.ImportTranscription(r.Context(), lectureID(r), content, ifMatch(r))
	if err != nil {
		writeError(w, "put transcription", err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

// DeleteLecture handles DELETE /api/lectures/{id}.
//
//	@Summary		Delete a lecture and its audio
//	@Tags			lectures
//	@Param			id	path	string	true	"Lecture ID"
//	@Success		204	"Lecture deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id} [delete]
func (h *Handler) DeleteLecture(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteLecture(r.Context(), lectureID(r)); err != nil {
		writeError(w, "delete lecture", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAudio handles GET /api/lectures/{id}/audio.
//
//	@Summary		Stream a lecture's recording
//	@Tags			lectures
//	@Produce		octet-stream
//	@Param			id	path	string	true	"Lecture ID"
//	@Success		200
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id}/audio [get]
func (h *Handler) GetAudio(w http.ResponseWriter, r *http.Request) {
	l, err := h.svc.GetLecture(r.Context(), lectureID(r))
	if err != nil {
		writeError(w, "get audio", err)
		return
	}
	mimeType, data, err := h.svc.Audio(r.Context(), l.ID)
	if err != nil {
		writeError(w, "get audio", err)
		return
	}
	w.Header().Set("Content-Type", mimeType)
	http.ServeContent(w, r, "", l.CreatedAt, bytes.NewReader(data))
}

// Transcribe handles POST /api/lectures/{id}/transcribe.
//
//	@Summary		Start a transcription job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Lecture ID"
//	@Success		202	{object}	transcription.Job
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id}/transcribe [post]
func (h *Handler) Transcribe(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Transcribe(r.Context(), lectureID(r))
	if err != nil {
		writeError(w, "transcribe", err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// Summarize handles POST /api/lectures/{id}/summarize.
//
//	@Summary		Start a summary job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Lecture ID"
//	@Success		202	{object}	transcription.Job
//	@Failure		400	{object}	errResponse	"No transcription"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id}/summarize [post]
func (h *Handler) Summarize(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Summarize(r.Context(), lectureID(r))
	if err != nil {
		writeError(w, "summarize", err)
		return
	}
	w.Header().Set("Location", "/api/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, job)
}

// Export handles GET /api/lectures/{id}/export.
//
//	@Summary		Download a lecture as PDF or DOCX
//	@Tags			lectures
//	@Produce		octet-stream
//	@Param			id			path	string	true	"Lecture ID"
//	@Param			format		query	string	false	"Export format"	Enums(pdf, docx)
//	@Param			filename	query	string	false	"File name without extension"
//	@Success		200
//	@Failure		400	{object}	errResponse	"No transcription"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures/{id}/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := export.ParseFormat(q.Get("format"))
	if err != nil {
		writeError(w, "export", err)
		return
	}
	f, err := h.svc.Export(r.Context(), lectureID(r), format, q.Get("filename"))
	if err != nil {
		writeError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", f.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))
	w.Header().Set("Content-Length", fmt.Sprint(len(f.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(f.Data)
}

// GetJob handles GET /api/jobs/{id}.
//
//	@Summary		Get a transcription or summary job
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	transcription.Job
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/jobs/{id} [get]
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// CancelJob handles DELETE /api/jobs/{id}.
//
//	@Summary		Cancel a running job
//	@Tags			jobs
//	@Param			id	path	string	true	"Job ID"
//	@Success		202	"Cancellation requested"
//	@Failure		404	{object}	errResponse
//	@Failure		409	{object}	errResponse	"Job already finished"
//	@Security		BearerAuth
//	@Router			/jobs/{id} [delete]
func (h *Handler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.CancelJob(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "cancel job", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListNotifications handles GET /api/notifications.
//
//	@Summary		Recent notifications, newest first
//	@Tags			notifications
//	@Produce		json
//	@Success		200	{array}	notify.Notice
//	@Security		BearerAuth
//	@Router			/notifications [get]
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"notifications": h.notices.List()})
}

func ifMatch(r *http.Request) string {
	// Strip surrounding quotes if present (standard ETag format).
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

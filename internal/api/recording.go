package api

import (
	"net/http"

	"github.com/starford/lectern/internal/recording"
)

// respondSnapshot writes the session state or maps err.
func respondSnapshot(w http.ResponseWriter, op string, snap recording.Snapshot, err error) {
	if err != nil {
		writeError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// GetRecording handles GET /api/recording.
//
//	@Summary	Current recording state
//	@Tags		recording
//	@Produce	json
//	@Success	200	{object}	recording.Snapshot
//	@Security	BearerAuth
//	@Router		/recording [get]
func (h *Handler) GetRecording(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Recording())
}

// StartRecording handles POST /api/recording/start.
//
//	@Summary	Start capturing audio
//	@Tags		recording
//	@Produce	json
//	@Success	200	{object}	recording.Snapshot
//	@Failure	403	{object}	errResponse	"Microphone permission denied"
//	@Failure	409	{object}	errResponse	"Already recording"
//	@Security	BearerAuth
//	@Router		/recording/start [post]
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.StartRecording(r.Context())
	respondSnapshot(w, "start recording", snap, err)
}

// StopRecording handles POST /api/recording/stop.
//
//	@Summary	Stop capturing and wait for a title
//	@Tags		recording
//	@Produce	json
//	@Success	200	{object}	recording.Snapshot
//	@Failure	409	{object}	errResponse	"Not recording"
//	@Security	BearerAuth
//	@Router		/recording/stop [post]
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.StopRecording(r.Context())
	respondSnapshot(w, "stop recording", snap, err)
}

// CancelRecording handles POST /api/recording/cancel.
//
//	@Summary	Discard the current recording
//	@Tags		recording
//	@Produce	json
//	@Success	200	{object}	recording.Snapshot
//	@Security	BearerAuth
//	@Router		/recording/cancel [post]
func (h *Handler) CancelRecording(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.CancelRecording(r.Context())
	respondSnapshot(w, "cancel recording", snap, err)
}

// ConfirmRecording handles POST /api/recording/confirm.
//
//	@Summary	Save the stopped recording as a lecture
//	@Tags		recording
//	@Accept		json
//	@Produce	json
//	@Param		body	body		ConfirmRecordingRequest	true	"Lecture title"
//	@Success	201		{object}	LectureDetail
//	@Failure	400		{object}	errResponse	"Title required"
//	@Failure	409		{object}	errResponse	"Nothing to save"
//	@Security	BearerAuth
//	@Router		/recording/confirm [post]
func (h *Handler) ConfirmRecording(w http.ResponseWriter, r *http.Request) {
	var req ConfirmRecordingRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	l, err := h.svc.ConfirmRecording(r.Context(), req.Title)
	if err != nil {
		writeError(w, "confirm recording", err)
		return
	}
	w.Header().Set("ETag", `"`+l.ETag+`"`)
	writeJSON(w, http.StatusCreated, l)
}

package api

import (
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

const (
	maxUploadBytes = 100 << 20 // 100 MB
	maxChunkBytes  = 8 << 20
)

// upload is a parsed lecture creation request.
type upload struct {
	title   string
	seconds int
	mime    string
	audio   []byte
}

// parseUpload accepts either a JSON CreateLectureRequest or a multipart form
// with fields "title", "duration_seconds" and an optional "audio" file.
func parseUpload(w http.ResponseWriter, r *http.Request) (*upload, bool) {
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "multipart/form-data" {
		var req CreateLectureRequest
		if !decodeJSON(w, r, &req) {
			return nil, false
		}
		return &upload{title: req.Title, seconds: req.DurationSeconds}, true
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return nil, false
	}
	u := &upload{title: r.FormValue("title")}
	if s := strings.TrimSpace(r.FormValue("duration_seconds")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("duration_seconds must be a non-negative integer"))
			return nil, false
		}
		u.seconds = n
	}

	file, header, err := r.FormFile("audio")
	if err == http.ErrMissingFile {
		return u, true
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid 'audio' field in multipart form"))
		return nil, false
	}
	defer file.Close()

	u.audio, err = io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to read audio"))
		return nil, false
	}
	u.mime = header.Header.Get("Content-Type")
	return u, true
}

// CreateLecture handles POST /api/lectures.
//
//	@Summary		Add a lecture
//	@Description	JSON body or multipart/form-data with title, duration_seconds and an optional audio file.
//	@Tags			lectures
//	@Accept			json,mpfd
//	@Produce		json
//	@Param			body	body		CreateLectureRequest	false	"Lecture without audio"
//	@Param			audio	formData	file					false	"Recorded audio"
//	@Success		201		{object}	LectureDetail
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/lectures [post]
func (h *Handler) CreateLecture(w http.ResponseWriter, r *http.Request) {
	u, ok := parseUpload(w, r)
	if !ok {
		return
	}
	l, err := h.svc.CreateLecture(r.Context(), u.title, u.mime, u.audio, u.seconds)
	if err != nil {
		writeError(w, "create lecture", err)
		return
	}
	w.Header().Set("ETag", `"`+l.ETag+`"`)
	writeJSON(w, http.StatusCreated, l)
}

// UploadChunk handles POST /api/recording/chunks. The raw body is one chunk
// from a client-side recorder.
//
//	@Summary		Deliver a recorded audio chunk
//	@Tags			recording
//	@Accept			octet-stream
//	@Success		202	"Chunk accepted"
//	@Failure		400	{object}	errResponse
//	@Failure		409	{object}	errResponse	"Not recording"
//	@Security		BearerAuth
//	@Router			/recording/chunks [post]
func (h *Handler) UploadChunk(w http.ResponseWriter, r *http.Request) {
	chunk, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("chunk too large"))
		return
	}
	if len(chunk) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody("empty chunk"))
		return
	}
	if err := h.svc.DeliverChunk(r.Context(), chunk); err != nil {
		writeError(w, "upload chunk", err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

package api

import (
	"github.com/starford/lectern/internal/assistant"
	"github.com/starford/lectern/internal/lectureservice"
	"github.com/starford/lectern/internal/models"
)

// CreateLectureRequest is the JSON body for adding a lecture without audio.
type CreateLectureRequest struct {
	Title           string `json:"title" example:"Intro to AI" validate:"required"`
	DurationSeconds int    `json:"duration_seconds" example:"3600"`
}

// UpdateLectureRequest is the body of PATCH /lectures/{id}. Omitted fields
// are left untouched.
type UpdateLectureRequest = models.Patch

// ConfirmRecordingRequest names a stopped recording.
type ConfirmRecordingRequest struct {
	Title string `json:"title" example:"Intro to AI" validate:"required"`
}

// TranscriptionRequest replaces a lecture's transcription.
type TranscriptionRequest struct {
	Content string `json:"content" example:"# Intro to AI\nToday we..." validate:"required"`
}

// QueryRequest is a prompt for the assistant.
type QueryRequest struct {
	Prompt string `json:"prompt" example:"hello" validate:"required"`
}

// KeyRequest sets the assistant credential.
type KeyRequest struct {
	Key string `json:"key" validate:"required"`
}

// KeyStatus reports whether a credential is stored.
type KeyStatus struct {
	Configured bool `json:"configured"`
}

// InsightRequest carries subject scores.
type InsightRequest struct {
	Scores []assistant.Score `json:"scores" validate:"required"`
}

// LectureDetail is the full lecture response type (aliased from the domain layer).
type LectureDetail = lectureservice.LectureDetail

// LectureListItem is a lightweight item in a list response (aliased from the domain layer).
type LectureListItem = lectureservice.LectureListItem

// LectureListResponse wraps lecture listings.
type LectureListResponse struct {
	Lectures []LectureListItem `json:"lectures" validate:"required"`
	Total    int               `json:"total" example:"42" validate:"required"`
}

// HistoryResponse is the assistant conversation window.
type HistoryResponse struct {
	Messages []models.Message `json:"messages" validate:"required"`
}

// Package models defines the domain types for Lectern.
package models

import (
	"fmt"
	"time"
)

// DateLayout is the display format of Lecture.Date.
const DateLayout = "Jan 2, 2006 3:04 PM"

// Lecture is one recorded or uploaded class session.
type Lecture struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          string    `json:"date"`
	CreatedAt     time.Time `json:"created_at"`
	Duration      string    `json:"duration"`
	AudioKey      string    `json:"audio_key"`
	MIMEType      string    `json:"mime_type"`
	Transcription *string   `json:"transcription,omitempty"`
	Summary       *string   `json:"summary,omitempty"`
	Topics        []string  `json:"related_topics,omitempty"`
}

// HasTranscription reports whether export, Q&A and deep-dive are available.
func (l *Lecture) HasTranscription() bool {
	return l.Transcription != nil && *l.Transcription != ""
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title         *string  `json:"title,omitempty"`
	Transcription *string  `json:"transcription,omitempty"`
	Summary       *string  `json:"summary,omitempty"`
	Topics        []string `json:"related_topics,omitempty"`
}

// Apply copies the non-nil fields of p onto l.
func (p Patch) Apply(l *Lecture) {
	if p.Title != nil {
		l.Title = *p.Title
	}
	if p.Transcription != nil {
		t := *p.Transcription
		l.Transcription = &t
	}
	if p.Summary != nil {
		sum := *p.Summary
		l.Summary = &sum
	}
	if p.Topics != nil {
		l.Topics = append([]string(nil), p.Topics...)
	}
}

// FormatDuration renders elapsed seconds as H:MM:SS, dropping the hour
// part when it is zero (5 → "0:05", 3725 → "1:02:05").
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// Role tags a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one entry of the assistant's conversational context.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

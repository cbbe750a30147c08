// Package lectureservice coordinates the lecture store, the recording
// session, transcription jobs and exports behind one API used by the HTTP
// and MCP front ends.
package lectureservice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/capture"
	"github.com/starford/lectern/internal/export"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
	"github.com/starford/lectern/internal/parser"
	"github.com/starford/lectern/internal/recording"
	"github.com/starford/lectern/internal/sse"
	"github.com/starford/lectern/internal/transcription"
)

// LectureDetail is the full representation of a lecture.
type LectureDetail struct {
	models.Lecture
	ETag     string              `json:"etag"`
	AudioURL string              `json:"audio_url,omitempty"`
	Jobs     []transcription.Job `json:"jobs"`
}

// LectureListItem is a lightweight item in a list response.
type LectureListItem struct {
	ID               string `json:"id"`
	Title            string `json:"title"`
	Date             string `json:"date"`
	Duration         string `json:"duration"`
	HasTranscription bool   `json:"has_transcription"`
	HasSummary       bool   `json:"has_summary"`
	ETag             string `json:"etag"`
}

// Events receives lecture and recording updates.
type Events interface {
	Publish(event sse.Event)
	PublishLectureEvent(kind, id string)
}

type discardEvents struct{}

func (discardEvents) Publish(sse.Event)                  {}
func (discardEvents) PublishLectureEvent(string, string) {}

// Deps are the collaborators of a Service. Store, Runner and Exporter are
// required.
type Deps struct {
	Store    *lecture.Store
	Runner   *transcription.Runner
	Exporter *export.Service
	Device   capture.Device
	Notifier notify.Notifier
	Events   Events
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// RecordingOptions are passed to the recording session.
	RecordingOptions []recording.Option
}

// Service is the application layer over the lecture domain.
type Service struct {
	store    *lecture.Store
	session  *recording.Session
	push     *capture.Push
	runner   *transcription.Runner
	exporter *export.Service
	notifier notify.Notifier
	events   Events
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates a Service and its recording session.
func New(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		runner:   d.Runner,
		exporter: d.Exporter,
		notifier: d.Notifier,
		events:   d.Events,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	if s.events == nil {
		s.events = discardEvents{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	device := d.Device
	if device == nil {
		device = capture.Unavailable{}
	}
	s.push, _ = device.(*capture.Push)

	opts := append([]recording.Option{
		recording.WithLogger(s.logger),
		recording.WithHooks(recording.Hooks{
			OnState:     s.onRecordingState,
			OnSaved:     s.onRecordingSaved,
			OnDiscarded: s.onRecordingDiscarded,
		}),
	}, d.RecordingOptions...)
	s.session = recording.NewSession(device, s.store, s.notifier, opts...)
	return s
}

// Close releases the capture device. The store and runner are closed by
// their owner.
func (s *Service) Close() {
	s.session.Close()
}

// ListLectures returns lectures newest first, optionally filtered by a
// case-insensitive title substring.
func (s *Service) ListLectures(_ context.Context, query string) []LectureListItem {
	query = strings.ToLower(strings.TrimSpace(query))
	all := s.store.List()
	items := make([]LectureListItem, 0, len(all))
	for _, l := range all {
		if query != "" && !strings.Contains(strings.ToLower(l.Title), query) {
			continue
		}
		items = append(items, LectureListItem{
			ID:               l.ID,
			Title:            l.Title,
			Date:             l.Date,
			Duration:         l.Duration,
			HasTranscription: l.HasTranscription(),
			HasSummary:       l.Summary != nil && *l.Summary != "",
			ETag:             etag(l),
		})
	}
	return items
}

// GetLecture returns one lecture with its running jobs.
func (s *Service) GetLecture(_ context.Context, id string) (*LectureDetail, error) {
	l, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}
	return s.detail(l), nil
}

// CreateLecture adds an uploaded recording as a new lecture.
func (s *Service) CreateLecture(_ context.Context, title, mime string, audio []byte, seconds int) (*LectureDetail, error) {
	if strings.TrimSpace(title) == "" {
		s.notifier.Notify(notify.VariantDestructive, "Title required", "Please enter a title for the lecture.")
		return nil, fmt.Errorf("lectureservice: title is required: %w", apperr.ErrValidation)
	}
	l := lecture.New(title, seconds, time.Now())
	if len(audio) > 0 {
		if mime == "" {
			mime = "application/octet-stream"
		}
		key, err := s.store.SaveAudio(l.ID, mime, audio)
		if err != nil {
			return nil, err
		}
		l.AudioKey, l.MIMEType = key, mime
	}
	if err := s.store.Add(l); err != nil {
		return nil, err
	}
	s.lectureChanged("created", l.ID)
	return s.detail(l), nil
}

// UpdateLecture applies patch. A non-empty ifMatch must equal the lecture's
// current ETag or apperr.ErrConflict is returned.
func (s *Service) UpdateLecture(_ context.Context, id string, patch models.Patch, ifMatch string) (*LectureDetail, error) {
	updated, err := s.store.UpdateIf(id, patch, func(current models.Lecture) error {
		if ifMatch != "" && ifMatch != etag(current) {
			return apperr.ErrConflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.lectureChanged("updated", id)
	return s.detail(updated), nil
}

// ImportTranscription stores content as the lecture's transcription. YAML
// frontmatter with summary and topics fills those fields too.
func (s *Service) ImportTranscription(ctx context.Context, id, content, ifMatch string) (*LectureDetail, error) {
	doc := parser.Parse([]byte(content))
	body := doc.Body
	patch := models.Patch{Transcription: &body}
	if doc.Meta.Summary != "" {
		summary := doc.Meta.Summary
		patch.Summary = &summary
	}
	if len(doc.Meta.Topics) > 0 {
		patch.Topics = doc.Meta.Topics
	}
	return s.UpdateLecture(ctx, id, patch, ifMatch)
}

// ReloadLectures writes out pending changes, then replaces the in-memory
// collection with what storage holds. It is the manual counterpart of the
// file watcher, which only runs for the fs driver.
func (s *Service) ReloadLectures(ctx context.Context) ([]LectureListItem, error) {
	s.store.Flush()
	if err := s.store.Reload(); err != nil {
		return nil, fmt.Errorf("lectureservice: reload: %w", err)
	}
	s.events.Publish(sse.Event{Type: sse.TypeLecturesReloaded})
	return s.ListLectures(ctx, ""), nil
}

// DeleteLecture cancels the lecture's jobs, then removes it and its audio.
// An unknown id changes nothing and returns apperr.ErrNotFound.
func (s *Service) DeleteLecture(_ context.Context, id string) error {
	if n := s.runner.CancelLecture(id); n > 0 {
		s.logger.Info("lectureservice: cancelled jobs for deleted lecture",
			slog.String("id", id), slog.Int("jobs", n))
	}
	removed, err := s.store.Remove(id)
	if err != nil {
		return err
	}
	s.lectureChanged("deleted", id)
	s.notifier.Notify(notify.VariantDefault, "Lecture deleted", fmt.Sprintf("%q has been removed.", removed.Title))
	return nil
}

// Audio returns the recorded audio of a lecture.
func (s *Service) Audio(_ context.Context, id string) (string, []byte, error) {
	l, err := s.store.Get(id)
	if err != nil {
		return "", nil, err
	}
	if l.AudioKey == "" {
		return "", nil, apperr.ErrNotFound
	}
	return s.store.Audio(l.AudioKey)
}

// Transcribe starts a transcription job.
func (s *Service) Transcribe(_ context.Context, id string) (transcription.Job, error) {
	return s.runner.Start(id, transcription.KindTranscribe)
}

// Summarize starts a summary job. Without a transcription nothing changes
// and apperr.ErrValidation is returned.
func (s *Service) Summarize(_ context.Context, id string) (transcription.Job, error) {
	return s.runner.Start(id, transcription.KindSummarize)
}

// Job returns a running or recently finished job.
func (s *Service) Job(_ context.Context, id string) (transcription.Job, error) {
	return s.runner.Get(id)
}

// CancelJob stops a running job.
func (s *Service) CancelJob(_ context.Context, id string) error {
	return s.runner.Cancel(id)
}

// Export renders a lecture as a downloadable file.
func (s *Service) Export(ctx context.Context, id string, format export.Format, filename string) (*export.File, error) {
	return s.exporter.Export(ctx, id, format, filename)
}

// Recording returns the session state.
func (s *Service) Recording() recording.Snapshot {
	return s.session.Snapshot()
}

// StartRecording opens the capture device.
func (s *Service) StartRecording(ctx context.Context) (recording.Snapshot, error) {
	if err := s.session.Start(ctx); err != nil {
		return s.session.Snapshot(), err
	}
	return s.session.Snapshot(), nil
}

// StopRecording ends capture and waits for a title.
func (s *Service) StopRecording(_ context.Context) (recording.Snapshot, error) {
	return s.session.Stop()
}

// CancelRecording discards the current recording.
func (s *Service) CancelRecording(_ context.Context) (recording.Snapshot, error) {
	if err := s.session.Cancel(); err != nil {
		return s.session.Snapshot(), err
	}
	return s.session.Snapshot(), nil
}

// ConfirmRecording saves the stopped recording under title.
func (s *Service) ConfirmRecording(ctx context.Context, title string) (*LectureDetail, error) {
	l, err := s.session.Confirm(ctx, title)
	if err != nil {
		return nil, err
	}
	return s.detail(l), nil
}

// DeliverChunk feeds a client-recorded chunk to the push device.
func (s *Service) DeliverChunk(ctx context.Context, chunk []byte) error {
	if s.push == nil {
		return fmt.Errorf("lectureservice: capture device does not accept uploads: %w", apperr.ErrInvalidState)
	}
	return s.push.Deliver(ctx, chunk)
}

func (s *Service) onRecordingState(snap recording.Snapshot) {
	s.events.Publish(sse.Event{Type: sse.TypeRecordingState, Data: snap})
}

func (s *Service) onRecordingSaved(l models.Lecture) {
	s.lectureChanged("created", l.ID)
	if s.metrics != nil {
		s.metrics.Recordings.WithLabelValues("saved").Inc()
		s.metrics.RecordedSeconds.Observe(float64(durationSeconds(l.Duration)))
	}
}

func (s *Service) onRecordingDiscarded(recording.Snapshot) {
	if s.metrics != nil {
		s.metrics.Recordings.WithLabelValues("discarded").Inc()
	}
}

func (s *Service) lectureChanged(kind, id string) {
	s.events.PublishLectureEvent(kind, id)
	if s.metrics != nil {
		s.metrics.LectureOps.WithLabelValues(kind).Inc()
	}
}

func (s *Service) detail(l models.Lecture) *LectureDetail {
	d := &LectureDetail{Lecture: l, ETag: etag(l), Jobs: s.runner.Active(l.ID)}
	if d.Jobs == nil {
		d.Jobs = []transcription.Job{}
	}
	sort.Slice(d.Jobs, func(i, j int) bool { return d.Jobs[i].StartedAt.Before(d.Jobs[j].StartedAt) })
	if l.AudioKey != "" {
		d.AudioURL = "/api/lectures/" + l.ID + "/audio"
	}
	return d
}

// etag is the SHA-256 of the lecture's JSON form.
func etag(l models.Lecture) string {
	data, _ := json.Marshal(l)
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// durationSeconds parses an H:MM:SS or M:SS duration.
func durationSeconds(d string) int {
	total := 0
	for _, part := range strings.Split(d, ":") {
		n := 0
		for _, r := range part {
			if r < '0' || r > '9' {
				return 0
			}
			n = n*10 + int(r-'0')
		}
		total = total*60 + n
	}
	return total
}

package transcription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
	"github.com/starford/lectern/internal/sse"
)

// Kind selects what a job produces.
type Kind string

const (
	KindTranscribe Kind = "transcribe"
	KindSummarize  Kind = "summarize"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// DefaultRetention is how long finished jobs stay queryable.
const DefaultRetention = 10 * time.Minute

// Job is a snapshot of one transcription or summary run.
type Job struct {
	ID         string     `json:"id"`
	LectureID  string     `json:"lecture_id"`
	Kind       Kind       `json:"kind"`
	Status     Status     `json:"status"`
	Progress   int        `json:"progress"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Events receives progress and lecture change events.
type Events interface {
	Publish(event sse.Event)
	PublishLectureEvent(kind, id string)
}

type handle struct {
	job    Job
	cancel context.CancelFunc
}

// Runner owns every in-flight job. Each job runs on its own goroutine with
// a cancellable context; results reach the store only while that context
// is live.
type Runner struct {
	sim      *Simulator
	store    *lecture.Store
	notifier notify.Notifier
	events   Events
	metrics  *metrics.Metrics
	logger   *slog.Logger

	ctx       context.Context
	cancelAll context.CancelFunc
	wg        sync.WaitGroup

	mu       sync.Mutex
	active   map[string]*handle
	finished *cache.Cache
	closed   bool
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithEvents publishes progress on e.
func WithEvents(e Events) RunnerOption {
	return func(r *Runner) { r.events = e }
}

// WithMetrics records job outcomes on m.
func WithMetrics(m *metrics.Metrics) RunnerOption {
	return func(r *Runner) { r.metrics = m }
}

// WithRetention sets how long finished jobs are kept.
func WithRetention(d time.Duration) RunnerOption {
	return func(r *Runner) {
		if d > 0 {
			r.finished = cache.New(d, 2*d)
		}
	}
}

// WithRunnerLogger sets the logger.
func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) { r.logger = l }
}

// NewRunner creates a Runner writing results into store.
func NewRunner(sim *Simulator, store *lecture.Store, notifier notify.Notifier, opts ...RunnerOption) *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		sim:       sim,
		store:     store,
		notifier:  notifier,
		logger:    slog.Default(),
		ctx:       ctx,
		cancelAll: cancel,
		active:    make(map[string]*handle),
	}
	if r.notifier == nil {
		r.notifier = notify.Discard{}
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.finished == nil {
		r.finished = cache.New(DefaultRetention, 2*DefaultRetention)
	}
	return r
}

// Start launches a job of kind for lectureID. Summarizing a lecture that
// has no transcription is rejected with apperr.ErrValidation and changes
// nothing. Only one job per lecture and kind runs at a time.
func (r *Runner) Start(lectureID string, kind Kind) (Job, error) {
	l, err := r.store.Get(lectureID)
	if err != nil {
		return Job{}, fmt.Errorf("transcription: lecture %q: %w", lectureID, err)
	}
	switch kind {
	case KindTranscribe:
	case KindSummarize:
		if !l.HasTranscription() {
			r.notifier.Notify(notify.VariantDestructive, "No transcription",
				"Generate or enter a transcription before requesting a summary.")
			return Job{}, fmt.Errorf("transcription: lecture %q has no transcription: %w", lectureID, apperr.ErrValidation)
		}
	default:
		return Job{}, fmt.Errorf("transcription: unknown job kind %q: %w", kind, apperr.ErrValidation)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Job{}, fmt.Errorf("transcription: runner closed: %w", apperr.ErrInvalidState)
	}
	for _, h := range r.active {
		if h.job.LectureID == lectureID && h.job.Kind == kind {
			id := h.job.ID
			r.mu.Unlock()
			return Job{}, fmt.Errorf("transcription: job %s already running: %w", id, apperr.ErrConflict)
		}
	}
	ctx, cancel := context.WithCancel(r.ctx)
	h := &handle{
		job: Job{
			ID:        uuid.NewString(),
			LectureID: lectureID,
			Kind:      kind,
			Status:    StatusRunning,
			StartedAt: time.Now().UTC(),
		},
		cancel: cancel,
	}
	r.active[h.job.ID] = h
	job := h.job
	r.wg.Add(1)
	r.mu.Unlock()

	r.logger.Info("transcription: job started",
		slog.String("job", job.ID), slog.String("lecture", lectureID), slog.String("kind", string(kind)))
	go r.run(ctx, h, l)
	return job, nil
}

func (r *Runner) run(ctx context.Context, h *handle, l models.Lecture) {
	defer r.wg.Done()
	defer h.cancel()

	progress := func(p int) {
		r.mu.Lock()
		h.job.Progress = p
		job := h.job
		r.mu.Unlock()
		r.publish(sse.Event{Type: sse.TypeTranscriptionProgress, Data: job})
	}

	var patch models.Patch
	var err error
	switch h.job.Kind {
	case KindTranscribe:
		var text string
		text, err = r.sim.Transcribe(ctx, l, progress)
		patch.Transcription = &text
	case KindSummarize:
		var sum Summary
		sum, err = r.sim.Summarize(ctx, *l.Transcription, progress)
		patch.Summary = &sum.Text
		patch.Topics = sum.Topics
	}

	// The context is checked once more so a job cancelled after its last
	// stage never writes.
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		_, err = r.store.Update(l.ID, patch)
	}
	r.finish(h, l, err)
}

func (r *Runner) finish(h *handle, l models.Lecture, err error) {
	now := time.Now().UTC()

	r.mu.Lock()
	switch {
	case err == nil:
		h.job.Status = StatusSucceeded
	case errors.Is(err, context.Canceled):
		h.job.Status = StatusCancelled
	default:
		h.job.Status = StatusFailed
		h.job.Error = err.Error()
	}
	h.job.FinishedAt = &now
	job := h.job
	delete(r.active, job.ID)
	r.finished.SetDefault(job.ID, job)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.TranscriptionJobs.WithLabelValues(string(job.Kind), string(job.Status)).Inc()
	}
	r.logger.Info("transcription: job finished",
		slog.String("job", job.ID), slog.String("status", string(job.Status)))
	r.publish(sse.Event{Type: sse.TypeJobFinished, Data: job})

	switch job.Status {
	case StatusSucceeded:
		if r.events != nil {
			r.events.PublishLectureEvent("updated", l.ID)
		}
		if job.Kind == KindTranscribe {
			r.notifier.Notify(notify.VariantSuccess, "Transcription complete",
				fmt.Sprintf("%q has been transcribed.", l.Title))
		} else {
			r.notifier.Notify(notify.VariantSuccess, "Summary generated",
				fmt.Sprintf("A summary of %q is ready.", l.Title))
		}
	case StatusFailed:
		r.notifier.Notify(notify.VariantDestructive, "Transcription failed", job.Error)
	}
}

func (r *Runner) publish(e sse.Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}

// Get returns a running or recently finished job.
func (r *Runner) Get(jobID string) (Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.active[jobID]; ok {
		return h.job, nil
	}
	if v, ok := r.finished.Get(jobID); ok {
		return v.(Job), nil
	}
	return Job{}, apperr.ErrNotFound
}

// Active lists running jobs, optionally only those for lectureID.
func (r *Runner) Active(lectureID string) []Job {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Job
	for _, h := range r.active {
		if lectureID == "" || h.job.LectureID == lectureID {
			out = append(out, h.job)
		}
	}
	return out
}

// Cancel stops a running job. A finished job yields apperr.ErrInvalidState.
func (r *Runner) Cancel(jobID string) error {
	r.mu.Lock()
	h, ok := r.active[jobID]
	r.mu.Unlock()
	if ok {
		h.cancel()
		return nil
	}
	if _, ok := r.finished.Get(jobID); ok {
		return fmt.Errorf("transcription: job %s already finished: %w", jobID, apperr.ErrInvalidState)
	}
	return apperr.ErrNotFound
}

// CancelLecture stops every job for lectureID and returns how many were
// running.
func (r *Runner) CancelLecture(lectureID string) int {
	r.mu.Lock()
	var hs []*handle
	for _, h := range r.active {
		if h.job.LectureID == lectureID {
			hs = append(hs, h)
		}
	}
	r.mu.Unlock()
	for _, h := range hs {
		h.cancel()
	}
	return len(hs)
}

// Wait blocks until no job is running.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Close cancels every job and waits for their goroutines.
func (r *Runner) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancelAll()
	r.Wait()
}

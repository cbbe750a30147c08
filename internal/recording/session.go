// Package recording implements the start/stop/name lifecycle of a single
// microphone capture.
package recording

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/capture"
	"github.com/starford/lectern/internal/clock"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
)

// State is a recording session state.
type State string

const (
	StateIdle          State = "idle"
	StateRecording     State = "recording"
	StateAwaitingTitle State = "awaiting_title"
)

// Snapshot is a consistent view of the session.
type Snapshot struct {
	State          State  `json:"state"`
	ElapsedSeconds int    `json:"elapsed_seconds"`
	Duration       string `json:"duration"`
	Chunks         int    `json:"chunks"`
	Bytes          int    `json:"bytes"`
}

// Hooks are optional callbacks fired after transitions.
type Hooks struct {
	// OnState runs after every state change with the new snapshot.
	OnState func(Snapshot)
	// OnSaved runs after a lecture has been created from a recording.
	OnSaved func(models.Lecture)
	// OnDiscarded runs after a stopped recording is thrown away.
	OnDiscarded func(Snapshot)
}

// Session is the state machine for one capture at a time.
type Session struct {
	device   capture.Device
	clock    clock.Clock
	interval time.Duration
	store    *lecture.Store
	notifier notify.Notifier
	hooks    Hooks
	logger   *slog.Logger

	// opMu serializes transitions; mu guards the fields the loop writes.
	opMu    sync.Mutex
	mu      sync.Mutex
	state   State
	elapsed int
	chunks  [][]byte
	bytes   int
	mime    string
	stream  capture.Stream
	stopCh  chan struct{}
	loopEnd chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock driving the elapsed counter.
func WithClock(c clock.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithInterval sets the elapsed-time tick interval (default one second).
func WithInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithHooks installs transition callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// NewSession creates an idle session that saves into store.
func NewSession(device capture.Device, store *lecture.Store, notifier notify.Notifier, opts ...Option) *Session {
	s := &Session{
		device:   device,
		clock:    clock.Real{},
		interval: time.Second,
		store:    store,
		notifier: notifier,
		logger:   slog.Default(),
		state:    StateIdle,
	}
	if s.notifier == nil {
		s.notifier = notify.Discard{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		State:          s.state,
		ElapsedSeconds: s.elapsed,
		Duration:       models.FormatDuration(s.elapsed),
		Chunks:         len(s.chunks),
		Bytes:          s.bytes,
	}
}

// Start opens the capture device and begins collecting chunks. It is only
// legal from idle. A device failure leaves the session idle.
func (s *Session) Start(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("recording: cannot start while %s: %w", state, apperr.ErrInvalidState)
	}

	stream, err := s.device.Open(ctx)
	if err != nil {
		s.mu.Unlock()
		if errors.Is(err, apperr.ErrPermission) {
			s.notifier.Notify(notify.VariantDestructive, "Microphone Error",
				"Could not access your microphone. Please check permissions.")
		}
		s.logger.Warn("recording: open device failed", slog.String("error", err.Error()))
		return fmt.Errorf("recording: start: %w", err)
	}

	s.state = StateRecording
	s.elapsed = 0
	s.chunks = nil
	s.bytes = 0
	s.mime = stream.MIMEType()
	s.stream = stream
	s.stopCh = make(chan struct{})
	s.loopEnd = make(chan struct{})
	ticker := s.clock.NewTicker(s.interval)
	go s.loop(stream, ticker, s.stopCh, s.loopEnd)
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("recording: started", slog.String("mime", stream.MIMEType()))
	s.fireState(snap)
	return nil
}

// loop owns the ticker and drains the stream until stop is closed.
func (s *Session) loop(stream capture.Stream, ticker clock.Ticker, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer ticker.Stop()

	chunks := stream.Chunks()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			s.mu.Lock()
			s.elapsed++
			s.mu.Unlock()
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			if len(chunk) == 0 {
				continue
			}
			s.mu.Lock()
			s.chunks = append(s.chunks, chunk)
			s.bytes += len(chunk)
			s.mu.Unlock()
		}
	}
}

// Stop releases the device and waits for a title. Buffered chunks and the
// elapsed time are kept.
func (s *Session) Stop() (Snapshot, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return Snapshot{}, fmt.Errorf("recording: cannot stop while %s: %w", state, apperr.ErrInvalidState)
	}
	stream, stop, done := s.stream, s.stopCh, s.loopEnd
	s.mu.Unlock()

	s.halt(stream, stop, done)

	s.mu.Lock()
	s.state = StateAwaitingTitle
	s.stream = nil
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("recording: stopped",
		slog.Int("elapsed_seconds", snap.ElapsedSeconds),
		slog.Int("chunks", snap.Chunks))
	s.fireState(snap)
	return snap, nil
}

// halt stops the loop, releases the device, and keeps any chunks the device
// flushed while closing.
func (s *Session) halt(stream capture.Stream, stop chan struct{}, done <-chan struct{}) {
	close(stop)
	<-done
	if err := stream.Close(); err != nil {
		s.logger.Warn("recording: release device failed", slog.String("error", err.Error()))
	}
	for chunk := range stream.Chunks() {
		if len(chunk) == 0 {
			continue
		}
		s.mu.Lock()
		s.chunks = append(s.chunks, chunk)
		s.bytes += len(chunk)
		s.mu.Unlock()
	}
}

// Confirm names the stopped recording, persists its audio and adds a
// lecture to the front of the store. A blank title is rejected and the
// session keeps waiting.
func (s *Session) Confirm(ctx context.Context, title string) (models.Lecture, error) {
	if err := ctx.Err(); err != nil {
		return models.Lecture{}, err
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	state, elapsed, mime, chunks := s.state, s.elapsed, s.mime, s.chunks
	s.mu.Unlock()

	if state != StateAwaitingTitle {
		return models.Lecture{}, fmt.Errorf("recording: nothing to save while %s: %w", state, apperr.ErrInvalidState)
	}
	if strings.TrimSpace(title) == "" {
		s.notifier.Notify(notify.VariantDestructive, "Title required", "Please enter a title for the lecture.")
		return models.Lecture{}, fmt.Errorf("recording: title is required: %w", apperr.ErrValidation)
	}

	audio, audioMIME, err := capture.Assemble(mime, chunks)
	if err != nil {
		return models.Lecture{}, fmt.Errorf("recording: assemble audio: %w", err)
	}

	l := lecture.New(title, elapsed, s.clock.Now())
	key, err := s.store.SaveAudio(l.ID, audioMIME, audio)
	if err != nil {
		s.notifier.Notify(notify.VariantDestructive, "Save failed", "The recording could not be stored.")
		return models.Lecture{}, err
	}
	l.AudioKey = key
	l.MIMEType = audioMIME
	if err := s.store.Add(l); err != nil {
		return models.Lecture{}, err
	}

	s.mu.Lock()
	s.resetLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("recording: saved",
		slog.String("id", l.ID),
		slog.String("title", l.Title),
		slog.String("duration", l.Duration))
	s.notifier.Notify(notify.VariantSuccess, "Recording saved", fmt.Sprintf("%q has been added to your lectures.", l.Title))

	if s.hooks.OnSaved != nil {
		s.hooks.OnSaved(l)
	}
	s.fireState(snap)
	return l, nil
}

// Cancel discards the recording. From recording it also releases the device.
func (s *Session) Cancel() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return fmt.Errorf("recording: nothing to cancel: %w", apperr.ErrInvalidState)
	case StateRecording:
		stream, stop, done := s.stream, s.stopCh, s.loopEnd
		s.mu.Unlock()
		s.halt(stream, stop, done)
		s.mu.Lock()
	}
	discarded := s.snapshotLocked()
	s.resetLocked()
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.logger.Info("recording: discarded", slog.Int("elapsed_seconds", discarded.ElapsedSeconds))
	s.notifier.Notify(notify.VariantDefault, "Recording discarded", "The recording was not saved.")
	if s.hooks.OnDiscarded != nil {
		s.hooks.OnDiscarded(discarded)
	}
	s.fireState(snap)
	return nil
}

// Close releases the device if a recording is still running. Buffered
// audio is discarded.
func (s *Session) Close() {
	s.mu.Lock()
	recording := s.state == StateRecording
	s.mu.Unlock()
	if recording {
		_ = s.Cancel()
	}
}

func (s *Session) resetLocked() {
	s.state = StateIdle
	s.elapsed = 0
	s.chunks = nil
	s.bytes = 0
	s.mime = ""
	s.stream = nil
}

func (s *Session) fireState(snap Snapshot) {
	if s.hooks.OnState != nil {
		s.hooks.OnState(snap)
	}
}

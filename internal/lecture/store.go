// Package lecture owns the lecture collection and mirrors it to a kv.Store.
package lecture

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/models"
)

const (
	// CollectionKey holds the serialized lecture collection.
	CollectionKey = "lectures"
	// AudioKeyPrefix prefixes the per-recording audio data URI keys.
	AudioKeyPrefix = "lecture_audio_"
)

// Store is the single writer of the lecture collection.
//
// Mutations update memory under mu and then signal the persister
// goroutine, which writes the whole collection as one value. Writes are
// coalesced: only the latest version is ever written.
type Store struct {
	kv     kv.Store
	logger *slog.Logger

	mu        sync.RWMutex
	lectures  []models.Lecture
	version   uint64
	persisted uint64
	lastSum   string

	dirty    chan struct{}
	flushReq chan chan struct{}
	stopCh   chan struct{}
	stopped  chan struct{}
	closed   atomic.Bool
}

// Open hydrates a Store from backend and starts its persister. A missing
// or malformed collection yields an empty store; Open never fails on it.
func Open(backend kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:       backend,
		logger:   logger,
		dirty:    make(chan struct{}, 1),
		flushReq: make(chan chan struct{}),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	lectures, sum, err := s.load()
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		logger.Info("lecture store: no prior data")
	case err != nil:
		logger.Warn("lecture store: hydration failed, starting empty", slog.String("error", err.Error()))
	default:
		s.lectures = lectures
		s.lastSum = sum
		logger.Info("lecture store: hydrated", slog.Int("count", len(lectures)))
	}

	go s.run()
	return s
}

func (s *Store) load() ([]models.Lecture, string, error) {
	data, err := s.kv.Get(CollectionKey)
	if err != nil {
		return nil, "", err
	}
	var lectures []models.Lecture
	if err := json.Unmarshal(data, &lectures); err != nil {
		return nil, "", fmt.Errorf("lecture: decode collection: %w", err)
	}
	return lectures, checksum(data), nil
}

// Reload replaces the in-memory collection with what is currently stored.
// A malformed value leaves the collection untouched and is returned as error.
func (s *Store) Reload() error {
	lectures, sum, err := s.load()
	if errors.Is(err, apperr.ErrNotFound) {
		lectures, sum, err = nil, "", nil
	}
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.lectures = lectures
	s.lastSum = sum
	s.version++
	s.persisted = s.version
	s.mu.Unlock()
	return nil
}

// ReloadIfChanged reloads when the stored collection differs from the one
// this Store last wrote or loaded. It does nothing while local changes are
// still unwritten, so an external edit never overwrites a pending mutation.
func (s *Store) ReloadIfChanged() (bool, error) {
	lectures, sum, err := s.load()
	if errors.Is(err, apperr.ErrNotFound) {
		lectures, sum, err = nil, "", nil
	}
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != s.persisted || sum == s.lastSum {
		return false, nil
	}
	s.lectures = lectures
	s.lastSum = sum
	s.version++
	s.persisted = s.version
	return true, nil
}

// Checksum is the SHA-256 of the collection as last written or loaded.
func (s *Store) Checksum() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSum
}

// List returns every lecture, newest first.
func (s *Store) List() []models.Lecture {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Lecture, len(s.lectures))
	for i, l := range s.lectures {
		out[i] = clone(l)
	}
	return out
}

// Get returns the lecture with id.
func (s *Store) Get(id string) (models.Lecture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.indexOf(id)
	if i < 0 {
		return models.Lecture{}, apperr.ErrNotFound
	}
	return clone(s.lectures[i]), nil
}

// Add puts l at the front of the collection.
func (s *Store) Add(l models.Lecture) error {
	if l.ID == "" {
		return fmt.Errorf("lecture: id is required: %w", apperr.ErrValidation)
	}
	if strings.TrimSpace(l.Title) == "" {
		return fmt.Errorf("lecture: title is required: %w", apperr.ErrValidation)
	}

	s.mu.Lock()
	if s.indexOf(l.ID) >= 0 {
		s.mu.Unlock()
		return apperr.ErrAlreadyExists
	}
	s.lectures = append([]models.Lecture{clone(l)}, s.lectures...)
	s.version++
	s.mu.Unlock()

	s.markDirty()
	return nil
}

// Update applies p to the lecture with id and returns the result.
func (s *Store) Update(id string, p models.Patch) (models.Lecture, error) {
	return s.UpdateIf(id, p, nil)
}

// UpdateIf is Update guarded by check, which sees the current lecture under
// the write lock. A non-nil error from check aborts the update unchanged.
func (s *Store) UpdateIf(id string, p models.Patch, check func(models.Lecture) error) (models.Lecture, error) {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return models.Lecture{}, fmt.Errorf("lecture: title cannot be empty: %w", apperr.ErrValidation)
	}

	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Lecture{}, apperr.ErrNotFound
	}
	if check != nil {
		if err := check(clone(s.lectures[i])); err != nil {
			s.mu.Unlock()
			return models.Lecture{}, err
		}
	}
	p.Apply(&s.lectures[i])
	updated := clone(s.lectures[i])
	s.version++
	s.mu.Unlock()

	s.markDirty()
	return updated, nil
}

// Remove deletes the lecture with id together with its audio. An unknown
// id returns apperr.ErrNotFound and changes nothing.
func (s *Store) Remove(id string) (models.Lecture, error) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return models.Lecture{}, apperr.ErrNotFound
	}
	removed := s.lectures[i]
	s.lectures = append(s.lectures[:i:i], s.lectures[i+1:]...)
	s.version++
	s.mu.Unlock()

	s.markDirty()

	if removed.AudioKey != "" {
		if err := s.kv.Delete(removed.AudioKey); err != nil {
			s.logger.Warn("lecture store: delete audio failed",
				slog.String("key", removed.AudioKey), slog.String("error", err.Error()))
		}
	}
	return removed, nil
}

// SaveAudio persists data as a base64 data URI under the lecture's audio
// key and returns that key.
func (s *Store) SaveAudio(id, mime string, data []byte) (string, error) {
	key := AudioKeyPrefix + id
	uri := "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
	if err := s.kv.Set(key, []byte(uri)); err != nil {
		return "", fmt.Errorf("lecture: save audio: %w", err)
	}
	return key, nil
}

// Audio loads and decodes the data URI stored under key.
func (s *Store) Audio(key string) (mime string, data []byte, err error) {
	if !strings.HasPrefix(key, AudioKeyPrefix) {
		return "", nil, apperr.ErrNotFound
	}
	raw, err := s.kv.Get(key)
	if err != nil {
		return "", nil, err
	}
	return DecodeDataURI(string(raw))
}

// DecodeDataURI splits a "data:<mime>;base64,<payload>" string.
func DecodeDataURI(uri string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("lecture: not a data uri")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("lecture: data uri has no payload")
	}
	mime, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("lecture: data uri is not base64")
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("lecture: decode audio: %w", err)
	}
	return mime, data, nil
}

// Flush blocks until every mutation made before the call has been mirrored.
func (s *Store) Flush() {
	if s.closed.Load() {
		return
	}
	ack := make(chan struct{})
	select {
	case s.flushReq <- ack:
		<-ack
	case <-s.stopped:
	}
}

// Close writes any pending changes and stops the persister.
func (s *Store) Close() {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopCh)
	}
	<-s.stopped
}

func (s *Store) run() {
	defer close(s.stopped)
	for {
		select {
		case <-s.dirty:
			s.persist()
		case ack := <-s.flushReq:
			s.persist()
			close(ack)
		case <-s.stopCh:
			s.persist()
			return
		}
	}
}

func (s *Store) markDirty() {
	select {
	case s.dirty <- struct{}{}:
	default:
	}
}

// persist writes the current collection if it changed since the last write.
// Failures are logged; the next mutation retries with a fresh snapshot.
func (s *Store) persist() {
	s.mu.RLock()
	if s.version == s.persisted {
		s.mu.RUnlock()
		return
	}
	version := s.version
	snapshot := s.lectures
	if snapshot == nil {
		snapshot = []models.Lecture{}
	}
	data, err := json.Marshal(snapshot)
	s.mu.RUnlock()
	if err != nil {
		s.logger.Error("lecture store: encode failed", slog.String("error", err.Error()))
		return
	}

	if err := s.kv.Set(CollectionKey, data); err != nil {
		s.logger.Error("lecture store: write failed", slog.String("error", err.Error()))
		return
	}

	s.mu.Lock()
	if version > s.persisted {
		s.persisted = version
		s.lastSum = checksum(data)
	}
	s.mu.Unlock()
}

func (s *Store) indexOf(id string) int {
	for i := range s.lectures {
		if s.lectures[i].ID == id {
			return i
		}
	}
	return -1
}

func clone(l models.Lecture) models.Lecture {
	l.Transcription = copyString(l.Transcription)
	l.Summary = copyString(l.Summary)
	if l.Topics != nil {
		l.Topics = append([]string(nil), l.Topics...)
	}
	return l
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func checksum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// New builds a lecture record for a finished recording.
func New(title string, elapsedSeconds int, now time.Time) models.Lecture {
	now = now.UTC().Round(0)
	return models.Lecture{
		ID:        uuid.NewString(),
		Title:     title,
		Date:      now.Format(models.DateLayout),
		CreatedAt: now,
		Duration:  models.FormatDuration(elapsedSeconds),
	}
}

// Package assistant is the study chat facade: a keyed gate, a rolling
// conversation window, and a pluggable responder.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
)

// KeyName is the kv key holding the assistant credential.
const KeyName = "ai_api_key"

// DefaultHistorySize is the number of messages kept as context.
const DefaultHistorySize = 15

// Request is what a Responder sees for one query.
type Request struct {
	APIKey  string
	Prompt  string
	History []models.Message
}

// Responder produces the answer to a query.
type Responder interface {
	Respond(ctx context.Context, req Request) (Response, error)
}

// Simulator answers from the keyword cascade after a fixed latency.
type Simulator struct {
	Latency time.Duration
}

func (s Simulator) Respond(ctx context.Context, req Request) (Response, error) {
	if s.Latency > 0 {
		t := time.NewTimer(s.Latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return Response{}, ctx.Err()
		case <-t.C:
		}
	}
	return Classify(req.Prompt), nil
}

// Facade is the assistant entry point. It is safe for concurrent use.
type Facade struct {
	kv        kv.Store
	responder Responder
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	maxHist   int

	mu      sync.Mutex
	history []models.Message
}

// Option configures a Facade.
type Option func(*Facade)

// WithHistorySize overrides DefaultHistorySize.
func WithHistorySize(n int) Option {
	return func(f *Facade) {
		if n > 0 {
			f.maxHist = n
		}
	}
}

// WithMetrics counts queries by category.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Facade) { f.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(f *Facade) { f.logger = l }
}

// New creates a Facade reading its key from store.
func New(store kv.Store, responder Responder, notifier notify.Notifier, opts ...Option) *Facade {
	f := &Facade{
		kv:        store,
		responder: responder,
		notifier:  notifier,
		logger:    slog.Default(),
		maxHist:   DefaultHistorySize,
	}
	if f.responder == nil {
		f.responder = Simulator{}
	}
	if f.notifier == nil {
		f.notifier = notify.Discard{}
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// SetKey stores the credential.
func (f *Facade) SetKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("assistant: api key is empty: %w", apperr.ErrValidation)
	}
	return f.kv.Set(KeyName, []byte(key))
}

// ClearKey removes the credential.
func (f *Facade) ClearKey() error {
	return f.kv.Delete(KeyName)
}

// HasKey reports whether a credential is stored.
func (f *Facade) HasKey() bool {
	_, err := f.key()
	return err == nil
}

func (f *Facade) key() (string, error) {
	raw, err := f.kv.Get(KeyName)
	if errors.Is(err, apperr.ErrNotFound) || (err == nil && strings.TrimSpace(string(raw)) == "") {
		return "", apperr.ErrMissingCredential
	}
	if err != nil {
		return "", fmt.Errorf("assistant: read key: %w", err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// Query answers prompt. Without a stored key it raises an "API Key Missing"
// notice and returns a nil response wrapped around
// apperr.ErrMissingCredential; history is left untouched. A successful
// query appends the prompt and the answer to the history.
func (f *Facade) Query(ctx context.Context, prompt string) (*Response, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("assistant: prompt is empty: %w", apperr.ErrValidation)
	}
	key, err := f.key()
	if err != nil {
		if errors.Is(err, apperr.ErrMissingCredential) {
			f.notifier.Notify(notify.VariantDestructive, "API Key Missing",
				"Please set your AI API key in settings before using the assistant.")
		}
		return nil, err
	}

	resp, err := f.responder.Respond(ctx, Request{APIKey: key, Prompt: prompt, History: f.History()})
	if err != nil {
		if ctx.Err() == nil {
			f.notifier.Notify(notify.VariantDestructive, "Assistant Error", "The assistant could not answer. Please try again.")
		}
		f.logger.Warn("assistant: respond failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("assistant: respond: %w", err)
	}

	f.mu.Lock()
	f.history = append(f.history,
		models.Message{Role: models.RoleUser, Content: prompt},
		models.Message{Role: models.RoleAssistant, Content: resp.Text})
	if over := len(f.history) - f.maxHist; over > 0 {
		f.history = append([]models.Message(nil), f.history[over:]...)
	}
	f.mu.Unlock()

	if f.metrics != nil {
		f.metrics.AssistantQueries.WithLabelValues(string(resp.Category)).Inc()
	}
	return &resp, nil
}

// History returns a copy of the conversation window, oldest first.
func (f *Facade) History() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.history...)
}

// ClearHistory empties the conversation window.
func (f *Facade) ClearHistory() {
	f.mu.Lock()
	f.history = nil
	f.mu.Unlock()
}

// maxTopicContext bounds the transcript bytes sent for topic suggestions.
const maxTopicContext = 4000

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// SuggestTopics asks the responder for topics related to transcript. It
// neither notifies nor records history; a missing key is returned as an
// error so callers can fall back to a static list.
func (f *Facade) SuggestTopics(ctx context.Context, transcript string) (string, error) {
	key, err := f.key()
	if err != nil {
		return "", err
	}
	prompt := "List five related topics for further study, separated by commas, for this lecture:\n" + truncate(transcript, maxTopicContext)
	resp, err := f.responder.Respond(ctx, Request{APIKey: key, Prompt: prompt})
	if err != nil {
		return "", err
	}
	if resp.Category != CategoryModel {
		// The cascade has no topic knowledge.
		return "", nil
	}
	return resp.Text, nil
}

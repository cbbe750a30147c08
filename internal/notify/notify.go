// Package notify records toast-style notices for the user and pushes them
// to connected clients.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/lectern/internal/sse"
)

// Variant is the visual style of a notice.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantDestructive Variant = "destructive"
)

// DefaultCapacity is how many notices a Center keeps.
const DefaultCapacity = 50

// Notice is a single user-facing notification.
type Notice struct {
	ID          string    `json:"id"`
	Variant     Variant   `json:"variant"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// Notifier is what components use to surface outcomes to the user.
type Notifier interface {
	Notify(variant Variant, title, description string)
}

// Publisher receives every notice as an SSE event.
type Publisher interface {
	Publish(event sse.Event)
}

// Center keeps the most recent notices and forwards them to a Publisher.
type Center struct {
	mu       sync.Mutex
	items    []Notice
	capacity int
	pub      Publisher
	logger   *slog.Logger
}

// NewCenter creates a Center. pub may be nil.
func NewCenter(pub Publisher, logger *slog.Logger) *Center {
	if logger == nil {
		logger = slog.Default()
	}
	return &Center{capacity: DefaultCapacity, pub: pub, logger: logger}
}

// Notify records a notice and publishes it.
func (c *Center) Notify(variant Variant, title, description string) {
	n := Notice{
		ID:          uuid.NewString(),
		Variant:     variant,
		Title:       title,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	c.mu.Lock()
	c.items = append(c.items, n)
	if over := len(c.items) - c.capacity; over > 0 {
		c.items = append([]Notice(nil), c.items[over:]...)
	}
	c.mu.Unlock()

	level := slog.LevelInfo
	if variant == VariantDestructive {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "notice",
		slog.String("title", title),
		slog.String("description", description))

	if c.pub != nil {
		c.pub.Publish(sse.Event{Type: sse.TypeNotification, Data: n})
	}
}

// List returns notices newest first.
func (c *Center) List() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Notice, len(c.items))
	for i, n := range c.items {
		out[len(c.items)-1-i] = n
	}
	return out
}

// Discard is a Notifier that drops everything.
type Discard struct{}

func (Discard) Notify(Variant, string, string) {}

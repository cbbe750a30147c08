package notify

import (
	"fmt"
	"sync"
	"testing"

	"github.com/starford/lectern/internal/sse"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []sse.Event
}

func (p *recordingPublisher) Publish(e sse.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func TestNotifyPublishesAndLists(t *testing.T) {
	pub := &recordingPublisher{}
	c := NewCenter(pub, nil)

	c.Notify(VariantDestructive, "API Key Missing", "Set a key first")
	c.Notify(VariantSuccess, "Recording saved", "Intro to AI")

	list := c.List()
	if len(list) != 2 {
		t.Fatalf("len = %d", len(list))
	}
	if list[0].Title != "Recording saved" {
		t.Errorf("newest first: got %q", list[0].Title)
	}
	if list[1].ID == "" || list[1].Variant != VariantDestructive {
		t.Errorf("unexpected notice %+v", list[1])
	}
	if len(pub.events) != 2 || pub.events[0].Type != sse.TypeNotification {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestNotifyCapacity(t *testing.T) {
	c := NewCenter(nil, nil)
	for i := 0; i < DefaultCapacity+5; i++ {
		c.Notify(VariantDefault, fmt.Sprintf("n%d", i), "")
	}
	list := c.List()
	if len(list) != DefaultCapacity {
		t.Fatalf("len = %d, want %d", len(list), DefaultCapacity)
	}
	if list[len(list)-1].Title != "n5" {
		t.Errorf("oldest kept = %q, want n5", list[len(list)-1].Title)
	}
}

package sse_test

import (
	"strings"
	"testing"
	"time"

	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/sse"
	"github.com/starford/lectern/internal/testutil"
	"github.com/starford/lectern/internal/transcription"
)

// eventTypes reads until want has been seen or the stream goes quiet.
func eventTypes(ch <-chan []byte, want string) []string {
	var types []string
	seen := false
	for {
		wait := time.Second
		if seen {
			wait = 50 * time.Millisecond
		}
		select {
		case msg, ok := <-ch:
			if !ok {
				return types
			}
			line, _, _ := strings.Cut(string(msg), "\n")
			typ := strings.TrimPrefix(line, "event: ")
			types = append(types, typ)
			if typ == want {
				seen = true
			}
		case <-time.After(wait):
			return types
		}
	}
}

func TestTranscriptionJobEventSequence(t *testing.T) {
	store := testutil.Store(t, testutil.Backend(t))
	b := sse.NewBroker(time.Hour)
	defer b.Close()
	ch := b.Subscribe()

	runner := transcription.NewRunner(&transcription.Simulator{StepDelay: time.Millisecond}, store, nil,
		transcription.WithEvents(b))
	t.Cleanup(runner.Close)

	l := lecture.New("Optics", 60, time.Now())
	if err := store.Add(l); err != nil {
		t.Fatal(err)
	}
	b.PublishLectureEvent("created", l.ID)
	if _, err := runner.Start(l.ID, transcription.KindTranscribe); err != nil {
		t.Fatalf("Start: %v", err)
	}

	got := eventTypes(ch, sse.TypeLectureUpdated)
	counts := map[string]int{}
	lastProgress, finished := -1, -1
	for i, typ := range got {
		counts[typ]++
		switch typ {
		case sse.TypeTranscriptionProgress:
			lastProgress = i
		case sse.TypeJobFinished:
			finished = i
		}
	}
	want := map[string]int{
		sse.TypeLectureCreated:        1,
		sse.TypeTranscriptionProgress: transcription.Steps,
		sse.TypeJobFinished:           1,
		sse.TypeLectureUpdated:        1,
		// The update lands inside the throttle window, so the list is
		// announced once.
		sse.TypeLecturesChanged: 1,
	}
	for typ, n := range want {
		if counts[typ] != n {
			t.Errorf("%s events = %d, want %d (got %v)", typ, counts[typ], n, got)
		}
	}
	if finished < lastProgress {
		t.Errorf("job.finished before last progress: %v", got)
	}
}

func TestDeleteAfterThrottleWindowRefreshesList(t *testing.T) {
	b := sse.NewBroker(20 * time.Millisecond)
	defer b.Close()
	ch := b.Subscribe()

	b.PublishLectureEvent("created", "lec-a")
	b.PublishLectureEvent("updated", "lec-a")
	time.Sleep(40 * time.Millisecond)
	b.PublishLectureEvent("deleted", "lec-a")

	got := eventTypes(ch, sse.TypeLectureDeleted)
	want := []string{
		sse.TypeLectureCreated, sse.TypeLecturesChanged,
		sse.TypeLectureUpdated,
		sse.TypeLectureDeleted, sse.TypeLecturesChanged,
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("events = %v\nwant %v", got, want)
	}
}

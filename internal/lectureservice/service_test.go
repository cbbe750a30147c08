package lectureservice

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/capture"
	"github.com/starford/lectern/internal/clock"
	"github.com/starford/lectern/internal/export"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/lecture"
	"github.com/starford/lectern/internal/metrics"
	"github.com/starford/lectern/internal/models"
	"github.com/starford/lectern/internal/notify"
	"github.com/starford/lectern/internal/recording"
	"github.com/starford/lectern/internal/sse"
	"github.com/starford/lectern/internal/transcription"
)

type events struct {
	mu       sync.Mutex
	types    []string
	lectures []string
}

func (e *events) Publish(ev sse.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.types = append(e.types, ev.Type)
}

func (e *events) PublishLectureEvent(kind, id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lectures = append(e.lectures, kind+":"+id)
}

func (e *events) has(s string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, l := range append(append([]string(nil), e.types...), e.lectures...) {
		if l == s {
			return true
		}
	}
	return false
}

type env struct {
	svc    *Service
	store  *lecture.Store
	runner *transcription.Runner
	center *notify.Center
	events *events
	clock  *clock.Fake
	push   *capture.Push
}

func newEnv(t *testing.T, stepDelay time.Duration) *env {
	t.Helper()
	backend, err := kv.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	store := lecture.Open(backend, nil)
	ev := &events{}
	center := notify.NewCenter(nil, nil)
	m := metrics.New()
	runner := transcription.NewRunner(&transcription.Simulator{StepDelay: stepDelay}, store, center,
		transcription.WithEvents(ev), transcription.WithMetrics(m))
	fake := clock.NewFake(time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	push := capture.NewPush("audio/webm")
	svc := New(Deps{
		Store:            store,
		Runner:           runner,
		Exporter:         export.NewService(store, center, m, export.DefaultOptions, nil),
		Device:           push,
		Notifier:         center,
		Events:           ev,
		Metrics:          m,
		RecordingOptions: []recording.Option{recording.WithClock(fake)},
	})
	t.Cleanup(func() {
		svc.Close()
		runner.Close()
		store.Close()
	})
	return &env{svc: svc, store: store, runner: runner, center: center, events: ev, clock: fake, push: push}
}

func (e *env) noticed(title string) bool {
	for _, n := range e.center.List() {
		if n.Title == title {
			return true
		}
	}
	return false
}

func strPtr(s string) *string { return &s }

func TestRecordingFlowThroughService(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()

	if _, err := e.svc.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if err := e.svc.DeliverChunk(ctx, []byte("webm-data")); err != nil {
		t.Fatalf("DeliverChunk: %v", err)
	}
	for i := 0; i < 5; i++ {
		e.clock.Tick(time.Second)
	}
	snap, err := e.svc.StopRecording(ctx)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if snap.State != recording.StateAwaitingTitle || snap.Duration != "0:05" {
		t.Fatalf("snapshot = %+v", snap)
	}

	d, err := e.svc.ConfirmRecording(ctx, "Intro to AI")
	if err != nil {
		t.Fatalf("ConfirmRecording: %v", err)
	}
	if d.Duration != "0:05" || d.AudioURL == "" || d.ETag == "" {
		t.Errorf("detail = %+v", d)
	}
	if !e.events.has("created:"+d.ID) || !e.events.has(sse.TypeRecordingState) {
		t.Error("missing created or recording.state events")
	}

	mime, data, err := e.svc.Audio(ctx, d.ID)
	if err != nil || mime != "audio/webm" || string(data) != "webm-data" {
		t.Errorf("audio = %q %q %v", mime, data, err)
	}
}

func TestDeliverChunkWithoutRecording(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	if err := e.svc.DeliverChunk(context.Background(), []byte("x")); !errors.Is(err, apperr.ErrInvalidState) {
		t.Errorf("err = %v", err)
	}
}

func TestCreateListAndFilter(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()

	if _, err := e.svc.CreateLecture(ctx, "  ", "", nil, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank title err = %v", err)
	}
	a, _ := e.svc.CreateLecture(ctx, "Linear Algebra", "audio/ogg", []byte("ogg"), 3600)
	b, _ := e.svc.CreateLecture(ctx, "Organic Chemistry", "", nil, 90)

	all := e.svc.ListLectures(ctx, "")
	if len(all) != 2 || all[0].ID != b.ID || all[1].ID != a.ID {
		t.Fatalf("list = %+v", all)
	}
	if all[1].Duration != "1:00:00" {
		t.Errorf("duration = %q", all[1].Duration)
	}
	got := e.svc.ListLectures(ctx, "algebra")
	if len(got) != 1 || got[0].ID != a.ID {
		t.Errorf("filtered = %+v", got)
	}
	if _, _, err := e.svc.Audio(ctx, b.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("audio without recording err = %v", err)
	}
}

func TestUpdateWithETag(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()
	d, _ := e.svc.CreateLecture(ctx, "Physics", "", nil, 10)

	updated, err := e.svc.UpdateLecture(ctx, d.ID, models.Patch{Title: strPtr("Physics I")}, d.ETag)
	if err != nil {
		t.Fatalf("UpdateLecture: %v", err)
	}
	if updated.Title != "Physics I" || updated.ETag == d.ETag {
		t.Errorf("updated = %+v", updated)
	}
	if _, err := e.svc.UpdateLecture(ctx, d.ID, models.Patch{Title: strPtr("x")}, d.ETag); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale etag err = %v", err)
	}
	if _, err := e.svc.UpdateLecture(ctx, "missing", models.Patch{}, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

func TestConcurrentUpdatesWithSameETag(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()
	d, _ := e.svc.CreateLecture(ctx, "Physics", "", nil, 10)

	const writers = 8
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			title := fmt.Sprintf("Physics %d", i)
			_, err := e.svc.UpdateLecture(ctx, d.ID, models.Patch{Title: &title}, d.ETag)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, apperr.ErrConflict):
			t.Errorf("unexpected err = %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("%d updates succeeded with the same etag, want 1", ok)
	}
}

func TestImportTranscriptionFrontmatter(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()
	d, _ := e.svc.CreateLecture(ctx, "Biology", "", nil, 10)

	content := "---\nsummary: Cells and DNA.\ntopics: [Genetics, Mitosis]\n---\n# Biology\nCells divide."
	got, err := e.svc.ImportTranscription(ctx, d.ID, content, "")
	if err != nil {
		t.Fatalf("ImportTranscription: %v", err)
	}
	if *got.Transcription != "# Biology\nCells divide." || *got.Summary != "Cells and DNA." || len(got.Topics) != 2 {
		t.Errorf("got = %+v", got.Lecture)
	}
}

func TestDeleteCancelsJobs(t *testing.T) {
	e := newEnv(t, time.Hour)
	ctx := context.Background()
	d, _ := e.svc.CreateLecture(ctx, "History", "", nil, 10)
	keep, _ := e.svc.CreateLecture(ctx, "Art", "", nil, 10)

	job, err := e.svc.Transcribe(ctx, d.ID)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if err := e.svc.DeleteLecture(ctx, d.ID); err != nil {
		t.Fatalf("DeleteLecture: %v", err)
	}
	e.runner.Wait()

	got, _ := e.svc.Job(ctx, job.ID)
	if got.Status != transcription.StatusCancelled {
		t.Errorf("job status = %s", got.Status)
	}
	list := e.svc.ListLectures(ctx, "")
	if len(list) != 1 || list[0].ID != keep.ID {
		t.Errorf("after delete = %+v", list)
	}
	if !e.noticed("Lecture deleted") || !e.events.has("deleted:"+d.ID) {
		t.Error("missing delete notice or event")
	}
	if err := e.svc.DeleteLecture(ctx, d.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestSummarizeWithoutTranscription(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()
	d, _ := e.svc.CreateLecture(ctx, "Empty", "", nil, 1)

	if _, err := e.svc.Summarize(ctx, d.ID); !errors.Is(err, apperr.ErrValidation) {
		t.Fatalf("err = %v", err)
	}
	got, _ := e.svc.GetLecture(ctx, d.ID)
	if got.ETag != d.ETag {
		t.Error("lecture mutated")
	}
	if !e.noticed("No transcription") {
		t.Error("missing notice")
	}
}

func TestTranscribeThenExport(t *testing.T) {
	e := newEnv(t, time.Millisecond)
	ctx := context.Background()
	d, _ := e.svc.CreateLecture(ctx, "Statistics", "", nil, 1)

	if _, err := e.svc.Transcribe(ctx, d.ID); err != nil {
		t.Fatal(err)
	}
	e.runner.Wait()

	f, err := e.svc.Export(ctx, d.ID, export.FormatDOCX, "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if f.Name != "Statistics.docx" || len(f.Data) == 0 {
		t.Errorf("file = %s (%d bytes)", f.Name, len(f.Data))
	}
}

func TestDurationSeconds(t *testing.T) {
	for in, want := range map[string]int{"0:05": 5, "1:02:05": 3725, "": 0, "x:10": 0} {
		if got := durationSeconds(in); got != want {
			t.Errorf("durationSeconds(%q) = %d, want %d", in, got, want)
		}
	}
}

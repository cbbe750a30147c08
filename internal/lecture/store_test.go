package lecture

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBackend(t *testing.T) *kv.FS {
	t.Helper()
	b, err := kv.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return b
}

func openStore(t *testing.T, b kv.Store) *Store {
	t.Helper()
	s := Open(b, nil)
	t.Cleanup(s.Close)
	return s
}

func sample(title string) models.Lecture {
	return New(title, 5, time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC))
}

func strPtr(s string) *string { return &s }

func TestAddPrependsNewestFirst(t *testing.T) {
	s := openStore(t, newBackend(t))
	a, b := sample("First"), sample("Second")
	if err := s.Add(a); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(b); err != nil {
		t.Fatalf("Add: %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != b.ID || list[1].ID != a.ID {
		t.Fatalf("order = %+v", list)
	}
}

func TestAddRejectsBlankTitleAndDuplicates(t *testing.T) {
	s := openStore(t, newBackend(t))
	blank := sample("   ")
	if err := s.Add(blank); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank title err = %v", err)
	}
	l := sample("Intro")
	_ = s.Add(l)
	if err := s.Add(l); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate err = %v", err)
	}
	if len(s.List()) != 1 {
		t.Errorf("len = %d", len(s.List()))
	}
}

func TestRoundTripPersistence(t *testing.T) {
	backend := newBackend(t)
	s := Open(backend, nil)

	a := sample("Intro to AI")
	a.AudioKey = AudioKeyPrefix + a.ID
	a.MIMEType = "audio/webm"
	b := sample("Databases")
	b.Transcription = strPtr("# Notes\nrows and columns")
	b.Summary = strPtr("Tables.")
	b.Topics = []string{"SQL", "Indexes"}
	_ = s.Add(a)
	_ = s.Add(b)
	want := s.List()
	s.Close()

	reopened := openStore(t, backend)
	got := reopened.List()
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestHydrateMalformedStartsEmpty(t *testing.T) {
	backend := newBackend(t)
	if err := backend.Set(CollectionKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	s := openStore(t, backend)
	if n := len(s.List()); n != 0 {
		t.Fatalf("len = %d, want 0", n)
	}
	// The corrupt value is left alone until the first mutation.
	raw, _ := backend.Get(CollectionKey)
	if string(raw) != "{not json" {
		t.Errorf("stored value rewritten: %q", raw)
	}
}

func TestHydrateMissingStartsEmpty(t *testing.T) {
	s := openStore(t, newBackend(t))
	if n := len(s.List()); n != 0 {
		t.Fatalf("len = %d", n)
	}
}

func TestFlushMirrorsCollection(t *testing.T) {
	backend := newBackend(t)
	s := openStore(t, backend)
	l := sample("Physics")
	_ = s.Add(l)
	s.Flush()

	raw, err := backend.Get(CollectionKey)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var stored []models.Lecture
	if err := json.Unmarshal(raw, &stored); err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || stored[0].ID != l.ID {
		t.Errorf("stored = %+v", stored)
	}
	if s.Checksum() != checksum(raw) {
		t.Error("checksum does not match the written value")
	}
}

func TestUpdate(t *testing.T) {
	s := openStore(t, newBackend(t))
	l := sample("Chem")
	_ = s.Add(l)

	got, err := s.Update(l.ID, models.Patch{Transcription: strPtr("atoms")})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !got.HasTranscription() || *got.Transcription != "atoms" {
		t.Errorf("transcription = %v", got.Transcription)
	}
	if _, err := s.Update("missing", models.Patch{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	if _, err := s.Update(l.ID, models.Patch{Title: strPtr(" ")}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank title err = %v", err)
	}
}

func TestReturnedLecturesAreCopies(t *testing.T) {
	s := openStore(t, newBackend(t))
	l := sample("Chem")
	text := "atoms"
	l.Transcription = &text
	_ = s.Add(l)
	text = "changed after add"

	got, _ := s.Get(l.ID)
	*got.Transcription = "tampered"
	listed := s.List()
	*listed[0].Transcription = "tampered too"

	updated, _ := s.Update(l.ID, models.Patch{Summary: strPtr("short")})
	*updated.Summary = "tampered"

	again, _ := s.Get(l.ID)
	if *again.Transcription != "atoms" {
		t.Errorf("transcription = %q", *again.Transcription)
	}
	if *again.Summary != "short" {
		t.Errorf("summary = %q", *again.Summary)
	}
}

func TestUpdateIfCheckAborts(t *testing.T) {
	s := openStore(t, newBackend(t))
	l := sample("Chem")
	_ = s.Add(l)

	_, err := s.UpdateIf(l.ID, models.Patch{Title: strPtr("Physics")}, func(cur models.Lecture) error {
		if cur.Title != "Chem" {
			t.Errorf("check saw %q", cur.Title)
		}
		return apperr.ErrConflict
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("err = %v", err)
	}
	got, _ := s.Get(l.ID)
	if got.Title != "Chem" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestRemoveExactlyOne(t *testing.T) {
	backend := newBackend(t)
	s := openStore(t, backend)
	a, b, c := sample("A"), sample("B"), sample("C")
	key, err := s.SaveAudio(b.ID, "audio/webm", []byte("webm"))
	if err != nil {
		t.Fatal(err)
	}
	b.AudioKey = key
	for _, l := range []models.Lecture{a, b, c} {
		_ = s.Add(l)
	}

	if _, err := s.Remove(b.ID); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	list := s.List()
	if len(list) != 2 || list[0].ID != c.ID || list[1].ID != a.ID {
		t.Fatalf("after remove = %+v", list)
	}
	if _, err := backend.Get(key); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("audio not removed: %v", err)
	}

	if _, err := s.Remove("does-not-exist"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id err = %v", err)
	}
	if len(s.List()) != 2 {
		t.Error("unknown id removal mutated the collection")
	}
}

func TestAudioRoundTrip(t *testing.T) {
	s := openStore(t, newBackend(t))
	payload := []byte{0x1a, 0x45, 0xdf, 0xa3, 0x00}
	key, err := s.SaveAudio("abc", "audio/webm", payload)
	if err != nil {
		t.Fatal(err)
	}
	if key != "lecture_audio_abc" {
		t.Errorf("key = %q", key)
	}
	mime, data, err := s.Audio(key)
	if err != nil {
		t.Fatalf("Audio: %v", err)
	}
	if mime != "audio/webm" || !bytes.Equal(data, payload) {
		t.Errorf("got %q %v", mime, data)
	}
	if _, _, err := s.Audio("lectures"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("non-audio key err = %v", err)
	}
}

func TestReloadPicksUpExternalWrite(t *testing.T) {
	backend := newBackend(t)
	s := openStore(t, backend)
	_ = s.Add(sample("Local"))
	s.Flush()

	external := []models.Lecture{sample("External")}
	raw, _ := json.Marshal(external)
	if err := backend.Set(CollectionKey, raw); err != nil {
		t.Fatal(err)
	}
	if err := s.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	list := s.List()
	if len(list) != 1 || list[0].Title != "External" {
		t.Errorf("after reload = %+v", list)
	}

	_ = backend.Set(CollectionKey, []byte("garbage"))
	if err := s.Reload(); err == nil {
		t.Error("malformed reload should fail")
	}
	if len(s.List()) != 1 {
		t.Error("failed reload should keep the collection")
	}
}

func TestReloadIfChanged(t *testing.T) {
	backend := newBackend(t)
	s := openStore(t, backend)
	_ = s.Add(sample("Local"))
	s.Flush()

	if changed, err := s.ReloadIfChanged(); err != nil || changed {
		t.Fatalf("own write: changed=%v err=%v", changed, err)
	}

	raw, _ := json.Marshal([]models.Lecture{sample("External"), sample("Other")})
	if err := backend.Set(CollectionKey, raw); err != nil {
		t.Fatal(err)
	}
	changed, err := s.ReloadIfChanged()
	if err != nil || !changed {
		t.Fatalf("external write: changed=%v err=%v", changed, err)
	}
	if len(s.List()) != 2 {
		t.Errorf("after reload = %d lectures", len(s.List()))
	}
	if changed, _ := s.ReloadIfChanged(); changed {
		t.Error("second reload reported a change")
	}
}

func TestNewFormatsDurationAndDate(t *testing.T) {
	l := New("Intro to AI", 5, time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC))
	if l.Duration != "0:05" {
		t.Errorf("duration = %q", l.Duration)
	}
	if l.Date != "Mar 4, 2026 10:30 AM" {
		t.Errorf("date = %q", l.Date)
	}
	if l.ID == "" {
		t.Error("id should be generated")
	}
}

func TestDecodeDataURIErrors(t *testing.T) {
	for _, in := range []string{"audio", "data:audio/webm", "data:audio/webm,abc", "data:audio/webm;base64,!!"} {
		if _, _, err := DecodeDataURI(in); err == nil {
			t.Errorf("DecodeDataURI(%q) should fail", in)
		}
	}
}

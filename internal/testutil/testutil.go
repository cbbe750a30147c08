// Package testutil provides shared test helpers for setting up storage and
// the lecture store.
package testutil

import (
	"io"
	"log/slog"
	"testing"

	"github.com/starford/lectern/internal/kv"
	"github.com/starford/lectern/internal/lecture"
)

// Backend creates a file-system kv store in a temporary directory.
func Backend(t *testing.T) *kv.FS {
	t.Helper()
	b, err := kv.NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return b
}

// Store opens a lecture store over backend and closes it on cleanup.
func Store(t *testing.T, backend kv.Store) *lecture.Store {
	t.Helper()
	s := lecture.Open(backend, Logger())
	t.Cleanup(s.Close)
	return s
}

// Logger discards everything below error level.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

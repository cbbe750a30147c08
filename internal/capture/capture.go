// Package capture adapts audio sources into a stream of fixed-cadence chunks.
package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/starford/lectern/internal/apperr"
)

// Device is an audio source that must be opened before it delivers data.
type Device interface {
	// Open acquires the source. A refused or missing source returns an
	// error wrapping apperr.ErrPermission.
	Open(ctx context.Context) (Stream, error)
}

// Stream delivers chunks until it is closed. The Chunks channel is closed
// once the stream is released.
type Stream interface {
	Chunks() <-chan []byte
	MIMEType() string
	Close() error
}

// Unavailable is a Device whose Open always fails, as for a denied microphone.
type Unavailable struct {
	Reason string
}

func (u Unavailable) Open(context.Context) (Stream, error) {
	reason := u.Reason
	if reason == "" {
		reason = "no capture device configured"
	}
	return nil, fmt.Errorf("capture: %s: %w", reason, apperr.ErrPermission)
}

// Push is a Device fed by the client: a browser recorder uploads each chunk
// and the handler hands it to Deliver. Only one stream is open at a time.
type Push struct {
	mime string

	mu     sync.Mutex
	stream *pushStream
}

// NewPush creates a push device. mime is the default container type used
// when a chunk is delivered without one.
func NewPush(mime string) *Push {
	if mime == "" {
		mime = "audio/webm"
	}
	return &Push{mime: mime}
}

func (p *Push) Open(context.Context) (Stream, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stream != nil {
		return nil, fmt.Errorf("capture: push stream already open: %w", apperr.ErrInvalidState)
	}
	s := &pushStream{owner: p, mime: p.mime, ch: make(chan []byte, 64)}
	p.stream = s
	return s, nil
}

// Deliver hands one chunk to the open stream.
func (p *Push) Deliver(ctx context.Context, chunk []byte) error {
	p.mu.Lock()
	s := p.stream
	p.mu.Unlock()
	if s == nil {
		return fmt.Errorf("capture: no recording in progress: %w", apperr.ErrInvalidState)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.send(append([]byte(nil), chunk...))
}

type pushStream struct {
	owner *Push
	mime  string

	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (s *pushStream) Chunks() <-chan []byte { return s.ch }
func (s *pushStream) MIMEType() string      { return s.mime }

func (s *pushStream) send(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("capture: stream closed: %w", apperr.ErrInvalidState)
	}
	select {
	case s.ch <- chunk:
		return nil
	default:
		return fmt.Errorf("capture: chunk buffer full")
	}
}

func (s *pushStream) Close() error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()

	s.owner.mu.Lock()
	if s.owner.stream == s {
		s.owner.stream = nil
	}
	s.owner.mu.Unlock()
	return nil
}

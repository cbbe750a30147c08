package capture

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/lectern/internal/apperr"
	"github.com/starford/lectern/internal/clock"
)

func TestUnavailableIsPermissionError(t *testing.T) {
	_, err := Unavailable{Reason: "microphone denied"}.Open(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrPermission))
	assert.Contains(t, err.Error(), "microphone denied")
}

func TestPushDeliverAndClose(t *testing.T) {
	ctx := context.Background()
	p := NewPush("")

	err := p.Deliver(ctx, []byte("early"))
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	s, err := p.Open(ctx)
	require.NoError(t, err)
	assert.Equal(t, "audio/webm", s.MIMEType())

	_, err = p.Open(ctx)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "only one stream at a time")

	chunk := []byte{1, 2, 3}
	require.NoError(t, p.Deliver(ctx, chunk))
	chunk[0] = 9
	got := <-s.Chunks()
	assert.Equal(t, []byte{1, 2, 3}, got, "Deliver must copy the chunk")

	require.NoError(t, s.Close())
	_, ok := <-s.Chunks()
	assert.False(t, ok)
	assert.ErrorIs(t, p.Deliver(ctx, chunk), apperr.ErrInvalidState)

	// The device can be reopened after release.
	s2, err := p.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestToneEmitsOneSecondChunks(t *testing.T) {
	fake := clock.NewFake(time.Now())
	s, err := Tone{Clock: fake, Interval: time.Second}.Open(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MIMEPCM, s.MIMEType())

	fake.Tick(time.Second)
	select {
	case chunk := <-s.Chunks():
		assert.Len(t, chunk, SampleRate*2)
	case <-time.After(time.Second):
		t.Fatal("no chunk after tick")
	}
	require.NoError(t, s.Close())
}

func TestAssemblePassesThroughContainers(t *testing.T) {
	data, mime, err := Assemble("audio/webm", [][]byte{[]byte("ab"), []byte("cd")})
	require.NoError(t, err)
	assert.Equal(t, "audio/webm", mime)
	assert.Equal(t, []byte("abcd"), data)
}

func TestAssembleWrapsPCMInWAV(t *testing.T) {
	pcm := sine(0, SampleRate/10)
	data, mime, err := Assemble(MIMEPCM, [][]byte{pcm[:100], pcm[100:]})
	require.NoError(t, err)
	assert.Equal(t, MIMEWAV, mime)
	assert.Equal(t, "RIFF", string(data[0:4]))
	assert.Equal(t, "WAVE", string(data[8:12]))
	assert.Greater(t, len(data), len(pcm))

	dec := wav.NewDecoder(bytes.NewReader(data))
	assert.True(t, dec.IsValidFile())
}

func TestWriteSeekerOverwrites(t *testing.T) {
	w := &writeSeeker{}
	_, _ = w.Write([]byte("hello world"))
	_, err := w.Seek(0, 0)
	require.NoError(t, err)
	_, _ = w.Write([]byte("J"))
	assert.Equal(t, "Jello world", string(w.data))
	_, err = w.Seek(-100, 1)
	assert.Error(t, err)
}

package capture

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/starford/lectern/internal/clock"
)

// PCM format produced by Tone and accepted by EncodeWAV.
const (
	MIMEPCM       = "audio/L16"
	SampleRate    = 16000
	BitDepth      = 16
	NumChannels   = 1
	toneFrequency = 440.0
)

// Tone is a synthetic Device that emits one chunk of 16-bit mono PCM per
// interval. It stands in for a microphone in demos and tests.
type Tone struct {
	Clock    clock.Clock
	Interval time.Duration
}

func (t Tone) Open(context.Context) (Stream, error) {
	clk := t.Clock
	if clk == nil {
		clk = clock.Real{}
	}
	interval := t.Interval
	if interval <= 0 {
		interval = time.Second
	}
	s := &toneStream{
		ch:      make(chan []byte, 4),
		stop:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.run(clk.NewTicker(interval), interval)
	return s, nil
}

type toneStream struct {
	ch      chan []byte
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func (s *toneStream) Chunks() <-chan []byte { return s.ch }
func (s *toneStream) MIMEType() string      { return MIMEPCM }

func (s *toneStream) Close() error {
	s.once.Do(func() { close(s.stop) })
	<-s.stopped
	return nil
}

func (s *toneStream) run(ticker clock.Ticker, interval time.Duration) {
	defer close(s.stopped)
	defer close(s.ch)
	defer ticker.Stop()

	samples := int(interval.Seconds() * SampleRate)
	phase := 0
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C():
			chunk := sine(phase, samples)
			phase += samples
			select {
			case s.ch <- chunk:
			case <-s.stop:
				return
			}
		}
	}
}

// sine renders samples of a quiet 440 Hz tone as little-endian int16.
func sine(start, samples int) []byte {
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := 0.2 * math.Sin(2*math.Pi*toneFrequency*float64(start+i)/SampleRate)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*math.MaxInt16)))
	}
	return out
}

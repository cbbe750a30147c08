package capture

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MIMEWAV is the container type produced by EncodeWAV.
const MIMEWAV = "audio/wav"

// IsPCM reports whether mime names raw 16-bit PCM that needs a container.
func IsPCM(mime string) bool {
	return strings.HasPrefix(mime, MIMEPCM)
}

// Assemble joins chunks into one audio object. Raw PCM is wrapped in a WAV
// container; anything else is concatenated as delivered.
func Assemble(mime string, chunks [][]byte) ([]byte, string, error) {
	size := 0
	for _, c := range chunks {
		size += len(c)
	}
	joined := make([]byte, 0, size)
	for _, c := range chunks {
		joined = append(joined, c...)
	}
	if !IsPCM(mime) {
		return joined, mime, nil
	}
	wavData, err := EncodeWAV(joined)
	if err != nil {
		return nil, "", err
	}
	return wavData, MIMEWAV, nil
}

// EncodeWAV wraps little-endian 16-bit mono PCM in a WAV container.
func EncodeWAV(pcm []byte) ([]byte, error) {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}

	buf := &writeSeeker{}
	enc := wav.NewEncoder(buf, SampleRate, BitDepth, NumChannels, 1)
	err := enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: SampleRate, NumChannels: NumChannels},
		SourceBitDepth: BitDepth,
	})
	if err != nil {
		return nil, fmt.Errorf("capture: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("capture: finalize wav: %w", err)
	}
	return buf.data, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the WAV encoder seeks back to
// patch chunk sizes on Close.
type writeSeeker struct {
	data []byte
	pos  int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.data) {
		w.data = append(w.data, make([]byte, end-len(w.data))...)
	}
	copy(w.data[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.data)) + offset
	default:
		return 0, errors.New("capture: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("capture: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}

// Package audio holds captured PCM snapshots and their in-memory encodings.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// BitDepth is the only sample width the recorder produces.
const BitDepth = 16

// Payload is an immutable snapshot of a finished recording.
type Payload struct {
	samples    []int16
	sampleRate int
	channels   int
}

// NewPayload copies samples into a new Payload.
func NewPayload(samples []int16, sampleRate, channels int) Payload {
	cp := make([]int16, len(samples))
	copy(cp, samples)
	return Payload{samples: cp, sampleRate: sampleRate, channels: channels}
}

// SampleRate is in Hz.
func (p Payload) SampleRate() int { return p.sampleRate }

// Channels is the interleaved channel count.
func (p Payload) Channels() int { return p.channels }

// Frames is the number of sample frames (samples per channel).
func (p Payload) Frames() int {
	if p.channels <= 0 {
		return 0
	}
	return len(p.samples) / p.channels
}

// Empty reports whether no samples were captured.
func (p Payload) Empty() bool { return len(p.samples) == 0 }

// Duration is the audio length implied by the sample count.
func (p Payload) Duration() time.Duration {
	if p.sampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.sampleRate)
}

// ErrEmptyPayload is returned when encoding a payload without samples.
var ErrEmptyPayload = errors.New("audio payload is empty")

// EncodeWAV wraps the payload in a 16-bit PCM WAV container in memory.
func EncodeWAV(p Payload) ([]byte, error) {
	if p.Empty() {
		return nil, ErrEmptyPayload
	}
	ws := &memWriteSeeker{}
	enc := wav.NewEncoder(ws, p.sampleRate, BitDepth, p.channels, 1)

	data := make([]int, len(p.samples))
	for i, v := range p.samples {
		data[i] = int(v)
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: p.channels, SampleRate: p.sampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav write failed: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav close failed: %w", err)
	}
	return ws.Bytes(), nil
}

// DecodeWAV reads a 16-bit PCM WAV back into a Payload.
func DecodeWAV(b []byte) (Payload, error) {
	dec := wav.NewDecoder(bytes.NewReader(b))
	if !dec.IsValidFile() {
		return Payload{}, fmt.Errorf("not a valid wav stream")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Payload{}, fmt.Errorf("wav decode failed: %w", err)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	return Payload{samples: samples, sampleRate: int(dec.SampleRate), channels: int(dec.NumChans)}, nil
}

// memWriteSeeker lets the WAV encoder patch its header sizes without a file.
type memWriteSeeker struct {
	buf []byte
	pos int
}

func (m *memWriteSeeker) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		if end > cap(m.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, m.buf)
			m.buf = grown
		} else {
			m.buf = m.buf[:end]
		}
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memWriteSeeker) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(m.pos) + offset
	case io.SeekEnd:
		abs = int64(len(m.buf)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if abs < 0 {
		return 0, fmt.Errorf("negative position %d", abs)
	}
	m.pos = int(abs)
	return abs, nil
}

func (m *memWriteSeeker) Bytes() []byte { return m.buf }

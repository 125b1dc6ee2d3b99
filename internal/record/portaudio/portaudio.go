// Package portaudio is the PortAudio capture device for record.Session. It
// is kept apart from record because it needs cgo and libportaudio.
package portaudio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"voicepaste/internal/record"
)

// Device captures from the default input device.
type Device struct{}

type paStream struct {
	stream *portaudio.Stream
}

// Open initialises PortAudio and starts a callback-driven input stream.
// Each stream holds its own Initialize/Terminate pair.
func (Device) Open(cfg record.StreamConfig, onFrames func([]int16)) (record.Stream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init failed: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(cfg.Channels, 0, float64(cfg.SampleRate), cfg.FramesPerBuffer, func(in []int16) {
		onFrames(in)
	})
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("open stream failed: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("start stream failed: %w", err)
	}
	return &paStream{stream: stream}, nil
}

// Close stops the stream (waiting for the in-flight callback) and releases
// PortAudio.
func (s *paStream) Close() error {
	stopErr := s.stream.Stop()
	closeErr := s.stream.Close()
	termErr := portaudio.Terminate()
	switch {
	case stopErr != nil:
		return fmt.Errorf("stop stream failed: %w", stopErr)
	case closeErr != nil:
		return fmt.Errorf("close stream failed: %w", closeErr)
	case termErr != nil:
		return fmt.Errorf("portaudio terminate failed: %w", termErr)
	}
	return nil
}

// compile-time check
var _ record.Device = Device{}

package record

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicepaste/internal/audio"
)

// State represents recorder state.
type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

var (
	// ErrNoAudio is returned by Release when the recording was too short or
	// captured nothing. It is benign: nothing is dispatched.
	ErrNoAudio = errors.New("no audio recorded")
	// ErrNotRecording is returned by Release while idle.
	ErrNotRecording = errors.New("recorder not running")
)

// DeviceError reports that the capture device could not be opened. The
// recording is aborted; the caller keeps running.
type DeviceError struct {
	Err error
}

func (e *DeviceError) Error() string { return fmt.Sprintf("capture device unavailable: %v", e.Err) }

func (e *DeviceError) Unwrap() error { return e.Err }

// StreamConfig describes the capture format.
type StreamConfig struct {
	SampleRate      int
	Channels        int
	FramesPerBuffer int
}

// Stream is an open capture stream.
type Stream interface {
	Close() error
}

// Device opens capture streams. onFrames is called from the driver's audio
// thread with interleaved int16 samples; the slice is only valid during the
// call.
type Device interface {
	Open(cfg StreamConfig, onFrames func([]int16)) (Stream, error)
}

// Options configures a Session.
type Options struct {
	Stream      StreamConfig
	MinDuration time.Duration
	// MaxDuration caps the captured audio; 0 means unlimited.
	MaxDuration time.Duration
	// Now is the monotonic clock; time.Now when nil.
	Now func() time.Time
}

// Session is the push-to-talk recorder: Idle until Engage, Recording until
// Release. Engage and Release are called from the event loop; the frame
// callback runs on the audio thread.
type Session struct {
	dev  Device
	opts Options
	log  zerolog.Logger

	mu        sync.Mutex
	state     State
	stream    Stream
	frames    []int16
	maxFrames int
	started   time.Time
}

// New creates a session bound to dev.
func New(dev Device, opts Options, log zerolog.Logger) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Stream.Channels <= 0 {
		opts.Stream.Channels = 1
	}
	return &Session{dev: dev, opts: opts, log: log, state: StateIdle}
}

// State returns the current recorder state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Engage starts capturing. Engaging while already recording is a no-op.
func (s *Session) Engage() error {
	s.mu.Lock()
	if s.state == StateRecording {
		s.mu.Unlock()
		s.log.Debug().Msg("engage while recording; ignored")
		return nil
	}
	s.state = StateRecording
	s.frames = s.frames[:0]
	s.started = s.opts.Now()
	s.maxFrames = 0
	if s.opts.MaxDuration > 0 {
		s.maxFrames = int(s.opts.MaxDuration.Seconds()*float64(s.opts.Stream.SampleRate)) * s.opts.Stream.Channels
	}
	s.mu.Unlock()

	stream, err := s.dev.Open(s.opts.Stream, s.append)
	if err != nil {
		s.reset()
		return &DeviceError{Err: err}
	}

	s.mu.Lock()
	s.stream = stream
	s.mu.Unlock()

	s.log.Debug().
		Int("rate", s.opts.Stream.SampleRate).
		Int("channels", s.opts.Stream.Channels).
		Int("frames_per_buffer", s.opts.Stream.FramesPerBuffer).
		Msg("capture stream open")
	return nil
}

// Release stops capturing and returns the recording. It returns ErrNoAudio
// when the hold was shorter than MinDuration or no frame arrived.
func (s *Session) Release() (audio.Payload, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		s.mu.Unlock()
		return audio.Payload{}, ErrNotRecording
	}
	stream := s.stream
	s.stream = nil
	s.mu.Unlock()

	// Close outside the lock: the driver may be blocked delivering a buffer
	// to append.
	if stream != nil {
		if err := stream.Close(); err != nil {
			s.log.Warn().Err(err).Msg("closing capture stream")
		}
	}

	s.mu.Lock()
	elapsed := s.opts.Now().Sub(s.started)
	frames := s.frames
	s.frames = nil
	s.state = StateIdle
	s.mu.Unlock()

	s.log.Debug().Dur("elapsed", elapsed).Int("samples", len(frames)).Msg("capture stopped")

	if len(frames) == 0 || elapsed < s.opts.MinDuration {
		return audio.Payload{}, ErrNoAudio
	}
	return audio.NewPayload(frames, s.opts.Stream.SampleRate, s.opts.Stream.Channels), nil
}

// Abort stops a live recording and drops its audio.
func (s *Session) Abort() {
	if _, err := s.Release(); err != nil && !errors.Is(err, ErrNotRecording) && !errors.Is(err, ErrNoAudio) {
		s.log.Warn().Err(err).Msg("abort")
	}
}

func (s *Session) append(in []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRecording {
		return
	}
	if s.maxFrames > 0 {
		room := s.maxFrames - len(s.frames)
		if room <= 0 {
			return
		}
		if len(in) > room {
			in = in[:room]
		}
	}
	s.frames = append(s.frames, in...)
}

func (s *Session) reset() {
	s.mu.Lock()
	s.state = StateIdle
	s.stream = nil
	s.frames = nil
	s.mu.Unlock()
}

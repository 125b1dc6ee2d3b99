// Package app wires the hotkey, the recorder and the transcription pipeline
// into the push-to-talk loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"voicepaste/internal/audio"
	"voicepaste/internal/hotkey"
	"voicepaste/internal/notify"
	"voicepaste/internal/pipeline"
	"voicepaste/internal/record"
)

// ErrBusy is returned by Dispatch when MaxInFlight runs are already active.
var ErrBusy = errors.New("transcription already in progress")

// ErrSourceClosed is returned by Run when the key event source stops on its
// own.
var ErrSourceClosed = errors.New("key event source closed")

// User-facing notices.
const (
	NoticeRecording  = "Recording started"
	NoticeStopped    = "Recording stopped"
	NoticeNoAudio    = "No audio captured"
	NoticeNoDevice   = "Microphone unavailable"
	NoticeProcessing = "Processing"
	NoticeBusy       = "Busy, previous transcription still running"
	NoticeDone       = "Done"
	NoticeEmpty      = "Empty result"
	NoticeFailed     = "Transcription failed"
	NoticePasteFail  = "Paste failed"
)

// Recorder is the push-to-talk capture session.
type Recorder interface {
	State() record.State
	Engage() error
	Release() (audio.Payload, error)
	Abort()
}

// Transcriber turns a payload into text.
type Transcriber interface {
	Run(ctx context.Context, payload audio.Payload) (string, error)
}

// Deliverer pastes text into the focused application.
type Deliverer interface {
	Deliver(text string) error
}

// Outcome is the single result of one dispatched run.
type Outcome struct {
	Text    string
	Err     error
	Elapsed time.Duration
}

// Options configures an App.
type Options struct {
	// Title is used for every notice.
	Title string
	// MaxInFlight bounds concurrent pipeline runs; further releases are
	// rejected with ErrBusy.
	MaxInFlight int
	// ShutdownTimeout is how long Run waits for in-flight runs on exit
	// before cancelling them.
	ShutdownTimeout time.Duration
}

const noticeBuffer = 32

// App owns the event loop. Watcher and session are only touched by the
// goroutine running Run.
type App struct {
	source    hotkey.Source
	watcher   *hotkey.Watcher
	session   Recorder
	pipeline  Transcriber
	deliverer Deliverer
	notifier  notify.Notifier
	opts      Options
	log       zerolog.Logger

	// slots is a bulkhead: a send acquires, a receive releases.
	slots chan struct{}
	runs  sync.WaitGroup

	runCtx     context.Context
	cancelRuns context.CancelFunc

	deliverMu sync.Mutex

	notices     chan string
	stopNotices chan struct{}
	noticesDone chan struct{}
}

// New creates an App listening on source for chord.
func New(source hotkey.Source, chord hotkey.Chord, session Recorder, tr Transcriber, del Deliverer, n notify.Notifier, opts Options, log zerolog.Logger) *App {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 1
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 30 * time.Second
	}
	if opts.Title == "" {
		opts.Title = "voicepaste"
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &App{
		source:      source,
		watcher:     hotkey.NewWatcher(chord),
		session:     session,
		pipeline:    tr,
		deliverer:   del,
		notifier:    n,
		opts:        opts,
		log:         log,
		slots:       make(chan struct{}, opts.MaxInFlight),
		runCtx:      runCtx,
		cancelRuns:  cancel,
		notices:     make(chan string, noticeBuffer),
		stopNotices: make(chan struct{}),
		noticesDone: make(chan struct{}),
	}
}

// Run processes key events until ctx is cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	go a.noticeLoop()

	events := a.source.Events()
	a.log.Info().Msg("ready; hold the hotkey to record")
	for {
		select {
		case <-ctx.Done():
			a.shutdown()
			return nil
		case ev, ok := <-events:
			if !ok {
				a.shutdown()
				return ErrSourceClosed
			}
			a.handle(ev)
		}
	}
}

func (a *App) handle(ev hotkey.KeyEvent) {
	switch a.watcher.Feed(ev) {
	case hotkey.Engaged:
		a.engage()
	case hotkey.Released:
		a.release()
	}
}

func (a *App) engage() {
	if err := a.session.Engage(); err != nil {
		a.log.Error().Err(err).Msg("start recording failed")
		var de *record.DeviceError
		if errors.As(err, &de) {
			a.notice(NoticeNoDevice)
		}
		return
	}
	a.log.Info().Msg("recording")
	a.notice(NoticeRecording)
}

func (a *App) release() {
	payload, err := a.session.Release()
	switch {
	case errors.Is(err, record.ErrNotRecording):
		return
	case errors.Is(err, record.ErrNoAudio):
		a.log.Info().Msg("hold too short; nothing sent")
		a.notice(NoticeNoAudio)
		return
	case err != nil:
		a.log.Error().Err(err).Msg("stop recording failed")
		return
	}
	a.log.Info().Dur("audio", payload.Duration()).Msg("recording stopped")
	a.notice(NoticeStopped)

	out, err := a.Dispatch(payload)
	if err != nil {
		a.log.Warn().Err(err).Msg("recording dropped")
		a.notice(NoticeBusy)
		return
	}
	a.runs.Add(1)
	go func() {
		defer a.runs.Done()
		a.deliver(<-out)
	}()
}

// Dispatch starts a pipeline run on its own goroutine and returns a channel
// that yields exactly one Outcome. It never blocks; ErrBusy is returned when
// no slot is free.
func (a *App) Dispatch(payload audio.Payload) (<-chan Outcome, error) {
	select {
	case a.slots <- struct{}{}:
	default:
		return nil, ErrBusy
	}

	out := make(chan Outcome, 1)
	a.runs.Add(1)
	a.notice(NoticeProcessing)
	go func() {
		defer a.runs.Done()
		defer func() { <-a.slots }()

		start := time.Now()
		text, err := a.pipeline.Run(a.runCtx, payload)
		out <- Outcome{Text: text, Err: err, Elapsed: time.Since(start)}
		close(out)
	}()
	return out, nil
}

// deliver pastes a successful outcome. Deliveries never overlap.
func (a *App) deliver(o Outcome) {
	if o.Err != nil {
		a.log.Error().Err(o.Err).Str("stage", string(pipeline.FailedStage(o.Err))).Dur("elapsed", o.Elapsed).Msg("transcription failed")
		if errors.Is(o.Err, pipeline.ErrEmptyTranscript) {
			a.notice(NoticeEmpty)
			return
		}
		a.notice(fmt.Sprintf("%s: %v", NoticeFailed, o.Err))
		return
	}

	a.deliverMu.Lock()
	defer a.deliverMu.Unlock()
	if err := a.deliverer.Deliver(o.Text); err != nil {
		a.log.Error().Err(err).Msg("paste failed")
		a.notice(NoticePasteFail)
		return
	}
	a.log.Info().Dur("elapsed", o.Elapsed).Int("chars", len(o.Text)).Msg("transcript pasted")
	a.notice(NoticeDone)
}

// notice queues a message without blocking; it is dropped if the queue is
// full.
func (a *App) notice(msg string) {
	select {
	case a.notices <- msg:
	default:
		a.log.Debug().Str("notice", msg).Msg("notice dropped")
	}
}

func (a *App) noticeLoop() {
	defer close(a.noticesDone)
	for {
		select {
		case msg := <-a.notices:
			a.notifier.Notify(a.opts.Title, msg)
		case <-a.stopNotices:
			for {
				select {
				case msg := <-a.notices:
					a.notifier.Notify(a.opts.Title, msg)
				default:
					return
				}
			}
		}
	}
}

// shutdown stops input, drops a live recording and waits for in-flight runs
// so their cleanup completes. Runs still going after ShutdownTimeout are
// cancelled; their cleanup uses its own deadline.
func (a *App) shutdown() {
	a.log.Info().Msg("shutting down")
	if err := a.source.Close(); err != nil {
		a.log.Warn().Err(err).Msg("close key source")
	}
	if a.session.State() == record.StateRecording {
		a.session.Abort()
	}
	a.watcher.Reset()

	done := make(chan struct{})
	go func() {
		a.runs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(a.opts.ShutdownTimeout):
		a.log.Warn().Dur("timeout", a.opts.ShutdownTimeout).Msg("in-flight transcription did not finish; cancelling")
		a.cancelRuns()
		select {
		case <-done:
		case <-time.After(a.opts.ShutdownTimeout):
			a.log.Error().Msg("gave up waiting for transcription cleanup")
		}
	}
	a.cancelRuns()

	close(a.stopNotices)
	<-a.noticesDone
}

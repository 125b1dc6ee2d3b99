// Package pipeline turns one recorded payload into text: encode, upload,
// submit a job, poll it, fetch the result, and always clean up the remote
// artifacts afterwards.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"voicepaste/internal/asr"
	"voicepaste/internal/audio"
)

// ObjectStore holds uploaded audio while the job reads it.
type ObjectStore interface {
	Ensure(ctx context.Context) error
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Delete(ctx context.Context, key string) error
	URI(key string) string
}

// JobService runs transcription jobs.
type JobService interface {
	Start(ctx context.Context, req asr.JobRequest) (asr.Job, error)
	Get(ctx context.Context, name string) (asr.Job, error)
	Delete(ctx context.Context, name string) error
}

// ResultFetcher downloads a finished job's transcript.
type ResultFetcher interface {
	Fetch(ctx context.Context, uri string) (string, []byte, error)
}

// Transcoder re-encodes WAV bytes into the upload container. rate is the
// sample rate of the output, or 0 when the input rate is kept.
type Transcoder func(ctx context.Context, wav []byte) (out []byte, rate int, err error)

const (
	defaultPollInterval   = 500 * time.Millisecond
	defaultCleanupTimeout = 30 * time.Second
)

// Options configures a Pipeline.
type Options struct {
	ObjectPrefix string
	JobPrefix    string
	Language     string
	// Container is the upload format; "" or "wav" uploads the WAV as is.
	Container string
	// Transcode is required for any container other than wav.
	Transcode Transcoder

	PollInterval time.Duration
	// PollTimeout bounds polling; 0 polls until the job is terminal.
	PollTimeout    time.Duration
	CleanupTimeout time.Duration

	// NewID generates the unique part of job names; defaults to uuid.
	NewID func() string
}

// Pipeline is safe for concurrent use; every Run owns its own job and
// object.
type Pipeline struct {
	store   ObjectStore
	jobs    JobService
	fetcher ResultFetcher
	opts    Options
	log     zerolog.Logger
}

// New creates a Pipeline.
func New(store ObjectStore, jobs JobService, fetcher ResultFetcher, opts Options, log zerolog.Logger) *Pipeline {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.CleanupTimeout <= 0 {
		opts.CleanupTimeout = defaultCleanupTimeout
	}
	if opts.Container == "" {
		opts.Container = "wav"
	}
	opts.Container = strings.ToLower(opts.Container)
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Pipeline{store: store, jobs: jobs, fetcher: fetcher, opts: opts, log: log}
}

// run tracks which remote artifacts exist and must be removed.
type run struct {
	jobName   string
	objectKey string
	uploaded  bool
	submitted bool
}

// Run transcribes payload. On failure the error is a *StageError. Cleanup of
// the job and the object happens before Run returns, on every path, and is
// not affected by ctx cancellation.
func (p *Pipeline) Run(ctx context.Context, payload audio.Payload) (text string, err error) {
	r := &run{jobName: p.opts.JobPrefix + p.opts.NewID()}
	r.objectKey = p.opts.ObjectPrefix + r.jobName + "." + p.opts.Container
	log := p.log.With().Str("job", r.jobName).Logger()

	start := time.Now()
	defer func() {
		p.cleanup(ctx, log, r)
		if err != nil {
			log.Debug().Err(err).Dur("elapsed", time.Since(start)).Msg("run failed")
		} else {
			log.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(text)).Msg("run done")
		}
	}()

	body, rate, err := p.encode(ctx, payload)
	if err != nil {
		return "", &StageError{Stage: StageEncode, Err: err}
	}

	if err := p.store.Ensure(ctx); err != nil {
		return "", &StageError{Stage: StageUpload, Err: err}
	}
	r.uploaded = true
	if err := p.store.Put(ctx, r.objectKey, body, contentType(p.opts.Container)); err != nil {
		return "", &StageError{Stage: StageUpload, Err: err}
	}
	log.Debug().Str("key", r.objectKey).Int("bytes", len(body)).Msg("audio uploaded")

	r.submitted = true
	if _, err := p.jobs.Start(ctx, asr.JobRequest{
		Name:         r.jobName,
		MediaURI:     p.store.URI(r.objectKey),
		MediaFormat:  p.opts.Container,
		LanguageCode: p.opts.Language,
		SampleRate:   rate,
	}); err != nil {
		return "", &StageError{Stage: StageSubmit, Err: err}
	}

	job, err := p.poll(ctx, r.jobName)
	if err != nil {
		return "", &StageError{Stage: StagePoll, Err: err}
	}
	if job.Status == asr.StatusFailed {
		reason := job.FailureReason
		if reason == "" {
			reason = "no reason given"
		}
		return "", &StageError{Stage: StagePoll, Err: fmt.Errorf("%w: %s", ErrJobFailed, reason)}
	}

	text, _, err = p.fetcher.Fetch(ctx, job.ResultURI)
	if err != nil {
		return "", &StageError{Stage: StageFetch, Err: err}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", &StageError{Stage: StageFetch, Err: ErrEmptyTranscript}
	}
	return text, nil
}

// encode returns the upload body and its sample rate.
func (p *Pipeline) encode(ctx context.Context, payload audio.Payload) ([]byte, int, error) {
	wav, err := audio.EncodeWAV(payload)
	if err != nil {
		return nil, 0, err
	}
	if p.opts.Container == "wav" {
		return wav, payload.SampleRate(), nil
	}
	if p.opts.Transcode == nil {
		return nil, 0, fmt.Errorf("no transcoder for container %s", p.opts.Container)
	}
	out, rate, err := p.opts.Transcode(ctx, wav)
	if err != nil {
		return nil, 0, err
	}
	if rate <= 0 {
		rate = payload.SampleRate()
	}
	return out, rate, nil
}

// poll queries the job until it is terminal. The first query is immediate.
func (p *Pipeline) poll(ctx context.Context, name string) (asr.Job, error) {
	if p.opts.PollTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, p.opts.PollTimeout, ErrPollTimeout)
		defer cancel()
	}

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	polls := 0
	for {
		polls++
		job, err := p.jobs.Get(ctx, name)
		if err != nil {
			return asr.Job{}, p.pollErr(ctx, err)
		}
		p.log.Debug().Str("job", name).Str("status", string(job.Status)).Int("poll", polls).Msg("job status")
		if job.Status.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return asr.Job{}, p.pollErr(ctx, ctx.Err())
		case <-ticker.C:
		}
	}
}

// pollErr reports a poll deadline as ErrPollTimeout rather than a bare
// context error.
func (p *Pipeline) pollErr(ctx context.Context, err error) error {
	if errors.Is(context.Cause(ctx), ErrPollTimeout) {
		return fmt.Errorf("%w after %s", ErrPollTimeout, p.opts.PollTimeout)
	}
	return err
}

// cleanup deletes what this run created. Errors are logged only.
func (p *Pipeline) cleanup(parent context.Context, log zerolog.Logger, r *run) {
	if !r.uploaded && !r.submitted {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), p.opts.CleanupTimeout)
	defer cancel()

	if r.submitted {
		if err := p.jobs.Delete(ctx, r.jobName); err != nil {
			log.Warn().Err(err).Msg("cleanup: delete job failed")
		}
	}
	if r.uploaded {
		if err := p.store.Delete(ctx, r.objectKey); err != nil {
			log.Warn().Err(err).Str("key", r.objectKey).Msg("cleanup: delete object failed")
		}
	}
	log.Debug().Bool("job", r.submitted).Bool("object", r.uploaded).Msg("remote artifacts cleaned up")
}

func contentType(container string) string {
	switch container {
	case "wav":
		return "audio/wav"
	case "mp3":
		return "audio/mpeg"
	case "mp4", "m4a":
		return "audio/mp4"
	default:
		return "audio/" + container
	}
}

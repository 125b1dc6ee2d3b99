// Package asr talks to the remote speech recognition service: it manages
// batch transcription jobs and downloads their results.
package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/transcribe"
	"github.com/aws/aws-sdk-go-v2/service/transcribe/types"
	"github.com/rs/zerolog"
)

// Status is the lifecycle state of a transcription job.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether polling can stop.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// JobRequest describes a job to start.
type JobRequest struct {
	Name         string
	MediaURI     string
	MediaFormat  string
	LanguageCode string
	SampleRate   int
}

// Job is the service-side view of a transcription job.
type Job struct {
	Name          string
	MediaURI      string
	Status        Status
	ResultURI     string
	FailureReason string
}

// JobAPI is the subset of *transcribe.Client used by Transcribe.
type JobAPI interface {
	StartTranscriptionJob(ctx context.Context, params *transcribe.StartTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.StartTranscriptionJobOutput, error)
	GetTranscriptionJob(ctx context.Context, params *transcribe.GetTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.GetTranscriptionJobOutput, error)
	DeleteTranscriptionJob(ctx context.Context, params *transcribe.DeleteTranscriptionJobInput, optFns ...func(*transcribe.Options)) (*transcribe.DeleteTranscriptionJobOutput, error)
}

// Transcribe manages jobs on AWS Transcribe.
type Transcribe struct {
	client JobAPI
	log    zerolog.Logger
}

// NewTranscribeClient builds the SDK client from an AWS config.
func NewTranscribeClient(awsCfg aws.Config) *transcribe.Client {
	return transcribe.NewFromConfig(awsCfg)
}

// NewTranscribe wraps client.
func NewTranscribe(client JobAPI, log zerolog.Logger) *Transcribe {
	return &Transcribe{client: client, log: log}
}

// Start submits a job.
func (t *Transcribe) Start(ctx context.Context, req JobRequest) (Job, error) {
	in := &transcribe.StartTranscriptionJobInput{
		TranscriptionJobName: aws.String(req.Name),
		Media:                &types.Media{MediaFileUri: aws.String(req.MediaURI)},
		MediaFormat:          types.MediaFormat(req.MediaFormat),
		LanguageCode:         types.LanguageCode(req.LanguageCode),
	}
	if req.SampleRate > 0 {
		in.MediaSampleRateHertz = aws.Int32(int32(req.SampleRate))
	}
	out, err := t.client.StartTranscriptionJob(ctx, in)
	if err != nil {
		return Job{}, fmt.Errorf("start transcription job %s: %w", req.Name, err)
	}
	job := fromSDK(out.TranscriptionJob)
	if job.Name == "" {
		job.Name = req.Name
	}
	if job.MediaURI == "" {
		job.MediaURI = req.MediaURI
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	t.log.Debug().Str("job", job.Name).Str("media", job.MediaURI).Msg("job submitted")
	return job, nil
}

// Get fetches the current job state.
func (t *Transcribe) Get(ctx context.Context, name string) (Job, error) {
	out, err := t.client.GetTranscriptionJob(ctx, &transcribe.GetTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
	})
	if err != nil {
		return Job{}, fmt.Errorf("get transcription job %s: %w", name, err)
	}
	if out.TranscriptionJob == nil {
		return Job{}, fmt.Errorf("get transcription job %s: empty response", name)
	}
	return fromSDK(out.TranscriptionJob), nil
}

// Delete removes the job record. A job that is already gone counts as
// deleted.
func (t *Transcribe) Delete(ctx context.Context, name string) error {
	_, err := t.client.DeleteTranscriptionJob(ctx, &transcribe.DeleteTranscriptionJobInput{
		TranscriptionJobName: aws.String(name),
	})
	var nf *types.NotFoundException
	if err != nil && !errors.As(err, &nf) {
		return fmt.Errorf("delete transcription job %s: %w", name, err)
	}
	return nil
}

func fromSDK(j *types.TranscriptionJob) Job {
	if j == nil {
		return Job{}
	}
	job := Job{
		Name:          aws.ToString(j.TranscriptionJobName),
		Status:        Status(j.TranscriptionJobStatus),
		FailureReason: aws.ToString(j.FailureReason),
	}
	if j.Media != nil {
		job.MediaURI = aws.ToString(j.Media.MediaFileUri)
	}
	if j.Transcript != nil {
		job.ResultURI = aws.ToString(j.Transcript.TranscriptFileUri)
	}
	return job
}

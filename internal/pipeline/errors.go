package pipeline

import (
	"errors"
	"fmt"
)

// Stage names a pipeline step for error reporting.
type Stage string

const (
	StageEncode Stage = "encode"
	StageUpload Stage = "upload"
	StageSubmit Stage = "submit"
	StagePoll   Stage = "poll"
	StageFetch  Stage = "fetch"
)

var (
	// ErrJobFailed means the service finished the job with status Failed.
	ErrJobFailed = errors.New("transcription job failed")
	// ErrPollTimeout means the job did not reach a terminal status in time.
	ErrPollTimeout = errors.New("transcription poll timed out")
	// ErrEmptyTranscript means the job completed without any text.
	ErrEmptyTranscript = errors.New("empty transcript")
)

// StageError is the single error a failed run returns.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// FailedStage returns the stage err came from, or "" if err is not a
// StageError.
func FailedStage(err error) Stage {
	var se *StageError
	if errors.As(err, &se) {
		return se.Stage
	}
	return ""
}

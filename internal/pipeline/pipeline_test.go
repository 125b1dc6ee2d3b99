package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"voicepaste/internal/asr"
	"voicepaste/internal/audio"
)

type fakeStore struct {
	mu        sync.Mutex
	ensureErr error
	putErr    error
	deleteErr error
	puts      []string
	deletes   []string
	bodies    map[string][]byte
	types     map[string]string
}

func (s *fakeStore) Ensure(context.Context) error { return s.ensureErr }

func (s *fakeStore) Put(_ context.Context, key string, body []byte, ct string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts = append(s.puts, key)
	if s.bodies == nil {
		s.bodies = map[string][]byte{}
		s.types = map[string]string{}
	}
	s.bodies[key] = body
	s.types[key] = ct
	return s.putErr
}

func (s *fakeStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.deletes = append(s.deletes, key)
	return s.deleteErr
}

func (s *fakeStore) URI(key string) string { return "s3://bucket/" + key }

type fakeJobs struct {
	mu       sync.Mutex
	startErr error
	getErr   error
	// statuses is returned in order by Get; the last one repeats.
	statuses []asr.Status
	reason   string
	started  []asr.JobRequest
	gets     int
	deletes  []string
}

func (j *fakeJobs) Start(_ context.Context, req asr.JobRequest) (asr.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.started = append(j.started, req)
	if j.startErr != nil {
		return asr.Job{}, j.startErr
	}
	return asr.Job{Name: req.Name, MediaURI: req.MediaURI, Status: asr.StatusQueued}, nil
}

func (j *fakeJobs) Get(ctx context.Context, name string) (asr.Job, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return asr.Job{}, err
	}
	if j.getErr != nil {
		return asr.Job{}, j.getErr
	}
	st := asr.StatusInProgress
	if len(j.statuses) > 0 {
		i := j.gets
		if i >= len(j.statuses) {
			i = len(j.statuses) - 1
		}
		st = j.statuses[i]
	}
	j.gets++
	job := asr.Job{Name: name, Status: st}
	switch st {
	case asr.StatusCompleted:
		job.ResultURI = "https://results/" + name + ".json"
	case asr.StatusFailed:
		job.FailureReason = j.reason
	}
	return job, nil
}

func (j *fakeJobs) Delete(ctx context.Context, name string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	j.deletes = append(j.deletes, name)
	return nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, uri string) (string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", nil, f.err
	}
	return f.text, []byte(`{}`), nil
}

func testPayload() audio.Payload {
	return audio.NewPayload(make([]int16, 16000), 16000, 1)
}

func newTestPipeline(store *fakeStore, jobs *fakeJobs, fetcher *fakeFetcher, opts Options) *Pipeline {
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Millisecond
	}
	opts.JobPrefix = "voice-to-text-"
	opts.Language = "en-US"
	opts.NewID = func() string { return "id1" }
	return New(store, jobs, fetcher, opts, zerolog.Nop())
}

// assertCleanupPair checks one delete per put and per start.
func assertCleanupPair(t *testing.T, store *fakeStore, jobs *fakeJobs) {
	t.Helper()
	if len(store.deletes) != len(store.puts) {
		t.Fatalf("puts %v but deletes %v", store.puts, store.deletes)
	}
	if len(jobs.deletes) != len(jobs.started) {
		t.Fatalf("started %d jobs but deleted %v", len(jobs.started), jobs.deletes)
	}
}

func TestRunHelloWorldAfterTwoPolls(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusInProgress, asr.StatusCompleted}}
	fetcher := &fakeFetcher{text: "hello world"}
	p := newTestPipeline(store, jobs, fetcher, Options{})

	text, err := p.Run(context.Background(), testPayload())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if text != "hello world" {
		t.Fatalf("expected hello world, got %q", text)
	}
	if jobs.gets != 2 {
		t.Fatalf("expected 2 polls, got %d", jobs.gets)
	}
	if len(store.deletes) != 1 || len(jobs.deletes) != 1 {
		t.Fatalf("expected exactly one cleanup pair, got objects=%v jobs=%v", store.deletes, jobs.deletes)
	}
	if store.deletes[0] != "voice-to-text-id1.wav" || jobs.deletes[0] != "voice-to-text-id1" {
		t.Fatalf("unexpected cleanup targets %v %v", store.deletes, jobs.deletes)
	}

	req := jobs.started[0]
	if req.MediaURI != "s3://bucket/voice-to-text-id1.wav" || req.MediaFormat != "wav" || req.SampleRate != 16000 || req.LanguageCode != "en-US" {
		t.Fatalf("unexpected job request %+v", req)
	}
	body := store.bodies["voice-to-text-id1.wav"]
	if !strings.HasPrefix(string(body), "RIFF") || store.types["voice-to-text-id1.wav"] != "audio/wav" {
		t.Fatalf("expected a wav upload")
	}
}

func TestRunJobFailed(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusQueued, asr.StatusFailed}, reason: "unsupported media"}
	fetcher := &fakeFetcher{text: "unused"}
	p := newTestPipeline(store, jobs, fetcher, Options{})

	text, err := p.Run(context.Background(), testPayload())
	if !errors.Is(err, ErrJobFailed) {
		t.Fatalf("expected ErrJobFailed, got %v", err)
	}
	if !strings.Contains(err.Error(), "unsupported media") {
		t.Fatalf("failure reason missing: %v", err)
	}
	if text != "" || fetcher.calls != 0 {
		t.Fatalf("no result expected after failure")
	}
	if FailedStage(err) != StagePoll {
		t.Fatalf("unexpected stage %q", FailedStage(err))
	}
	assertCleanupPair(t, store, jobs)
	if len(jobs.deletes) != 1 {
		t.Fatalf("expected cleanup to run")
	}
}

func TestRunFetchErrorStillCleansUp(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusCompleted}}
	fetcher := &fakeFetcher{err: &asr.RetryExhaustedError{Attempts: 3, MaxRetry: 3, Err: errors.New("status 500")}}
	p := newTestPipeline(store, jobs, fetcher, Options{})

	_, err := p.Run(context.Background(), testPayload())
	var re *asr.RetryExhaustedError
	if !errors.As(err, &re) || FailedStage(err) != StageFetch {
		t.Fatalf("expected fetch RetryExhaustedError, got %v", err)
	}
	assertCleanupPair(t, store, jobs)
	if len(store.deletes) != 1 {
		t.Fatalf("expected cleanup to run")
	}
}

func TestRunEmptyTranscript(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusCompleted}}
	p := newTestPipeline(store, jobs, &fakeFetcher{text: "  "}, Options{})

	if _, err := p.Run(context.Background(), testPayload()); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("expected ErrEmptyTranscript, got %v", err)
	}
	assertCleanupPair(t, store, jobs)
}

func TestRunUploadError(t *testing.T) {
	store := &fakeStore{putErr: errors.New("access denied")}
	jobs := &fakeJobs{}
	p := newTestPipeline(store, jobs, &fakeFetcher{}, Options{})

	_, err := p.Run(context.Background(), testPayload())
	if FailedStage(err) != StageUpload {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if len(jobs.started) != 0 {
		t.Fatalf("no job should be submitted after upload failure")
	}
	// the put was attempted, so its delete is too
	assertCleanupPair(t, store, jobs)
	if len(store.deletes) != 1 {
		t.Fatalf("expected object delete, got %v", store.deletes)
	}
}

func TestRunEnsureErrorSkipsCleanup(t *testing.T) {
	store := &fakeStore{ensureErr: errors.New("no bucket")}
	jobs := &fakeJobs{}
	p := newTestPipeline(store, jobs, &fakeFetcher{}, Options{})

	if _, err := p.Run(context.Background(), testPayload()); FailedStage(err) != StageUpload {
		t.Fatalf("expected upload failure, got %v", err)
	}
	if len(store.puts) != 0 || len(store.deletes) != 0 {
		t.Fatalf("nothing was put so nothing should be deleted: %v", store.deletes)
	}
}

func TestRunSubmitError(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{startErr: errors.New("limit exceeded")}
	p := newTestPipeline(store, jobs, &fakeFetcher{}, Options{})

	if _, err := p.Run(context.Background(), testPayload()); FailedStage(err) != StageSubmit {
		t.Fatalf("expected submit failure, got %v", err)
	}
	assertCleanupPair(t, store, jobs)
}

func TestRunPollTimeout(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusInProgress}}
	p := newTestPipeline(store, jobs, &fakeFetcher{}, Options{PollTimeout: 20 * time.Millisecond})

	_, err := p.Run(context.Background(), testPayload())
	if !errors.Is(err, ErrPollTimeout) || FailedStage(err) != StagePoll {
		t.Fatalf("expected poll timeout, got %v", err)
	}
	assertCleanupPair(t, store, jobs)
	if len(jobs.deletes) != 1 {
		t.Fatalf("cleanup must run after timeout")
	}
}

func TestRunCanceledStillCleansUp(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusInProgress}}
	p := newTestPipeline(store, jobs, &fakeFetcher{}, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := p.Run(ctx, testPayload())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(jobs.deletes) != 1 || len(store.deletes) != 1 {
		t.Fatalf("cleanup must ignore caller cancellation: jobs=%v objects=%v", jobs.deletes, store.deletes)
	}
}

func TestRunCleanupErrorDoesNotMaskResult(t *testing.T) {
	store := &fakeStore{deleteErr: errors.New("delete denied")}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusCompleted}}
	p := newTestPipeline(store, jobs, &fakeFetcher{text: "ok"}, Options{})

	text, err := p.Run(context.Background(), testPayload())
	if err != nil || text != "ok" {
		t.Fatalf("cleanup error leaked into result: %q %v", text, err)
	}
}

func TestRunTranscodes(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusCompleted}}
	var got []byte
	p := newTestPipeline(store, jobs, &fakeFetcher{text: "ok"}, Options{
		Container: "FLAC",
		Transcode: func(_ context.Context, wav []byte) ([]byte, int, error) {
			got = wav
			return []byte("fLaC"), 0, nil
		},
	})

	if _, err := p.Run(context.Background(), testPayload()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasPrefix(string(got), "RIFF") {
		t.Fatalf("transcoder should receive wav")
	}
	key := "voice-to-text-id1.flac"
	if string(store.bodies[key]) != "fLaC" || store.types[key] != "audio/flac" {
		t.Fatalf("unexpected upload %v", store.puts)
	}
	if jobs.started[0].MediaFormat != "flac" || jobs.started[0].SampleRate != 16000 {
		t.Fatalf("unexpected job request %+v", jobs.started[0])
	}
}

func TestRunDeclaresTranscodedSampleRate(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusCompleted}}
	p := newTestPipeline(store, jobs, &fakeFetcher{text: "ok"}, Options{
		Container: "amr",
		Transcode: func(_ context.Context, _ []byte) ([]byte, int, error) {
			return []byte("#!AMR\n"), 8000, nil
		},
	})

	if _, err := p.Run(context.Background(), testPayload()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	req := jobs.started[0]
	if req.MediaFormat != "amr" || req.SampleRate != 8000 {
		t.Fatalf("job must declare the uploaded rate, got %+v", req)
	}
	if store.types["voice-to-text-id1.amr"] != "audio/amr" {
		t.Fatalf("unexpected content type %q", store.types["voice-to-text-id1.amr"])
	}
}

func TestRunEncodeError(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{}
	p := newTestPipeline(store, jobs, &fakeFetcher{}, Options{})

	_, err := p.Run(context.Background(), audio.Payload{})
	if FailedStage(err) != StageEncode || !errors.Is(err, audio.ErrEmptyPayload) {
		t.Fatalf("expected encode failure, got %v", err)
	}
	if len(store.puts) != 0 || len(jobs.started) != 0 {
		t.Fatalf("nothing should reach the remote side")
	}
}

func TestRunConcurrent(t *testing.T) {
	store := &fakeStore{}
	jobs := &fakeJobs{statuses: []asr.Status{asr.StatusCompleted}}
	p := New(store, jobs, &fakeFetcher{text: "ok"}, Options{PollInterval: time.Millisecond}, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = p.Run(context.Background(), testPayload())
		}()
	}
	wg.Wait()

	seen := map[string]bool{}
	for _, k := range store.puts {
		if seen[k] {
			t.Fatalf("object key reused: %s", k)
		}
		seen[k] = true
	}
	assertCleanupPair(t, store, jobs)
}

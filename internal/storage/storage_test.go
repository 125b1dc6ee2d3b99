package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

// sharedRemote simulates one account-wide bucket namespace that several
// processes talk to.
type sharedRemote struct {
	mu        sync.Mutex
	locations int
	creates   int
	expiries  int
	objects   map[string][]byte
}

// mockBackend is one process's view of sharedRemote.
type mockBackend struct {
	remote    *sharedRemote
	probeErr  error
	expiryErr error
	// gate, when set, holds every create until closed so racing callers
	// overlap.
	gate chan struct{}
}

func (m *mockBackend) LocationExists(context.Context) (bool, error) {
	if m.probeErr != nil {
		return false, m.probeErr
	}
	m.remote.mu.Lock()
	defer m.remote.mu.Unlock()
	return m.remote.locations > 0, nil
}

func (m *mockBackend) CreateLocation(context.Context) error {
	if m.gate != nil {
		<-m.gate
	}
	m.remote.mu.Lock()
	defer m.remote.mu.Unlock()
	m.remote.creates++
	if m.remote.locations > 0 {
		return ErrLocationExists
	}
	m.remote.locations = 1
	return nil
}

func (m *mockBackend) SetExpiry(context.Context, int) error {
	if m.expiryErr != nil {
		return m.expiryErr
	}
	m.remote.mu.Lock()
	defer m.remote.mu.Unlock()
	m.remote.expiries++
	return nil
}

func (m *mockBackend) Put(_ context.Context, key string, body []byte, _ string) error {
	m.remote.mu.Lock()
	defer m.remote.mu.Unlock()
	if m.remote.objects == nil {
		m.remote.objects = map[string][]byte{}
	}
	m.remote.objects[key] = body
	return nil
}

func (m *mockBackend) Delete(_ context.Context, key string) error {
	m.remote.mu.Lock()
	defer m.remote.mu.Unlock()
	delete(m.remote.objects, key)
	return nil
}

func (m *mockBackend) URI(key string) string { return "mock://" + key }

func TestEnsureConcurrentSameProcess(t *testing.T) {
	remote := &sharedRemote{}
	s := New(&mockBackend{remote: remote}, 0, zerolog.Nop())

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.Ensure(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if remote.locations != 1 || remote.creates != 1 || remote.expiries != 1 {
		t.Fatalf("expected one creation, got locations=%d creates=%d expiries=%d", remote.locations, remote.creates, remote.expiries)
	}
}

// Two first-time runs probe "missing" and both create; the loser sees
// ErrLocationExists and must treat it as success.
func TestEnsureRaceAcrossProcesses(t *testing.T) {
	remote := &sharedRemote{}
	gate := make(chan struct{})
	a := New(&mockBackend{remote: remote, gate: gate}, 1, zerolog.Nop())
	b := New(&mockBackend{remote: remote, gate: gate}, 1, zerolog.Nop())

	var wg sync.WaitGroup
	var errA, errB error
	wg.Add(2)
	go func() { defer wg.Done(); errA = a.Ensure(context.Background()) }()
	go func() { defer wg.Done(); errB = b.Ensure(context.Background()) }()
	close(gate)
	wg.Wait()

	if errA != nil || errB != nil {
		t.Fatalf("unexpected errors: %v / %v", errA, errB)
	}
	if remote.locations != 1 {
		t.Fatalf("expected one location, got %d", remote.locations)
	}
	if remote.expiries > 1 {
		t.Fatalf("expiry set %d times", remote.expiries)
	}
}

func TestEnsureExistingSkipsCreate(t *testing.T) {
	remote := &sharedRemote{locations: 1}
	s := New(&mockBackend{remote: remote}, 0, zerolog.Nop())
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if remote.creates != 0 || remote.expiries != 0 {
		t.Fatalf("existing location must not be recreated")
	}
}

func TestEnsureExpiryFailureIsWarning(t *testing.T) {
	remote := &sharedRemote{}
	s := New(&mockBackend{remote: remote, expiryErr: errors.New("denied")}, 0, zerolog.Nop())
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("expiry failure must not fail Ensure: %v", err)
	}
}

func TestEnsureProbeErrorStillCreates(t *testing.T) {
	remote := &sharedRemote{}
	s := New(&mockBackend{remote: remote, probeErr: errors.New("forbidden")}, 0, zerolog.Nop())
	if err := s.Ensure(context.Background()); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if remote.creates != 1 {
		t.Fatalf("expected create after probe error")
	}
}

func TestPutEnsuresFirst(t *testing.T) {
	remote := &sharedRemote{}
	s := New(&mockBackend{remote: remote}, 0, zerolog.Nop())
	if err := s.Put(context.Background(), "k", []byte("v"), "audio/wav"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if remote.locations != 1 || string(remote.objects["k"]) != "v" {
		t.Fatalf("unexpected remote state %+v", remote)
	}
	if err := s.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if len(remote.objects) != 0 {
		t.Fatalf("object not deleted")
	}
}

package manager

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chatd/internal/memsample"
	"chatd/pkg/types"
)

// fakeAdapter is a lightweight in-memory adapter used for tests.
type fakeAdapter struct {
	mu         sync.Mutex
	startErr   error
	genErr     error
	tokens     []string
	final      FinalResult
	starts     int
	receivedMP string
	// blockGen, when non-nil, is closed by the test to let Generate finish.
	blockGen chan struct{}
	sessions []*fakeSession
}

func (f *fakeAdapter) Start(modelPath string, params GenParams) (BackendSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.receivedMP = modelPath
	f.starts++
	if f.startErr != nil {
		return nil, f.startErr
	}
	s := &fakeSession{f: f, pid: 1000 + f.starts}
	f.sessions = append(f.sessions, s)
	return s, nil
}

func (f *fakeAdapter) startCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts
}

func (f *fakeAdapter) sessionAt(i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[i]
}

func (f *fakeAdapter) allSessions() []*fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeSession, len(f.sessions))
	copy(out, f.sessions)
	return out
}

type fakeSession struct {
	f      *fakeAdapter
	pid    int
	closed atomic.Bool
}

func (s *fakeSession) Generate(ctx context.Context, prompt string, params GenParams, onToken func(string) error) (FinalResult, error) {
	if s.f.genErr != nil {
		return FinalResult{}, s.f.genErr
	}
	for _, t := range s.f.tokens {
		select {
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		default:
		}
		if err := onToken(t); err != nil {
			return FinalResult{}, err
		}
	}
	if s.f.blockGen != nil {
		select {
		case <-s.f.blockGen:
		case <-ctx.Done():
			return FinalResult{}, ctx.Err()
		}
	}
	return s.f.final, nil
}

func (s *fakeSession) PID() int { return s.pid }

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

// spawnGateAdapter holds Start until the test releases it, exposing the
// window between session registration and backend readiness.
type spawnGateAdapter struct {
	inner     *fakeAdapter
	started   chan struct{}
	release   chan struct{}
	startOnce sync.Once
}

func (a *spawnGateAdapter) Start(modelPath string, params GenParams) (BackendSession, error) {
	a.startOnce.Do(func() { close(a.started) })
	<-a.release
	return a.inner.Start(modelPath, params)
}

// stubSampler returns a fixed sample for any pid.
type stubSampler struct {
	resident uint64
	device   uint64
	err      error
}

func (s stubSampler) Sample(ctx context.Context, pid int) (memsample.Sample, error) {
	if s.err != nil {
		return memsample.Sample{}, s.err
	}
	return memsample.Sample{
		Timestamp:     time.Now(),
		ResidentBytes: s.resident,
		DeviceBytes:   s.device,
		PID:           pid,
	}, nil
}

// errWriter writes once, then returns an error on subsequent writes.
type errWriter struct{ wrote int }

func (e *errWriter) Write(p []byte) (int, error) {
	if e.wrote == 0 {
		e.wrote += len(p)
		return len(p), nil
	}
	return 0, errors.New("write fail")
}

// testCtx returns a context with a short timeout, canceled on test cleanup.
func testCtx(t *testing.T) context.Context {
	t.Helper()
	c, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return c
}

// newTestManager wires a Manager around the fake adapter with monitoring
// effectively idle (hour-long interval) so tests drive everything directly.
func newTestManager(t *testing.T, adapter BackendAdapter) *Manager {
	t.Helper()
	return NewWithConfig(Config{
		Registry:       []types.Model{{ID: "m", Name: "m", Path: "m.gguf"}},
		DefaultModel:   "m",
		TokenBudget:    200,
		Adapter:        adapter,
		Sampler:        stubSampler{resident: 1 << 20, device: 1 << 20},
		SampleInterval: time.Hour,
		Publisher:      NewMemoryPublisher(),
	})
}

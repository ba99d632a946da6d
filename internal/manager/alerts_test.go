package manager

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"chatd/internal/memsample"
	"chatd/pkg/types"
)

// dialSampler reports a device reading the test can change at runtime.
type dialSampler struct {
	mu     sync.Mutex
	device uint64
}

func (d *dialSampler) set(v uint64) {
	d.mu.Lock()
	d.device = v
	d.mu.Unlock()
}

func (d *dialSampler) Sample(ctx context.Context, pid int) (memsample.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return memsample.Sample{
		Timestamp:     time.Now(),
		ResidentBytes: 1 << 20,
		DeviceBytes:   d.device,
		PID:           pid,
	}, nil
}

func newAlertManager(t *testing.T, fa *fakeAdapter, ds *dialSampler) *Manager {
	t.Helper()
	return NewWithConfig(Config{
		Registry:              []types.Model{{ID: "m", Path: "m.gguf"}},
		DefaultModel:          "m",
		TokenBudget:           200,
		Adapter:               fa,
		Sampler:               ds,
		SampleInterval:        5 * time.Millisecond,
		WarnThresholdBytes:    50 << 20,
		CleanupThresholdBytes: 200 << 20,
		Publisher:             NewMemoryPublisher(),
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s", msg)
}

func TestCleanupAlert_RecyclesBackend(t *testing.T) {
	fa := &fakeAdapter{}
	ds := &dialSampler{device: 100 << 20}
	m := newAlertManager(t, fa, ds)
	defer m.Close(testCtx(t))

	if _, err := m.StartSession(testCtx(t), "s1", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	st0, err := m.SessionStatus("s1")
	if err != nil {
		t.Fatalf("SessionStatus: %v", err)
	}
	oldPID := st0.PID
	// Let the monitor establish its baseline before the spike.
	time.Sleep(30 * time.Millisecond)

	ds.set(400 << 20)
	waitFor(t, func() bool { return fa.startCount() == 2 }, "backend recycle")
	waitFor(t, func() bool {
		st, err := m.SessionStatus("s1")
		return err == nil && st.State == string(StateActive) && st.PID != oldPID
	}, "session active on new pid")

	if !fa.sessionAt(0).closed.Load() {
		t.Fatalf("old backend not closed")
	}
	st := m.Status()
	if st.CleanupsTotal != 1 {
		t.Fatalf("cleanups_total = %d", st.CleanupsTotal)
	}
	pub := m.publisher.(*MemoryPublisher)
	if len(pub.Named("session_recycle")) != 1 {
		t.Fatalf("recycle event missing")
	}
}

func TestWarningAlert_PublishesWithoutRecycle(t *testing.T) {
	fa := &fakeAdapter{}
	ds := &dialSampler{device: 100 << 20}
	m := newAlertManager(t, fa, ds)
	defer m.Close(testCtx(t))

	if _, err := m.StartSession(testCtx(t), "s1", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// Above the warn threshold, below cleanup.
	ds.set(180 << 20)
	pub := m.publisher.(*MemoryPublisher)
	waitFor(t, func() bool { return len(pub.Named("memory_warning")) >= 1 }, "warning event")

	if got := fa.startCount(); got != 1 {
		t.Fatalf("backend recycled on warning: %d starts", got)
	}
	if len(pub.Named("session_recycle")) != 0 {
		t.Fatalf("unexpected recycle")
	}
}

func TestCleanupAlert_DeferredUntilStreamCompletes(t *testing.T) {
	fa := &fakeAdapter{blockGen: make(chan struct{})}
	ds := &dialSampler{device: 100 << 20}
	m := newAlertManager(t, fa, ds)
	defer m.Close(testCtx(t))

	if _, err := m.StartSession(testCtx(t), "s1", ""); err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	promptDone := make(chan error, 1)
	go func() {
		promptDone <- m.SendPrompt(testCtx(t), "s1", types.PromptRequest{Prompt: "slow"}, &bytes.Buffer{}, nil)
	}()
	time.Sleep(50 * time.Millisecond)

	// Cross the cleanup threshold mid-stream; the recycle must wait on the
	// session gate until the prompt finishes.
	ds.set(400 << 20)
	time.Sleep(100 * time.Millisecond)
	if got := fa.startCount(); got != 1 {
		t.Fatalf("recycled while stream in flight: %d starts", got)
	}

	close(fa.blockGen)
	if err := <-promptDone; err != nil {
		t.Fatalf("prompt: %v", err)
	}
	waitFor(t, func() bool { return fa.startCount() == 2 }, "deferred recycle")
}

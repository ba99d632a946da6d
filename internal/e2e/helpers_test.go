package e2e

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatd/internal/httpapi"
	"chatd/internal/manager"
	"chatd/internal/memsample"
	"chatd/internal/registry"
)

// createTempModelsDir creates a temporary directory populated with empty
// .gguf files and returns the directory path and the list of model IDs.
func createTempModelsDir(t *testing.T, names ...string) (string, []string) {
	t.Helper()
	dir := t.TempDir()
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, []byte(""), 0o644); err != nil {
			t.Fatalf("write temp model %s: %v", p, err)
		}
	}
	return dir, names
}

// echoAdapter is an in-memory backend that streams a fixed token sequence.
type echoAdapter struct {
	tokens []string
}

func (a *echoAdapter) Start(modelPath string, params manager.GenParams) (manager.BackendSession, error) {
	return &echoSession{tokens: a.tokens}, nil
}

type echoSession struct {
	tokens []string
}

func (s *echoSession) Generate(ctx context.Context, prompt string, params manager.GenParams, onToken func(string) error) (manager.FinalResult, error) {
	var content string
	for _, tok := range s.tokens {
		select {
		case <-ctx.Done():
			return manager.FinalResult{}, ctx.Err()
		default:
		}
		if err := onToken(tok); err != nil {
			return manager.FinalResult{}, err
		}
		content += tok
	}
	return manager.FinalResult{Content: content, FinishReason: "stop"}, nil
}

func (s *echoSession) PID() int { return os.Getpid() }

func (s *echoSession) Close() error { return nil }

// nullSampler returns fixed small readings so monitors never alert.
type nullSampler struct{}

func (nullSampler) Sample(ctx context.Context, pid int) (memsample.Sample, error) {
	return memsample.Sample{Timestamp: time.Now(), ResidentBytes: 1 << 20, PID: pid}, nil
}

func newServerForDir(t *testing.T, modelsDir, defaultModel string, adapter manager.BackendAdapter) (*httptest.Server, *manager.Manager) {
	t.Helper()
	reg, err := registry.LoadDir(modelsDir)
	if err != nil {
		t.Fatalf("scan models: %v", err)
	}
	mgr := manager.NewWithConfig(manager.Config{
		Registry:       reg,
		DefaultModel:   defaultModel,
		TokenBudget:    500,
		Adapter:        adapter,
		Sampler:        nullSampler{},
		SampleInterval: time.Hour,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		mgr.Close(ctx)
	})
	mux := httpapi.NewMux(mgr)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func httpGet(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpPostJSON(t *testing.T, url string, payload []byte) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	return resp, body
}

func httpDelete(t *testing.T, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodDelete, url, nil)
	if err != nil {
		t.Fatalf("new req: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do req: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	return resp
}

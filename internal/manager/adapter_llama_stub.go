//go:build !llama

package manager

// This file provides a no-CGO stub for the llama adapter. It is compiled when
// the 'llama' build tag is NOT set, keeping default builds and CI CGO-free.
// The real adapter lives in adapter_llama.go (tagged 'llama').

import (
	"context"
	"os"
)

// llamaBuilt indicates this binary was compiled without real llama support.
var llamaBuilt = false

// llamaAdapter is a stub that satisfies BackendAdapter but refuses to run
// inference without the 'llama' build tag available. This avoids any mocked
// behavior in production binaries built without CGO support.

type llamaAdapter struct {
	ctxSize int
	threads int
}

func NewLlamaAdapter(ctxSize, threads int) BackendAdapter {
	return &llamaAdapter{ctxSize: ctxSize, threads: threads}
}

type llamaSession struct {
	// No real resources in the stub.
}

func (a *llamaAdapter) Start(modelPath string, params GenParams) (BackendSession, error) {
	// Fail fast: llama runtime not available in this build.
	return nil, ErrBackendUnavailable("llama support not built (missing 'llama' build tag)")
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, params GenParams, onToken func(string) error) (FinalResult, error) {
	select {
	case <-ctx.Done():
		return FinalResult{}, ctx.Err()
	default:
	}
	return FinalResult{}, ErrBackendUnavailable("llama support not built (missing 'llama' build tag)")
}

func (s *llamaSession) PID() int { return os.Getpid() }

func (s *llamaSession) Close() error {
	// Nothing to free in the stub.
	return nil
}

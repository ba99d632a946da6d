//go:build llama

package manager

import (
	"context"
	"errors"
	"os"
	"strings"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaAdapter holds global config used to initialize a model instance
type llamaAdapter struct {
	ctxSize int
	threads int
}

func NewLlamaAdapter(ctxSize, threads int) BackendAdapter {
	return &llamaAdapter{ctxSize: ctxSize, threads: threads}
}

// llamaSession owns the loaded model
type llamaSession struct {
	model      *llama.LLama
	threads    int
	baseParams GenParams
}

func (a *llamaAdapter) Start(modelPath string, params GenParams) (BackendSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{
		llama.SetContext(a.ctxSize),
	}
	m, err := llama.New(modelPath, mo...)
	if err != nil {
		return nil, err
	}
	return &llamaSession{model: m, threads: a.threads, baseParams: params}, nil
}

func (s *llamaSession) Generate(ctx context.Context, prompt string, params GenParams, onToken func(string) error) (FinalResult, error) {
	if s.model == nil {
		return FinalResult{}, errors.New("llama model not initialized")
	}
	p := params.merged(s.baseParams)

	var sb strings.Builder
	// Bridge token streaming to onToken and respect cancellation
	s.model.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		sb.WriteString(tok)
		if err := onToken(tok); err != nil {
			return false
		}
		return true
	})
	po := mapGenParamsToPredictOptions(p, s.threads)
	text, err := s.model.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return FinalResult{Content: sb.String()}, ctx.Err()
		}
		return FinalResult{Content: sb.String()}, err
	}
	// Token counts are not exposed by the binding; callers estimate instead.
	return FinalResult{
		Content:      text,
		FinishReason: "stop",
	}, nil
}

// PID reports the daemon's own pid: in-process inference shares our address
// space, so memory sampling targets this process.
func (s *llamaSession) PID() int { return os.Getpid() }

func (s *llamaSession) Close() error {
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// mapGenParamsToPredictOptions converts adapter params into go-llama.cpp options
func mapGenParamsToPredictOptions(params GenParams, threads int) []llama.PredictOption {
	po := []llama.PredictOption{
		llama.SetTokens(max(1, params.MaxTokens)),
		llama.SetThreads(max(1, threads)),
		llama.SetTopP(zf(params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(params.Temperature, llama.DefaultOptions.Temperature)),
	}
	if params.Seed != 0 {
		po = append(po, llama.SetSeed(params.Seed))
	}
	if len(params.Stop) > 0 {
		po = append(po, llama.SetStopWords(params.Stop...))
	}
	return po
}

package manager

import "context"

// BackendAdapter abstracts the inference runtime. Concrete implementations
// spawn a llama-server subprocess or run llama.cpp in-process.
type BackendAdapter interface {
	// Start binds a new backend session to the given model path. For
	// subprocess backends this spawns one process per session.
	Start(modelPath string, params GenParams) (BackendSession, error)
}

// BackendSession is one live backend binding for one chat session.
type BackendSession interface {
	// Generate streams completion text for prompt, invoking onToken per
	// fragment. Implementations must return promptly when ctx is canceled.
	// Per-call params override the session defaults where non-zero.
	Generate(ctx context.Context, prompt string, params GenParams, onToken func(string) error) (FinalResult, error)
	// PID reports the OS process id backing this session, for memory
	// sampling and signaling. In-process backends report the daemon's pid.
	PID() int
	// Close terminates the backend: graceful stop first, force-kill after
	// a bounded wait. Idempotent.
	Close() error
}

// GenParams captures generation parameters passed to the backend.
type GenParams struct {
	Temperature float32
	TopP        float32
	TopK        int
	MaxTokens   int
	Stop        []string
	Seed        int
}

// merged returns p with zero fields filled from defaults.
func (p GenParams) merged(defaults GenParams) GenParams {
	if p.Temperature == 0 {
		p.Temperature = defaults.Temperature
	}
	if p.TopP == 0 {
		p.TopP = defaults.TopP
	}
	if p.TopK == 0 {
		p.TopK = defaults.TopK
	}
	if p.MaxTokens == 0 {
		p.MaxTokens = defaults.MaxTokens
	}
	if len(p.Stop) == 0 {
		p.Stop = defaults.Stop
	}
	if p.Seed == 0 {
		p.Seed = defaults.Seed
	}
	return p
}

// FinalResult summarizes the generation after streaming.
type FinalResult struct {
	Content      string
	Usage        Usage
	FinishReason string
}

// Usage contains token accounting for one prompt/response cycle.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

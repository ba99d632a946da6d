package types

// CreateSessionRequest is the payload for POST /sessions.
type CreateSessionRequest struct {
	// Optional session identifier. If empty, the server assigns one.
	// example: 7f9c24e8-3b2a-4f0e-9c1d-2a6b8e4f1d3c
	SessionID string `json:"session_id,omitempty" example:"7f9c24e8-3b2a-4f0e-9c1d-2a6b8e4f1d3c"`
	// Optional model identifier. If empty, the server default is used.
	// example: tinyllama-q4
	Model string `json:"model,omitempty" example:"tinyllama-q4"`
}

// PromptRequest is the payload for POST /sessions/{id}/prompt.
type PromptRequest struct {
	// Required prompt text.
	// example: Write a haiku about the ocean.
	Prompt string `json:"prompt" example:"Write a haiku about the ocean."`
	// Maximum number of new tokens to generate.
	// example: 128
	MaxTokens int `json:"max_tokens,omitempty" example:"128"`
	// Sampling temperature (higher = more random).
	// example: 0.7
	Temperature float64 `json:"temperature,omitempty" example:"0.7"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Optional stop sequences.
	Stop []string `json:"stop,omitempty"`
	// Random seed for reproducibility; 0 or omitted lets the server choose.
	// example: 42
	Seed int64 `json:"seed,omitempty" example:"42"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: session not found: abc
	Error string `json:"error" example:"session not found: abc"`
	// HTTP status code.
	// example: 404
	Code int `json:"code" example:"404"`
}

// ContextUsage reports token-budget occupancy for one session.
type ContextUsage struct {
	// Estimated tokens currently held by the conversation context.
	// example: 812
	UsedTokens int `json:"used_tokens" example:"812"`
	// Configured token budget.
	// example: 4096
	Budget int `json:"budget" example:"4096"`
	// Percentage of the budget in use.
	// example: 19.8
	UsagePercent float64 `json:"usage_percent" example:"19.8"`
	// Number of turns dropped by truncation so far.
	// example: 4
	TruncatedTurns int `json:"truncated_turns" example:"4"`
	// Whether a synthetic summary turn is active.
	// example: true
	Summarized bool `json:"summarized" example:"true"`
}

// MemoryStatus reports the monitor's view of one backend process.
type MemoryStatus struct {
	// Resident set size at the last sample, in bytes.
	// example: 1073741824
	ResidentBytes uint64 `json:"resident_bytes" example:"1073741824"`
	// GPU memory attributed to the process at the last sample, in bytes.
	// example: 2147483648
	DeviceBytes uint64 `json:"device_bytes" example:"2147483648"`
	// GPU memory delta over the session baseline, in bytes.
	// example: 536870912
	DeviceDeltaBytes int64 `json:"device_delta_bytes" example:"536870912"`
	// Peak GPU memory observed this session, in bytes.
	// example: 2684354560
	PeakDeviceBytes uint64 `json:"peak_device_bytes" example:"2684354560"`
}

// SessionStatus summarizes one managed session for /status and /sessions.
type SessionStatus struct {
	// Session identifier.
	// example: 7f9c24e8-3b2a-4f0e-9c1d-2a6b8e4f1d3c
	SessionID string `json:"session_id" example:"7f9c24e8-3b2a-4f0e-9c1d-2a6b8e4f1d3c"`
	// Model served by this session.
	// example: tinyllama-q4
	Model string `json:"model" example:"tinyllama-q4"`
	// Lifecycle state (idle, loading, active, cleaning, terminated).
	// example: active
	State string `json:"state" example:"active"`
	// Process ID of the bound backend, 0 when none is bound.
	// example: 12345
	PID int `json:"pid,omitempty" example:"12345"`
	// Last time this session served a prompt (unix seconds).
	// example: 1700000000
	LastUsed int64 `json:"last_used_unix" example:"1700000000"`
	// Context window occupancy.
	Context ContextUsage `json:"context"`
	// Memory monitor view; zero-valued before the first sample.
	Memory MemoryStatus `json:"memory"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Managed sessions.
	Sessions []SessionStatus `json:"sessions"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Total cleanup alerts acted on since start.
	// example: 2
	CleanupsTotal uint64 `json:"cleanups_total" example:"2"`
	// Total sessions started since start.
	// example: 12
	SessionsTotal uint64 `json:"sessions_total" example:"12"`
}

package types

import "time"

// Model represents a discoverable or loadable LLM model on disk.
type Model struct {
	// Stable identifier for the model.
	// example: tinyllama-q4
	ID string `json:"id" example:"tinyllama-q4"`
	// Human-friendly name.
	// example: TinyLlama (Q4)
	Name string `json:"name" example:"TinyLlama (Q4)"`
	// Absolute path to the model file on disk.
	// example: /home/user/models/TinyLlama.Q4_K_M.gguf
	Path string `json:"path" example:"/home/user/models/TinyLlama.Q4_K_M.gguf"`
	// Quantization level or variant string.
	// example: Q4_K_M
	Quant string `json:"quant" example:"Q4_K_M"`
	// Optional family (e.g., llama, mistral, phi).
	// example: llama
	Family string `json:"family,omitempty" example:"llama"`
}

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Turn is one immutable conversation message. Tokens is the estimated token
// cost of Text, computed once at append time.
type Turn struct {
	// Author of the turn.
	// example: user
	Role Role `json:"role" example:"user"`
	// Message text.
	// example: Explain goroutines in one paragraph.
	Text string `json:"text" example:"Explain goroutines in one paragraph."`
	// Estimated token cost of Text.
	// example: 12
	Tokens int `json:"tokens" example:"12"`
	// Creation time.
	Timestamp time.Time `json:"ts"`
}

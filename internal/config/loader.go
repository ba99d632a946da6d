// Package config loads chatd runtime configuration from a file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon. Zero values mean
// "unspecified" and are replaced by defaults when the manager is built.
// Session-scoped values are fixed for a session's lifetime at start.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	ChatsDir  string `json:"chats_dir" yaml:"chats_dir" toml:"chats_dir"`

	DefaultModel string `json:"default_model" yaml:"default_model" toml:"default_model"`

	// Conversation budget.
	TokenBudget     int  `json:"token_budget" yaml:"token_budget" toml:"token_budget"`
	ProtectedTail   int  `json:"protected_tail" yaml:"protected_tail" toml:"protected_tail"`
	PreferSummarize bool `json:"prefer_summarize" yaml:"prefer_summarize" toml:"prefer_summarize"`

	// Memory monitoring thresholds, in MB over the session baseline.
	WarnThresholdMB       int     `json:"warn_threshold_mb" yaml:"warn_threshold_mb" toml:"warn_threshold_mb"`
	CleanupThresholdMB    int     `json:"cleanup_threshold_mb" yaml:"cleanup_threshold_mb" toml:"cleanup_threshold_mb"`
	SampleIntervalSeconds float64 `json:"sample_interval_s" yaml:"sample_interval_s" toml:"sample_interval_s"`
	SampleTimeoutSeconds  float64 `json:"sample_timeout_s" yaml:"sample_timeout_s" toml:"sample_timeout_s"`

	// Lifecycle.
	TerminateTimeoutSeconds float64 `json:"terminate_timeout_s" yaml:"terminate_timeout_s" toml:"terminate_timeout_s"`
	BlockOnBusy             bool    `json:"block_on_busy" yaml:"block_on_busy" toml:"block_on_busy"`
	KeepPartialOnCancel     bool    `json:"keep_partial_on_cancel" yaml:"keep_partial_on_cancel" toml:"keep_partial_on_cancel"`

	// llama-server subprocess settings.
	LlamaBin       string `json:"llama_bin" yaml:"llama_bin" toml:"llama_bin"`
	LlamaHost      string `json:"llama_host" yaml:"llama_host" toml:"llama_host"`
	LlamaPortStart int    `json:"llama_port_start" yaml:"llama_port_start" toml:"llama_port_start"`
	LlamaPortEnd   int    `json:"llama_port_end" yaml:"llama_port_end" toml:"llama_port_end"`
	LlamaCtxSize   int    `json:"llama_ctx_size" yaml:"llama_ctx_size" toml:"llama_ctx_size"`
	LlamaThreads   int    `json:"llama_threads" yaml:"llama_threads" toml:"llama_threads"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

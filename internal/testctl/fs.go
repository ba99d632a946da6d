package testctl

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

func firstGGUF(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil { return "", err }
	for _, e := range entries {
		if e.IsDir() { continue }
		name := e.Name()
		if strings.HasSuffix(strings.ToLower(name), ".gguf") {
			return name, nil
		}
	}
	return "", fmt.Errorf("no .gguf models found in %s", dir)
}

func hasHostModels() bool {
	dir := filepath.Join(homeDir(), "models", "llm")
	entries, err := os.ReadDir(dir)
	if err != nil { return false }
	for _, e := range entries {
		if e.IsDir() { continue }
		if strings.HasSuffix(strings.ToLower(e.Name()), ".gguf") {
			return true
		}
	}
	return false
}

// findLlamaBin attempts to locate a llama.cpp server binary for local dev.
// Preference order:
// 1) $HOME/src/llama.cpp/build/bin/llama-server (testctl install llama)
// 2) $HOME/src/llama.cpp/build-cuda14/bin/llama-server
// 3) PATH lookup via exec.LookPath("llama-server")
func findLlamaBin() string {
	candidates := []string{
		filepath.Join(homeDir(), "src", "llama.cpp", "build", "bin", "llama-server"),
		filepath.Join(homeDir(), "src", "llama.cpp", "build-cuda14", "bin", "llama-server"),
	}
	for _, p := range candidates {
		if fi, err := os.Stat(p); err == nil && !fi.IsDir() {
			return p
		}
	}
	if lp, err := exec.LookPath("llama-server"); err == nil {
		return lp
	}
	// Fallback to a common name; chatd will error if it truly does not exist
	return "llama-server"
}

func homeDir() string {
	if h := os.Getenv("HOME"); h != "" { return h }
	h, _ := os.UserHomeDir()
	return h
}

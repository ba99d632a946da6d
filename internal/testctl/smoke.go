package testctl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// runSmoke starts a real server against host models and drives one full
// session exchange over the HTTP API: create, prompt, status, delete.
func runSmoke(cfg *Config) error {
	if !hasHostModels() {
		return errors.New("host models not found in $HOME/models/llm; cannot run smoke")
	}
	info("==== Run API smoke (live:host) ====")
	apiPort, err := preferOrFree(cfg.APIPort)
	if err != nil {
		return err
	}
	defer func() { _ = killProcesses() }()

	modelsDir := filepath.Join(homeDir(), "models", "llm")
	defaultModel, err := firstGGUF(modelsDir)
	if err != nil {
		return fmt.Errorf("finding default model: %w", err)
	}
	llamaBin := findLlamaBin()
	srvCtx, srvCancel := context.WithCancel(context.Background())
	defer srvCancel()
	srv := exec.CommandContext(srvCtx, "bash", "-lc", fmt.Sprintf(
		"go run ./cmd/chatd --addr :%d --models-dir '%s' --default-model '%s' --llama-bin '%s'",
		apiPort, modelsDir, defaultModel, llamaBin,
	))
	srv.Stdout = os.Stdout
	srv.Stderr = os.Stderr
	if err := srv.Start(); err != nil {
		return err
	}
	TrackProcess(srv)
	defer func() { _ = srv.Process.Kill() }()
	base := fmt.Sprintf("http://localhost:%d", apiPort)
	if err := waitHTTP(base+"/healthz", 200, 60*time.Second); err != nil {
		return err
	}

	client := &http.Client{}
	resp, err := client.Post(base+"/sessions", "application/json", bytes.NewBufferString(`{"session_id":"smoke"}`))
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return fmt.Errorf("create session: status %d: %s", resp.StatusCode, body)
	}
	_ = resp.Body.Close()
	info("[smoke] session created, sending prompt")

	req, err := http.NewRequest(http.MethodPost, base+"/sessions/smoke/prompt", bytes.NewBufferString(`{"prompt":"Write a haiku about memory.","max_tokens":64}`))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err = client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("prompt: status %d: %s", resp.StatusCode, body)
	}
	sawDone := false
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		line := sc.Text()
		fmt.Println(line)
		var msg struct {
			Done bool `json:"done"`
		}
		if json.Unmarshal([]byte(line), &msg) == nil && msg.Done {
			sawDone = true
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	if !sawDone {
		return errors.New("prompt stream ended without a final line")
	}

	resp, err = client.Get(base + "/sessions/smoke")
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("session status: %d: %s", resp.StatusCode, body)
	}
	info("[smoke] session status: %s", string(body))

	delReq, err := http.NewRequest(http.MethodDelete, base+"/sessions/smoke", nil)
	if err != nil {
		return err
	}
	resp, err = client.Do(delReq)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("delete session: status %d", resp.StatusCode)
	}
	info("[smoke] OK")
	return nil
}

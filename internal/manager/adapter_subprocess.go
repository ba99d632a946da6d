package manager

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

// subprocessAdapter spawns one llama.cpp server per session. Each session
// owns its process, so terminating a session never disturbs another.

const (
	spawnReadyDeadline = 30 * time.Second
	spawnProbeInterval = 100 * time.Millisecond
	stderrTailBytes    = 4096
)

// SubprocessConfig holds spawn settings for the subprocess adapter.
type SubprocessConfig struct {
	Bin       string
	Host      string
	PortStart int
	PortEnd   int
	CtxSize   int
	Threads   int
	ExtraArgs []string
	// StopWait bounds the graceful-stop window before SIGKILL.
	StopWait time.Duration
	Logger   zerolog.Logger
}

type subprocessAdapter struct {
	cfg        SubprocessConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// NewSubprocessAdapter constructs a subprocess-backed adapter.
func NewSubprocessAdapter(cfg SubprocessConfig) BackendAdapter {
	if strings.TrimSpace(cfg.Host) == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.StopWait <= 0 {
		cfg.StopWait = defaultTerminateTimeout
	}
	// Timeout stays 0: all calls carry context deadlines instead.
	cli := &http.Client{Timeout: 0}
	return &subprocessAdapter{cfg: cfg, httpClient: cli, log: cfg.Logger}
}

// subprocessSession is one spawned llama-server bound to one chat session.
type subprocessSession struct {
	a       *subprocessAdapter
	cmd     *exec.Cmd
	baseURL string
	pid     int
	params  GenParams

	closeOnce sync.Once
	closeErr  error
}

func (a *subprocessAdapter) Start(modelPath string, params GenParams) (BackendSession, error) {
	if strings.TrimSpace(modelPath) == "" {
		return nil, errors.New("modelPath is empty")
	}
	var port int
	var err error
	if a.cfg.PortStart > 0 && a.cfg.PortEnd >= a.cfg.PortStart {
		port, err = pickPortInRange(a.cfg.Host, a.cfg.PortStart, a.cfg.PortEnd)
	} else {
		port, err = pickFreePort(a.cfg.Host)
	}
	if err != nil {
		return nil, ErrBackendUnavailable(err.Error())
	}
	baseURL := fmt.Sprintf("http://%s:%d", a.cfg.Host, port)

	args := []string{
		"-m", modelPath,
		"--host", a.cfg.Host,
		"--port", fmt.Sprint(port),
	}
	if a.cfg.CtxSize > 0 {
		args = append(args, "-c", fmt.Sprint(a.cfg.CtxSize))
	}
	if a.cfg.Threads > 0 {
		args = append(args, "-t", fmt.Sprint(a.cfg.Threads))
	}
	args = append(args, a.cfg.ExtraArgs...)

	cmd := exec.Command(a.cfg.Bin, args...)
	// Capture stderr for diagnostics (kept in-memory; tail is included on failure)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, ErrBackendUnavailable(fmt.Sprintf("start %s: %v", a.cfg.Bin, err))
	}
	pid := cmd.Process.Pid
	a.log.Info().Str("model", modelPath).Int("pid", pid).Int("port", port).Msg("backend spawn")

	// Early-exit watcher: surface non-zero exit before readiness
	waitErrCh := make(chan error, 1)
	go func() {
		waitErrCh <- cmd.Wait()
	}()

	deadline := time.Now().Add(spawnReadyDeadline)
	for {
		if time.Now().After(deadline) {
			a.stopProcess(cmd)
			a.log.Warn().Str("model", modelPath).Int("pid", pid).Msg("backend spawn timeout")
			return nil, ErrBackendUnavailable("backend not ready in time: " + baseURL)
		}
		select {
		case werr := <-waitErrCh:
			tail := stderr.String()
			if len(tail) > stderrTailBytes {
				tail = tail[len(tail)-stderrTailBytes:]
			}
			a.log.Warn().Str("model", modelPath).Int("pid", pid).Err(werr).Msg("backend exited before ready")
			if werr != nil {
				return nil, ErrBackendUnavailable(fmt.Sprintf("backend exited early: %v; stderr tail: %s", werr, tail))
			}
			return nil, ErrBackendUnavailable("backend exited before ready: " + baseURL)
		default:
		}
		if a.isHealthy(baseURL, time.Second) {
			break
		}
		time.Sleep(spawnProbeInterval)
	}
	a.log.Info().Str("model", modelPath).Int("pid", pid).Str("url", baseURL).Msg("backend ready")
	return &subprocessSession{a: a, cmd: cmd, baseURL: baseURL, pid: pid, params: params}, nil
}

// isHealthy checks if the llama-server at baseURL responds OK to /v1/models.
func (a *subprocessAdapter) isHealthy(baseURL string, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/v1/models", nil)
	if err != nil {
		return false
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

type openAICompletionRequest struct {
	Model       string   `json:"model,omitempty"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Temperature float32  `json:"temperature,omitempty"`
	TopP        float32  `json:"top_p,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Seed        int      `json:"seed,omitempty"`
	Stream      bool     `json:"stream"`
}

// openAIStreamChoiceDelta is a minimal subset of OpenAI streaming response.
type openAIStreamChoiceDelta struct {
	Delta struct {
		Content string `json:"content"`
	} `json:"delta"`
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason"`
}

type openAIStreamResponse struct {
	Object  string                    `json:"object"`
	Choices []openAIStreamChoiceDelta `json:"choices"`
	Usage   *Usage                    `json:"usage,omitempty"`
}

func (s *subprocessSession) Generate(ctx context.Context, prompt string, params GenParams, onToken func(string) error) (FinalResult, error) {
	p := params.merged(s.params)
	payload := openAICompletionRequest{
		Prompt:      prompt,
		MaxTokens:   p.MaxTokens,
		Temperature: p.Temperature,
		TopP:        p.TopP,
		TopK:        p.TopK,
		Stop:        p.Stop,
		Seed:        p.Seed,
		Stream:      true,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/completions", bytes.NewReader(body))
	if err != nil {
		return FinalResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.a.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return FinalResult{}, ctx.Err()
		}
		return FinalResult{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return FinalResult{}, fmt.Errorf("backend http error: %s: %s", resp.Status, string(b))
	}
	r := bufio.NewReader(resp.Body)
	var final FinalResult
	var sb strings.Builder
	for {
		line, err := r.ReadString('\n')
		if len(line) > 0 {
			l := strings.TrimSpace(line)
			if l != "" && strings.HasPrefix(strings.ToLower(l), "data:") {
				data := strings.TrimSpace(l[len("data:"):])
				if data == "[DONE]" {
					break
				}
				var msg openAIStreamResponse
				if e := json.Unmarshal([]byte(data), &msg); e == nil {
					if len(msg.Choices) > 0 {
						frag := msg.Choices[0].Delta.Content
						if frag == "" {
							frag = msg.Choices[0].Text
						}
						if frag != "" {
							sb.WriteString(frag)
							if cbErr := onToken(frag); cbErr != nil {
								final.Content = sb.String()
								return final, cbErr
							}
						}
						if fr := msg.Choices[0].FinishReason; fr != "" {
							final.FinishReason = fr
						}
					}
					if msg.Usage != nil {
						final.Usage = *msg.Usage
					}
				}
			}
		}
		if err != nil {
			final.Content = sb.String()
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil {
				return final, ctx.Err()
			}
			return final, err
		}
	}
	final.Content = sb.String()
	return final, nil
}

func (s *subprocessSession) PID() int { return s.pid }

// Close terminates the spawned process: SIGTERM, bounded wait, then SIGKILL.
func (s *subprocessSession) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.a.stopProcess(s.cmd)
	})
	return s.closeErr
}

func (a *subprocessAdapter) stopProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() {
		_, _ = cmd.Process.Wait()
		close(done)
	}()
	select {
	case <-done:
		// exited gracefully
	case <-time.After(a.cfg.StopWait):
		_ = cmd.Process.Kill()
		<-done
	}
	return nil
}

func pickPortInRange(host string, start, end int) (int, error) {
	for p := start; p <= end; p++ {
		l, err := net.Listen("tcp", fmt.Sprintf("%s:%d", host, p))
		if err != nil {
			continue
		}
		_ = l.Close()
		return p, nil
	}
	return 0, fmt.Errorf("no free port in range %d-%d", start, end)
}

func pickFreePort(host string) (int, error) {
	l, err := net.Listen("tcp", host+":0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	addr := l.Addr().String()
	// addr like 127.0.0.1:54321
	lastColon := strings.LastIndex(addr, ":")
	if lastColon < 0 {
		return 0, fmt.Errorf("unexpected addr: %s", addr)
	}
	p, err := strconv.Atoi(addr[lastColon+1:])
	if err != nil {
		return 0, err
	}
	return p, nil
}

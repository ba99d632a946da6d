package manager

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"chatd/internal/convo"
	"chatd/internal/store"
	"chatd/internal/token"
	"chatd/pkg/types"
)

// SendPrompt appends the prompt to the session context, runs one generation
// and streams NDJSON token lines to w. The session gate is held for the whole
// exchange, so cleanup triggered mid-stream waits until the final line is
// written. The final line carries content, finish reason, token usage and the
// post-exchange context usage.
func (m *Manager) SendPrompt(ctx context.Context, id string, req types.PromptRequest, w io.Writer, flusher func()) error {
	s, err := m.session(id)
	if err != nil {
		return err
	}

	release, err := m.acquireGate(ctx, s)
	if err != nil {
		return err
	}
	defer release()

	m.mu.RLock()
	state := s.State
	backend := s.backend
	cv := s.Convo
	m.mu.RUnlock()
	if state != StateActive || backend == nil {
		return errSessionBusy{id: id}
	}

	// A prompt that alone exceeds the budget is rejected before any
	// mutation of the context.
	userTurn := convo.NewTurn(types.RoleUser, req.Prompt)
	if userTurn.Tokens > cv.Budget() {
		return cv.Append(userTurn)
	}
	if aerr := cv.Append(userTurn); aerr != nil {
		// The context is degraded but still holds the prompt; proceed and
		// let the model answer with what fits.
		m.log.Warn().Str("session", id).Err(aerr).Msg("context degraded")
	}

	turns := cv.BuildForInference()
	rendered := renderPrompt(turns)
	params := GenParams{
		Temperature: float32(req.Temperature),
		TopP:        float32(req.TopP),
		MaxTokens:   req.MaxTokens,
		Stop:        req.Stop,
		Seed:        int(req.Seed),
	}

	var b strings.Builder
	onTok := func(tok string) error {
		if _, e := w.Write(tokenLineJSON(tok)); e != nil {
			return e
		}
		b.WriteString(tok)
		if flusher != nil {
			flusher()
		}
		return nil
	}
	final, genErr := backend.Generate(ctx, rendered, params, onTok)
	content := final.Content
	if content == "" {
		content = b.String()
	}

	if genErr != nil {
		canceled := errors.Is(genErr, context.Canceled) || errors.Is(genErr, context.DeadlineExceeded)
		if canceled && m.keepPartial && content != "" {
			m.appendAssistant(s, cv, content)
			m.persist(s, cv)
		}
		m.publisher.Publish(Event{Name: "prompt_error", SessionID: id, Fields: map[string]any{"error": genErr.Error()}})
		return genErr
	}

	m.appendAssistant(s, cv, content)
	m.persist(s, cv)

	usage := final.Usage
	if usage.TotalTokens == 0 {
		// Backends that report no usage fall back to the same per-turn
		// estimate the context accounting uses.
		texts := make([]string, len(turns))
		for i := range turns {
			texts[i] = turns[i].Text
		}
		usage.PromptTokens = token.EstimateTurns(texts)
		usage.CompletionTokens = token.Estimate(content)
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	end := map[string]any{
		"done":          true,
		"content":       content,
		"finish_reason": final.FinishReason,
		"usage":         usage,
		"context":       cv.Usage(),
	}
	jb, _ := json.Marshal(end)
	if _, err := w.Write(append(jb, '\n')); err != nil {
		return err
	}
	if flusher != nil {
		flusher()
	}
	metricPromptsTotal.Inc()
	m.publisher.Publish(Event{Name: "prompt_complete", SessionID: id, Fields: map[string]any{
		"completion_tokens": usage.CompletionTokens,
	}})
	return nil
}

// acquireGate takes the session gate, blocking or rejecting per config.
// The returned release must be called exactly once.
func (m *Manager) acquireGate(ctx context.Context, s *Session) (func(), error) {
	if m.blockOnBusy {
		select {
		case s.gate <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		select {
		case s.gate <- struct{}{}:
		default:
			return nil, errSessionBusy{id: s.ID}
		}
	}
	return func() { <-s.gate }, nil
}

func (m *Manager) appendAssistant(s *Session, cv *convo.Manager, content string) {
	if err := cv.Append(convo.NewTurn(types.RoleAssistant, content)); err != nil {
		m.log.Warn().Str("session", s.ID).Err(err).Msg("context degraded")
	}
	m.mu.Lock()
	s.LastUsed = time.Now()
	m.mu.Unlock()
}

func (m *Manager) persist(s *Session, cv *convo.Manager) {
	if m.storage == nil {
		return
	}
	rec := store.Record{ID: s.ID, Model: s.Model.ID, Turns: cv.Turns()}
	if err := m.storage.Save(rec); err != nil {
		m.log.Warn().Str("session", s.ID).Err(err).Msg("transcript save failed")
	}
}

// renderPrompt flattens turns into the plain-text chat transcript the
// completion endpoint expects.
func renderPrompt(turns []types.Turn) string {
	var sb strings.Builder
	for _, t := range turns {
		switch t.Role {
		case types.RoleSystem:
			sb.WriteString(t.Text)
		case types.RoleUser:
			sb.WriteString("User: ")
			sb.WriteString(t.Text)
		case types.RoleAssistant:
			sb.WriteString("Assistant: ")
			sb.WriteString(t.Text)
		default:
			sb.WriteString(t.Text)
		}
		sb.WriteString("\n")
	}
	sb.WriteString("Assistant:")
	return sb.String()
}

// tokenLineJSON formats a token NDJSON line using json.Marshal for correctness.
func tokenLineJSON(tok string) []byte {
	type tokenMsg struct {
		Token string `json:"token"`
	}
	b, _ := json.Marshal(tokenMsg{Token: tok})
	return append(b, '\n')
}

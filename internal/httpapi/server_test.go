package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"chatd/internal/convo"
	"chatd/internal/manager"
	"chatd/pkg/types"
)

// fakeService is a scriptable Service used by handler tests.
type fakeService struct {
	models     []types.Model
	status     types.StatusResponse
	sessions   map[string]types.SessionStatus
	startErr   error
	promptErr  error
	removeErr  error
	tokens     []string
	ready      bool
	lastPrompt types.PromptRequest
}

func newFakeService() *fakeService {
	return &fakeService{
		models:   []types.Model{{ID: "m", Name: "m", Path: "m.gguf"}},
		sessions: map[string]types.SessionStatus{},
		tokens:   []string{"Hello", " world"},
		ready:    true,
	}
}

func (f *fakeService) ListModels() []types.Model        { return f.models }
func (f *fakeService) Status() types.StatusResponse     { return f.status }
func (f *fakeService) Ready() bool                      { return f.ready }
func (f *fakeService) Rebaseline(id string) error {
	if _, ok := f.sessions[id]; !ok {
		return manager.ErrSessionNotFound(id)
	}
	return nil
}

func (f *fakeService) SessionStatus(id string) (types.SessionStatus, error) {
	st, ok := f.sessions[id]
	if !ok {
		return types.SessionStatus{}, manager.ErrSessionNotFound(id)
	}
	return st, nil
}

func (f *fakeService) StartSession(ctx context.Context, id, model string) (*manager.Session, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	if id == "" {
		id = "generated"
	}
	if _, ok := f.sessions[id]; ok {
		return nil, manager.ErrSessionExists(id)
	}
	f.sessions[id] = types.SessionStatus{SessionID: id, Model: "m", State: "active", PID: 42}
	return &manager.Session{ID: id}, nil
}

func (f *fakeService) SendPrompt(ctx context.Context, id string, req types.PromptRequest, w io.Writer, flush func()) error {
	f.lastPrompt = req
	if f.promptErr != nil {
		return f.promptErr
	}
	if _, ok := f.sessions[id]; !ok {
		return manager.ErrSessionNotFound(id)
	}
	for _, tok := range f.tokens {
		b, _ := json.Marshal(map[string]string{"token": tok})
		if _, err := w.Write(append(b, '\n')); err != nil {
			return err
		}
		if flush != nil {
			flush()
		}
	}
	_, err := w.Write([]byte(`{"done":true}` + "\n"))
	return err
}

func (f *fakeService) RemoveSession(ctx context.Context, id string) error {
	if f.removeErr != nil {
		return f.removeErr
	}
	if _, ok := f.sessions[id]; !ok {
		return manager.ErrSessionNotFound(id)
	}
	delete(f.sessions, id)
	return nil
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestModelsEndpoint(t *testing.T) {
	h := NewMux(newFakeService())
	rr := doJSON(t, h, http.MethodGet, "/models", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var out struct {
		Models []types.Model `json:"models"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out.Models) != 1 || out.Models[0].ID != "m" {
		t.Fatalf("models = %+v", out.Models)
	}
}

func TestCreateSession_Created(t *testing.T) {
	h := NewMux(newFakeService())
	rr := doJSON(t, h, http.MethodPost, "/sessions", `{"session_id":"s1","model":"m"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	var st types.SessionStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.SessionID != "s1" || st.State != "active" {
		t.Fatalf("session = %+v", st)
	}
}

func TestCreateSession_DuplicateConflict(t *testing.T) {
	svc := newFakeService()
	h := NewMux(svc)
	if rr := doJSON(t, h, http.MethodPost, "/sessions", `{"session_id":"dup"}`); rr.Code != http.StatusCreated {
		t.Fatalf("first create: %d", rr.Code)
	}
	rr := doJSON(t, h, http.MethodPost, "/sessions", `{"session_id":"dup"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rr.Code)
	}
	var er types.ErrorResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &er); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if er.Code != http.StatusConflict {
		t.Fatalf("payload code = %d", er.Code)
	}
}

func TestCreateSession_BackendUnavailable(t *testing.T) {
	svc := newFakeService()
	svc.startErr = manager.ErrBackendUnavailable("spawn failed")
	rr := doJSON(t, NewMux(svc), http.MethodPost, "/sessions", `{}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rr.Code)
	}
}

func TestCreateSession_UnknownModel(t *testing.T) {
	svc := newFakeService()
	svc.startErr = manager.ErrModelNotFound("nope")
	rr := doJSON(t, NewMux(svc), http.MethodPost, "/sessions", `{"model":"nope"}`)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestCreateSession_RequiresJSONContentType(t *testing.T) {
	h := NewMux(newFakeService())
	req := httptest.NewRequest(http.MethodPost, "/sessions", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "text/plain")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", rr.Code)
	}
}

func TestGetSession_NotFound(t *testing.T) {
	rr := doJSON(t, NewMux(newFakeService()), http.MethodGet, "/sessions/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestPrompt_StreamsNDJSON(t *testing.T) {
	svc := newFakeService()
	h := NewMux(svc)
	if rr := doJSON(t, h, http.MethodPost, "/sessions", `{"session_id":"s1"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	rr := doJSON(t, h, http.MethodPost, "/sessions/s1/prompt", `{"prompt":"hi","max_tokens":16}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/x-ndjson") {
		t.Fatalf("content type = %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d: %q", len(lines), rr.Body.String())
	}
	if svc.lastPrompt.MaxTokens != 16 {
		t.Fatalf("max_tokens not forwarded: %+v", svc.lastPrompt)
	}
}

func TestPrompt_EmptyPromptRejected(t *testing.T) {
	rr := doJSON(t, NewMux(newFakeService()), http.MethodPost, "/sessions/s1/prompt", `{"prompt":"  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
}

func TestPrompt_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", manager.ErrSessionNotFound("s1"), http.StatusNotFound},
		{"busy", manager.ErrSessionBusy("s1"), http.StatusTooManyRequests},
		{"budget", convo.ErrBudgetUnsatisfiable(900, 200), http.StatusUnprocessableEntity},
		{"backend", manager.ErrBackendUnavailable("gone"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newFakeService()
			svc.promptErr = tc.err
			rr := doJSON(t, NewMux(svc), http.MethodPost, "/sessions/s1/prompt", `{"prompt":"hi"}`)
			if rr.Code != tc.want {
				t.Fatalf("status = %d, want %d", rr.Code, tc.want)
			}
		})
	}
}

func TestDeleteSession(t *testing.T) {
	svc := newFakeService()
	h := NewMux(svc)
	if rr := doJSON(t, h, http.MethodPost, "/sessions", `{"session_id":"s1"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodDelete, "/sessions/s1", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodDelete, "/sessions/s1", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", rr.Code)
	}
}

func TestRebaseline(t *testing.T) {
	svc := newFakeService()
	h := NewMux(svc)
	if rr := doJSON(t, h, http.MethodPost, "/sessions", `{"session_id":"s1"}`); rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodPost, "/sessions/s1/rebaseline", ""); rr.Code != http.StatusNoContent {
		t.Fatalf("rebaseline status = %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodPost, "/sessions/nope/rebaseline", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d", rr.Code)
	}
}

func TestHealthAndReadiness(t *testing.T) {
	svc := newFakeService()
	h := NewMux(svc)
	if rr := doJSON(t, h, http.MethodGet, "/healthz", ""); rr.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rr.Code)
	}
	if rr := doJSON(t, h, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Fatalf("readyz = %d", rr.Code)
	}
	svc.ready = false
	if rr := doJSON(t, h, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz not ready = %d", rr.Code)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	rr := doJSON(t, NewMux(newFakeService()), http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rr.Code)
	}
	// The in-flight gauge for this very request is set before the scrape.
	if !strings.Contains(rr.Body.String(), "chatd_http_inflight_requests") {
		t.Fatalf("metrics body missing gauges")
	}
}

package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chatd/internal/convo"
	"chatd/internal/manager"
	"chatd/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.Model
	Status() types.StatusResponse
	SessionStatus(id string) (types.SessionStatus, error)
	StartSession(ctx context.Context, id, model string) (*manager.Session, error)
	SendPrompt(ctx context.Context, id string, req types.PromptRequest, w io.Writer, flush func()) error
	RemoveSession(ctx context.Context, id string) error
	Rebaseline(id string) error
	Ready() bool
}

func NewMux(svc Service) http.Handler {
	r := chi.NewRouter()
	// Basic middlewares: request id, real ip, recoverer
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	// Compression for JSON endpoints
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsAllowedOrigins,
			AllowedMethods: corsAllowedMethods,
			AllowedHeaders: corsAllowedHeaders,
		}))
	}
	// Security headers
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})

	r.Get("/models", handleModels(svc))
	r.Get("/status", handleStatus(svc))
	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", handleCreateSession(svc))
		r.Get("/", handleListSessions(svc))
		r.Get("/{id}", handleGetSession(svc))
		r.Delete("/{id}", handleDeleteSession(svc))
		r.Post("/{id}/prompt", handlePrompt(svc))
		r.Post("/{id}/rebaseline", handleRebaseline(svc))
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("loading"))
	})

	// Prometheus metrics endpoint
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	MountSwagger(r)
	return r
}

// handleModels godoc
// @Summary  List models
// @Produce  json
// @Success  200 {object} map[string][]types.Model
// @Router   /models [get]
func handleModels(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"models": svc.ListModels()})
	}
}

// handleStatus godoc
// @Summary  Server and session status
// @Produce  json
// @Success  200 {object} types.StatusResponse
// @Router   /status [get]
func handleStatus(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, svc.Status())
	}
}

// handleCreateSession godoc
// @Summary  Create a session bound to a backend process
// @Accept   json
// @Produce  json
// @Param    request body types.CreateSessionRequest true "session parameters"
// @Success  201 {object} types.SessionStatus
// @Failure  404 {object} types.ErrorResponse
// @Failure  409 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Router   /sessions [post]
func handleCreateSession(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.CreateSessionRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		s, err := svc.StartSession(joined, req.SessionID, req.Model)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		st, err := svc.SessionStatus(s.ID)
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, st)
	}
}

// handleListSessions godoc
// @Summary  List sessions
// @Produce  json
// @Success  200 {object} map[string][]types.SessionStatus
// @Router   /sessions [get]
func handleListSessions(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": svc.Status().Sessions})
	}
}

// handleGetSession godoc
// @Summary  Session status
// @Produce  json
// @Param    id path string true "session id"
// @Success  200 {object} types.SessionStatus
// @Failure  404 {object} types.ErrorResponse
// @Router   /sessions/{id} [get]
func handleGetSession(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := svc.SessionStatus(chi.URLParam(r, "id"))
		if err != nil {
			writeMappedError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}
}

// handleDeleteSession godoc
// @Summary  Terminate and remove a session
// @Param    id path string true "session id"
// @Success  204
// @Failure  404 {object} types.ErrorResponse
// @Router   /sessions/{id} [delete]
func handleDeleteSession(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		defer cancel()
		if err := svc.RemoveSession(joined, chi.URLParam(r, "id")); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleRebaseline godoc
// @Summary  Reset the session's memory baseline
// @Param    id path string true "session id"
// @Success  204
// @Failure  404 {object} types.ErrorResponse
// @Router   /sessions/{id}/rebaseline [post]
func handleRebaseline(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.Rebaseline(chi.URLParam(r, "id")); err != nil {
			writeMappedError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// handlePrompt godoc
// @Summary  Send a prompt and stream tokens as NDJSON
// @Accept   json
// @Produce  application/x-ndjson
// @Param    id path string true "session id"
// @Param    request body types.PromptRequest true "prompt"
// @Success  200 {string} string "NDJSON token lines"
// @Failure  404 {object} types.ErrorResponse
// @Failure  422 {object} types.ErrorResponse
// @Failure  429 {object} types.ErrorResponse
// @Failure  503 {object} types.ErrorResponse
// @Router   /sessions/{id}/prompt [post]
func handlePrompt(svc Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req types.PromptRequest
		if !decodeJSONBody(w, r, &req) {
			return
		}
		if strings.TrimSpace(req.Prompt) == "" {
			writeJSONError(w, http.StatusBadRequest, "prompt is required")
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		var flush func()
		if f, ok := w.(http.Flusher); ok {
			flush = f.Flush
		}
		start := time.Now()
		writer := io.Writer(w)
		lvl := requestLogLevel(r)
		if lvl >= LevelDebug {
			writer = io.MultiWriter(w, &loggingLineWriter{})
		}
		rid := middleware.GetReqID(r.Context())
		if lvl >= LevelInfo {
			logPromptStart(r.URL.Path, id, rid)
		}
		// Join server base context with request context so shutdown cancels work too.
		joined, cancel := joinContexts(serverBaseCtx, r.Context())
		if promptTimeout > 0 {
			var tcancel context.CancelFunc
			joined, tcancel = context.WithTimeout(joined, time.Duration(promptTimeout)*time.Second)
			defer tcancel()
		}
		defer cancel()

		if err := svc.SendPrompt(joined, id, req, writer, flush); err != nil {
			// Client disconnect or shutdown: nothing useful left to write.
			if r.Context().Err() != nil || serverBaseCtx.Err() != nil {
				return
			}
			status := mappedStatus(err)
			if status == http.StatusTooManyRequests {
				IncrementBackpressure("session_busy")
			}
			writeJSONError(w, status, err.Error())
			if lvl >= LevelInfo {
				logPromptEnd(status, time.Since(start), rid, err)
			}
			return
		}
		if lvl >= LevelInfo {
			logPromptEnd(http.StatusOK, time.Since(start), rid, nil)
		}
	}
}

// decodeJSONBody enforces the JSON content type and body size limit, then
// decodes into dst. It writes the error response itself and reports success.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeJSONError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// mappedStatus translates well-known manager and context errors into HTTP
// status codes.
func mappedStatus(err error) int {
	switch {
	case manager.IsSessionNotFound(err), manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsSessionExists(err):
		return http.StatusConflict
	case manager.IsSessionBusy(err):
		return http.StatusTooManyRequests
	case convo.IsBudgetUnsatisfiable(err):
		return http.StatusUnprocessableEntity
	case manager.IsBackendUnavailable(err):
		return http.StatusServiceUnavailable
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

func writeMappedError(w http.ResponseWriter, err error) {
	status := mappedStatus(err)
	if status == http.StatusTooManyRequests {
		IncrementBackpressure("session_busy")
	}
	writeJSONError(w, status, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Headers are gone; nothing more to do than note it.
		logEncodeFailure(err)
	}
}

// Package api exposes the pipeline controller, scheduler, per-user settings,
// presets and resolved LLM configuration over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/yangwenmai/arxivdaily/internal/engine"
	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
	"github.com/yangwenmai/arxivdaily/internal/model"
	"github.com/yangwenmai/arxivdaily/internal/pipeline"
	"github.com/yangwenmai/arxivdaily/internal/runner"
	"github.com/yangwenmai/arxivdaily/internal/store"
)

// maxRequestBody is the maximum allowed request body size (1 MB).
const maxRequestBody int64 = 1 << 20

// RunController starts, inspects and stops pipeline runs.
type RunController interface {
	Trigger(req runner.Request) (string, error)
	Status() model.RunSnapshot
	Cancel() error
}

// ScheduleManager reads and replaces the daily schedule.
type ScheduleManager interface {
	Config() model.ScheduleConfig
	SetConfig(cfg model.ScheduleConfig) (model.ScheduleConfig, error)
}

// StepInspector reports per-date step completion.
type StepInspector interface {
	Registry() *pipeline.Registry
	MarkerExists(step pipeline.Step, date string) bool
}

// ConfigResolver resolves per-user LLM configuration.
type ConfigResolver interface {
	Resolve(ctx context.Context, req llmconfig.Request) (model.EffectiveLLMConfig, error)
}

// ClientFactory returns a chat client for a resolved configuration.
type ClientFactory func(cfg model.EffectiveLLMConfig) engine.Completer

// Deps are the collaborators a Server needs.
type Deps struct {
	Store      store.Repository
	Runs       RunController
	Schedule   ScheduleManager
	Steps      StepInspector
	Resolver   ConfigResolver
	Clients    ClientFactory
	CORSOrigin string
	// Now defaults to time.Now; it decides "today" for run and step requests.
	Now func() time.Time
}

// Server holds the HTTP handlers and dependencies.
type Server struct {
	Deps
	mux      *http.ServeMux
	validate *validator.Validate
}

// New creates a new API server.
func New(d Deps) *Server {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.CORSOrigin == "" {
		d.CORSOrigin = "*"
	}
	srv := &Server{Deps: d, mux: http.NewServeMux(), validate: validator.New()}
	srv.routes()
	return srv
}

// Handler returns the root http.Handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return corsMiddleware(s.CORSOrigin, limitBody(jsonContent(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/admin/pipeline/run", s.handleRunPipeline)
	s.mux.HandleFunc("GET /api/admin/pipeline/status", s.handlePipelineStatus)
	s.mux.HandleFunc("POST /api/admin/pipeline/stop", s.handleStopPipeline)
	s.mux.HandleFunc("GET /api/admin/pipeline/runs", s.handleListRuns)
	s.mux.HandleFunc("GET /api/admin/schedule", s.handleGetSchedule)
	s.mux.HandleFunc("POST /api/admin/schedule", s.handleUpdateSchedule)
	s.mux.HandleFunc("GET /api/pipeline/steps", s.handleStepStatus)

	s.mux.HandleFunc("GET /api/users/{user_id}/settings/{feature}", s.handleGetSettings)
	s.mux.HandleFunc("PUT /api/users/{user_id}/settings/{feature}", s.handleSaveSettings)

	s.mux.HandleFunc("GET /api/users/{user_id}/llm-presets", s.handleListLLMPresets)
	s.mux.HandleFunc("POST /api/users/{user_id}/llm-presets", s.handleCreateLLMPreset)
	s.mux.HandleFunc("PUT /api/users/{user_id}/llm-presets/{id}", s.handleUpdateLLMPreset)
	s.mux.HandleFunc("DELETE /api/users/{user_id}/llm-presets/{id}", s.handleDeleteLLMPreset)
	s.mux.HandleFunc("GET /api/users/{user_id}/prompt-presets", s.handleListPromptPresets)
	s.mux.HandleFunc("POST /api/users/{user_id}/prompt-presets", s.handleCreatePromptPreset)
	s.mux.HandleFunc("PUT /api/users/{user_id}/prompt-presets/{id}", s.handleUpdatePromptPreset)
	s.mux.HandleFunc("DELETE /api/users/{user_id}/prompt-presets/{id}", s.handleDeletePromptPreset)

	s.mux.HandleFunc("GET /api/users/{user_id}/llm/{module}", s.handleResolveLLM)
	s.mux.HandleFunc("POST /api/users/{user_id}/llm/{module}/test", s.handleTestLLM)
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

// corsMiddleware sets CORS headers for the configured origin.
func corsMiddleware(origin string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// limitBody restricts the request body to maxRequestBody bytes.
func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		next.ServeHTTP(w, r)
	})
}

func jsonContent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ---------------------------------------------------------------------------
// Request/response helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// errEmptyBody is returned by decodeBody when the request has no body.
var errEmptyBody = errors.New("empty body")

func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return errEmptyBody
	}
	return err
}

// decodeAndValidate decodes a JSON body into v and runs struct validation.
// It writes the 400 response itself and reports whether the handler may continue.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, v any, allowEmpty bool) bool {
	if err := decodeBody(r, v); err != nil && !(allowEmpty && errors.Is(err, errEmptyBody)) {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := s.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage reports the first failing field.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ve := verrs[0]
		return fmt.Sprintf("validation error: %s - %s", ve.Field(), ve.Tag())
	}
	return "validation error: invalid request"
}

// pathID parses a positive integer path value.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) today() string {
	return model.Today(s.Now())
}

package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/yangwenmai/arxivdaily/internal/engine"
	"github.com/yangwenmai/arxivdaily/internal/llmconfig"
	"github.com/yangwenmai/arxivdaily/internal/model"
	"github.com/yangwenmai/arxivdaily/internal/store"
)

// secretSettingKeys are masked in responses and kept when a masked value is sent back.
var secretSettingKeys = []string{"llm_api_key", "mineru_token"}

func userID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := pathID(r, "user_id")
	if !ok {
		writeError(w, http.StatusBadRequest, "user_id must be a positive integer")
	}
	return id, ok
}

// isMaskedOf reports whether v is the masked rendering of secret.
func isMaskedOf(v, secret string) bool {
	return secret != "" && strings.Contains(v, "*") && v == model.MaskSecret(secret)
}

// ---------------------------------------------------------------------------
// GET/PUT /api/users/{user_id}/settings/{feature}
// ---------------------------------------------------------------------------

func maskSettings(settings map[string]any) map[string]any {
	for _, k := range secretSettingKeys {
		if v, ok := settings[k].(string); ok {
			settings[k] = model.MaskSecret(v)
		}
	}
	return settings
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	settings, err := s.Store.GetSettings(r.Context(), uid, r.PathValue("feature"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, maskSettings(settings))
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	feature := r.PathValue("feature")

	var incoming map[string]any
	if err := decodeBody(r, &incoming); err != nil || incoming == nil {
		writeError(w, http.StatusBadRequest, "body must be a JSON object")
		return
	}

	current, err := s.Store.GetSettings(r.Context(), uid, feature)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	for _, k := range secretSettingKeys {
		v, _ := incoming[k].(string)
		old, _ := current[k].(string)
		if isMaskedOf(v, old) {
			incoming[k] = old
		}
	}

	if err := s.Store.SaveSettings(r.Context(), uid, feature, incoming); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	saved, err := s.Store.GetSettings(r.Context(), uid, feature)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, maskSettings(saved))
}

// ---------------------------------------------------------------------------
// /api/users/{user_id}/llm-presets
// ---------------------------------------------------------------------------

type llmPresetRequest struct {
	Name              string   `json:"name" validate:"required,max=100"`
	BaseURL           string   `json:"base_url" validate:"omitempty,url"`
	APIKey            string   `json:"api_key"`
	Model             string   `json:"model"`
	MaxTokens         *int     `json:"max_tokens" validate:"omitempty,min=1"`
	Temperature       *float64 `json:"temperature" validate:"omitempty,min=0,max=2"`
	InputHardLimit    *int     `json:"input_hard_limit" validate:"omitempty,min=1"`
	InputSafetyMargin *int     `json:"input_safety_margin" validate:"omitempty,min=0"`
}

func (req llmPresetRequest) preset(uid int64) model.LLMPreset {
	return model.LLMPreset{
		UserID:            uid,
		Name:              strings.TrimSpace(req.Name),
		BaseURL:           strings.TrimSpace(req.BaseURL),
		APIKey:            strings.TrimSpace(req.APIKey),
		Model:             strings.TrimSpace(req.Model),
		MaxTokens:         req.MaxTokens,
		Temperature:       req.Temperature,
		InputHardLimit:    req.InputHardLimit,
		InputSafetyMargin: req.InputSafetyMargin,
	}
}

func (s *Server) handleListLLMPresets(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	presets, err := s.Store.ListLLMPresets(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list presets")
		return
	}
	out := make([]model.LLMPreset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p.Masked())
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCreateLLMPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req llmPresetRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}
	id, err := s.Store.CreateLLMPreset(r.Context(), req.preset(uid))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create preset")
		return
	}
	s.writeLLMPreset(w, r, http.StatusCreated, uid, id)
}

func (s *Server) handleUpdateLLMPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	var req llmPresetRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}

	existing, err := s.Store.GetLLMPreset(r.Context(), uid, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get preset")
		return
	}
	p := req.preset(uid)
	p.ID = id
	if p.APIKey == "" || isMaskedOf(p.APIKey, existing.APIKey) {
		p.APIKey = existing.APIKey
	}
	if err := s.Store.UpdateLLMPreset(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update preset")
		return
	}
	s.writeLLMPreset(w, r, http.StatusOK, uid, id)
}

func (s *Server) handleDeleteLLMPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	err := s.Store.DeleteLLMPreset(r.Context(), uid, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete preset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) writeLLMPreset(w http.ResponseWriter, r *http.Request, status int, uid, id int64) {
	p, err := s.Store.GetLLMPreset(r.Context(), uid, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get preset")
		return
	}
	writeJSON(w, status, p.Masked())
}

// ---------------------------------------------------------------------------
// /api/users/{user_id}/prompt-presets
// ---------------------------------------------------------------------------

type promptPresetRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	PromptContent string `json:"prompt_content" validate:"required"`
}

func (s *Server) handleListPromptPresets(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	presets, err := s.Store.ListPromptPresets(r.Context(), uid)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list presets")
		return
	}
	if presets == nil {
		presets = []model.PromptPreset{}
	}
	writeJSON(w, http.StatusOK, presets)
}

func (s *Server) handleCreatePromptPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	var req promptPresetRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}
	id, err := s.Store.CreatePromptPreset(r.Context(), model.PromptPreset{
		UserID:        uid,
		Name:          strings.TrimSpace(req.Name),
		PromptContent: req.PromptContent,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create preset")
		return
	}
	s.writePromptPreset(w, r, http.StatusCreated, uid, id)
}

func (s *Server) handleUpdatePromptPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	var req promptPresetRequest
	if !s.decodeAndValidate(w, r, &req, false) {
		return
	}
	err := s.Store.UpdatePromptPreset(r.Context(), model.PromptPreset{
		ID:            id,
		UserID:        uid,
		Name:          strings.TrimSpace(req.Name),
		PromptContent: req.PromptContent,
	})
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update preset")
		return
	}
	s.writePromptPreset(w, r, http.StatusOK, uid, id)
}

func (s *Server) handleDeletePromptPreset(w http.ResponseWriter, r *http.Request) {
	uid, ok := userID(w, r)
	if !ok {
		return
	}
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "id must be a positive integer")
		return
	}
	err := s.Store.DeletePromptPreset(r.Context(), uid, id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "preset not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete preset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": id})
}

func (s *Server) writePromptPreset(w http.ResponseWriter, r *http.Request, status int, uid, id int64) {
	p, err := s.Store.GetPromptPreset(r.Context(), uid, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get preset")
		return
	}
	writeJSON(w, status, p)
}

// ---------------------------------------------------------------------------
// GET /api/users/{user_id}/llm/{module}, POST .../test
// ---------------------------------------------------------------------------

// resolveFor resolves the path's (user, module) with the optional ?sllm=
// selector. It writes the error response itself.
func (s *Server) resolveFor(w http.ResponseWriter, r *http.Request) (model.EffectiveLLMConfig, bool) {
	uid, ok := userID(w, r)
	if !ok {
		return model.EffectiveLLMConfig{}, false
	}
	mod, err := llmconfig.ParseModule(r.PathValue("module"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return model.EffectiveLLMConfig{}, false
	}
	sllm := 0
	if v := r.URL.Query().Get("sllm"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 3 {
			writeError(w, http.StatusBadRequest, "sllm must be 1, 2 or 3")
			return model.EffectiveLLMConfig{}, false
		}
		sllm = n
	}

	cfg, err := s.Resolver.Resolve(r.Context(), llmconfig.Request{UserID: uid, Module: mod, SLLM: sllm})
	if errors.Is(err, llmconfig.ErrMissingCredentials) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return model.EffectiveLLMConfig{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to resolve configuration")
		return model.EffectiveLLMConfig{}, false
	}
	return cfg, true
}

func (s *Server) handleResolveLLM(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.resolveFor(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, cfg.Masked())
}

func (s *Server) handleTestLLM(w http.ResponseWriter, r *http.Request) {
	cfg, ok := s.resolveFor(w, r)
	if !ok {
		return
	}
	if s.Clients == nil {
		writeError(w, http.StatusServiceUnavailable, "no LLM client configured")
		return
	}
	res := engine.Probe(r.Context(), s.Clients(cfg))
	writeJSON(w, http.StatusOK, map[string]any{"config": cfg.Masked(), "probe": res})
}

package server

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/shibayu36/personachat/config"
	"github.com/shibayu36/personachat/logging"
)

const maxThemeBytes = 64 << 10

type checkConfigResponse struct {
	config.Config
	Configured bool `json:"configured"`
}

type fetchModelsRequest struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type fetchModelsResponse struct {
	Status string   `json:"status"`
	Models []string `json:"models"`
}

func (s *Server) handleCheckConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Load()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, checkConfigResponse{Config: cfg, Configured: cfg.Configured()})
}

// handleSaveConfig merges the posted fields onto the stored record, saves it
// and rebuilds the completion backend.
func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.configs.Load()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := decodeJSON(r, &cfg); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.configs.Save(cfg); err != nil {
		s.respondError(w, r, err)
		return
	}
	s.orch.Configure(cfg)

	logging.FromContext(r.Context(), s.log).WithField("model", cfg.Model).Info("configuration saved")
	writeSuccess(w)
}

// handleFetchModels lists the backend's models. Missing credentials fall
// back to the stored ones.
func (s *Server) handleFetchModels(w http.ResponseWriter, r *http.Request) {
	var req fetchModelsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if req.APIKey == "" || req.BaseURL == "" {
		saved, err := s.configs.Load()
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		if req.APIKey == "" {
			req.APIKey = saved.APIKey
		}
		if req.BaseURL == "" {
			req.BaseURL = saved.BaseURL
		}
	}
	if req.APIKey == "" || req.BaseURL == "" {
		s.respondError(w, r, badRequest("api_key and base_url are required"))
		return
	}

	models, err := s.models(r.Context(), req.APIKey, req.BaseURL)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fetchModelsResponse{Status: "success", Models: models})
}

func (s *Server) handleThemes(w http.ResponseWriter, r *http.Request) {
	names, err := s.themes.List()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleTheme(w http.ResponseWriter, r *http.Request) {
	t, err := s.themes.Get(mux.Vars(r)["name"])
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleImportTheme(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxThemeBytes))
	if err != nil {
		s.respondError(w, r, badRequest("failed to read body: %v", err))
		return
	}

	t, err := s.themes.Import(data)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context(), s.log).WithField("theme", t.Name).Info("theme imported")
	writeJSON(w, http.StatusOK, t)
}

// Package server exposes the chat orchestrator and the stores over HTTP.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/shibayu36/personachat/chat"
	"github.com/shibayu36/personachat/config"
	"github.com/shibayu36/personachat/logging"
	"github.com/shibayu36/personachat/persona"
	"github.com/shibayu36/personachat/theme"
)

//go:embed web
var webFiles embed.FS

// ModelLister fetches the model ids offered by a backend.
type ModelLister func(ctx context.Context, apiKey, baseURL string) ([]string, error)

// Options are the collaborators of a Server.
type Options struct {
	Orchestrator *chat.Orchestrator
	Personas     *persona.Store
	Configs      *config.Store
	Themes       *theme.Store
	ListModels   ModelLister

	// AllowedOrigins may call the API from another origin. Empty means same-origin only.
	AllowedOrigins []string
}

// Server serves the single-user web UI and its JSON API.
// It owns the one active chat session.
type Server struct {
	orch     *chat.Orchestrator
	sess     *chat.Session
	personas *persona.Store
	configs  *config.Store
	themes   *theme.Store
	models   ModelLister
	log      *logrus.Entry

	allowedOrigins map[string]bool

	server *http.Server
}

func New(opts Options) *Server {
	allowed := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			allowed[o] = true
		}
	}
	return &Server{
		orch:           opts.Orchestrator,
		sess:           chat.NewSession(),
		personas:       opts.Personas,
		configs:        opts.Configs,
		themes:         opts.Themes,
		models:         opts.ListModels,
		log:            logging.NewLogger("server"),
		allowedOrigins: allowed,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/prompts", s.handlePrompts).Methods("GET")
	api.HandleFunc("/history", s.handleHistory).Methods("GET")
	api.HandleFunc("/new_chat", s.handleNewChat).Methods("POST")
	api.HandleFunc("/load_chat", s.handleLoadChat).Methods("POST")
	api.HandleFunc("/delete_chat", s.handleDeleteChat).Methods("POST")
	api.HandleFunc("/rename_chat", s.handleRenameChat).Methods("POST")
	api.HandleFunc("/update_settings", s.handleUpdateSettings).Methods("POST")
	api.HandleFunc("/chat_stream", s.handleChatStream).Methods("GET")

	api.HandleFunc("/check_config", s.handleCheckConfig).Methods("GET")
	api.HandleFunc("/save_config", s.handleSaveConfig).Methods("POST")
	api.HandleFunc("/fetch_models", s.handleFetchModels).Methods("POST")

	api.HandleFunc("/themes", s.handleThemes).Methods("GET")
	api.HandleFunc("/themes/import", s.handleImportTheme).Methods("POST")
	api.HandleFunc("/themes/{name}", s.handleTheme).Methods("GET")

	router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	static, _ := fs.Sub(webFiles, "web")
	router.PathPrefix("/").Handler(http.FileServer(http.FS(static))).Methods("GET")

	var handler http.Handler = router
	handler = s.originMiddleware(handler)
	handler = s.loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	return handler
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       1 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("server starting")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.log.Info("server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

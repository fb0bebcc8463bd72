package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shibayu36/personachat/chat"
	"github.com/shibayu36/personachat/config"
	"github.com/shibayu36/personachat/llm"
	"github.com/shibayu36/personachat/logging"
	"github.com/shibayu36/personachat/memory"
	"github.com/shibayu36/personachat/persona"
	"github.com/shibayu36/personachat/theme"
)

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("cross-origin request refused")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	log := logging.FromContext(r.Context(), s.log).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Debug("request rejected")
	}
	writeJSON(w, status, errorResponse{Status: "error", Message: err.Error()})
}

func statusFor(err error) int {
	var cfgErr *config.ValidationError
	var themeErr *theme.ValidationError
	switch {
	case errors.Is(err, memory.ErrNotFound),
		errors.Is(err, persona.ErrNotFound),
		errors.Is(err, theme.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, chat.ErrNoActiveSession),
		errors.Is(err, chat.ErrInvalidTitle),
		errors.As(err, &cfgErr),
		errors.As(err, &themeErr):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, llm.ErrBackend):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

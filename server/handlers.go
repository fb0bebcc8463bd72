package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shibayu36/personachat/chat"
	"github.com/shibayu36/personachat/logging"
	"github.com/shibayu36/personachat/memory"
)

type newChatRequest struct {
	Filename string `json:"filename"`
}

type newChatResponse struct {
	Greeting string           `json:"greeting"`
	ChatID   string           `json:"chat_id"`
	Messages []memory.Message `json:"messages"`
	Model    string           `json:"model"`
}

type chatIDRequest struct {
	ChatID string `json:"chat_id"`
}

type renameRequest struct {
	ChatID   string `json:"chat_id"`
	NewTitle string `json:"new_title"`
}

type updateSettingsRequest struct {
	Model    *string `json:"model"`
	Filename *string `json:"filename"`
}

type updateSettingsResponse struct {
	*memory.Conversation
	PromptDiff string `json:"prompt_diff,omitempty"`
}

type fragment struct {
	Text string `json:"text"`
}

func (s *Server) handlePrompts(w http.ResponseWriter, r *http.Request) {
	names, err := s.personas.List()
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.orch.History(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleNewChat(w http.ResponseWriter, r *http.Request) {
	var req newChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.Filename == "" {
		s.respondError(w, r, badRequest("filename is required"))
		return
	}

	res, err := s.orch.StartNew(r.Context(), s.sess, req.Filename)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newChatResponse{
		Greeting: res.Greeting,
		ChatID:   res.ID,
		Messages: res.Messages,
		Model:    res.Model,
	})
}

func (s *Server) handleLoadChat(w http.ResponseWriter, r *http.Request) {
	var req chatIDRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	conv, err := s.orch.Load(r.Context(), s.sess, req.ChatID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	var req chatIDRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	if err := s.orch.Delete(r.Context(), s.sess, req.ChatID); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleRenameChat(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}
	if req.ChatID == "" {
		s.respondError(w, r, badRequest("chat_id is required"))
		return
	}

	if err := s.orch.Rename(r.Context(), s.sess, req.ChatID, req.NewTitle); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeSuccess(w)
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, r, err)
		return
	}

	res, err := s.orch.UpdateSettings(r.Context(), s.sess, chat.SettingsInput{
		Model:     req.Model,
		PersonaID: req.Filename,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updateSettingsResponse{Conversation: res.Conversation, PromptDiff: res.PromptDiff})
}

// handleChatStream relays one turn as Server-Sent Events: a data frame per
// fragment, then a done event. A client that disconnects stops the turn.
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	text := r.URL.Query().Get("message")
	if strings.TrimSpace(text) == "" {
		s.respondError(w, r, badRequest("message is required"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	fragments, err := s.orch.SubmitTurn(ctx, s.sess, text)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for text := range fragments {
		if ctx.Err() != nil {
			break
		}
		data, _ := json.Marshal(fragment{Text: text})
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			logging.FromContext(ctx, s.log).WithError(err).Info("client went away")
			break
		}
		flusher.Flush()
	}

	if ctx.Err() != nil {
		return
	}
	fmt.Fprint(w, "event: done\ndata: {}\n\n")
	flusher.Flush()
}

package chat

import (
	"sync"

	"github.com/shibayu36/personachat/memory"
)

// Session holds the conversation currently receiving turns.
// All reads and writes of the active document go through its mutex,
// so one Session has a single writer at a time.
type Session struct {
	mu   sync.Mutex
	conv *memory.Conversation
}

func NewSession() *Session {
	return &Session{}
}

// Active returns a copy of the active conversation, or nil.
func (s *Session) Active() *memory.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conv.Clone()
}

// ActiveID returns the id of the active conversation, or "".
func (s *Session) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return ""
	}
	return s.conv.ID
}

func (s *Session) isActive(id string) bool {
	return s.conv != nil && s.conv.ID == id
}

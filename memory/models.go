package memory

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// UntitledTitle is the title of a conversation that has not been named yet.
const UntitledTitle = "New Chat"

// Message roles, matching the chat-completion wire values.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// TimestampLayout is the on-disk format of updated_at.
const TimestampLayout = "2006-01-02 15:04:05"

// Timestamp is a time that serializes as TimestampLayout.
// RFC 3339 values are also accepted when reading.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Format(TimestampLayout))
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	if v, err := time.ParseInLocation(TimestampLayout, s, time.Local); err == nil {
		t.Time = v
		return nil
	}
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q", s)
	}
	t.Time = v
	return nil
}

// Message is a single turn in a conversation
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// Conversation is the full persisted record of one chat.
// Messages[0], when it exists and has the system role, is the only system turn.
type Conversation struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	PromptFile string    `json:"prompt_file"`
	UpdatedAt  Timestamp `json:"updated_at"`
	Model      string    `json:"model,omitempty"`
	Messages   []Message `json:"messages"`
}

// Summary is the listing entry of a conversation
type Summary struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	PromptFile string    `json:"prompt_file"`
	UpdatedAt  Timestamp `json:"updated_at"`
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Messages = append([]Message(nil), c.Messages...)
	return &cp
}

// HasSystemTurn reports whether the first turn is the system turn.
func (c *Conversation) HasSystemTurn() bool {
	return len(c.Messages) > 0 && c.Messages[0].Role == RoleSystem
}

// SetSystemPrompt replaces the system turn in place, or inserts one at index 0.
func (c *Conversation) SetSystemPrompt(content string) {
	if c.HasSystemTurn() {
		c.Messages[0].Content = content
		return
	}
	c.Messages = append([]Message{{Role: RoleSystem, Content: content}}, c.Messages...)
}

// Summary returns the listing entry for c.
func (c *Conversation) Summary() Summary {
	return Summary{
		ID:         c.ID,
		Title:      c.Title,
		PromptFile: c.PromptFile,
		UpdatedAt:  c.UpdatedAt,
	}
}

// validate checks the fields required to store the conversation.
func (c *Conversation) validate() error {
	if !validID(c.ID) {
		return fmt.Errorf("invalid conversation id %q", c.ID)
	}
	for i, m := range c.Messages {
		if m.Role == RoleSystem && i != 0 {
			return fmt.Errorf("system turn at index %d", i)
		}
	}
	return nil
}

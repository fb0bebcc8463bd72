package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/shibayu36/personachat/logging"
)

// ErrNotFound is returned when no conversation exists for an id.
var ErrNotFound = errors.New("conversation not found")

const (
	fileExt   = ".json"
	indexFile = "index.db"
)

// Manager stores one JSON file per conversation in a directory and keeps a
// sqlite index of them for recency listing.
type Manager struct {
	dir string
	db  *Database
	now func() time.Time
	log *logrus.Entry
}

// NewManager opens (creating if needed) the history directory and rebuilds its index.
func NewManager(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := NewDatabase(filepath.Join(dir, indexFile))
	if err != nil {
		return nil, err
	}

	m := &Manager{
		dir: dir,
		db:  db,
		now: time.Now,
		log: logging.NewLogger("memory"),
	}
	if err := m.Reindex(); err != nil {
		db.Close()
		return nil, err
	}
	return m, nil
}

func (m *Manager) Close() error {
	return m.db.Close()
}

// Dir returns the history directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Save stamps c.UpdatedAt and writes the whole conversation, replacing any earlier version.
// The file keeps second precision; the index keeps the full time so saves
// within one second still list in order.
func (m *Manager) Save(c *Conversation) error {
	if err := c.validate(); err != nil {
		return err
	}
	now := m.now()
	c.UpdatedAt = Timestamp{now.Truncate(time.Second)}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", c.ID, err)
	}

	tmp, err := os.CreateTemp(m.dir, "."+c.ID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write conversation %s: %w", c.ID, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write conversation %s: %w", c.ID, err)
	}
	if err := os.Rename(tmp.Name(), m.path(c.ID)); err != nil {
		return fmt.Errorf("failed to replace conversation %s: %w", c.ID, err)
	}

	return m.db.upsert(c, now)
}

// Load reads a conversation by id. A file whose id does not match its name is not found.
func (m *Manager) Load(id string) (*Conversation, error) {
	if !validID(id) {
		return nil, ErrNotFound
	}
	c, err := readConversation(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if c.ID != id {
		return nil, fmt.Errorf("%w: %s holds id %q", ErrNotFound, id+fileExt, c.ID)
	}
	return c, nil
}

// Delete removes a conversation. It reports whether anything was removed.
func (m *Manager) Delete(id string) (bool, error) {
	if !validID(id) {
		return false, nil
	}
	err := os.Remove(m.path(id))
	if errors.Is(err, os.ErrNotExist) {
		return false, m.db.remove(id)
	}
	if err != nil {
		return false, fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	return true, m.db.remove(id)
}

// ListSummaries returns every stored conversation, most recently updated first.
// Entries whose file is gone or no longer decodes are dropped from the index.
func (m *Manager) ListSummaries() ([]Summary, error) {
	summaries, err := m.db.recent()
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(summaries))
	for _, s := range summaries {
		if _, err := m.Load(s.ID); err != nil {
			m.log.WithField("conversation_id", s.ID).WithError(err).Debug("dropping unreadable index entry")
			if err := m.db.remove(s.ID); err != nil {
				return nil, err
			}
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Reindex rebuilds the index from the files in the history directory.
// Files that cannot be read or decoded are skipped.
func (m *Manager) Reindex() error {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("failed to read history directory: %w", err)
	}

	if err := m.db.clear(); err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		c, err := readConversation(filepath.Join(m.dir, name))
		if err != nil || c.ID != strings.TrimSuffix(name, fileExt) {
			m.log.WithField("file", name).WithError(err).Debug("skipping unreadable conversation")
			continue
		}
		if err := m.db.upsert(c, c.UpdatedAt.Time); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) path(id string) string {
	return filepath.Join(m.dir, id+fileExt)
}

func readConversation(path string) (*Conversation, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	if c.ID == "" {
		return nil, fmt.Errorf("missing id in %s", filepath.Base(path))
	}
	if c.Title == "" {
		c.Title = UntitledTitle
	}
	return &c, nil
}

// validID rejects ids that could escape the history directory.
func validID(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\.`)
}

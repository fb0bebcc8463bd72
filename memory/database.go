package memory

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Database is the sqlite index over the conversation files.
// It only mirrors listing fields; the JSON files stay authoritative.
type Database struct {
	db *sql.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database := &Database{db: db}

	if err := database.initTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return database, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

func (d *Database) initTables() error {
	conversationsTableSQL := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		prompt_file TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL
	);`

	if _, err := d.db.Exec(conversationsTableSQL); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}

	indexSQL := "CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);"
	if _, err := d.db.Exec(indexSQL); err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// upsert indexes c at the given time, which may be finer than c.UpdatedAt.
func (d *Database) upsert(c *Conversation, at time.Time) error {
	_, err := d.db.Exec(`
	INSERT INTO conversations (id, title, prompt_file, model, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		prompt_file = excluded.prompt_file,
		model = excluded.model,
		updated_at = excluded.updated_at`,
		c.ID, c.Title, c.PromptFile, c.Model, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to index conversation %s: %w", c.ID, err)
	}
	return nil
}

func (d *Database) remove(id string) error {
	if _, err := d.db.Exec("DELETE FROM conversations WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to unindex conversation %s: %w", id, err)
	}
	return nil
}

func (d *Database) clear() error {
	if _, err := d.db.Exec("DELETE FROM conversations"); err != nil {
		return fmt.Errorf("failed to clear index: %w", err)
	}
	return nil
}

// recent returns summaries ordered by updated_at, newest first.
func (d *Database) recent() ([]Summary, error) {
	rows, err := d.db.Query(`
	SELECT id, title, prompt_file, updated_at
	FROM conversations
	ORDER BY updated_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	var summaries []Summary
	for rows.Next() {
		var s Summary
		var updatedAt int64
		if err := rows.Scan(&s.ID, &s.Title, &s.PromptFile, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		s.UpdatedAt = Timestamp{time.Unix(0, updatedAt).Truncate(time.Second)}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read conversations: %w", err)
	}
	return summaries, nil
}

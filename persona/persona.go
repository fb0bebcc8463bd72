// Package persona loads system-prompt files ("personas") from a directory.
package persona

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrNotFound is returned when a persona id does not resolve to a prompt body.
var ErrNotFound = errors.New("persona not found")

// GreetingPrefix marks a first line that carries the greeting.
const GreetingPrefix = "## Greeting:"

const fileExt = ".md"

// Persona is a parsed prompt file.
type Persona struct {
	Name     string
	System   string
	Greeting string
}

// Store reads personas from a directory of markdown files.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns the persona file names in the directory, sorted.
// The directory is created, and seeded with the default persona, when it holds none.
func (s *Store) List() ([]string, error) {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create prompts directory: %w", err)
	}

	names, err := s.names()
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		if err := os.WriteFile(filepath.Join(s.dir, DefaultName), []byte(defaultPersona), 0644); err != nil {
			return nil, fmt.Errorf("failed to write default persona: %w", err)
		}
		names = []string{DefaultName}
	}
	return names, nil
}

func (s *Store) names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileExt) {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Load reads and parses one persona file.
func (s *Store) Load(name string) (Persona, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return Persona{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return Persona{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Persona{}, fmt.Errorf("failed to read persona %s: %w", name, err)
	}

	p := Parse(name, string(data))
	if strings.TrimSpace(p.System) == "" {
		return Persona{}, fmt.Errorf("%w: %s has no prompt", ErrNotFound, name)
	}
	return p, nil
}

// Parse splits a prompt file into its greeting and system prompt.
// A first line starting with GreetingPrefix supplies the greeting and is
// excluded from the prompt; otherwise the whole file is the prompt.
func Parse(name, content string) Persona {
	p := Persona{
		Name:     name,
		System:   content,
		Greeting: DefaultGreeting(name),
	}

	first, rest, _ := strings.Cut(content, "\n")
	if strings.HasPrefix(strings.TrimSpace(first), GreetingPrefix) {
		p.Greeting = strings.TrimSpace(strings.Replace(first, GreetingPrefix, "", 1))
		p.System = rest
	}
	return p
}

// DefaultGreeting is shown for personas without a greeting line.
func DefaultGreeting(name string) string {
	return "Loaded persona: " + name
}

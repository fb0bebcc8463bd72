// Package theme manages the UI colour themes offered by the web page.
package theme

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNotFound is returned for unknown theme names.
var ErrNotFound = errors.New("theme not found")

const fileExt = ".yaml"

var namePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// Theme is one importable UI theme.
type Theme struct {
	Name     string            `yaml:"name" json:"name"`
	Mode     string            `yaml:"mode" json:"mode"` // dark or light
	FontSize int               `yaml:"font_size" json:"font_size"`
	Colors   map[string]string `yaml:"colors,omitempty" json:"colors,omitempty"`
}

var builtins = map[string]Theme{
	"dark":  {Name: "dark", Mode: "dark", FontSize: 16},
	"light": {Name: "light", Mode: "light", FontSize: 16},
}

// ValidationError describes why an imported theme was rejected.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid theme: " + e.Reason
}

// Store keeps imported themes as YAML files in a directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// List returns built-in and imported theme names, sorted.
func (s *Store) List() ([]string, error) {
	seen := make(map[string]bool, len(builtins))
	for name := range builtins {
		seen[name] = true
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read themes directory: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		seen[strings.TrimSuffix(name, fileExt)] = true
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns a theme by name. Imported themes shadow built-ins.
func (s *Store) Get(name string) (Theme, error) {
	if !namePattern.MatchString(name) {
		return Theme{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	data, err := os.ReadFile(filepath.Join(s.dir, name+fileExt))
	if errors.Is(err, os.ErrNotExist) {
		if t, ok := builtins[name]; ok {
			return t, nil
		}
		return Theme{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return Theme{}, fmt.Errorf("failed to read theme %s: %w", name, err)
	}

	t, err := Parse(data)
	if err != nil {
		return Theme{}, err
	}
	return t, nil
}

// Import validates a YAML theme record and stores it under its name.
func (s *Store) Import(data []byte) (Theme, error) {
	t, err := Parse(data)
	if err != nil {
		return Theme{}, err
	}

	out, err := yaml.Marshal(t)
	if err != nil {
		return Theme{}, fmt.Errorf("failed to encode theme: %w", err)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return Theme{}, fmt.Errorf("failed to create themes directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, t.Name+fileExt), out, 0644); err != nil {
		return Theme{}, fmt.Errorf("failed to write theme %s: %w", t.Name, err)
	}
	return t, nil
}

// Parse decodes and normalizes a YAML theme record.
func Parse(data []byte) (Theme, error) {
	var t Theme
	if err := yaml.Unmarshal(data, &t); err != nil {
		return Theme{}, &ValidationError{Reason: err.Error()}
	}

	t.Name = strings.ToLower(strings.TrimSpace(t.Name))
	if !namePattern.MatchString(t.Name) {
		return Theme{}, &ValidationError{Reason: fmt.Sprintf("name %q must match %s", t.Name, namePattern)}
	}

	switch t.Mode {
	case "":
		t.Mode = "dark"
	case "dark", "light":
	default:
		return Theme{}, &ValidationError{Reason: fmt.Sprintf("mode %q must be dark or light", t.Mode)}
	}

	if t.FontSize == 0 {
		t.FontSize = 16
	}
	if t.FontSize < 10 || t.FontSize > 32 {
		return Theme{}, &ValidationError{Reason: fmt.Sprintf("font_size %d out of range 10-32", t.FontSize)}
	}
	return t, nil
}

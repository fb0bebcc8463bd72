package persona

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		wantGreeting string
		wantSystem   string
	}{
		{
			name:         "greeting line",
			content:      "## Greeting: Hello there!  \nYou are a pirate.\nSpeak like one.\n",
			wantGreeting: "Hello there!",
			wantSystem:   "You are a pirate.\nSpeak like one.\n",
		},
		{
			name:         "indented greeting line",
			content:      "  ## Greeting:Ahoy\nbody",
			wantGreeting: "Ahoy",
			wantSystem:   "body",
		},
		{
			name:         "no greeting",
			content:      "You are a pirate.\n## Greeting: not first\n",
			wantGreeting: "Loaded persona: pirate.md",
			wantSystem:   "You are a pirate.\n## Greeting: not first\n",
		},
		{
			name:         "greeting only",
			content:      "## Greeting: hi",
			wantGreeting: "hi",
			wantSystem:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Parse("pirate.md", tt.content)
			assert.Equal(t, "pirate.md", p.Name)
			assert.Equal(t, tt.wantGreeting, p.Greeting)
			assert.Equal(t, tt.wantSystem, p.System)
		})
	}
}

func TestStore_ListSeedsDefault(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "prompts")
	s := NewStore(dir)

	names, err := s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultName}, names)

	p, err := s.Load(DefaultName)
	require.NoError(t, err)
	assert.NotEmpty(t, p.Greeting)
	assert.NotContains(t, p.System, GreetingPrefix)
}

func TestStore_ListSorted(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.md", "a.md", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.md"), 0755))

	names, err := NewStore(dir).List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md"}, names)
}

func TestStore_LoadNotFound(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "empty.md"), nil, 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "greeting.md"), []byte("## Greeting: hi\n"), 0644))
	s := NewStore(dir)

	for _, name := range []string{"missing.md", "empty.md", "greeting.md", "", "../x.md", ".hidden.md"} {
		_, err := s.Load(name)
		assert.ErrorIs(t, err, ErrNotFound, "name %q", name)
	}
}

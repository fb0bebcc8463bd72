package memory

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func testConversation(id string) *Conversation {
	return &Conversation{
		ID:         id,
		Title:      UntitledTitle,
		PromptFile: "coder.md",
		Model:      "gpt-4o-mini",
		Messages: []Message{
			{Role: RoleSystem, Content: "You are a coder."},
			{Role: RoleUser, Content: "hi"},
			{Role: RoleAssistant, Content: "hello"},
		},
	}
}

func TestManager_SaveLoadRoundTrip(t *testing.T) {
	m := newTestManager(t)
	fixed := time.Date(2026, 3, 1, 12, 30, 45, 123, time.Local)
	m.now = func() time.Time { return fixed }

	c := testConversation("abc12345")
	require.NoError(t, m.Save(c))
	assert.Equal(t, fixed.Truncate(time.Second), c.UpdatedAt.Time)

	got, err := m.Load("abc12345")
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Title, got.Title)
	assert.Equal(t, c.PromptFile, got.PromptFile)
	assert.Equal(t, c.Model, got.Model)
	assert.Equal(t, c.Messages, got.Messages)
	assert.True(t, c.UpdatedAt.Equal(got.UpdatedAt.Time))
}

func TestManager_FileFormat(t *testing.T) {
	m := newTestManager(t)
	m.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local) }

	require.NoError(t, m.Save(testConversation("abc12345")))

	data, err := os.ReadFile(filepath.Join(m.Dir(), "abc12345.json"))
	require.NoError(t, err)
	s := string(data)
	assert.Contains(t, s, `"prompt_file": "coder.md"`)
	assert.Contains(t, s, `"updated_at": "2026-01-02 03:04:05"`)
	assert.Contains(t, s, `"role": "system"`)
}

func TestManager_LoadNotFound(t *testing.T) {
	m := newTestManager(t)

	for _, id := range []string{"missing", "", "../etc", "a/b", ".hidden"} {
		_, err := m.Load(id)
		assert.ErrorIs(t, err, ErrNotFound, "id %q", id)
	}
}

func TestManager_Delete(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save(testConversation("abc12345")))

	removed, err := m.Delete("abc12345")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = m.Delete("abc12345")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = m.Load("abc12345")
	assert.ErrorIs(t, err, ErrNotFound)

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestManager_ListSummariesOrderedByRecency(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)

	for i, id := range []string{"aaaa0001", "bbbb0002", "cccc0003"} {
		ts := base.Add(time.Duration(i) * time.Minute)
		m.now = func() time.Time { return ts }
		require.NoError(t, m.Save(testConversation(id)))
	}

	// touching the oldest moves it to the front
	m.now = func() time.Time { return base.Add(time.Hour) }
	first, err := m.Load("aaaa0001")
	require.NoError(t, err)
	first.Title = "Renamed"
	require.NoError(t, m.Save(first))

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "aaaa0001", summaries[0].ID)
	assert.Equal(t, "Renamed", summaries[0].Title)
	assert.Equal(t, "cccc0003", summaries[1].ID)
	assert.Equal(t, "bbbb0002", summaries[2].ID)
}

func TestManager_ReindexSkipsMalformedFiles(t *testing.T) {
	dir := t.TempDir()

	m, err := NewManager(dir)
	require.NoError(t, err)
	require.NoError(t, m.Save(testConversation("good0001")))
	require.NoError(t, m.Close())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad00001.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "noid0001.json"), []byte(`{"title":"x"}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0644))

	m, err = NewManager(dir)
	require.NoError(t, err)
	defer m.Close()

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good0001", summaries[0].ID)
}

func TestManager_ListSkipsFilesRemovedOutOfBand(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save(testConversation("gone0001")))
	require.NoError(t, m.Save(testConversation("kept0001")))

	require.NoError(t, os.Remove(filepath.Join(m.Dir(), "gone0001.json")))

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "kept0001", summaries[0].ID)
}

func TestManager_ListDropsCorruptedFiles(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save(testConversation("good0001")))
	require.NoError(t, m.Save(testConversation("kept0001")))

	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "good0001.json"), []byte("{corrupt"), 0644))

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "kept0001", summaries[0].ID)

	// the index row is gone too
	recent, err := m.db.recent()
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestManager_LoadRejectsMismatchedID(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.Save(testConversation("abcd0001")))

	data, err := os.ReadFile(filepath.Join(m.Dir(), "abcd0001.json"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(m.Dir(), "copy0001.json"), data, 0644))

	_, err = m.Load("copy0001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_ListOrdersSavesWithinOneSecond(t *testing.T) {
	m := newTestManager(t)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)

	for i, id := range []string{"aaaa0001", "bbbb0002", "cccc0003"} {
		ts := base.Add(time.Duration(i+1) * time.Millisecond)
		m.now = func() time.Time { return ts }
		require.NoError(t, m.Save(testConversation(id)))
	}

	summaries, err := m.ListSummaries()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "cccc0003", summaries[0].ID)
	assert.Equal(t, "bbbb0002", summaries[1].ID)
	assert.Equal(t, "aaaa0001", summaries[2].ID)
	assert.True(t, base.Equal(summaries[0].UpdatedAt.Time))
}

func TestManager_SaveRejectsMisplacedSystemTurn(t *testing.T) {
	m := newTestManager(t)
	c := testConversation("abc12345")
	c.Messages = append(c.Messages, Message{Role: RoleSystem, Content: "late"})

	assert.Error(t, m.Save(c))
}

func TestTimestamp_AcceptsRFC3339(t *testing.T) {
	var ts Timestamp
	require.NoError(t, ts.UnmarshalJSON([]byte(`"2026-02-03T04:05:06Z"`)))
	assert.Equal(t, 2026, ts.Year())

	require.NoError(t, ts.UnmarshalJSON([]byte(`""`)))
	assert.True(t, ts.IsZero())

	assert.Error(t, ts.UnmarshalJSON([]byte(`"yesterday"`)))
}

func TestConversation_SetSystemPrompt(t *testing.T) {
	c := &Conversation{Messages: []Message{{Role: RoleUser, Content: "hi"}}}
	c.SetSystemPrompt("sys")
	require.Len(t, c.Messages, 2)
	assert.Equal(t, Message{Role: RoleSystem, Content: "sys"}, c.Messages[0])

	c.SetSystemPrompt("sys2")
	require.Len(t, c.Messages, 2)
	assert.Equal(t, "sys2", c.Messages[0].Content)
	assert.Equal(t, "hi", c.Messages[1].Content)
}

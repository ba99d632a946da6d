package store

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatd/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestSaveLoad_TurnsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := Record{
		ID:    NewID(),
		Model: "tinyllama-q4",
		Turns: []types.Turn{
			{Role: types.RoleSystem, Text: "be terse", Tokens: 7, Timestamp: ts},
			{Role: types.RoleUser, Text: "hello there", Tokens: 6, Timestamp: ts.Add(time.Second)},
			{Role: types.RoleAssistant, Text: "hi", Tokens: 5, Timestamp: ts.Add(2 * time.Second)},
		},
	}
	require.NoError(t, s.Save(rec))

	got, err := s.Load(rec.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 3)
	assert.Equal(t, rec.Turns, got.Turns)
	assert.Equal(t, "tinyllama-q4", got.Model)
	assert.False(t, got.UpdatedAt.IsZero())
	// Title derived from the first user turn.
	assert.Equal(t, "hello there", got.Title)
}

func TestList_SortsByUpdatedDesc(t *testing.T) {
	s := newTestStore(t)
	older := Record{ID: "older", Turns: []types.Turn{{Role: types.RoleUser, Text: "first"}}}
	require.NoError(t, s.Save(older))
	time.Sleep(5 * time.Millisecond)
	newer := Record{ID: "newer", Turns: []types.Turn{{Role: types.RoleUser, Text: "second"}}}
	require.NoError(t, s.Save(newer))

	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, "newer", metas[0].ID)
	assert.Equal(t, "older", metas[1].ID)
}

func TestDelete_MissingIsNoError(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Delete("never-existed"))

	rec := Record{ID: "gone", Turns: []types.Turn{{Role: types.RoleUser, Text: "x"}}}
	require.NoError(t, s.Save(rec))
	require.NoError(t, s.Delete("gone"))
	_, err := s.Load("gone")
	assert.Error(t, err)
}

func TestPath_RejectsTraversal(t *testing.T) {
	s := newTestStore(t)
	for _, id := range []string{"", "../etc/passwd", "a/b", `a\b`} {
		_, err := s.Load(id)
		assert.Error(t, err, "id %q", id)
	}
}

func TestList_SkipsCorruptFiles(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save(Record{ID: "good", Turns: []types.Turn{{Role: types.RoleUser, Text: "ok"}}}))
	// A file that is not valid JSON must not break listing.
	writeGarbage(t, s)
	metas, err := s.List()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	assert.Equal(t, "good", metas[0].ID)
}

func writeGarbage(t *testing.T, s *Store) {
	t.Helper()
	path, err := s.path("corrupt")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))
}

// Package store persists chat transcripts as one JSON file per chat. The
// core treats records as opaque ordered turn lists; only lossless round-trip
// of role, text, token count and timestamp matters here.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// DefaultDir is the transcript directory used when none is configured.
const DefaultDir = "~/.local/share/chatd/chats"

// Meta is the listing view of a stored chat.
type Meta struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Record is one persisted chat transcript.
type Record struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	Model     string       `json:"model,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Turns     []types.Turn `json:"turns"`
}

// Store reads and writes chat records under one directory.
type Store struct {
	dir string
}

// New opens (creating if needed) a store rooted at dir. An empty dir selects
// DefaultDir.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	expanded, err := fsutil.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &Store{dir: expanded}, nil
}

// NewID returns a fresh chat identifier.
func NewID() string { return uuid.NewString() }

// List returns chat metadata sorted by update time, newest first.
// Unreadable files are skipped.
func (s *Store) List() ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read chats dir: %w", err)
	}
	var out []Meta
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		rec, err := s.Load(strings.TrimSuffix(e.Name(), ".json"))
		if err != nil {
			continue
		}
		out = append(out, Meta{ID: rec.ID, Title: rec.Title, CreatedAt: rec.CreatedAt, UpdatedAt: rec.UpdatedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Load reads one chat record by id.
func (s *Store) Load(id string) (Record, error) {
	path, err := s.path(id)
	if err != nil {
		return Record{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("decode chat %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	return rec, nil
}

// Save writes a chat record, stamping UpdatedAt (and CreatedAt if unset).
// The write is atomic: temp file then rename.
func (s *Store) Save(rec Record) error {
	if rec.ID == "" {
		return fmt.Errorf("chat id is empty")
	}
	path, err := s.path(rec.ID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Title == "" {
		rec.Title = titleFromTurns(rec.Turns)
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", rec.ID, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write chat %s: %w", rec.ID, err)
	}
	return os.Rename(tmp, path)
}

// Delete removes a chat record. Deleting a missing chat is not an error.
func (s *Store) Delete(id string) error {
	path, err := s.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return "", fmt.Errorf("invalid chat id: %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

// titleFromTurns derives a short title from the first user turn.
func titleFromTurns(turns []types.Turn) string {
	for _, t := range turns {
		if t.Role != types.RoleUser {
			continue
		}
		title := strings.TrimSpace(t.Text)
		if len(title) > 48 {
			title = title[:48]
		}
		if title != "" {
			return title
		}
	}
	return "Untitled"
}

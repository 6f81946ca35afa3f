// Package history persists conversations as JSON files, one file per
// conversation, grouped per project.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/loftlabs/loft/internal/fsutil"
)

// ErrNotFound is returned when a conversation ID has no stored file.
var ErrNotFound = errors.New("conversation not found")

// ChatMessage is one persisted turn of a conversation.
type ChatMessage struct {
	Role      string    `json:"role"` // "user" or "assistant"
	Content   string    `json:"content"`
	Reasoning string    `json:"reasoning,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Conversation is the unit of persistence.
type Conversation struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	Messages  []ChatMessage `json:"messages"`
}

// Summary is a lightweight view of a conversation for listing.
type Summary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
	MessageCount int       `json:"messageCount"`
}

// Store reads and writes the conversations of one project. Files live
// under <dataDir>/projects/<project-key>/<conversation-id>.json where
// the project key is a hash of the absolute project path.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore creates a store for projectPath rooted at dataDir. The
// directory is created on first use.
func NewStore(dataDir, projectPath string) (*Store, error) {
	abs, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("invalid project path: %w", err)
	}
	return &Store{dir: filepath.Join(dataDir, "projects", projectKey(abs))}, nil
}

// projectKey derives a stable directory name from a project path.
func projectKey(path string) string {
	sum := sha256.Sum256([]byte(path))
	return hex.EncodeToString(sum[:])[:16]
}

// Dir returns the directory holding this project's conversations.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the conversation to disk, stamping UpdatedAt.
func (s *Store) Save(conv *Conversation) error {
	if err := validateID(conv.ID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create history directory: %w", err)
	}

	conv.UpdatedAt = time.Now()
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = conv.UpdatedAt
	}

	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode conversation: %w", err)
	}
	if err := fsutil.AtomicWriteFile(s.path(conv.ID), data, 0600); err != nil {
		return fmt.Errorf("failed to write conversation: %w", err)
	}
	return nil
}

// Load reads one conversation by ID.
func (s *Store) Load(id string) (*Conversation, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

// List returns summaries of all stored conversations, newest first.
// Unreadable or corrupt files are skipped rather than failing the list.
func (s *Store) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read history directory: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var conv Conversation
		if err := json.Unmarshal(data, &conv); err != nil {
			continue
		}
		summaries = append(summaries, Summary{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Delete removes one conversation file.
func (s *Store) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// validateID rejects IDs that could escape the store directory.
func validateID(id string) error {
	if id == "" {
		return errors.New("conversation id is required")
	}
	if strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return fmt.Errorf("invalid conversation id: %s", id)
	}
	return nil
}

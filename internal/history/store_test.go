package history

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/loftlabs/loft/internal/llm"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), "/home/dev/example-project")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	conv := &Conversation{
		ID:    "abc123",
		Title: "Fix the login bug",
		Messages: []ChatMessage{
			{Role: "user", Content: "why does login fail?", CreatedAt: time.Now()},
			{Role: "assistant", Content: "The token check is inverted.", Reasoning: "Looked at auth.go first."},
		},
	}
	if err := store.Save(conv); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title != conv.Title {
		t.Errorf("title = %q, want %q", loaded.Title, conv.Title)
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded.Messages))
	}
	if loaded.Messages[1].Reasoning != "Looked at auth.go first." {
		t.Errorf("reasoning not preserved: %q", loaded.Messages[1].Reasoning)
	}
	if loaded.CreatedAt.IsZero() || loaded.UpdatedAt.IsZero() {
		t.Errorf("timestamps should be stamped on save")
	}
}

func TestLoadMissingConversation(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Load("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"one", "two", "three"} {
		if err := store.Save(&Conversation{ID: id, Title: id}); err != nil {
			t.Fatalf("Save %s: %v", id, err)
		}
		time.Sleep(5 * time.Millisecond)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(list))
	}
	if list[0].ID != "three" || list[2].ID != "one" {
		t.Errorf("expected newest first, got %s..%s", list[0].ID, list[2].ID)
	}
}

func TestListEmptyStore(t *testing.T) {
	store := newTestStore(t)

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)

	if err := store.Save(&Conversation{ID: "gone", Title: "t"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete("gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete("gone"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should report not found, got %v", err)
	}
}

func TestRejectsPathEscapingIDs(t *testing.T) {
	store := newTestStore(t)

	for _, id := range []string{"", "../evil", "a/b", "..", "x\\y"} {
		if err := store.Save(&Conversation{ID: id}); err == nil {
			t.Errorf("id %q should be rejected", id)
		}
	}
}

func TestProjectsGetSeparateDirectories(t *testing.T) {
	dataDir := t.TempDir()
	a, err := NewStore(dataDir, "/home/dev/project-a")
	if err != nil {
		t.Fatalf("NewStore a: %v", err)
	}
	b, err := NewStore(dataDir, "/home/dev/project-b")
	if err != nil {
		t.Fatalf("NewStore b: %v", err)
	}
	if a.Dir() == b.Dir() {
		t.Errorf("distinct projects must not share a directory")
	}

	if err := a.Save(&Conversation{ID: "only-a"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := b.Load("only-a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("conversation leaked across projects: %v", err)
	}
}

// titleProvider returns a scripted reply for title generation.
type titleProvider struct {
	reply string
	fail  bool
}

func (p *titleProvider) Name() string { return "fake" }

func (p *titleProvider) Stream(ctx context.Context, req llm.Request) (llm.Stream, error) {
	if p.fail {
		return nil, errors.New("provider down")
	}
	return &sliceStream{events: []llm.Event{
		{Type: llm.EventTextDelta, Text: p.reply},
		{Type: llm.EventDone},
	}}, nil
}

type sliceStream struct {
	events []llm.Event
	pos    int
}

func (s *sliceStream) Recv() (llm.Event, error) {
	if s.pos >= len(s.events) {
		return llm.Event{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

func (s *sliceStream) Close() error { return nil }

func TestGenerateTitle(t *testing.T) {
	title := GenerateTitle(context.Background(), &titleProvider{reply: "\"Fix Login Token Check.\"\n"}, "m", "why does login fail?")
	if title != "Fix Login Token Check" {
		t.Errorf("title = %q", title)
	}
}

func TestGenerateTitleClampsToFiveWords(t *testing.T) {
	title := GenerateTitle(context.Background(), &titleProvider{reply: "one two three four five six seven"}, "m", "hi")
	if title != "one two three four five" {
		t.Errorf("title = %q", title)
	}
}

func TestGenerateTitleFallsBack(t *testing.T) {
	if got := GenerateTitle(context.Background(), &titleProvider{fail: true}, "m", "hi"); got != DefaultTitle {
		t.Errorf("provider failure should fall back, got %q", got)
	}
	if got := GenerateTitle(context.Background(), &titleProvider{reply: "   "}, "m", "hi"); got != DefaultTitle {
		t.Errorf("empty reply should fall back, got %q", got)
	}
}

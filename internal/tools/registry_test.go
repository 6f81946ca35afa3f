package tools

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/loftlabs/loft/internal/changes"
	"github.com/loftlabs/loft/internal/llm"
)

func newTestRegistry(t *testing.T) (*Registry, *changes.Tracker, string) {
	t.Helper()
	root := t.TempDir()
	tracker := changes.NewTracker(filepath.Join(root, ".loft", "backups"), nil)
	reg, err := NewRegistry(Options{Root: root, Tracker: tracker})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg, tracker, root
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal args: %v", err)
	}
	return data
}

func TestRegistryHasAllTools(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	specs := reg.Specs()
	if len(specs) != len(AllToolNames()) {
		t.Fatalf("expected %d specs, got %d", len(AllToolNames()), len(specs))
	}
	for i, name := range AllToolNames() {
		if specs[i].Name != name {
			t.Errorf("spec %d = %s, want %s", i, specs[i].Name, name)
		}
	}
}

func TestExecuteUnknownToolReturnsErrorResult(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "call_1", Name: "launch_rocket", Arguments: json.RawMessage(`{}`),
	})
	if !result.IsError {
		t.Fatalf("expected error result")
	}
	if result.ID != "call_1" {
		t.Errorf("result must carry the call ID, got %q", result.ID)
	}
	if !strings.Contains(result.Content, "INVALID_PARAMS") {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestExecuteToolFailureBecomesResultNotError(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "call_2", Name: ReadFileToolName,
		Arguments: mustJSON(t, map[string]any{"file_path": "missing.txt"}),
	})
	if !result.IsError {
		t.Fatalf("expected error result for missing file")
	}
	if !strings.Contains(result.Content, "FILE_NOT_FOUND") {
		t.Errorf("unexpected content: %s", result.Content)
	}
}

func TestReadFileNumbersLines(t *testing.T) {
	reg, _, root := newTestRegistry(t)
	path := filepath.Join(root, "hello.txt")
	if err := os.WriteFile(path, []byte("alpha\nbeta\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ReadFileToolName,
		Arguments: mustJSON(t, map[string]any{"file_path": "hello.txt"}),
	})
	if result.IsError {
		t.Fatalf("unexpected error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "1: alpha") || !strings.Contains(result.Content, "2: beta") {
		t.Errorf("missing numbered lines:\n%s", result.Content)
	}
}

func TestPathEscapeIsRejected(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	for _, path := range []string{"../outside.txt", "../../etc/passwd", "/etc/passwd"} {
		result := reg.Execute(context.Background(), llm.ToolCall{
			ID: "c", Name: ReadFileToolName,
			Arguments: mustJSON(t, map[string]any{"file_path": path}),
		})
		if !result.IsError || !strings.Contains(result.Content, "PATH_NOT_IN_WORKSPACE") {
			t.Errorf("path %q should be rejected, got: %s", path, result.Content)
		}
	}
}

func TestReadLinesClampsRange(t *testing.T) {
	reg, _, root := newTestRegistry(t)
	path := filepath.Join(root, "nums.txt")
	if err := os.WriteFile(path, []byte("one\ntwo\nthree"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ReadLinesToolName,
		Arguments: mustJSON(t, map[string]any{"file_path": "nums.txt", "start_line": 2, "end_line": 99}),
	})
	if result.IsError {
		t.Fatalf("overflow range must not error: %s", result.Content)
	}
	if !strings.Contains(result.Content, "2: two") || !strings.Contains(result.Content, "3: three") {
		t.Errorf("unexpected range output:\n%s", result.Content)
	}
	if strings.Contains(result.Content, "1: one") {
		t.Errorf("line before start should not appear:\n%s", result.Content)
	}
}

func TestListFilesAndProjectTree(t *testing.T) {
	reg, _, root := newTestRegistry(t)
	if err := os.MkdirAll(filepath.Join(root, "src"), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "src", "main.go"), []byte("package main\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	list := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ListFilesToolName, Arguments: json.RawMessage(`{}`),
	})
	if list.IsError {
		t.Fatalf("list_files: %s", list.Content)
	}
	if !strings.Contains(list.Content, "src/") || !strings.Contains(list.Content, "README.md") {
		t.Errorf("unexpected listing:\n%s", list.Content)
	}

	tree := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ProjectTreeToolName, Arguments: json.RawMessage(`{}`),
	})
	if tree.IsError {
		t.Fatalf("project_tree: %s", tree.Content)
	}
	if !strings.Contains(tree.Content, "src/") || !strings.Contains(tree.Content, "main.go") {
		t.Errorf("unexpected tree:\n%s", tree.Content)
	}

	missing := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ListFilesToolName,
		Arguments: mustJSON(t, map[string]any{"path": "no-such-dir"}),
	})
	if !missing.IsError || !strings.Contains(missing.Content, "FILE_NOT_FOUND") {
		t.Errorf("missing dir should be a structured error: %s", missing.Content)
	}
}

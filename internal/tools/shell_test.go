package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/loftlabs/loft/internal/llm"
)

func TestShellRunsCommand(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ShellToolName,
		Arguments: mustJSON(t, map[string]any{"command": "echo hello"}),
	})
	if result.IsError {
		t.Fatalf("shell: %s", result.Content)
	}
	if !strings.Contains(result.Content, "hello") {
		t.Errorf("missing stdout:\n%s", result.Content)
	}
	if !strings.Contains(result.Content, "exit_code: 0") {
		t.Errorf("missing exit code:\n%s", result.Content)
	}
}

func TestShellReportsNonZeroExit(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ShellToolName,
		Arguments: mustJSON(t, map[string]any{"command": "exit 3"}),
	})
	if result.IsError {
		t.Fatalf("non-zero exit is a normal result: %s", result.Content)
	}
	if !strings.Contains(result.Content, "exit_code: 3") {
		t.Errorf("missing exit code:\n%s", result.Content)
	}
}

func TestShellDenylistBlocksCommand(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	for _, cmd := range []string{"rm -rf /", "mkfs.ext4 /dev/sda1", "shutdown -h now"} {
		result := reg.Execute(context.Background(), llm.ToolCall{
			ID: "c", Name: ShellToolName,
			Arguments: mustJSON(t, map[string]any{"command": cmd}),
		})
		if !result.IsError || !strings.Contains(result.Content, "PERMISSION_DENIED") {
			t.Errorf("command %q should be blocked, got: %s", cmd, result.Content)
		}
	}
}

func TestShellTimeout(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping timeout test in short mode")
	}
	reg, _, _ := newTestRegistry(t)

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ShellToolName,
		Arguments: mustJSON(t, map[string]any{"command": "sleep 5", "timeout_seconds": 1}),
	})
	if !result.IsError || !strings.Contains(result.Content, "TIMEOUT") {
		t.Errorf("expected TIMEOUT error, got: %s", result.Content)
	}
}

func TestShellMissingCommand(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	result := reg.Execute(context.Background(), llm.ToolCall{
		ID: "c", Name: ShellToolName, Arguments: json.RawMessage(`{}`),
	})
	if !result.IsError || !strings.Contains(result.Content, "INVALID_PARAMS") {
		t.Errorf("expected INVALID_PARAMS, got: %s", result.Content)
	}
}

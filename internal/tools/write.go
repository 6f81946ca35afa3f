package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loftlabs/loft/internal/changes"
	"github.com/loftlabs/loft/internal/fsutil"
	"github.com/loftlabs/loft/internal/llm"
)

type writeFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type writeFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (t *writeFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        WriteFileToolName,
		Description: "Write full content to a file, replacing anything already there. Creates the file and parent directories if needed.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the project root",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Complete new file content",
				},
			},
			"required":             []string{"file_path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *writeFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a writeFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	path, toolErr := t.ws.Resolve(a.FilePath)
	if toolErr != nil {
		return "", toolErr
	}

	isNew := !fsutil.FileExists(path)
	var oldLines int
	if !isNew {
		if data, err := os.ReadFile(path); err == nil {
			oldLines = countLines(string(data))
		}
	}

	op := changes.ChangeModify
	if isNew {
		op = changes.ChangeCreate
	}
	if toolErr := record(t.tracker, op, path); toolErr != nil {
		return "", toolErr
	}

	if err := writeWorkspaceFile(path, []byte(a.Content), isNew); err != nil {
		return "", err
	}

	if isNew {
		return fmt.Sprintf("Created new file: %s (%d lines).", t.ws.Rel(path), countLines(a.Content)), nil
	}
	return fmt.Sprintf("Updated %s: %d lines -> %d lines.", t.ws.Rel(path), oldLines, countLines(a.Content)), nil
}

type createFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type createFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (t *createFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        CreateFileToolName,
		Description: "Create a new file with the given content. Fails if the file already exists; it never overwrites.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path for the new file, relative to the project root",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Initial file content",
				},
			},
			"required":             []string{"file_path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *createFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a createFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	path, toolErr := t.ws.Resolve(a.FilePath)
	if toolErr != nil {
		return "", toolErr
	}

	if _, err := os.Stat(path); err == nil {
		return "", NewToolErrorf(ErrFileExists, "%s already exists; use write_file or edit_file to change it", a.FilePath)
	}

	if toolErr := record(t.tracker, changes.ChangeCreate, path); toolErr != nil {
		return "", toolErr
	}

	if err := writeWorkspaceFile(path, []byte(a.Content), true); err != nil {
		return "", err
	}
	return fmt.Sprintf("Created new file: %s (%d lines).", t.ws.Rel(path), countLines(a.Content)), nil
}

type appendFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type appendFileArgs struct {
	FilePath string `json:"file_path"`
	Content  string `json:"content"`
}

func (t *appendFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        AppendFileToolName,
		Description: "Append content to the end of a file, creating it if it does not exist.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the project root",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Content to append",
				},
			},
			"required":             []string{"file_path", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *appendFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a appendFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	path, toolErr := t.ws.Resolve(a.FilePath)
	if toolErr != nil {
		return "", toolErr
	}

	var existing []byte
	isNew := true
	if data, err := os.ReadFile(path); err == nil {
		existing = data
		isNew = false
	} else if !os.IsNotExist(err) {
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}

	op := changes.ChangeModify
	if isNew {
		op = changes.ChangeCreate
	}
	if toolErr := record(t.tracker, op, path); toolErr != nil {
		return "", toolErr
	}

	if err := writeWorkspaceFile(path, append(existing, []byte(a.Content)...), isNew); err != nil {
		return "", err
	}

	if isNew {
		return fmt.Sprintf("Created new file: %s (%d lines).", t.ws.Rel(path), countLines(a.Content)), nil
	}
	return fmt.Sprintf("Appended %d lines to %s.", countLines(a.Content), t.ws.Rel(path)), nil
}

// writeWorkspaceFile creates parent directories and writes the file
// atomically, preserving the existing mode for updates.
func writeWorkspaceFile(path string, content []byte, isNew bool) *ToolError {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}

	mode := os.FileMode(0644)
	if !isNew {
		mode = fsutil.FileMode(path, 0644)
	}
	if err := fsutil.AtomicWriteFile(path, content, mode); err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to write file: %v", err)
	}
	return nil
}

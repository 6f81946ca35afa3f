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

type deleteFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type deleteFileArgs struct {
	FilePath string `json:"file_path"`
}

func (t *deleteFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        DeleteFileToolName,
		Description: "Delete a file. The previous content is backed up so the deletion can be rejected later.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the project root",
				},
			},
			"required":             []string{"file_path"},
			"additionalProperties": false,
		},
	}
}

func (t *deleteFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a deleteFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	path, toolErr := t.ws.Resolve(a.FilePath)
	if toolErr != nil {
		return "", toolErr
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.FilePath)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "stat error: %v", err)
	}
	if info.IsDir() {
		return "", NewToolErrorf(ErrInvalidParams, "%s is a directory", a.FilePath)
	}

	if toolErr := record(t.tracker, changes.ChangeDelete, path); toolErr != nil {
		return "", toolErr
	}
	if err := os.Remove(path); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to delete: %v", err)
	}
	return fmt.Sprintf("Deleted %s.", t.ws.Rel(path)), nil
}

type copyFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type copyFileArgs struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (t *copyFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        CopyFileToolName,
		Description: "Copy a file to a new path. Fails if the destination already exists.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file to copy",
				},
				"destination": map[string]interface{}{
					"type":        "string",
					"description": "Path for the copy",
				},
			},
			"required":             []string{"source", "destination"},
			"additionalProperties": false,
		},
	}
}

func (t *copyFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a copyFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	src, toolErr := t.ws.Resolve(a.Source)
	if toolErr != nil {
		return "", toolErr
	}
	dst, toolErr := t.ws.Resolve(a.Destination)
	if toolErr != nil {
		return "", toolErr
	}

	data, err := os.ReadFile(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Source)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}

	if _, err := os.Stat(dst); err == nil {
		return "", NewToolErrorf(ErrFileExists, "%s already exists", a.Destination)
	}

	if toolErr := record(t.tracker, changes.ChangeCreate, dst); toolErr != nil {
		return "", toolErr
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}
	if err := fsutil.AtomicWriteFile(dst, data, fsutil.FileMode(src, 0644)); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to write copy: %v", err)
	}
	return fmt.Sprintf("Copied %s to %s.", t.ws.Rel(src), t.ws.Rel(dst)), nil
}

type moveFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type moveFileArgs struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
}

func (t *moveFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        MoveFileToolName,
		Description: "Move or rename a file. Fails if the destination already exists.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"source": map[string]interface{}{
					"type":        "string",
					"description": "Path of the file to move",
				},
				"destination": map[string]interface{}{
					"type":        "string",
					"description": "New path for the file",
				},
			},
			"required":             []string{"source", "destination"},
			"additionalProperties": false,
		},
	}
}

func (t *moveFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a moveFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	src, toolErr := t.ws.Resolve(a.Source)
	if toolErr != nil {
		return "", toolErr
	}
	dst, toolErr := t.ws.Resolve(a.Destination)
	if toolErr != nil {
		return "", toolErr
	}

	if !fsutil.FileExists(src) {
		return "", NewToolError(ErrFileNotFound, a.Source)
	}
	if _, err := os.Stat(dst); err == nil {
		return "", NewToolErrorf(ErrFileExists, "%s already exists", a.Destination)
	}

	// A move is a delete of the source plus a create of the destination;
	// both sides need an entry so rejecting either restores that side.
	if toolErr := record(t.tracker, changes.ChangeDelete, src); toolErr != nil {
		return "", toolErr
	}
	if toolErr := record(t.tracker, changes.ChangeCreate, dst); toolErr != nil {
		return "", toolErr
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to create directory: %v", err)
	}
	if err := os.Rename(src, dst); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "failed to move: %v", err)
	}
	return fmt.Sprintf("Moved %s to %s.", t.ws.Rel(src), t.ws.Rel(dst)), nil
}

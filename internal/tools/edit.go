package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loftlabs/loft/internal/changes"
	"github.com/loftlabs/loft/internal/llm"
)

type editFileTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type editFileArgs struct {
	FilePath string `json:"file_path"`
	OldText  string `json:"old_text"`
	NewText  string `json:"new_text"`
}

func (t *editFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        EditFileToolName,
		Description: "Replace an exact block of text in a file. old_text must match the file content exactly (line endings are normalized); include enough context to be unique.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the project root",
				},
				"old_text": map[string]interface{}{
					"type":        "string",
					"description": "Exact text to find. The first occurrence is replaced.",
				},
				"new_text": map[string]interface{}{
					"type":        "string",
					"description": "Text to replace old_text with",
				},
			},
			"required":             []string{"file_path", "old_text", "new_text"},
			"additionalProperties": false,
		},
	}
}

func (t *editFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a editFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.OldText == "" {
		return "", NewToolError(ErrInvalidParams, "old_text is required")
	}

	path, toolErr := t.ws.Resolve(a.FilePath)
	if toolErr != nil {
		return "", toolErr
	}

	content, toolErr := readTextFile(path)
	if toolErr != nil {
		return "", toolErr
	}

	// Line-ending differences between the model's view and the file
	// must not defeat an otherwise exact match, but only the matched
	// block may be rewritten; untouched lines keep their bytes.
	search := a.OldText
	replacement := a.NewText
	idx := strings.Index(content, search)
	if idx < 0 {
		search = matchLineEndings(a.OldText, content)
		replacement = matchLineEndings(a.NewText, content)
		idx = strings.Index(content, search)
	}
	if idx < 0 {
		return "", NewToolErrorf(ErrExecutionFailed,
			"old_text not found in %s; re-read the file and retry with the exact current content", a.FilePath)
	}

	occurrences := strings.Count(content, search)
	newContent := content[:idx] + replacement + content[idx+len(search):]

	if toolErr := record(t.tracker, changes.ChangeModify, path); toolErr != nil {
		return "", toolErr
	}
	if err := writeWorkspaceFile(path, []byte(newContent), false); err != nil {
		return "", err
	}

	msg := fmt.Sprintf("Edited %s: replaced %d lines with %d lines.",
		t.ws.Rel(path), countLines(search), countLines(a.NewText))
	if occurrences > 1 {
		msg += fmt.Sprintf(" Note: old_text occurred %d times; only the first occurrence was replaced.", occurrences)
	}
	return msg, nil
}

type insertLinesTool struct {
	ws      *Workspace
	tracker ChangeRecorder
}

type insertLinesArgs struct {
	FilePath string `json:"file_path"`
	Line     int    `json:"line"`
	Content  string `json:"content"`
}

func (t *insertLinesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        InsertLinesToolName,
		Description: "Insert content before the given 1-indexed line. Line N+1 appends to a file with N lines.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the project root",
				},
				"line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed line number to insert before",
				},
				"content": map[string]interface{}{
					"type":        "string",
					"description": "Lines to insert",
				},
			},
			"required":             []string{"file_path", "line", "content"},
			"additionalProperties": false,
		},
	}
}

func (t *insertLinesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a insertLinesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	path, toolErr := t.ws.Resolve(a.FilePath)
	if toolErr != nil {
		return "", toolErr
	}

	content, toolErr := readTextFile(path)
	if toolErr != nil {
		return "", toolErr
	}

	eol := lineEnding(content)
	lines := strings.Split(content, eol)
	total := len(lines)
	if a.Line < 1 || a.Line > total+1 {
		return "", NewToolErrorf(ErrInvalidParams,
			"line %d is out of range; %s has %d lines (valid: 1-%d)", a.Line, a.FilePath, total, total+1)
	}

	inserted := strings.Split(strings.TrimSuffix(strings.ReplaceAll(a.Content, "\r\n", "\n"), "\n"), "\n")
	updated := make([]string, 0, total+len(inserted))
	updated = append(updated, lines[:a.Line-1]...)
	updated = append(updated, inserted...)
	updated = append(updated, lines[a.Line-1:]...)

	if toolErr := record(t.tracker, changes.ChangeModify, path); toolErr != nil {
		return "", toolErr
	}
	if err := writeWorkspaceFile(path, []byte(strings.Join(updated, eol)), false); err != nil {
		return "", err
	}
	return fmt.Sprintf("Inserted %d lines at line %d of %s.", len(inserted), a.Line, t.ws.Rel(path)), nil
}

// lineEnding reports the file's line-ending convention.
func lineEnding(content string) string {
	if strings.Contains(content, "\r\n") {
		return "\r\n"
	}
	return "\n"
}

// matchLineEndings rewrites s to use the same line-ending convention as
// content, so a block the model saw with different endings can still
// match byte-for-byte.
func matchLineEndings(s, content string) string {
	normalized := strings.ReplaceAll(s, "\r\n", "\n")
	if lineEnding(content) == "\r\n" {
		return strings.ReplaceAll(normalized, "\n", "\r\n")
	}
	return normalized
}

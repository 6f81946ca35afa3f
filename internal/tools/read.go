package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loftlabs/loft/internal/llm"
)

type readFileTool struct {
	ws     *Workspace
	limits OutputLimits
}

type readFileArgs struct {
	FilePath string `json:"file_path"`
}

func (t *readFileTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadFileToolName,
		Description: "Read a file's contents. Returns line-numbered output and the total line count.",
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

func (t *readFileTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a readFileArgs
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

	lines := strings.Split(content, "\n")
	total := len(lines)

	truncated := false
	if total > t.limits.MaxLines {
		lines = lines[:t.limits.MaxLines]
		truncated = true
	}

	output := numberLines(lines, 1)
	if int64(len(output)) > t.limits.MaxBytes {
		output = output[:t.limits.MaxBytes]
		truncated = true
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d lines)\n", t.ws.Rel(path), total))
	sb.WriteString(output)
	if truncated {
		sb.WriteString(fmt.Sprintf("\n\n[Output truncated. Total lines: %d. Use read_lines for the rest.]", total))
	}
	return sb.String(), nil
}

type readLinesTool struct {
	ws     *Workspace
	limits OutputLimits
}

type readLinesArgs struct {
	FilePath  string `json:"file_path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func (t *readLinesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ReadLinesToolName,
		Description: "Read a 1-indexed line range from a file. Out-of-range bounds are clamped to the file, never an error.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path to the file, relative to the project root",
				},
				"start_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed first line to read",
				},
				"end_line": map[string]interface{}{
					"type":        "integer",
					"description": "1-indexed last line to read (inclusive)",
				},
			},
			"required":             []string{"file_path", "start_line", "end_line"},
			"additionalProperties": false,
		},
	}
}

func (t *readLinesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a readLinesArgs
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

	lines := strings.Split(content, "\n")
	total := len(lines)

	start := a.StartLine
	if start < 1 {
		start = 1
	}
	if start > total {
		start = total
	}
	end := a.EndLine
	if end < start {
		end = start
	}
	if end > total {
		end = total
	}

	selected := lines[start-1 : end]
	if len(selected) > t.limits.MaxLines {
		selected = selected[:t.limits.MaxLines]
		end = start + len(selected) - 1
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s lines %d-%d of %d\n", t.ws.Rel(path), start, end, total))
	sb.WriteString(numberLines(selected, start))
	return sb.String(), nil
}

// numberLines renders lines with 1-indexed prefixes starting at first.
func numberLines(lines []string, first int) string {
	var sb strings.Builder
	for i, line := range lines {
		sb.WriteString(fmt.Sprintf("%d: %s\n", first+i, line))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

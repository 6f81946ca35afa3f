// Package tools provides the filesystem and shell tools the assistant
// can invoke during a conversation. All tools operate inside a single
// project workspace; mutating tools register with the change tracker
// before touching disk.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/loftlabs/loft/internal/llm"
)

// ToolErrorType provides structured errors for agent retry logic.
type ToolErrorType string

const (
	ErrFileNotFound       ToolErrorType = "FILE_NOT_FOUND"
	ErrInvalidParams      ToolErrorType = "INVALID_PARAMS"
	ErrPathNotInWorkspace ToolErrorType = "PATH_NOT_IN_WORKSPACE"
	ErrExecutionFailed    ToolErrorType = "EXECUTION_FAILED"
	ErrPermissionDenied   ToolErrorType = "PERMISSION_DENIED"
	ErrBinaryFile         ToolErrorType = "BINARY_FILE"
	ErrFileExists         ToolErrorType = "FILE_EXISTS"
	ErrTimeout            ToolErrorType = "TIMEOUT"
)

// ToolError provides structured error information for retry logic.
type ToolError struct {
	Type    ToolErrorType `json:"type"`
	Message string        `json:"message"`
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewToolError creates a new ToolError.
func NewToolError(errType ToolErrorType, message string) *ToolError {
	return &ToolError{Type: errType, Message: message}
}

// NewToolErrorf creates a new ToolError with formatted message.
func NewToolErrorf(errType ToolErrorType, format string, args ...interface{}) *ToolError {
	return &ToolError{Type: errType, Message: fmt.Sprintf(format, args...)}
}

// formatToolError formats a ToolError for LLM consumption.
func formatToolError(err *ToolError) string {
	return fmt.Sprintf("Error [%s]: %s", err.Type, err.Message)
}

// asToolError extracts a ToolError from err, wrapping anything else as
// an execution failure.
func asToolError(err error) *ToolError {
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr
	}
	return NewToolError(ErrExecutionFailed, err.Error())
}

// Tool is a single callable tool. Execute returns either model-facing
// output or an error; the registry renders errors into the tool result
// so the conversation loop never sees a Go error from a tool.
type Tool interface {
	Spec() llm.ToolSpec
	Execute(ctx context.Context, args json.RawMessage) (string, error)
}

// Tool spec names.
const (
	ReadFileToolName       = "read_file"
	ReadLinesToolName      = "read_lines"
	SearchProjectToolName  = "search_project"
	SearchRegexToolName    = "search_regex"
	ListFilesToolName      = "list_files"
	ProjectTreeToolName    = "project_tree"
	WriteFileToolName      = "write_file"
	EditFileToolName       = "edit_file"
	InsertLinesToolName    = "insert_lines"
	AppendFileToolName     = "append_file"
	CreateFileToolName     = "create_file"
	DeleteFileToolName     = "delete_file"
	CopyFileToolName       = "copy_file"
	MoveFileToolName       = "move_file"
	ShellToolName          = "shell"
	AnalyzeProjectToolName = "analyze_project"
)

// AllToolNames returns all tool spec names in registration order.
func AllToolNames() []string {
	return []string{
		ReadFileToolName,
		ReadLinesToolName,
		SearchProjectToolName,
		SearchRegexToolName,
		ListFilesToolName,
		ProjectTreeToolName,
		WriteFileToolName,
		EditFileToolName,
		InsertLinesToolName,
		AppendFileToolName,
		CreateFileToolName,
		DeleteFileToolName,
		CopyFileToolName,
		MoveFileToolName,
		ShellToolName,
		AnalyzeProjectToolName,
	}
}

// OutputLimits defines limits for tool output.
type OutputLimits struct {
	MaxLines   int   // max lines for file reads
	MaxBytes   int64 // max bytes per tool output
	MaxResults int   // max results for searches
}

// DefaultOutputLimits returns the default output limits.
func DefaultOutputLimits() OutputLimits {
	return OutputLimits{
		MaxLines:   2000,
		MaxBytes:   50 * 1024,
		MaxResults: 100,
	}
}

// countLines counts the number of lines in a string.
func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := 1
	for _, c := range s {
		if c == '\n' {
			n++
		}
	}
	return n
}

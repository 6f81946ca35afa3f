package tools

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/loftlabs/loft/internal/changes"
	"github.com/loftlabs/loft/internal/llm"
)

// ChangeRecorder registers a mutation before it happens. Satisfied by
// *changes.Tracker; a nil recorder disables tracking.
type ChangeRecorder interface {
	Record(op changes.ChangeType, filePath string) error
}

// ShellConfig controls the shell tool.
type ShellConfig struct {
	TimeoutSeconds int      // default command timeout
	Deny           []string // glob patterns for blocked commands
}

// Options configures a Registry.
type Options struct {
	Root    string // project root; tool paths are confined to it
	Tracker ChangeRecorder
	Shell   ShellConfig
	Limits  OutputLimits
	Log     *zap.SugaredLogger
}

// Registry holds the fixed tool set for one project. The set is closed:
// adding a tool means adding a case here, there is no open registration.
type Registry struct {
	ws      *Workspace
	tracker ChangeRecorder
	limits  OutputLimits
	log     *zap.SugaredLogger

	tools map[string]Tool
	order []string
}

// NewRegistry builds the registry with every tool enabled.
func NewRegistry(opts Options) (*Registry, error) {
	ws, err := NewWorkspace(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("invalid project root: %w", err)
	}

	limits := opts.Limits
	if limits.MaxBytes == 0 {
		limits = DefaultOutputLimits()
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	r := &Registry{
		ws:      ws,
		tracker: opts.Tracker,
		limits:  limits,
		log:     log,
		tools:   make(map[string]Tool),
	}

	shell, err := newShellTool(ws, opts.Shell, limits)
	if err != nil {
		return nil, err
	}

	for _, name := range AllToolNames() {
		var tool Tool
		switch name {
		case ReadFileToolName:
			tool = &readFileTool{ws: ws, limits: limits}
		case ReadLinesToolName:
			tool = &readLinesTool{ws: ws, limits: limits}
		case SearchProjectToolName:
			tool = &searchProjectTool{ws: ws, limits: limits}
		case SearchRegexToolName:
			tool = &searchRegexTool{ws: ws, limits: limits}
		case ListFilesToolName:
			tool = &listFilesTool{ws: ws}
		case ProjectTreeToolName:
			tool = &projectTreeTool{ws: ws}
		case WriteFileToolName:
			tool = &writeFileTool{ws: ws, tracker: opts.Tracker}
		case EditFileToolName:
			tool = &editFileTool{ws: ws, tracker: opts.Tracker}
		case InsertLinesToolName:
			tool = &insertLinesTool{ws: ws, tracker: opts.Tracker}
		case AppendFileToolName:
			tool = &appendFileTool{ws: ws, tracker: opts.Tracker}
		case CreateFileToolName:
			tool = &createFileTool{ws: ws, tracker: opts.Tracker}
		case DeleteFileToolName:
			tool = &deleteFileTool{ws: ws, tracker: opts.Tracker}
		case CopyFileToolName:
			tool = &copyFileTool{ws: ws, tracker: opts.Tracker}
		case MoveFileToolName:
			tool = &moveFileTool{ws: ws, tracker: opts.Tracker}
		case ShellToolName:
			tool = shell
		case AnalyzeProjectToolName:
			tool = &analyzeProjectTool{ws: ws}
		default:
			return nil, fmt.Errorf("unimplemented tool: %s", name)
		}
		r.tools[name] = tool
		r.order = append(r.order, name)
	}

	return r, nil
}

// Specs returns tool specs in stable registration order, ready to send
// with a model request.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		specs = append(specs, r.tools[name].Spec())
	}
	return specs
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	tool, ok := r.tools[name]
	return tool, ok
}

// Execute runs one tool call and always produces exactly one result.
// Tool failures become an error-flagged result, never a Go error.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	result := llm.ToolResult{ID: call.ID, Name: call.Name, ThoughtSig: call.ThoughtSig}

	tool, ok := r.tools[call.Name]
	if !ok {
		result.Content = formatToolError(NewToolErrorf(ErrInvalidParams, "unknown tool: %s", call.Name))
		result.IsError = true
		return result
	}

	r.log.Debugw("executing tool", "tool", call.Name, "call_id", call.ID)
	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		toolErr := asToolError(err)
		r.log.Debugw("tool failed", "tool", call.Name, "type", toolErr.Type, "error", toolErr.Message)
		result.Content = formatToolError(toolErr)
		result.IsError = true
		return result
	}

	if output == "" {
		output = "(no output)"
	}
	result.Content = output
	return result
}

// record registers a pending mutation, tolerating a nil recorder.
func record(tracker ChangeRecorder, op changes.ChangeType, path string) *ToolError {
	if tracker == nil {
		return nil
	}
	if err := tracker.Record(op, path); err != nil {
		return NewToolErrorf(ErrExecutionFailed, "failed to back up %s: %v", path, err)
	}
	return nil
}

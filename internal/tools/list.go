package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/loftlabs/loft/internal/llm"
)

type listFilesTool struct {
	ws *Workspace
}

type listFilesArgs struct {
	Path    string `json:"path,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

func (t *listFilesTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ListFilesToolName,
		Description: "List the entries of a single directory. Directories are suffixed with '/'.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Directory to list, relative to the project root (default: the root)",
				},
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Optional glob to filter entry names, e.g. '*.go'",
				},
			},
			"additionalProperties": false,
		},
	}
}

func (t *listFilesTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a listFilesArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	dir := t.ws.Root()
	if a.Path != "" {
		resolved, toolErr := t.ws.Resolve(a.Path)
		if toolErr != nil {
			return "", toolErr
		}
		dir = resolved
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, a.Path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "list error: %v", err)
	}

	var dirs, files []string
	for _, entry := range entries {
		name := entry.Name()
		if a.Pattern != "" {
			ok, err := doublestar.Match(a.Pattern, name)
			if err != nil {
				return "", NewToolErrorf(ErrInvalidParams, "invalid pattern: %v", err)
			}
			if !ok {
				continue
			}
		}
		if entry.IsDir() {
			dirs = append(dirs, name+"/")
		} else {
			files = append(files, name)
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)

	if len(dirs)+len(files) == 0 {
		return fmt.Sprintf("%s is empty.", t.ws.Rel(dir)), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%s (%d entries)\n", t.ws.Rel(dir), len(dirs)+len(files)))
	for _, name := range append(dirs, files...) {
		sb.WriteString(name)
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

type projectTreeTool struct {
	ws *Workspace
}

type projectTreeArgs struct {
	MaxDepth int `json:"max_depth,omitempty"`
}

func (t *projectTreeTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ProjectTreeToolName,
		Description: "Show the project directory structure as an indented tree. Hidden directories and dependency caches are skipped.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"max_depth": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum directory depth (default: 4)",
				},
			},
			"additionalProperties": false,
		},
	}
}

func (t *projectTreeTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a projectTreeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}

	maxDepth := a.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 4
	}

	var sb strings.Builder
	sb.WriteString(filepath.Base(t.ws.Root()) + "/\n")
	if err := writeTree(&sb, t.ws.Root(), 1, maxDepth); err != nil {
		return "", NewToolErrorf(ErrExecutionFailed, "tree error: %v", err)
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}

func writeTree(sb *strings.Builder, dir string, depth, maxDepth int) error {
	if depth > maxDepth {
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})

	indent := strings.Repeat("  ", depth)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			if skipDir(name) {
				continue
			}
			sb.WriteString(indent + name + "/\n")
			if err := writeTree(sb, filepath.Join(dir, name), depth+1, maxDepth); err != nil {
				return err
			}
			continue
		}
		if strings.HasPrefix(name, ".") {
			continue
		}
		sb.WriteString(indent + name + "\n")
	}
	return nil
}

package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/loftlabs/loft/internal/llm"
)

type searchProjectTool struct {
	ws     *Workspace
	limits OutputLimits
}

type searchProjectArgs struct {
	Query      string   `json:"query"`
	Extensions []string `json:"extensions,omitempty"`
	MaxResults int      `json:"max_results,omitempty"`
}

func (t *searchProjectTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        SearchProjectToolName,
		Description: "Search all project files for a literal string. Returns matches with surrounding context.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Literal text to search for (case-sensitive)",
				},
				"extensions": map[string]interface{}{
					"type":        "array",
					"items":       map[string]interface{}{"type": "string"},
					"description": "Optional file extensions to include, e.g. [\".go\", \".md\"]",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matches (default: 100)",
				},
			},
			"required":             []string{"query"},
			"additionalProperties": false,
		},
	}
}

func (t *searchProjectTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a searchProjectArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Query == "" {
		return "", NewToolError(ErrInvalidParams, "query is required")
	}

	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = t.limits.MaxResults
	}

	extFilter := func(name string) bool {
		if len(a.Extensions) == 0 {
			return true
		}
		ext := filepath.Ext(name)
		for _, want := range a.Extensions {
			if !strings.HasPrefix(want, ".") {
				want = "." + want
			}
			if ext == want {
				return true
			}
		}
		return false
	}

	matcher := func(line string) bool { return strings.Contains(line, a.Query) }

	matches, err := searchWorkspace(ctx, t.ws, t.ws.Root(), extFilter, matcher, maxResults)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No matches found.", nil
	}
	return formatSearchResults(matches, len(matches) >= maxResults), nil
}

type searchRegexTool struct {
	ws     *Workspace
	limits OutputLimits
}

type searchRegexArgs struct {
	Pattern    string `json:"pattern"`
	Flags      string `json:"flags,omitempty"`
	Path       string `json:"path,omitempty"`
	Include    string `json:"include,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
}

func (t *searchRegexTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        SearchRegexToolName,
		Description: "Search file contents with a regular expression (RE2 syntax). Returns matches with context.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"pattern": map[string]interface{}{
					"type":        "string",
					"description": "Regular expression pattern (RE2 syntax)",
				},
				"flags": map[string]interface{}{
					"type":        "string",
					"description": "Optional flags: i (case-insensitive), m (multi-line anchors), s (dot matches newline)",
				},
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File or directory to search in (defaults to the project root)",
				},
				"include": map[string]interface{}{
					"type":        "string",
					"description": "Glob filter for file names, e.g. '*.go' or '**/*.{js,ts}'",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of matches (default: 100)",
				},
			},
			"required":             []string{"pattern"},
			"additionalProperties": false,
		},
	}
}

func (t *searchRegexTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a searchRegexArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Pattern == "" {
		return "", NewToolError(ErrInvalidParams, "pattern is required")
	}

	pattern := a.Pattern
	if a.Flags != "" {
		for _, f := range a.Flags {
			if !strings.ContainsRune("ims", f) {
				return "", NewToolErrorf(ErrInvalidParams, "unsupported flag %q (allowed: i, m, s)", f)
			}
		}
		pattern = "(?" + a.Flags + ")" + pattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return "", NewToolErrorf(ErrInvalidParams, "invalid regex pattern: %v", err)
	}

	searchPath := t.ws.Root()
	if a.Path != "" {
		resolved, toolErr := t.ws.Resolve(a.Path)
		if toolErr != nil {
			return "", toolErr
		}
		searchPath = resolved
	}

	maxResults := a.MaxResults
	if maxResults <= 0 {
		maxResults = t.limits.MaxResults
	}

	nameFilter := func(name string) bool {
		if a.Include == "" {
			return true
		}
		ok, err := doublestar.Match(a.Include, name)
		return err == nil && ok
	}

	matches, err := searchWorkspace(ctx, t.ws, searchPath, nameFilter, re.MatchString, maxResults)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "No matches found.", nil
	}
	return formatSearchResults(matches, len(matches) >= maxResults), nil
}

// searchMatch is one matching line with its context block.
type searchMatch struct {
	FilePath   string
	LineNumber int
	Context    string
}

// searchWorkspace walks searchPath and applies matcher line by line,
// skipping hidden directories, dependency caches, and binary files.
func searchWorkspace(ctx context.Context, ws *Workspace, searchPath string, nameFilter func(string) bool, matcher func(string) bool, maxResults int) ([]searchMatch, error) {
	info, err := os.Stat(searchPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewToolError(ErrFileNotFound, searchPath)
		}
		return nil, NewToolErrorf(ErrExecutionFailed, "stat error: %v", err)
	}

	var files []string
	if !info.IsDir() {
		files = []string{searchPath}
	} else {
		walkErr := filepath.WalkDir(searchPath, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			if d.IsDir() {
				if path != searchPath && skipDir(d.Name()) {
					return filepath.SkipDir
				}
				return nil
			}
			if nameFilter(d.Name()) {
				files = append(files, path)
			}
			return nil
		})
		if walkErr != nil {
			return nil, NewToolErrorf(ErrExecutionFailed, "walk error: %v", walkErr)
		}
	}

	var matches []searchMatch
	for _, file := range files {
		if ctx.Err() != nil {
			return matches, nil
		}
		if len(matches) >= maxResults {
			break
		}
		fileMatches, err := searchFile(ws, file, matcher, maxResults-len(matches))
		if err != nil {
			continue // unreadable or binary files are skipped
		}
		matches = append(matches, fileMatches...)
	}
	return matches, nil
}

func searchFile(ws *Workspace, path string, matcher func(string) bool, maxMatches int) ([]searchMatch, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := file.Read(head)
	if err != nil && n == 0 {
		return nil, err
	}
	if isBinaryContent(head[:n]) {
		return nil, fmt.Errorf("binary file")
	}
	if _, err := file.Seek(0, 0); err != nil {
		return nil, err
	}

	var lines []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	var matches []searchMatch
	for lineNum, line := range lines {
		if matcher(line) {
			matches = append(matches, searchMatch{
				FilePath:   ws.Rel(path),
				LineNumber: lineNum + 1,
				Context:    buildContext(lines, lineNum, 2),
			})
			if len(matches) >= maxMatches {
				break
			}
		}
	}
	return matches, nil
}

// buildContext builds numbered context lines around a match.
func buildContext(lines []string, matchIdx, contextLines int) string {
	start := matchIdx - contextLines
	if start < 0 {
		start = 0
	}
	end := matchIdx + contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}

	var sb strings.Builder
	for i := start; i < end; i++ {
		prefix := "  "
		if i == matchIdx {
			prefix = "> "
		}
		sb.WriteString(fmt.Sprintf("%s%d: %s\n", prefix, i+1, lines[i]))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

func formatSearchResults(matches []searchMatch, truncated bool) string {
	var sb strings.Builder
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(fmt.Sprintf("%s:%d\n", m.FilePath, m.LineNumber))
		sb.WriteString(m.Context)
		sb.WriteString("\n")
	}
	if truncated {
		sb.WriteString("\n[Results truncated at limit]")
	}
	return sb.String()
}

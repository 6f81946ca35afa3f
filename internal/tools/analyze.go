package tools

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/loftlabs/loft/internal/fsutil"
	"github.com/loftlabs/loft/internal/llm"
)

type analyzeProjectTool struct {
	ws *Workspace
}

// projectAnalysis summarizes a project directory.
type projectAnalysis struct {
	Manifests    []string
	Dependencies []string
	FileCount    int
	TotalSize    int64
}

func (t *analyzeProjectTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        AnalyzeProjectToolName,
		Description: "Summarize the project: detected manifest files, declared dependencies, file count, and total size.",
		Schema: map[string]interface{}{
			"type":                 "object",
			"properties":           map[string]interface{}{},
			"additionalProperties": false,
		},
	}
}

func (t *analyzeProjectTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	analysis, toolErr := analyzeProject(t.ws.Root())
	if toolErr != nil {
		return "", toolErr
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Project: %s\n", filepath.Base(t.ws.Root())))
	if len(analysis.Manifests) > 0 {
		sb.WriteString("Manifests: " + strings.Join(analysis.Manifests, ", ") + "\n")
	} else {
		sb.WriteString("Manifests: none detected\n")
	}
	if len(analysis.Dependencies) > 0 {
		sb.WriteString(fmt.Sprintf("Dependencies (%d): %s\n", len(analysis.Dependencies), strings.Join(analysis.Dependencies, ", ")))
	}
	sb.WriteString(fmt.Sprintf("Files: %d (%s total)", analysis.FileCount, formatSize(analysis.TotalSize)))
	return sb.String(), nil
}

// analyzeProject inspects root for known manifest files and walks the
// tree for file statistics, skipping dependency and build directories.
func analyzeProject(root string) (*projectAnalysis, *ToolError) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, NewToolErrorf(ErrFileNotFound, "project path does not exist: %s", root)
	}
	if !info.IsDir() {
		return nil, NewToolErrorf(ErrInvalidParams, "project path is not a directory: %s", root)
	}

	analysis := &projectAnalysis{}

	manifests := []string{"package.json", "Cargo.toml", "go.mod", "requirements.txt", "Gemfile"}
	for _, name := range manifests {
		if fsutil.FileExists(filepath.Join(root, name)) {
			analysis.Manifests = append(analysis.Manifests, name)
		}
	}

	analysis.Dependencies = append(analysis.Dependencies, packageJSONDeps(filepath.Join(root, "package.json"))...)
	analysis.Dependencies = append(analysis.Dependencies, goModDeps(filepath.Join(root, "go.mod"))...)

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && skipAnalysisDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		analysis.FileCount++
		if info, err := d.Info(); err == nil {
			analysis.TotalSize += info.Size()
		}
		return nil
	})
	if walkErr != nil {
		return nil, NewToolErrorf(ErrExecutionFailed, "walk error: %v", walkErr)
	}

	return analysis, nil
}

func skipAnalysisDir(name string) bool {
	switch name {
	case "node_modules", ".git", "target", "dist", "build", ".next", "out", "__pycache__", ".venv", "venv":
		return true
	}
	return strings.HasPrefix(name, ".")
}

// packageJSONDeps returns dependency and devDependency names from a
// package.json, sorted and deduplicated.
func packageJSONDeps(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var manifest struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var deps []string
	for name := range manifest.Dependencies {
		if !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	for name := range manifest.DevDependencies {
		if !seen[name] {
			seen[name] = true
			deps = append(deps, name)
		}
	}
	sort.Strings(deps)
	return deps
}

// goModDeps returns direct require paths from a go.mod file.
func goModDeps(path string) []string {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var deps []string
	inBlock := false
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "require (":
			inBlock = true
		case inBlock && line == ")":
			inBlock = false
		case inBlock:
			if strings.HasSuffix(line, "// indirect") {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				deps = append(deps, fields[0])
			}
		case strings.HasPrefix(line, "require "):
			fields := strings.Fields(strings.TrimPrefix(line, "require "))
			if len(fields) >= 2 && !strings.HasSuffix(line, "// indirect") {
				deps = append(deps, fields[0])
			}
		}
	}
	return deps
}

func formatSize(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

package tools

import (
	"os"
	"path/filepath"
	"strings"
)

// Workspace confines tool paths to a single project root. Relative
// paths resolve against the root; absolute paths must already point
// inside it.
type Workspace struct {
	root string
}

// NewWorkspace creates a workspace rooted at dir.
func NewWorkspace(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return &Workspace{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspace) Root() string {
	return w.root
}

// Resolve maps a tool-supplied path to an absolute path inside the
// workspace. Paths that escape the root, including via "..", are
// rejected.
func (w *Workspace) Resolve(path string) (string, *ToolError) {
	if path == "" {
		return "", NewToolError(ErrInvalidParams, "path is required")
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(w.root, abs)
	}
	abs = filepath.Clean(abs)

	rel, err := filepath.Rel(w.root, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", NewToolErrorf(ErrPathNotInWorkspace, "%s is outside the project root", path)
	}

	// A symlink inside the root may still point outside it.
	if target, err := filepath.EvalSymlinks(abs); err == nil {
		if rel, err := filepath.Rel(w.root, target); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", NewToolErrorf(ErrPathNotInWorkspace, "%s resolves outside the project root", path)
		}
	}

	return abs, nil
}

// Rel returns path relative to the workspace root for display, falling
// back to the input when it cannot be made relative.
func (w *Workspace) Rel(path string) string {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return path
	}
	return rel
}

// skipDir reports whether a directory entry should be excluded from
// walks: dot directories and common dependency caches.
func skipDir(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch name {
	case "node_modules", "vendor", "target", "__pycache__":
		return true
	}
	return false
}

// isBinaryContent detects binary data by checking for null bytes in the
// first 512 bytes.
func isBinaryContent(data []byte) bool {
	sample := data
	if len(sample) > 512 {
		sample = sample[:512]
	}
	for _, b := range sample {
		if b == 0 {
			return true
		}
	}
	return false
}

// readTextFile reads a file for a tool, mapping common failures to
// structured errors.
func readTextFile(path string) (string, *ToolError) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewToolError(ErrFileNotFound, path)
		}
		return "", NewToolErrorf(ErrExecutionFailed, "read error: %v", err)
	}
	if isBinaryContent(data) {
		return "", NewToolErrorf(ErrBinaryFile, "%s appears to be a binary file", path)
	}
	return string(data), nil
}

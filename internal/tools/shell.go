package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/gobwas/glob"

	"github.com/loftlabs/loft/internal/llm"
)

const maxShellTimeoutSeconds = 300

// DefaultDenyPatterns are glob patterns for commands the shell tool
// refuses to run regardless of configuration.
var DefaultDenyPatterns = []string{
	"rm -rf /",
	"rm -rf /*",
	"rm -rf ~*",
	"mkfs*",
	"dd if=* of=/dev/*",
	"> /dev/sd*",
	":(){*",
	"shutdown*",
	"reboot*",
	"halt*",
}

type shellTool struct {
	ws             *Workspace
	timeoutSeconds int
	deny           []glob.Glob
	limits         OutputLimits
}

func newShellTool(ws *Workspace, cfg ShellConfig, limits OutputLimits) (*shellTool, error) {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	if timeout > maxShellTimeoutSeconds {
		timeout = maxShellTimeoutSeconds
	}

	patterns := DefaultDenyPatterns
	patterns = append(patterns, cfg.Deny...)

	deny := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid shell deny pattern %q: %w", p, err)
		}
		deny = append(deny, g)
	}

	return &shellTool{ws: ws, timeoutSeconds: timeout, deny: deny, limits: limits}, nil
}

type shellArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

type shellResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

func (t *shellTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ShellToolName,
		Description: "Execute a shell command inside the project. Returns stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory relative to the project root (default: the root)",
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Command timeout in seconds (default: 30, max: 300)",
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *shellTool) Execute(ctx context.Context, args json.RawMessage) (string, error) {
	var a shellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", NewToolError(ErrInvalidParams, err.Error())
	}
	if a.Command == "" {
		return "", NewToolError(ErrInvalidParams, "command is required")
	}

	command := strings.TrimSpace(a.Command)
	for _, g := range t.deny {
		if g.Match(command) {
			return "", NewToolErrorf(ErrPermissionDenied, "command blocked by policy: %s", truncateCommand(command))
		}
	}

	workDir := t.ws.Root()
	if a.WorkingDir != "" {
		resolved, toolErr := t.ws.Resolve(a.WorkingDir)
		if toolErr != nil {
			return "", toolErr
		}
		workDir = resolved
	}

	timeout := t.timeoutSeconds
	if a.TimeoutSeconds > 0 {
		timeout = a.TimeoutSeconds
	}
	if timeout > maxShellTimeoutSeconds {
		timeout = maxShellTimeoutSeconds
	}

	execCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Second)
	defer cancel()

	cmd := exec.CommandContext(execCtx, detectShell(), "-c", a.Command)
	cmd.Dir = workDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := shellResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if execCtx.Err() == context.DeadlineExceeded {
		result.TimedOut = true
		out := formatShellResult(result, t.limits)
		return "", NewToolErrorf(ErrTimeout, "command exceeded %ds\n%s", timeout, out)
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return "", NewToolErrorf(ErrExecutionFailed, "command error: %v", err)
		}
	}

	return formatShellResult(result, t.limits), nil
}

// formatShellResult formats the shell result for the LLM.
func formatShellResult(result shellResult, limits OutputLimits) string {
	var sb strings.Builder

	stdout := result.Stdout
	stderr := result.Stderr
	truncated := false

	if int64(len(stdout)) > limits.MaxBytes {
		stdout = stdout[:limits.MaxBytes]
		truncated = true
	}
	if int64(len(stderr)) > limits.MaxBytes {
		stderr = stderr[:limits.MaxBytes]
		truncated = true
	}

	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}
	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\nexit_code: %d", result.ExitCode))
	if truncated {
		sb.WriteString("\n\n[Output truncated due to size limit]")
	}
	return sb.String()
}

// detectShell returns the user's shell.
func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return "sh"
	}
	return shell
}

// truncateCommand truncates a command for error messages.
func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}

package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultCommandTimeout bounds shell executions that do not set their own.
const DefaultCommandTimeout = 2 * time.Minute

// RunCommand executes a shell command inside the sandbox root with a
// bounded timeout. A non-zero exit or a timeout is a normal result, not a
// capability failure.
type RunCommand struct {
	Root    string
	Timeout time.Duration
}

func (t *RunCommand) Definition() mcp.Tool {
	return mcp.NewTool("run_command",
		mcp.WithDescription("Run a shell command in the project root; returns captured stdout, stderr and exit status"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("Shell command line to execute"),
		),
	)
}

func (t *RunCommand) Execute(ctx context.Context, args map[string]any) string {
	command := stringArg(args, "command")
	if command == "" {
		return "error: command is required"
	}

	timeout := t.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	out, errOut, exitCode, err := runShell(ctx, t.Root, command, timeout)
	if err != nil {
		return "error: " + err.Error()
	}
	return renderCommandResult(out, errOut, exitCode)
}

// runShell invokes `sh -c command` rooted at dir with captured output.
// A timeout is reported as an error; exit status is returned separately so
// callers can treat non-zero exits as ordinary results.
func runShell(ctx context.Context, dir, command string, timeout time.Duration) (stdout, stderr string, exitCode int, err error) {
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, "sh", "-c", command) //nolint:gosec // G204: agent commands are confined to the sandbox root
	cmd.Dir = dir

	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	if cctx.Err() == context.DeadlineExceeded {
		return "", "", 0, fmt.Errorf("command timed out after %s", timeout)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return outBuf.String(), errBuf.String(), exitErr.ExitCode(), nil
		}
		return "", "", 0, fmt.Errorf("run command: %w", runErr)
	}
	return outBuf.String(), errBuf.String(), 0, nil
}

func renderCommandResult(stdout, stderr string, exitCode int) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "exit status %d\n", exitCode)
	if stdout != "" {
		fmt.Fprintf(&buf, "--- stdout ---\n%s", stdout)
	}
	if stderr != "" {
		if stdout != "" && stdout[len(stdout)-1] != '\n' {
			buf.WriteByte('\n')
		}
		fmt.Fprintf(&buf, "--- stderr ---\n%s", stderr)
	}
	return buf.String()
}

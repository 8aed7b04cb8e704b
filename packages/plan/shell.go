package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// DefaultShell runs plan commands when a plan names none.
const DefaultShell = "sh"

// waitDelay bounds how long a cancelled command may keep its pipes open.
const waitDelay = 2 * time.Second

// ShellResult represents the result of a shell command execution
type ShellResult struct {
	Command  string
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// CommandError reports a command that exited unsuccessfully.
type CommandError struct {
	Command  string
	ExitCode int
	Output   string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command %q exited with code %d", e.Command, e.ExitCode)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\nOutput: " + out
	}
	return msg
}

// Shell runs commands with `<program> -c` in a fixed directory.
type Shell struct {
	Program string
	Dir     string
	// Env is appended to the process environment.
	Env []string
}

// With returns a copy of s with extra environment entries.
func (s *Shell) With(env ...string) *Shell {
	c := *s
	c.Env = append(append([]string(nil), s.Env...), env...)
	return &c
}

func (s *Shell) program() string {
	if s.Program == "" {
		return DefaultShell
	}
	return s.Program
}

// Run executes command. A non-zero exit is reported through ExitCode, not
// as an error; errors mean the command could not run or was cancelled.
// Output is streamed to live when it is not nil.
func (s *Shell) Run(ctx context.Context, command string, live io.Writer) (*ShellResult, error) {
	command = strings.TrimSpace(command)
	result := &ShellResult{Command: command}
	if command == "" {
		return result, nil
	}

	cmd := exec.CommandContext(ctx, s.program(), "-c", s.resolveExecutable(command))
	cmd.Dir = s.Dir
	cmd.Env = append(os.Environ(), s.Env...)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if live != nil {
		cmd.Stdout = io.MultiWriter(&stdout, live)
		cmd.Stderr = io.MultiWriter(&stderr, live)
	}

	start := time.Now()
	err := cmd.Run()
	result.Duration = time.Since(start)
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return result, fmt.Errorf("cannot run %q: %w", command, err)
	}
	return result, nil
}

// Exec runs command and fails on a non-zero exit, unless the command is
// prefixed with "-".
func (s *Shell) Exec(ctx context.Context, command string, live io.Writer) (*ShellResult, error) {
	command = strings.TrimSpace(command)
	ignoreError := strings.HasPrefix(command, "-")
	if ignoreError {
		command = strings.TrimSpace(strings.TrimPrefix(command, "-"))
	}

	result, err := s.Run(ctx, command, live)
	if err != nil {
		return result, err
	}
	if result.ExitCode != 0 && !ignoreError {
		return result, &CommandError{
			Command:  command,
			ExitCode: result.ExitCode,
			Output:   result.Stdout + result.Stderr,
		}
	}
	return result, nil
}

// resolveExecutable makes a leading relative script path relative to the
// plan directory.
func (s *Shell) resolveExecutable(command string) string {
	if s.Dir == "" {
		return command
	}
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return command
	}

	executable := parts[0]
	switch {
	case strings.HasPrefix(executable, "./"), strings.HasPrefix(executable, "../"):
		return filepath.Join(s.Dir, executable) + command[len(executable):]
	case !filepath.IsAbs(executable) && !strings.ContainsAny(executable, "=$'\"") && !isInPath(executable):
		candidate := filepath.Join(s.Dir, executable)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate + command[len(executable):]
		}
	}
	return command
}

// isInPath checks if a command is available in the system PATH
func isInPath(cmd string) bool {
	_, err := exec.LookPath(cmd)
	return err == nil
}

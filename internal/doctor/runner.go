// Package doctor runs the openclaw CLI for diagnostics and captures its
// output and exit status.
package doctor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	"github.com/clawd-mcp/clawd-mcp/internal/telemetry"
)

const DefaultTimeout = 2 * time.Minute

// ErrNotFound is returned when the CLI executable cannot be located.
var ErrNotFound = errors.New("openclaw CLI not found")

type Report struct {
	Command    string `json:"command"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
}

// Output is the text worth showing for a failed run: stdout when present,
// stderr otherwise.
func (r Report) Output() string {
	if strings.TrimSpace(r.Stdout) != "" {
		return r.Stdout
	}
	return r.Stderr
}

type Runner struct {
	path    string
	timeout time.Duration
}

func NewRunner(path string, timeout time.Duration) *Runner {
	if strings.TrimSpace(path) == "" {
		path = "openclaw"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Runner{path: path, timeout: timeout}
}

func (r *Runner) Path() string { return r.path }

// Doctor runs `<cli> doctor`.
func (r *Runner) Doctor(ctx context.Context) (Report, error) {
	report, err := r.Run(ctx, "doctor")
	switch {
	case err == nil:
		telemetry.IncDoctorRun("ok")
	case errors.Is(err, ErrNotFound):
		telemetry.IncDoctorRun("not_found")
	case report.ExitCode == -1:
		telemetry.IncDoctorRun("timeout")
	default:
		telemetry.IncDoctorRun("failed")
	}
	return report, err
}

// Version runs `<cli> --version`.
func (r *Runner) Version(ctx context.Context) (Report, error) {
	return r.Run(ctx, "--version")
}

// Run executes the CLI with args. A non-zero exit returns the report together
// with an error; ExitCode is -1 when the process never finished.
func (r *Runner) Run(ctx context.Context, args ...string) (Report, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, r.path, args...)
	var stdoutBuf bytes.Buffer
	var stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf
	cmd.WaitDelay = time.Second

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	report := Report{
		Command:    strings.TrimSpace(r.path + " " + strings.Join(args, " ")),
		DurationMS: duration.Milliseconds(),
		Stdout:     stdoutBuf.String(),
		Stderr:     stderrBuf.String(),
	}

	if runErr == nil {
		return report, nil
	}

	if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, fs.ErrNotExist) {
		report.ExitCode = -1
		return report, fmt.Errorf("%w: %q is not on PATH", ErrNotFound, r.path)
	}

	if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
		report.ExitCode = -1
		return report, fmt.Errorf("%s timed out after %s", report.Command, r.timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		report.ExitCode = exitErr.ExitCode()
		return report, fmt.Errorf("%s exited with code %d", report.Command, report.ExitCode)
	}

	report.ExitCode = -1
	return report, runErr
}

package story

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Runner executes the az CLI.
//
// Run invokes the binary with args and returns its standard output. A
// non-zero exit status is returned as an error that includes stderr.
type Runner interface {
	Run(ctx context.Context, args ...string) ([]byte, error)
}

// CommandRunner runs a real binary through os/exec.
type CommandRunner struct {
	// BinaryPath is the az executable. Default: "az".
	BinaryPath string
}

// NewCommandRunner creates a [CommandRunner] for binaryPath, defaulting to "az".
func NewCommandRunner(binaryPath string) *CommandRunner {
	if binaryPath == "" {
		binaryPath = "az"
	}
	return &CommandRunner{BinaryPath: binaryPath}
}

// Run executes the binary and captures stdout.
func (r *CommandRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, r.BinaryPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s %s: %w", r.BinaryPath, strings.Join(args, " "), err)
		}
		return nil, fmt.Errorf("%s %s: %w: %s", r.BinaryPath, strings.Join(args, " "), err, msg)
	}
	return stdout.Bytes(), nil
}

// MockRunner implements [Runner] for testing.
//
// Responses are matched by the first argument after "work-item" (show,
// update). Every invocation is recorded in Invocations.
type MockRunner struct {
	// Output maps a work-item verb ("show", "update") to the stdout to return.
	Output map[string][]byte

	// Err, if set, is returned from every call.
	Err error

	mu          sync.Mutex
	Invocations [][]string
}

// Run records args and returns the configured output.
func (m *MockRunner) Run(ctx context.Context, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.Invocations = append(m.Invocations, append([]string(nil), args...))
	m.mu.Unlock()

	if m.Err != nil {
		return nil, m.Err
	}
	return m.Output[verb(args)], nil
}

func verb(args []string) string {
	for i, a := range args {
		if a == "work-item" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

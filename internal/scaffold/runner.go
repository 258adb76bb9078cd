// Package scaffold wraps an external project generator so new agent
// projects can be bootstrapped from the AgentTrace CLI.
package scaffold

import (
	"errors"
	"fmt"
	"io"
	"os/exec"

	"github.com/rs/zerolog"
)

// ErrToolNotFound indicates the generator binary is not installed.
var ErrToolNotFound = errors.New("scaffold tool not found")

// Runner executes the external generator tool.
type Runner struct {
	tool   string
	stdout io.Writer
	stderr io.Writer
	log    zerolog.Logger
}

// NewRunner creates a runner for the named generator tool. Output streams
// are forwarded so the tool's own progress reporting stays visible.
func NewRunner(tool string, stdout, stderr io.Writer, log zerolog.Logger) *Runner {
	return &Runner{
		tool:   tool,
		stdout: stdout,
		stderr: stderr,
		log:    log.With().Str("component", "scaffold").Logger(),
	}
}

// Tool returns the configured generator binary name.
func (r *Runner) Tool() string {
	return r.tool
}

// Generate runs the generator in the project directory. It returns
// ErrToolNotFound when the binary is not on PATH, and a wrapped error when
// the tool itself exits non-zero.
func (r *Runner) Generate(dir string, args ...string) error {
	path, err := exec.LookPath(r.tool)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrToolNotFound, r.tool)
	}

	r.log.Info().Str("tool", path).Str("dir", dir).Msg("Running project generator")

	cmd := exec.Command(path, args...)
	cmd.Dir = dir
	cmd.Stdout = r.stdout
	cmd.Stderr = r.stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", r.tool, err)
	}
	return nil
}

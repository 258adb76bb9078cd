package scaffold

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenttrace/agenttrace/pkg/logger"
)

// writeStub drops a tiny executable on a private PATH.
func writeStub(t *testing.T, name, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("stub executables are POSIX shell scripts")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script+"\n"), 0755))
	t.Setenv("PATH", dir)
}

func TestGenerateToolMissing(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	runner := NewRunner("definitely-not-installed", &bytes.Buffer{}, &bytes.Buffer{}, logger.Nop())
	err := runner.Generate(t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestGenerateSuccess(t *testing.T) {
	writeStub(t, "fakegen", `echo "generated project"`)

	var stdout bytes.Buffer
	runner := NewRunner("fakegen", &stdout, &bytes.Buffer{}, logger.Nop())
	require.NoError(t, runner.Generate(t.TempDir()))
	assert.Contains(t, stdout.String(), "generated project")
}

func TestGenerateToolFails(t *testing.T) {
	writeStub(t, "fakegen", `echo "boom" >&2; exit 3`)

	var stderr bytes.Buffer
	runner := NewRunner("fakegen", &bytes.Buffer{}, &stderr, logger.Nop())
	err := runner.Generate(t.TempDir())
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrToolNotFound))
	assert.Contains(t, err.Error(), "fakegen failed")
	assert.Contains(t, stderr.String(), "boom")
}

func TestGenerateRunsInDir(t *testing.T) {
	writeStub(t, "fakegen", `pwd`)

	dir := t.TempDir()
	var stdout bytes.Buffer
	runner := NewRunner("fakegen", &stdout, &bytes.Buffer{}, logger.Nop())
	require.NoError(t, runner.Generate(dir))

	// Resolve symlinks; macOS tempdirs live under /private
	resolved, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), resolved)
}

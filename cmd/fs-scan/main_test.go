package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

func emptyConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))
	return path
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", emptyConfig(t)}, args...))
	cmd.SetOut(&testWriter{t})
	cmd.SetErr(&testWriter{t})
	return cmd.Execute()
}

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func TestScanCommand(t *testing.T) {
	root := filepath.Join(t.TempDir(), "photos")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "2024", "a.jpg"), []byte("hello"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.tmp"), []byte("x"), 0o644))

	out := filepath.Join(t.TempDir(), "out", "photos.jsonl")
	require.NoError(t, execute(t, "-d", root, "-o", out, "-c", "size", "-e", "**/*.tmp"))

	m, err := manifest.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"photos/2024/a.jpg"}, m.Paths())
	assert.Equal(t, int64(5), m["photos/2024/a.jpg"].Fingerprint.Int())
}

func TestScanCommand_RelativeToRoot(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a"), []byte("a"), 0o644))

	out := filepath.Join(t.TempDir(), "m.jsonl")
	require.NoError(t, execute(t, "-d", root, "-o", out, "--relative-to-root"))

	m, err := manifest.LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, m.Paths())
	assert.True(t, m["a"].Fingerprint.IsNone())
}

func TestScanCommand_Errors(t *testing.T) {
	out := filepath.Join(t.TempDir(), "m.jsonl")

	err := execute(t, "-d", filepath.Join(t.TempDir(), "missing"), "-o", out)
	assert.ErrorIs(t, err, manifest.ErrInputNotFound)

	err = execute(t, "-d", t.TempDir(), "-o", out, "-c", "time")
	assert.Error(t, err)

	assert.Error(t, execute(t, "-o", out), "entry dir is required")
}

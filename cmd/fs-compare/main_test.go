package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuya-takeyama/fs-manifest/pkg/manifest"
)

type testWriter struct{ t *testing.T }

func (w *testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func execute(t *testing.T, args ...string) error {
	t.Helper()
	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, nil, 0o644))

	cmd := newRootCmd()
	cmd.SetArgs(append([]string{"--config", cfg}, args...))
	cmd.SetOut(&testWriter{t})
	cmd.SetErr(&testWriter{t})
	return cmd.Execute()
}

func writeManifest(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

func TestCompareCommand_Dump(t *testing.T) {
	dir := t.TempDir()
	this := writeManifest(t, dir, "this.jsonl",
		`{"path": "r/a", "size": 1, "last_modified": 100, "checksum": 1, "check_state": "OK"}`,
		`{"path": "r/b", "size": 1, "last_modified": 100, "checksum": 1, "check_state": "OK"}`,
		`{"path": "r/c", "size": 1, "last_modified": 300, "checksum": 1, "check_state": "OK"}`,
	)
	other := writeManifest(t, dir, "other.jsonl",
		`{"path": "r/a", "size": 1, "last_modified": 100, "checksum": 1, "check_state": "OK"}`,
		`{"path": "r/b", "size": 2, "last_modified": 200, "checksum": 2, "check_state": "OK"}`,
		`{"path": "r/c", "size": 2, "last_modified": 200, "checksum": 2, "check_state": "OK"}`,
		`{"path": "r/d", "size": 4, "last_modified": 100, "checksum": 4, "check_state": "OK"}`,
		`{"path": "r/skip.tmp", "size": 4, "last_modified": 100, "checksum": 4, "check_state": "OK"}`,
	)
	dump := filepath.Join(dir, "dump")

	require.NoError(t, execute(t, "--this", this, "--other", other, "--dump", dump, "-e", "**/*.tmp", "--both-directions"))

	union, err := os.ReadFile(filepath.Join(dump, "missing_or_newer.txt"))
	require.NoError(t, err)
	assert.Equal(t, "r/b\nr/d\n", string(union))

	missing, err := manifest.LoadFile(filepath.Join(dump, "missing.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r/d"}, missing.Paths())

	newer, err := manifest.LoadFile(filepath.Join(dump, "differing_other_newer.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, []string{"r/b"}, newer.Paths())
}

func TestCompareCommand_Errors(t *testing.T) {
	dir := t.TempDir()
	good := writeManifest(t, dir, "good.jsonl", `{"path": "a", "checksum": null}`)
	bad := writeManifest(t, dir, "bad.jsonl", `{"path": "a"}`)

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing this", []string{"--this", filepath.Join(dir, "nope"), "--other", good}, manifest.ErrInputNotFound},
		{"missing other", []string{"--this", good, "--other", filepath.Join(dir, "nope")}, manifest.ErrInputNotFound},
		{"malformed", []string{"--this", good, "--other", bad}, manifest.ErrMalformedRecord},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, execute(t, tt.args...), tt.wantErr)
		})
	}

	assert.Error(t, execute(t, "--this", good), "--other is required")
	assert.Error(t, execute(t, "--this", "-", "--other", "-"))
	assert.Error(t, execute(t, "--this", good, "--other", good, "--integer-checksum", "strong"))
}

func TestCompareCommand_UnreadableRecords(t *testing.T) {
	dir := t.TempDir()
	this := writeManifest(t, dir, "this.jsonl",
		`{"path": "r/a", "size": 0, "last_modified": 0, "checksum": null, "check_state": "permission denied"}`,
	)
	other := writeManifest(t, dir, "other.jsonl",
		`{"path": "r/a", "size": 0, "last_modified": 5, "checksum": null, "check_state": "permission denied"}`,
	)

	t.Run("kept out of the artifacts by default", func(t *testing.T) {
		dump := filepath.Join(t.TempDir(), "dump")
		require.NoError(t, execute(t, "--this", this, "--other", other, "--dump", dump))

		union, err := os.ReadFile(filepath.Join(dump, "missing_or_newer.txt"))
		require.NoError(t, err)
		assert.Empty(t, string(union))
	})

	t.Run("treated as differing when not separated", func(t *testing.T) {
		dump := filepath.Join(t.TempDir(), "dump")
		require.NoError(t, execute(t, "--this", this, "--other", other, "--dump", dump, "--separate-unverified=false"))

		union, err := os.ReadFile(filepath.Join(dump, "missing_or_newer.txt"))
		require.NoError(t, err)
		assert.Equal(t, "r/a\n", string(union))
	})
}

package wrapgen

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/slipway-sh/slipway/internal/domain/release"
)

// TestGenerateWrappers checks that each POSIX target receives an executable
// launcher delegating to the Python module.
func TestGenerateWrappers(t *testing.T) {
	t.Parallel()

	artifactsDir := t.TempDir()
	generator := NewPythonGenerator(artifactsDir)

	targets, err := release.ResolveTargets("macos-arm64,linux-amd64")
	require.NoError(t, err)

	require.NoError(t, generator.GenerateWrappers(context.Background(), "foo-cli", targets))

	for _, target := range targets {
		path := filepath.Join(artifactsDir, target.ID, "foo-cli")

		info, statErr := os.Stat(path)
		require.NoError(t, statErr)
		require.Equal(t, os.FileMode(0o755), info.Mode().Perm())

		content, readErr := os.ReadFile(path)
		require.NoError(t, readErr)
		require.Equal(t, "#!/usr/bin/env bash\nexec python3 -m foo_cli \"$@\"\n", string(content))
	}
}

// TestGenerateWrappersSkipsWindows checks that no launcher is written for
// Windows targets.
func TestGenerateWrappersSkipsWindows(t *testing.T) {
	t.Parallel()

	artifactsDir := t.TempDir()
	generator := NewPythonGenerator(artifactsDir)

	windows, ok := release.LookupTarget("windows-amd64")
	require.True(t, ok)

	require.NoError(t, generator.GenerateWrappers(context.Background(), "foo", []release.Target{windows}))

	_, err := os.Stat(filepath.Join(artifactsDir, "windows-amd64", "foo"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestGenerateWrappersOverwrites checks that an existing stale launcher is
// replaced.
func TestGenerateWrappersOverwrites(t *testing.T) {
	t.Parallel()

	artifactsDir := t.TempDir()
	generator := NewPythonGenerator(artifactsDir)

	target, ok := release.LookupTarget("linux-amd64")
	require.True(t, ok)

	path := filepath.Join(artifactsDir, target.ID, "foo")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0o644))

	require.NoError(t, generator.GenerateWrappers(context.Background(), "foo", []release.Target{target}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(content), "python3 -m foo")
}

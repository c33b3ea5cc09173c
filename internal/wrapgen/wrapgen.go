package wrapgen

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/slipway-sh/slipway/internal/domain/release"
)

const (
	wrapperPermissions = 0o755
	dirPermissions     = 0o755
)

// Generator produces stand-in launchers for targets that have no prebuilt
// binary in the artifacts directory.
type Generator interface {
	// GenerateWrappers writes a launcher named after the tool into each
	// target's artifacts subdirectory.
	GenerateWrappers(ctx context.Context, name string, targets []release.Target) error
}

// PythonGenerator writes shell launchers that delegate to an installed
// Python module. It covers interpreted-language projects that ship the same
// entry point on every POSIX target; Windows targets are skipped because the
// launcher form has no equivalent there.
type PythonGenerator struct {
	artifactsDir string
}

// NewPythonGenerator builds a generator rooted at the artifacts directory.
func NewPythonGenerator(artifactsDir string) *PythonGenerator {
	return &PythonGenerator{artifactsDir: artifactsDir}
}

// GenerateWrappers implements Generator.
func (g *PythonGenerator) GenerateWrappers(_ context.Context, name string, targets []release.Target) error {
	script := launcherScript(name)

	for _, target := range targets {
		if target.OS == "windows" {
			continue
		}

		dir := filepath.Join(g.artifactsDir, target.ID)
		if err := os.MkdirAll(dir, dirPermissions); err != nil {
			return fmt.Errorf("create artifacts directory for %s: %w", target.ID, err)
		}

		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, script, wrapperPermissions); err != nil {
			return fmt.Errorf("write wrapper for %s: %w", target.ID, err)
		}

		if err := os.Chmod(path, wrapperPermissions); err != nil {
			return fmt.Errorf("set wrapper mode for %s: %w", target.ID, err)
		}
	}

	return nil
}

// launcherScript renders the wrapper body. The module name follows the
// Python convention of underscores where the tool name has hyphens.
func launcherScript(name string) []byte {
	module := strings.ReplaceAll(name, "-", "_")

	return []byte(fmt.Sprintf("#!/usr/bin/env bash\nexec python3 -m %s \"$@\"\n", module))
}

package release

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownTarget indicates a target identifier outside the canonical table.
var ErrUnknownTarget = errors.New("unknown target")

// Target is one canonical build target with the aliases used in filenames.
type Target struct {
	// ID is the canonical identifier, e.g. "macos-arm64".
	ID string
	// OS is the platform alias used in filenames, e.g. "darwin".
	OS string
	// Arch is the architecture alias used in filenames, e.g. "arm64".
	Arch string
}

// Filename derives the archive name for a tool: <name>-<os>-<arch>.tar.gz.
func (t Target) Filename(name string) string {
	return fmt.Sprintf("%s-%s-%s.tar.gz", name, t.OS, t.Arch)
}

// knownTargets is the canonical target table in presentation order.
// The "macos" platform maps to the "darwin" alias; the others are identity.
var knownTargets = []Target{
	{ID: "macos-arm64", OS: "darwin", Arch: "arm64"},
	{ID: "macos-amd64", OS: "darwin", Arch: "amd64"},
	{ID: "linux-amd64", OS: "linux", Arch: "amd64"},
	{ID: "linux-arm64", OS: "linux", Arch: "arm64"},
	{ID: "windows-amd64", OS: "windows", Arch: "amd64"},
}

// defaultTargetIDs is the matrix used when no --targets flag is given.
var defaultTargetIDs = []string{"macos-arm64", "macos-amd64", "linux-amd64"}

// LookupTarget resolves a canonical identifier against the known table.
func LookupTarget(id string) (Target, bool) {
	for _, target := range knownTargets {
		if target.ID == id {
			return target, true
		}
	}

	return Target{}, false
}

// DefaultTargets returns the default target matrix.
func DefaultTargets() []Target {
	targets := make([]Target, 0, len(defaultTargetIDs))

	for _, id := range defaultTargetIDs {
		if target, ok := LookupTarget(id); ok {
			targets = append(targets, target)
		}
	}

	return targets
}

// ResolveTargets maps a comma-separated target list to canonical targets.
// An empty spec yields the default matrix. Order is preserved as given,
// duplicates collapse to their first occurrence, and an unknown token fails
// with an error naming it rather than being dropped.
func ResolveTargets(spec string) ([]Target, error) {
	if strings.TrimSpace(spec) == "" {
		return DefaultTargets(), nil
	}

	var (
		tokens   = strings.Split(spec, ",")
		targets  = make([]Target, 0, len(tokens))
		resolved = make(map[string]struct{}, len(tokens))
	)

	for _, token := range tokens {
		id := strings.TrimSpace(token)
		if id == "" {
			continue
		}

		if _, dup := resolved[id]; dup {
			continue
		}

		target, ok := LookupTarget(id)
		if !ok {
			return nil, fmt.Errorf("%w %q, known targets: %s", ErrUnknownTarget, id, knownTargetIDs())
		}

		resolved[id] = struct{}{}
		targets = append(targets, target)
	}

	if len(targets) == 0 {
		return DefaultTargets(), nil
	}

	return targets, nil
}

// knownTargetIDs renders the canonical table for error messages.
func knownTargetIDs() string {
	ids := make([]string, 0, len(knownTargets))
	for _, target := range knownTargets {
		ids = append(ids, target.ID)
	}

	return strings.Join(ids, ", ")
}

package manifest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/slipway-sh/slipway/internal/domain/release"
)

const (
	// Filename is the manifest name under the dist directory.
	Filename = "slipway_manifest.json"
	// DefaultDistDir is the conventional output directory for release
	// artifacts and the manifest itself.
	DefaultDistDir = "dist"
)

// filePermissions applies to the manifest and its parent directory.
// The manifest is a project artifact, not a secret.
const (
	filePermissions os.FileMode = 0o644
	dirPermissions  os.FileMode = 0o755
)

var (
	// ErrNotFound is returned when the manifest file does not exist yet,
	// which means the plan stage has not run.
	ErrNotFound = errors.New("manifest not found")
	// ErrMalformed is returned when the manifest file exists but cannot be
	// decoded or violates the document invariants.
	ErrMalformed = errors.New("manifest malformed")
)

// Repository defines persistence operations for the release manifest.
type Repository interface {
	Load(ctx context.Context) (*release.Manifest, error)
	Save(ctx context.Context, manifest *release.Manifest) error
	Path() string
}

// FileRepository persists the manifest as indented JSON on disk.
// Saves are atomic: content goes to a temp file in the destination
// directory first and is renamed over the final path, so a crash mid-write
// cannot corrupt the document.
type FileRepository struct {
	// path is the filesystem location of the manifest file.
	path string
	// mu protects concurrent access within one process.
	mu sync.Mutex
}

// DefaultPath returns the manifest location under a dist directory.
func DefaultPath(distDir string) string {
	return filepath.Join(distDir, Filename)
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Path returns the manifest location the repository operates on.
func (r *FileRepository) Path() string {
	return r.path
}

// Load reads and validates the manifest from disk.
// A missing file reports ErrNotFound; an undecodable or invalid document
// reports ErrMalformed so callers can tell "run plan first" from corruption.
func (r *FileRepository) Load(_ context.Context) (*release.Manifest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNotFound, r.path)
		}

		return nil, fmt.Errorf("read manifest file: %w", err)
	}

	var manifest release.Manifest
	if err = json.Unmarshal(contents, &manifest); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %w", ErrMalformed, r.path, err)
	}

	if err = manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformed, r.path, err)
	}

	return &manifest, nil
}

// Save validates and atomically writes the manifest to disk,
// creating the parent directory as needed.
func (r *FileRepository) Save(_ context.Context, manifest *release.Manifest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := manifest.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid manifest: %w", err)
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	data = append(data, '\n')

	dir := filepath.Dir(r.path)
	if err = os.MkdirAll(dir, dirPermissions); err != nil {
		return fmt.Errorf("create manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}

	tmpPath := tmp.Name()
	if err = writeAndClose(tmp, data); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("write temp manifest: %w", err)
	}

	if err = os.Chmod(tmpPath, filePermissions); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("chmod temp manifest: %w", err)
	}

	if err = os.Rename(tmpPath, r.path); err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("replace manifest file: %w", err)
	}

	return nil
}

// writeAndClose flushes the full payload to stable storage before closing.
func writeAndClose(f *os.File, data []byte) error {
	if _, err := f.Write(data); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}

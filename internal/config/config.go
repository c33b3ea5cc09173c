package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/slipway-sh/slipway/internal/domain/release"
)

// Config holds the per-project release settings. Every field has a flag
// counterpart; flags win over the file.
type Config struct {
	// Repo is the source repository in owner/name form, the home of releases.
	Repo string `yaml:"repo"`
	// Tap is the Homebrew tap repository in owner/name form.
	Tap string `yaml:"tap"`
	// Desc is the one-line formula description.
	Desc string `yaml:"desc"`
	// Homepage is the formula homepage URL.
	Homepage string `yaml:"homepage"`
	// Host is the release host used in download URL derivation.
	Host string `yaml:"host"`
	// Timeout bounds every remote operation of a stage.
	Timeout time.Duration `yaml:"timeout"`
}

const (
	// DefaultConfigFilename is the project-local settings file.
	DefaultConfigFilename = ".slipway.yaml"

	// DefaultTimeout bounds remote operations; asset uploads dominate it.
	DefaultTimeout = time.Minute
)

// errInvalidRepo is returned for repository fields not in owner/name form.
var errInvalidRepo = errors.New("repository must be in owner/name form")

// Load reads the settings file and fills in defaults. With an empty path the
// default file is consulted and its absence is not an error: every setting
// has a flag counterpart, so a project without the file is fully usable.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			cfg := new(Config)
			cfg.applyDefaults()

			return cfg, nil
		}

		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the provided settings and fills in defaults.
func Validate(cfg *Config) error {
	if cfg.Repo != "" && !validRepoName(cfg.Repo) {
		return fmt.Errorf("%w: %q", errInvalidRepo, cfg.Repo)
	}

	if cfg.Tap != "" && !validRepoName(cfg.Tap) {
		return fmt.Errorf("%w: %q", errInvalidRepo, cfg.Tap)
	}

	if cfg.Homepage != "" {
		if _, err := url.ParseRequestURI(cfg.Homepage); err != nil {
			return fmt.Errorf("invalid homepage URL: %w", err)
		}
	}

	cfg.applyDefaults()

	return nil
}

// applyDefaults fills the fields the file may leave unset.
func (c *Config) applyDefaults() {
	if c.Host == "" {
		c.Host = release.DefaultHost
	}

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// validRepoName reports whether s is an owner/name pair.
func validRepoName(s string) bool {
	owner, name, found := strings.Cut(s, "/")

	return found && owner != "" && name != "" && !strings.Contains(name, "/")
}

//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"os"
	"time"

	"github.com/slipway-sh/slipway/internal/config"
	"github.com/slipway-sh/slipway/internal/domain/release"
	"github.com/slipway-sh/slipway/internal/errkind"
)

// EnvRepository names the environment fallback for the release repository.
const EnvRepository = "GITHUB_REPOSITORY"

// ResolveRepo picks the release repository: the flag override first, then
// the GITHUB_REPOSITORY environment variable, then project settings.
func ResolveRepo(flagValue string, cfg *config.Config) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}

	if repo := os.Getenv(EnvRepository); repo != "" {
		return repo, nil
	}

	if cfg != nil && cfg.Repo != "" {
		return cfg.Repo, nil
	}

	return "", errkind.New(errkind.PreconditionFailed,
		"release repository is required; pass --repo or set %s", EnvRepository)
}

// ResolveHost picks the release host used in download URL derivation.
func ResolveHost(cfg *config.Config) string {
	if cfg != nil && cfg.Host != "" {
		return cfg.Host
	}

	return release.DefaultHost
}

// ResolveTimeout returns the bound for remote operations.
func ResolveTimeout(cfg *config.Config) time.Duration {
	if cfg != nil && cfg.Timeout > 0 {
		return cfg.Timeout
	}

	return config.DefaultTimeout
}

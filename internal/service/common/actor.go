//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"fmt"
	"os"
	"os/user"

	gitconfig "github.com/go-git/go-git/v5/config"
)

// DetectAuthor resolves the identity used for tap commits.
// It reads the global git configuration first and falls back to
// username@hostname when name or email is unset.
func DetectAuthor() (name, email string, err error) {
	if cfg, cfgErr := gitconfig.LoadConfig(gitconfig.GlobalScope); cfgErr == nil {
		name = cfg.User.Name
		email = cfg.User.Email
	}

	if name != "" && email != "" {
		return name, email, nil
	}

	currentUser, err := user.Current()
	if err != nil {
		return "", "", fmt.Errorf("current user: %w", err)
	}

	hostname, err := os.Hostname()
	if err != nil {
		return "", "", fmt.Errorf("hostname: %w", err)
	}

	if name == "" {
		name = currentUser.Username
	}

	if email == "" {
		email = fmt.Sprintf("%s@%s", currentUser.Username, hostname)
	}

	return name, email, nil
}

package gitrepo

import (
	"errors"
	"fmt"

	git "github.com/go-git/go-git/v5"
)

// ErrNotARepository is reported when the directory is not inside a git
// working tree.
var ErrNotARepository = errors.New("not a git repository")

// WorkingTreeClean reports whether the repository containing dir has no
// uncommitted changes. The search walks up from dir the way git itself does.
func WorkingTreeClean(dir string) (bool, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return false, fmt.Errorf("%w: %s", ErrNotARepository, dir)
		}

		return false, fmt.Errorf("open repository at %s: %w", dir, err)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("open working tree at %s: %w", dir, err)
	}

	status, err := worktree.Status()
	if err != nil {
		return false, fmt.Errorf("read working tree status at %s: %w", dir, err)
	}

	return status.IsClean(), nil
}

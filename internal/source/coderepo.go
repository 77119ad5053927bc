package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// RepoConfig configures a remote-code-repository checkout.
type RepoConfig struct {
	RepoURL   string
	LocalPath string
	Branch    string // defaults per §6: branch -> "local"

	Walk WalkConfig // Root is overwritten with LocalPath
}

// CheckoutResult reports the commit the walk ran against, used for the
// code_sha:<repo>:<branch> metadata key.
type CheckoutResult struct {
	CommitSHA string
	Branch    string
}

// Checkout clones repoURL into localPath if absent, or opens the existing
// clone if present (no fetch or pull is made, so an existing clone keeps
// its local commits), then checks out cfg.Branch if set. The .gitignore
// at the repo root, if any, filters the walk in WalkRepo.
func Checkout(ctx context.Context, cfg RepoConfig) (CheckoutResult, error) {
	var repo *git.Repository
	var err error

	if _, statErr := os.Stat(cfg.LocalPath); os.IsNotExist(statErr) {
		repo, err = git.PlainCloneContext(ctx, cfg.LocalPath, false, &git.CloneOptions{URL: cfg.RepoURL})
	} else {
		repo, err = git.PlainOpen(cfg.LocalPath)
	}
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("source: checkout %q: %w", cfg.RepoURL, err)
	}

	if cfg.Branch != "" {
		wt, wtErr := repo.Worktree()
		if wtErr == nil {
			_ = wt.Checkout(&git.CheckoutOptions{
				Branch: plumbing.NewBranchReferenceName(cfg.Branch),
				Force:  true,
			})
		}
	}

	head, err := repo.Head()
	branch := cfg.Branch
	if branch == "" {
		branch = "local"
	}
	result := CheckoutResult{Branch: branch}
	if err == nil {
		result.CommitSHA = head.Hash().String()
	}
	return result, nil
}

// WalkRepo walks a checked-out repository honoring its .gitignore.
func WalkRepo(ctx context.Context, cfg RepoConfig, emit func(FileItem) error) (map[string]struct{}, error) {
	walkCfg := cfg.Walk
	walkCfg.Root = cfg.LocalPath
	walkCfg.Recursive = true
	walkCfg.IsCode = true

	matcher := loadGitignore(cfg.LocalPath)
	wrapped := func(item FileItem) error {
		if matcher != nil {
			parts := strings.Split(item.Path, "/")
			if matcher.Match(parts, false) {
				return nil
			}
		}
		if strings.HasPrefix(item.Path, ".git/") {
			return nil
		}
		return emit(item)
	}
	return Walk(ctx, walkCfg, wrapped)
}

func loadGitignore(root string) gitignore.Matcher {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer f.Close()

	var patterns []gitignore.Pattern
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, gitignore.ParsePattern(scanner.Text(), nil))
	}
	if len(patterns) == 0 {
		return nil
	}
	return gitignore.NewMatcher(patterns)
}

// Package vcs adapts a local git working tree to the change listing used by
// diff-mode file selection.
package vcs

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNoMergeBase is returned when a baseline shares no history with HEAD.
var ErrNoMergeBase = errors.New("no merge base with HEAD")

// Repository is a git working tree opened from any path inside it.
type Repository struct {
	repo *git.Repository
	root string
}

// Open finds the repository containing path.
func Open(path string) (*Repository, error) {
	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", path, err)
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("failed to get worktree: %w", err)
	}
	root, err := filepath.Abs(wt.Filesystem.Root())
	if err != nil {
		return nil, err
	}

	return &Repository{repo: repo, root: root}, nil
}

// Root returns the absolute path of the working tree.
func (r *Repository) Root() string { return r.root }

// ResolveBaseline returns an error unless rev names a commit.
func (r *Repository) ResolveBaseline(_ context.Context, rev string) error {
	_, err := r.commit(rev)
	return err
}

// ChangedFiles lists files that differ between the merge base of rev and HEAD
// and HEAD itself, the same set "git diff --name-only rev...HEAD" prints.
// Deleted files are included; callers filter by existence.
func (r *Repository) ChangedFiles(ctx context.Context, rev string) ([]string, error) {
	base, err := r.commit(rev)
	if err != nil {
		return nil, err
	}
	head, err := r.commit(plumbing.HEAD.String())
	if err != nil {
		return nil, err
	}

	bases, err := base.MergeBase(head)
	if err != nil {
		return nil, fmt.Errorf("failed to compute merge base of %s and HEAD: %w", rev, err)
	}
	if len(bases) == 0 {
		return nil, fmt.Errorf("%s: %w", rev, ErrNoMergeBase)
	}

	fromTree, err := bases[0].Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get merge base tree: %w", err)
	}
	toTree, err := head.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get HEAD tree: %w", err)
	}

	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		files = append(files, name)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

func (r *Repository) commit(rev string) (*object.Commit, error) {
	hash, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %s: %w", rev, err)
	}
	c, err := r.repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", rev, err)
	}
	return c, nil
}

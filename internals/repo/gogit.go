package repo

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// GoGit reads repositories in process with go-git.
type GoGit struct{}

var _ Reader = GoGit{}

func NewGoGit() GoGit {
	return GoGit{}
}

// Open opens exactly path. Parent directories are not searched. Linked
// worktrees read refs and objects from the main repository.
func (GoGit) Open(path string) (Repository, error) {
	r, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{EnableDotGitCommonDir: true})
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) || os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotARepository)
		}
		return nil, fmt.Errorf("failed to open repository %s: %w", path, err)
	}
	return &goGitRepository{repo: r}, nil
}

type goGitRepository struct {
	repo *git.Repository
}

func (g *goGitRepository) Head() (*Commit, error) {
	c, err := g.headCommit()
	if err != nil {
		return nil, err
	}
	return &Commit{Hash: c.Hash.String(), Time: c.Committer.When}, nil
}

func (g *goGitRepository) headCommit() (*object.Commit, error) {
	ref, err := g.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrNoCommits
		}
		return nil, fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	c, err := g.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("failed to read HEAD commit: %w", err)
	}
	return c, nil
}

func (g *goGitRepository) MostRecentTaggedCommit() (*Commit, error) {
	index, err := g.tagIndex()
	if err != nil {
		return nil, err
	}
	if len(index) == 0 {
		return nil, nil
	}

	head, err := g.headCommit()
	if err != nil {
		if errors.Is(err, ErrNoCommits) {
			return nil, nil
		}
		return nil, err
	}

	iter, err := g.repo.Log(&git.LogOptions{From: head.Hash, Order: git.LogOrderCommitterTime})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history: %w", err)
	}
	defer iter.Close()

	var found *Commit
	err = iter.ForEach(func(c *object.Commit) error {
		tags, ok := index[c.Hash]
		if !ok {
			return nil
		}
		sort.Strings(tags)
		found = &Commit{Hash: c.Hash.String(), Tags: tags, Time: c.Committer.When}
		return storer.ErrStop
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk history: %w", err)
	}
	return found, nil
}

// tagIndex maps commit hashes to the names of the tags pointing at them.
// Annotated tags are peeled to their commit; tags of trees or blobs are
// skipped.
func (g *goGitRepository) tagIndex() (map[plumbing.Hash][]string, error) {
	refs, err := g.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("failed to list tags: %w", err)
	}
	defer refs.Close()

	index := map[plumbing.Hash][]string{}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		target := ref.Hash()
		tag, err := g.repo.TagObject(target)
		switch {
		case err == nil:
			c, err := tag.Commit()
			if err != nil {
				return nil
			}
			target = c.Hash
		case errors.Is(err, plumbing.ErrObjectNotFound):
		default:
			return err
		}
		index[target] = append(index[target], ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}
	return index, nil
}

// IsDirty reports uncommitted changes to tracked files. Untracked files do
// not make a worktree dirty.
func (g *goGitRepository) IsDirty() (bool, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		if errors.Is(err, git.ErrIsBareRepository) {
			return false, nil
		}
		return false, fmt.Errorf("failed to open worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("failed to read worktree status: %w", err)
	}
	for _, file := range status {
		if file.Staging == git.Untracked && file.Worktree == git.Untracked {
			continue
		}
		if file.Staging != git.Unmodified || file.Worktree != git.Unmodified {
			return true, nil
		}
	}
	return false, nil
}

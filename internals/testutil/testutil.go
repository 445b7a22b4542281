package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Repo is a throwaway repository rooted in a test temp dir.
type Repo struct {
	t    *testing.T
	Path string
	Git  *git.Repository
}

// TempRepo creates an empty repository. Nothing is committed yet.
func TempRepo(t *testing.T) *Repo {
	t.Helper()
	root := t.TempDir()
	r, err := git.PlainInit(root, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	return &Repo{t: t, Path: root, Git: r}
}

// Commit writes content to name, stages it and commits with author and
// committer time set to when.
func (r *Repo) Commit(name string, content string, when time.Time) plumbing.Hash {
	r.t.Helper()
	r.WriteFile(name, content)
	wt, err := r.Git.Worktree()
	if err != nil {
		r.t.Fatalf("worktree: %v", err)
	}
	if _, err := wt.Add(name); err != nil {
		r.t.Fatalf("git add %s: %v", name, err)
	}
	sig := &object.Signature{Name: "Test User", Email: "test@example.com", When: when}
	hash, err := wt.Commit("update "+name, &git.CommitOptions{Author: sig, Committer: sig})
	if err != nil {
		r.t.Fatalf("git commit: %v", err)
	}
	return hash
}

func (r *Repo) Tag(name string, hash plumbing.Hash) {
	r.t.Helper()
	if _, err := r.Git.CreateTag(name, hash, nil); err != nil {
		r.t.Fatalf("git tag %s: %v", name, err)
	}
}

func (r *Repo) AnnotatedTag(name string, hash plumbing.Hash, when time.Time) {
	r.t.Helper()
	opts := &git.CreateTagOptions{
		Tagger:  &object.Signature{Name: "Test User", Email: "test@example.com", When: when},
		Message: "release " + name,
	}
	if _, err := r.Git.CreateTag(name, hash, opts); err != nil {
		r.t.Fatalf("git tag -a %s: %v", name, err)
	}
}

// WriteFile writes a file in the worktree without staging it.
func (r *Repo) WriteFile(name string, content string) {
	r.t.Helper()
	path := filepath.Join(r.Path, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		r.t.Fatalf("write %s: %v", name, err)
	}
}

// At returns a fixed instant that is easy to read in failures.
func At(year int, month time.Month, day, hour, minute int) time.Time {
	return time.Date(year, month, day, hour, minute, 0, 0, time.UTC)
}

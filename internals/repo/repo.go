// Package repo reads the little version control state verstamp needs: the
// most recent tagged commit, whether the worktree is dirty and the HEAD
// commit time.
package repo

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

var (
	ErrNotARepository = errors.New("not a repository")
	// ErrUnavailable means no backend could be loaded for reading repositories.
	ErrUnavailable = errors.New("source control support unavailable")
	// ErrNoCommits is returned for repositories whose HEAD is unborn.
	ErrNoCommits = errors.New("repository has no commits")
)

type Commit struct {
	Hash string
	// Tags holds every tag name pointing at the commit, sorted.
	Tags []string
	Time time.Time
}

type Repository interface {
	// MostRecentTaggedCommit returns the newest commit reachable from HEAD
	// that carries at least one tag, or nil when there is none.
	MostRecentTaggedCommit() (*Commit, error)
	IsDirty() (bool, error)
	Head() (*Commit, error)
}

type Reader interface {
	Open(path string) (Repository, error)
}

type Kind string

const (
	KindAuto  Kind = "auto"
	KindGoGit Kind = "gogit"
	KindGit   Kind = "git"
	KindNone  Kind = "none"
)

func Kinds() []Kind {
	return []Kind{KindAuto, KindGoGit, KindGit, KindNone}
}

// Null never opens anything. It stands in when no backend is usable.
type Null struct{}

var _ Reader = Null{}

func (Null) Open(path string) (Repository, error) {
	return nil, fmt.Errorf("%s: %w", path, ErrUnavailable)
}

// Probe picks a Reader for kind. A backend that cannot be used is replaced
// by Null so callers fall back to timestamp versioning.
func Probe(kind Kind, logger *slog.Logger) Reader {
	switch kind {
	case KindAuto, KindGoGit, "":
		return NewGoGit()
	case KindGit:
		path, err := lookPath("git")
		if err != nil {
			logger.Debug("git executable not found, versioning without repository", slog.Any("error", err))
			return Null{}
		}
		return NewGitCLI(path)
	case KindNone:
		return Null{}
	default:
		logger.Warn("unknown source control backend, versioning without repository", slog.String("kind", string(kind)))
		return Null{}
	}
}

// Package resolver computes the current project version.
//
// Three sources feed the result, in this order:
//
//  1. The newest tagged commit reachable from HEAD. If one of its tags starts
//     with "v", the rest of the tag name is parsed as a partial version.
//  2. Time: the dirty worktree's "now", or else the HEAD commit time. Build
//     and revision are always taken from time when a repository is found, so
//     only major and minor of a release tag survive. This is intentional.
//  3. VERSTAMP_MAJOR and VERSTAMP_MINOR.
//
// Without a repository the result is 0.0 plus the encoded current time.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/Oudwins/verstamp/internals/repo"
	"github.com/Oudwins/verstamp/internals/sink"
	"github.com/Oudwins/verstamp/internals/version"
)

// TagPrefix marks release tags. Matching is case-sensitive.
const TagPrefix = "v"

// Overrides replace leading components after everything else is resolved.
// Empty strings mean no override.
type Overrides struct {
	Major string
	Minor string
}

type Resolver struct {
	Reader    repo.Reader
	Overrides Overrides
	Now       func() time.Time
	Runner    sink.Runner
	// RewriteRoot replaces the project directory as the rewrite target.
	RewriteRoot string
	Logger      *slog.Logger
}

func (r *Resolver) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Resolver) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (r *Resolver) reader() repo.Reader {
	if r.Reader != nil {
		return r.Reader
	}
	return repo.Null{}
}

// Resolve returns the version of the project at path.
func (r *Resolver) Resolve(ctx context.Context, path string) (version.Info, error) {
	if err := ctx.Err(); err != nil {
		return version.Info{}, err
	}
	log := r.logger()
	now := r.now()
	v := version.Stamp(version.Info{}, now)

	opened, err := r.reader().Open(path)
	switch {
	case err == nil:
		v, err = r.fromRepository(ctx, opened, v, now)
		if err != nil {
			return version.Info{}, err
		}
	case errors.Is(err, repo.ErrNotARepository), errors.Is(err, repo.ErrUnavailable):
		log.DebugContext(ctx, "versioning from current time", slog.String("path", path), slog.Any("reason", err))
	default:
		return version.Info{}, err
	}

	v, err = r.applyOverrides(v)
	if err != nil {
		return version.Info{}, err
	}
	log.DebugContext(ctx, "resolved version", slog.String("path", path), slog.String("version", v.String()))
	return v, nil
}

func (r *Resolver) fromRepository(ctx context.Context, opened repo.Repository, v version.Info, now time.Time) (version.Info, error) {
	log := r.logger()

	tagged, err := opened.MostRecentTaggedCommit()
	if err != nil {
		return version.Info{}, fmt.Errorf("failed to find tagged commit: %w", err)
	}
	if tagged != nil {
		if tag, ok := releaseTag(tagged.Tags); ok {
			parts, err := version.Parse(strings.TrimPrefix(tag, TagPrefix))
			if err != nil {
				return version.Info{}, fmt.Errorf("tag %s: %w", tag, err)
			}
			v = version.Overlay(v, parts)
			log.DebugContext(ctx, "using release tag", slog.String("tag", tag), slog.String("commit", tagged.Hash))
		} else {
			log.DebugContext(ctx, "newest tagged commit has no release tag", slog.String("commit", tagged.Hash), slog.Any("tags", tagged.Tags))
		}
	}

	dirty, err := opened.IsDirty()
	if err != nil {
		return version.Info{}, fmt.Errorf("failed to read worktree state: %w", err)
	}
	if dirty {
		log.DebugContext(ctx, "worktree is dirty, stamping current time")
		return version.Stamp(v, now), nil
	}

	head, err := opened.Head()
	if err != nil {
		if errors.Is(err, repo.ErrNoCommits) {
			log.DebugContext(ctx, "repository has no commits, stamping current time")
			return version.Stamp(v, now), nil
		}
		return version.Info{}, fmt.Errorf("failed to read HEAD: %w", err)
	}
	return version.Stamp(v, head.Time), nil
}

// releaseTag picks the tag carrying the version. When several tags start
// with the prefix the greatest name wins so the choice is stable.
func releaseTag(tags []string) (string, bool) {
	best := ""
	found := false
	for _, tag := range tags {
		if !strings.HasPrefix(tag, TagPrefix) {
			continue
		}
		if !found || tag > best {
			best = tag
			found = true
		}
	}
	return best, found
}

func (r *Resolver) applyOverrides(v version.Info) (version.Info, error) {
	if r.Overrides.Major != "" {
		n, err := version.ParseComponent(r.Overrides.Major)
		if err != nil {
			return version.Info{}, fmt.Errorf("major override: %w", err)
		}
		v.Major = n
	}
	if r.Overrides.Minor != "" {
		n, err := version.ParseComponent(r.Overrides.Minor)
		if err != nil {
			return version.Info{}, fmt.Errorf("minor override: %w", err)
		}
		v.Minor = n
	}
	return v, nil
}

// Publish writes a version into the project at path through the rewrite
// sink. explicit, when set, must be a full four component version and
// replaces resolution.
func (r *Resolver) Publish(ctx context.Context, path string, explicit string) error {
	var v version.Info
	var err error
	if explicit != "" {
		v, err = version.ParseFull(explicit)
	} else {
		v, err = r.Resolve(ctx, path)
	}
	if err != nil {
		return err
	}
	if r.Runner == nil {
		return errors.New("no rewrite runner configured")
	}

	target := path
	if r.RewriteRoot != "" {
		target = r.RewriteRoot
	}
	r.logger().DebugContext(ctx, "publishing version", slog.String("target", target), slog.String("version", v.String()))
	return sink.Publish(ctx, r.Runner, target, v.String())
}

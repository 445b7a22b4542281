package repo

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

type commandFunc func(name string, args ...string) *exec.Cmd

var execCommand commandFunc = exec.Command

var lookPath = exec.LookPath

// GitCLI reads repositories by running the git executable.
type GitCLI struct {
	git string
}

var _ Reader = GitCLI{}

func NewGitCLI(gitPath string) GitCLI {
	if gitPath == "" {
		gitPath = "git"
	}
	return GitCLI{git: gitPath}
}

// Open accepts path only when it is the top level of a worktree.
func (g GitCLI) Open(path string) (Repository, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotARepository)
		}
		return nil, fmt.Errorf("failed to stat path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotARepository)
	}

	r := &gitCLIRepository{git: g.git, path: path}
	top, err := r.run("rev-parse", "--show-toplevel")
	if err != nil {
		if strings.Contains(err.Error(), "not a git repository") {
			return nil, fmt.Errorf("%s: %w", path, ErrNotARepository)
		}
		return nil, err
	}
	if !samePath(top, path) {
		return nil, fmt.Errorf("%s is inside %s: %w", path, top, ErrNotARepository)
	}
	return r, nil
}

func samePath(a string, b string) bool {
	resolve := func(p string) string {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
		if resolved, err := filepath.EvalSymlinks(p); err == nil {
			p = resolved
		}
		return filepath.Clean(p)
	}
	return resolve(a) == resolve(b)
}

type gitCLIRepository struct {
	git  string
	path string
}

// run returns the trimmed stdout of git. Stderr only feeds error messages.
func (r *gitCLIRepository) run(args ...string) (string, error) {
	full := append([]string{"-C", r.path}, args...)
	cmd := execCommand(r.git, full...)
	output, err := cmd.Output()
	if err != nil {
		msg := err.Error()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			if stderr := strings.TrimSpace(string(exitErr.Stderr)); stderr != "" {
				msg = stderr
			}
		}
		return "", fmt.Errorf("git %s failed: %s", strings.Join(args, " "), msg)
	}
	return strings.TrimSpace(string(output)), nil
}

func (r *gitCLIRepository) Head() (*Commit, error) {
	out, err := r.run("log", "-1", "--format=%H %ct", "HEAD")
	if err != nil {
		if isUnbornHead(err) {
			return nil, ErrNoCommits
		}
		return nil, err
	}
	return parseHashAndTime(out)
}

// tagRefFormat lists each tag with its own object and the object it peels
// to. Ref names cannot contain tabs.
const tagRefFormat = "%(refname:short)\t%(objecttype)\t%(objectname)\t%(*objecttype)\t%(*objectname)"

// MostRecentTaggedCommit walks HEAD history newest committer time first,
// the order rev-list uses by default, and stops at the first tagged commit.
func (r *gitCLIRepository) MostRecentTaggedCommit() (*Commit, error) {
	refs, err := r.run("for-each-ref", "--format="+tagRefFormat, "refs/tags")
	if err != nil {
		return nil, err
	}
	index := parseTagRefs(refs)
	if len(index) == 0 {
		return nil, nil
	}

	history, err := r.run("rev-list", "HEAD")
	if err != nil {
		if isUnbornHead(err) {
			return nil, nil
		}
		return nil, err
	}
	for _, hash := range strings.Fields(history) {
		tags, ok := index[hash]
		if !ok {
			continue
		}
		out, err := r.run("log", "-1", "--format=%H %ct", hash)
		if err != nil {
			return nil, err
		}
		commit, err := parseHashAndTime(out)
		if err != nil {
			return nil, err
		}
		sort.Strings(tags)
		commit.Tags = tags
		return commit, nil
	}
	return nil, nil
}

// parseTagRefs maps commit hashes to tag names. Annotated tags are peeled
// once; tags of trees or blobs are skipped.
func parseTagRefs(out string) map[string][]string {
	index := map[string][]string{}
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			continue
		}
		// trimming the output drops empty peeled fields from the last line
		for len(fields) < 5 {
			fields = append(fields, "")
		}
		name, kind, target := fields[0], fields[1], fields[2]
		if kind == "tag" {
			kind, target = fields[3], fields[4]
		}
		if kind != "commit" || target == "" {
			continue
		}
		index[target] = append(index[target], name)
	}
	return index
}

func (r *gitCLIRepository) IsDirty() (bool, error) {
	out, err := r.run("status", "--porcelain", "--untracked-files=no")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func parseHashAndTime(out string) (*Commit, error) {
	fields := strings.Fields(out)
	if len(fields) != 2 {
		return nil, fmt.Errorf("unexpected git log output %q", out)
	}
	seconds, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("unexpected commit time %q: %w", fields[1], err)
	}
	return &Commit{Hash: fields[0], Time: time.Unix(seconds, 0).UTC()}, nil
}

func isUnbornHead(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not have any commits") ||
		strings.Contains(msg, "unknown revision") ||
		strings.Contains(msg, "Not a valid object name") ||
		strings.Contains(msg, "bad default revision")
}

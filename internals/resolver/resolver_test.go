package resolver

import (
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Oudwins/verstamp/internals/repo"
	"github.com/Oudwins/verstamp/internals/sink"
	"github.com/Oudwins/verstamp/internals/testutil"
	"github.com/Oudwins/verstamp/internals/version"
)

var fixedNow = testutil.At(2026, time.October, 19, 8, 42)

func newResolver(reader repo.Reader) *Resolver {
	return &Resolver{
		Reader: reader,
		Now:    func() time.Time { return fixedNow },
	}
}

func TestResolveWithoutRepository(t *testing.T) {
	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, version.New(0, 0, 26292, 9042), got)
}

func TestResolveWithoutRepositoryUsesWallClock(t *testing.T) {
	r := &Resolver{Reader: repo.NewGoGit()}
	before := time.Now().UTC()
	got, err := r.Resolve(context.Background(), t.TempDir())
	after := time.Now().UTC()
	require.NoError(t, err)

	assert.Zero(t, got.Major)
	assert.Zero(t, got.Minor)
	b1, r1 := version.Encode(before)
	b2, r2 := version.Encode(after)
	matches := (got.Build == b1 && got.Revision == r1) || (got.Build == b2 && got.Revision == r2)
	assert.True(t, matches, "got %s, expected encoding of %s..%s", got, before, after)
}

func TestResolveWithUnavailableBackend(t *testing.T) {
	got, err := newResolver(repo.Null{}).Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, version.New(0, 0, 26292, 9042), got)
}

func TestResolveCleanTaggedRepository(t *testing.T) {
	r := testutil.TempRepo(t)
	committed := testutil.At(2024, time.May, 1, 10, 0)
	r.Tag("v3.5", r.Commit("README.md", "one", committed))

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, version.New(3, 5, 24122, 11000), got)
}

func TestResolveDirtyTaggedRepository(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("v3.5", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))
	r.WriteFile("README.md", "changed")

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, version.New(3, 5, 26292, 9042), got)
}

func TestResolveLinkedWorktree(t *testing.T) {
	gitPath, err := exec.LookPath("git")
	if err != nil {
		t.Skip("git not installed")
	}
	r := testutil.TempRepo(t)
	r.Tag("v3.5", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))
	linked := filepath.Join(t.TempDir(), "wt")
	out, err := exec.Command(gitPath, "-C", r.Path, "worktree", "add", "--detach", linked).CombinedOutput()
	require.NoError(t, err, "git worktree add: %s", out)

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), linked)
	require.NoError(t, err)
	assert.Equal(t, version.New(3, 5, 24122, 11000), got)
}

func TestResolveCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newResolver(repo.Null{}).Resolve(ctx, t.TempDir())
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolveFullTagKeepsOnlyMajorMinor(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("v1.2.3.4", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, version.New(1, 2, 24122, 11000), got)
}

func TestResolveUntaggedRepositoryUsesHeadTime(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0))
	r.Commit("README.md", "two", testutil.At(2024, time.June, 2, 0, 7))

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, version.New(0, 0, 24154, 1007), got)
}

func TestResolveNewestTagWithoutPrefixIsIgnored(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("v9.9", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))
	r.Tag("release-2", r.Commit("README.md", "two", testutil.At(2024, time.May, 2, 10, 0)))

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, version.New(0, 0, 24123, 11000), got)
}

func TestResolveTagPrefixIsCaseSensitive(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("V3.5", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))

	got, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Major)
	assert.Equal(t, uint64(0), got.Minor)
}

func TestResolveMalformedReleaseTag(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("v3.x", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))

	_, err := newResolver(repo.NewGoGit()).Resolve(context.Background(), r.Path)
	require.ErrorIs(t, err, version.ErrMalformedComponent)
	assert.Contains(t, err.Error(), "v3.x")
}

func TestResolveEnvironmentOverrides(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("v3.5", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))

	res := newResolver(repo.NewGoGit())
	res.Overrides = Overrides{Major: "7"}
	got, err := res.Resolve(context.Background(), r.Path)
	require.NoError(t, err)
	assert.Equal(t, version.New(7, 5, 24122, 11000), got)

	res.Overrides = Overrides{Major: "7", Minor: "0"}
	got, err = res.Resolve(context.Background(), t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, version.New(7, 0, 26292, 9042), got)
}

func TestResolveMalformedOverride(t *testing.T) {
	res := newResolver(repo.Null{})
	res.Overrides = Overrides{Major: "7a"}
	_, err := res.Resolve(context.Background(), t.TempDir())
	require.ErrorIs(t, err, version.ErrMalformedComponent)

	res.Overrides = Overrides{Minor: "-1"}
	_, err = res.Resolve(context.Background(), t.TempDir())
	require.ErrorIs(t, err, version.ErrMalformedComponent)
}

type stubReader struct {
	repo repo.Repository
	err  error
}

func (s stubReader) Open(path string) (repo.Repository, error) {
	return s.repo, s.err
}

type stubRepository struct {
	tagged  *repo.Commit
	dirty   bool
	head    *repo.Commit
	headErr error
}

func (s *stubRepository) MostRecentTaggedCommit() (*repo.Commit, error) { return s.tagged, nil }
func (s *stubRepository) IsDirty() (bool, error) { return s.dirty, nil }
func (s *stubRepository) Head() (*repo.Commit, error) { return s.head, s.headErr }

func TestResolvePropagatesReaderErrors(t *testing.T) {
	boom := errors.New("permission denied")
	_, err := newResolver(stubReader{err: boom}).Resolve(context.Background(), "/src")
	require.ErrorIs(t, err, boom)
}

func TestResolvePicksGreatestReleaseTag(t *testing.T) {
	stub := &stubRepository{
		tagged: &repo.Commit{Hash: "abc", Tags: []string{"latest", "v1.0", "v1.1"}},
		head:   &repo.Commit{Hash: "abc", Time: testutil.At(2024, time.May, 1, 10, 0)},
	}
	got, err := newResolver(stubReader{repo: stub}).Resolve(context.Background(), "/src")
	require.NoError(t, err)
	assert.Equal(t, version.New(1, 1, 24122, 11000), got)
}

func TestResolveEmptyRepository(t *testing.T) {
	stub := &stubRepository{headErr: repo.ErrNoCommits}
	got, err := newResolver(stubReader{repo: stub}).Resolve(context.Background(), "/src")
	require.NoError(t, err)
	assert.Equal(t, version.New(0, 0, 26292, 9042), got)
}

func TestResolveHeadTimeConvertedToUTC(t *testing.T) {
	zone := time.FixedZone("UTC-5", -5*60*60)
	stub := &stubRepository{
		head: &repo.Commit{Hash: "abc", Time: time.Date(2024, time.April, 30, 21, 30, 0, 0, zone)},
	}
	got, err := newResolver(stubReader{repo: stub}).Resolve(context.Background(), "/src")
	require.NoError(t, err)
	assert.Equal(t, version.New(0, 0, 24122, 3030), got)
}

type recordingRunner struct {
	args [][]string
	code int
}

func (r *recordingRunner) Run(ctx context.Context, args []string) (int, error) {
	r.args = append(r.args, args)
	return r.code, nil
}

func TestPublishResolvedVersion(t *testing.T) {
	r := testutil.TempRepo(t)
	r.Tag("v3.5", r.Commit("README.md", "one", testutil.At(2024, time.May, 1, 10, 0)))

	runner := &recordingRunner{}
	res := newResolver(repo.NewGoGit())
	res.Runner = runner
	require.NoError(t, res.Publish(context.Background(), r.Path, ""))

	expected := [][]string{{"--sourcedir", r.Path, "kwargs", "set", "project", "/", "version", "3.5.24122.11000"}}
	assert.Equal(t, expected, runner.args)
}

func TestPublishExplicitVersion(t *testing.T) {
	runner := &recordingRunner{}
	res := newResolver(repo.Null{})
	res.Runner = runner
	res.RewriteRoot = "/dist/project-1.0"
	require.NoError(t, res.Publish(context.Background(), "/src", "1.2.3.4"))

	expected := [][]string{{"--sourcedir", "/dist/project-1.0", "kwargs", "set", "project", "/", "version", "1.2.3.4"}}
	assert.Equal(t, expected, runner.args)
}

func TestPublishRejectsPartialExplicitVersion(t *testing.T) {
	runner := &recordingRunner{}
	res := newResolver(repo.Null{})
	res.Runner = runner

	err := res.Publish(context.Background(), "/src", "1.2")
	require.ErrorIs(t, err, version.ErrIncompleteVersion)
	err = res.Publish(context.Background(), "/src", "1.2.x.4")
	require.ErrorIs(t, err, version.ErrMalformedComponent)
	assert.Empty(t, runner.args, "sink must not run for invalid versions")
}

func TestPublishPropagatesSinkFailure(t *testing.T) {
	res := newResolver(repo.Null{})
	res.Runner = &recordingRunner{code: 4}

	err := res.Publish(context.Background(), "/src", "1.2.3.4")
	var exitErr *sink.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 4, exitErr.Code)
}

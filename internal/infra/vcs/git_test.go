package vcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRepo struct {
	t    *testing.T
	dir  string
	repo *git.Repository
}

func initRepo(t *testing.T) *testRepo {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	return &testRepo{t: t, dir: dir, repo: repo}
}

func (r *testRepo) commit(msg string, files map[string]string) {
	r.t.Helper()
	wt, err := r.repo.Worktree()
	require.NoError(r.t, err)

	for name, content := range files {
		full := filepath.Join(r.dir, filepath.FromSlash(name))
		require.NoError(r.t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(r.t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(r.t, err)
	}

	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(r.t, err)
}

func TestOpen_FromSubdirectory(t *testing.T) {
	tr := initRepo(t)
	tr.commit("initial", map[string]string{"pkg/a.txt": "a"})

	repo, err := Open(filepath.Join(tr.dir, "pkg"))
	require.NoError(t, err)

	want, err := filepath.Abs(tr.dir)
	require.NoError(t, err)
	assert.Equal(t, want, repo.Root())
}

func TestOpen_NotARepository(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)
}

func TestResolveBaseline(t *testing.T) {
	tr := initRepo(t)
	tr.commit("initial", map[string]string{"a.txt": "a"})
	tr.commit("second", map[string]string{"a.txt": "changed"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)
	ctx := context.Background()

	assert.NoError(t, repo.ResolveBaseline(ctx, "HEAD~1"))
	assert.Error(t, repo.ResolveBaseline(ctx, "origin/main"))
	assert.Error(t, repo.ResolveBaseline(ctx, "HEAD~5"))
}

func TestChangedFiles(t *testing.T) {
	tr := initRepo(t)
	tr.commit("initial", map[string]string{"a.txt": "a", "untouched.txt": "same"})
	tr.commit("second", map[string]string{"a.txt": "changed", "dir/b.txt": "new"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	files, err := repo.ChangedFiles(context.Background(), "HEAD~1")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dir/b.txt"}, files)
}

func TestChangedFiles_UnknownRevision(t *testing.T) {
	tr := initRepo(t)
	tr.commit("initial", map[string]string{"a.txt": "a"})

	repo, err := Open(tr.dir)
	require.NoError(t, err)

	_, err = repo.ChangedFiles(context.Background(), "main-does-not-exist")
	assert.Error(t, err)
}

package fetch

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/repo"
)

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func TestFetchAllDownloadsAndCaches(t *testing.T) {
	srcRoot := t.TempDir()
	cacheDir := t.TempDir()
	content := []byte("package payload")
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "pkgs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "pkgs", "foo.pkg"), content, 0o644))

	item := &pkginfo.Item{Name: "Foo", InstallerItemLocation: "pkgs/foo.pkg", InstallerItemHash: md5Hex(content)}
	sched := New(repo.NewFileRepo(srcRoot), cacheDir, 2)

	results, failures := sched.FetchAll(context.Background(), []*pkginfo.Item{item})

	assert.Empty(t, failures)
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)
	got, err := os.ReadFile(results[0].CachePath)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFetchAllSkipsWhenCacheHashMatches(t *testing.T) {
	srcRoot := t.TempDir()
	cacheDir := t.TempDir()
	content := []byte("already cached")
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "foo.pkg"), content, 0o644))

	item := &pkginfo.Item{Name: "Foo", InstallerItemLocation: "pkgs/foo.pkg", InstallerItemHash: md5Hex(content)}
	sched := New(repo.NewFileRepo(srcRoot), cacheDir, 1)

	results, failures := sched.FetchAll(context.Background(), []*pkginfo.Item{item})

	assert.Empty(t, failures)
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
}

func TestFetchAllHashMismatchReportsFailure(t *testing.T) {
	srcRoot := t.TempDir()
	cacheDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(srcRoot, "pkgs"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "pkgs", "foo.pkg"), []byte("actual"), 0o644))

	item := &pkginfo.Item{Name: "Foo", InstallerItemLocation: "pkgs/foo.pkg", InstallerItemHash: md5Hex([]byte("expected"))}
	sched := New(repo.NewFileRepo(srcRoot), cacheDir, 1)
	sched.RetryConfig.MaxAttempts = 1

	results, failures := sched.FetchAll(context.Background(), []*pkginfo.Item{item})

	assert.Empty(t, results)
	require.Len(t, failures, 1)
	assert.Equal(t, "Foo", failures[0].Name)
	assert.Equal(t, "integrity check failed", failures[0].Note)
	_, err := os.Stat(filepath.Join(cacheDir, "foo.pkg"))
	assert.True(t, os.IsNotExist(err))
}

func TestSweepRemovesUnreferencedFiles(t *testing.T) {
	cacheDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "keep.pkg"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cacheDir, "stale.pkg"), []byte("y"), 0o644))

	sched := New(repo.NewFileRepo(t.TempDir()), cacheDir, 1)
	keepItem := &pkginfo.Item{InstallerItemLocation: "pkgs/keep.pkg"}

	require.NoError(t, sched.Sweep([]*pkginfo.Item{keepItem}))

	_, err := os.Stat(filepath.Join(cacheDir, "keep.pkg"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(cacheDir, "stale.pkg"))
	assert.True(t, os.IsNotExist(err))
}

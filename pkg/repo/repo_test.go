package repo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileRepoGetPutRoundTrip(t *testing.T) {
	r := NewFileRepo(t.TempDir())

	require.NoError(t, r.Put("catalogs/production", []byte("hello")))

	data, err := r.Get("catalogs/production")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
}

func TestFileRepoGetNotFound(t *testing.T) {
	r := NewFileRepo(t.TempDir())
	_, err := r.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileRepoFetchToFileConditional(t *testing.T) {
	root := t.TempDir()
	r := NewFileRepo(root)
	require.NoError(t, r.Put("manifests/site", []byte("v1")))

	cacheDir := t.TempDir()
	dest := filepath.Join(cacheDir, "site")

	status, err := r.FetchToFile("manifests/site", dest, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, Fetched, status)

	future := time.Now().Add(time.Hour)
	status, err = r.FetchToFile("manifests/site", dest, future)
	require.NoError(t, err)
	assert.Equal(t, NotModified, status)
}

func TestFileRepoList(t *testing.T) {
	r := NewFileRepo(t.TempDir())
	require.NoError(t, r.Put("pkgsinfo/a.plist", []byte("a")))
	require.NoError(t, r.Put("pkgsinfo/b.plist", []byte("b")))

	names, err := r.List("pkgsinfo")
	require.NoError(t, err)
	assert.Len(t, names, 2)
}

func TestFileRepoDelete(t *testing.T) {
	r := NewFileRepo(t.TempDir())
	require.NoError(t, r.Put("x", []byte("y")))
	require.NoError(t, r.Delete("x"))

	_, err := os.Stat(r.abs("x"))
	assert.True(t, os.IsNotExist(err))
}

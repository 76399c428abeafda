package catalogdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
)

func fakeFetch(catalogs map[string][]pkginfo.Item) func(string) ([]pkginfo.Item, error) {
	return func(name string) ([]pkginfo.Item, error) {
		return catalogs[name], nil
	}
}

func TestLoadAndNewest(t *testing.T) {
	catalogs := map[string][]pkginfo.Item{
		"production": {
			{Name: "FooApp", Version: "1.0"},
			{Name: "FooApp", Version: "2.0"},
		},
	}
	db, err := Load([]string{"production"}, fakeFetch(catalogs))
	require.NoError(t, err)

	newest, ok := db.Newest("FooApp", "")
	require.True(t, ok)
	assert.Equal(t, "2.0", newest.Version)

	exact, ok := db.Newest("FooApp", "1.0.0")
	require.True(t, ok)
	assert.Equal(t, "1.0", exact.Version)

	_, ok = db.Newest("Missing", "")
	assert.False(t, ok)
}

func TestByKeyAndUpdateFor(t *testing.T) {
	catalogs := map[string][]pkginfo.Item{
		"production": {
			{Name: "Base", Version: "1.0"},
			{Name: "BaseUpdate", Version: "1.1", UpdateFor: []string{"Base"}},
		},
	}
	db, err := Load([]string{"production"}, fakeFetch(catalogs))
	require.NoError(t, err)

	item, ok := db.ByKey(pkginfo.Key{Name: "Base", Version: "1.0"})
	require.True(t, ok)
	assert.Equal(t, "Base", item.Name)

	updates := db.UpdatesFor("Base")
	require.Len(t, updates, 1)
	assert.Equal(t, "BaseUpdate", updates[0].Name)
}

func TestByHash(t *testing.T) {
	catalogs := map[string][]pkginfo.Item{
		"production": {
			{Name: "FooApp", Version: "1.0", InstallerItemHash: "abc123"},
		},
	}
	db, err := Load([]string{"production"}, fakeFetch(catalogs))
	require.NoError(t, err)

	item, ok := db.ByHash("abc123")
	require.True(t, ok)
	assert.Equal(t, "FooApp", item.Name)
}

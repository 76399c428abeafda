package receipts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/resolver"
)

func TestPlanStoreSaveLoadRoundTrip(t *testing.T) {
	store := NewPlanStore(filepath.Join(t.TempDir(), "InstallInfo.plist"))
	plan := resolver.Plan{
		InstallList:  []*pkginfo.Item{{Name: "Foo", Version: "1.0"}},
		RemovalList:  []*pkginfo.Item{{Name: "Bar", Version: "2.0"}},
		ProblemItems: []resolver.ProblemItem{{Name: "Baz", Note: "not found in catalogs"}},
	}

	require.NoError(t, store.Save(plan))

	doc, err := store.Load()
	require.NoError(t, err)
	require.Len(t, doc.InstallList, 1)
	assert.Equal(t, "Foo", doc.InstallList[0].Name)
	assert.Equal(t, "1.0", doc.InstallList[0].Version)
	require.Len(t, doc.RemovalList, 1)
	assert.Equal(t, "Bar", doc.RemovalList[0].Name)
	require.Len(t, doc.ProblemItems, 1)
	assert.Equal(t, "not found in catalogs", doc.ProblemItems[0].Note)
}

func TestPlanStoreLoadMissingReturnsEmpty(t *testing.T) {
	store := NewPlanStore(filepath.Join(t.TempDir(), "missing.plist"))
	doc, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, doc.InstallList)
}

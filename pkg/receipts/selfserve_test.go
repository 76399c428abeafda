package receipts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelfServeStoreAddAndRemoveInstall(t *testing.T) {
	store := NewSelfServeStore(filepath.Join(t.TempDir(), "SelfServeManifest.plist"))

	require.NoError(t, store.AddInstall("Chrome"))
	require.NoError(t, store.AddInstall("Chrome")) // idempotent

	ss, err := store.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"Chrome"}, ss.ManagedInstalls)

	require.NoError(t, store.RemoveInstall("Chrome"))
	ss, err = store.Load()
	require.NoError(t, err)
	assert.Empty(t, ss.ManagedInstalls)
}

func TestSelfServeStoreLoadMissingReturnsEmpty(t *testing.T) {
	store := NewSelfServeStore(filepath.Join(t.TempDir(), "missing.plist"))
	ss, err := store.Load()
	require.NoError(t, err)
	assert.Empty(t, ss.ManagedInstalls)
	assert.Empty(t, ss.ManagedUninstalls)
}

func TestSelfServeStoreClearOnDemand(t *testing.T) {
	store := NewSelfServeStore(filepath.Join(t.TempDir(), "SelfServeManifest.plist"))
	require.NoError(t, store.AddInstall("Rerun"))
	require.NoError(t, store.ClearOnDemand("Rerun"))

	ss, err := store.Load()
	require.NoError(t, err)
	assert.NotContains(t, ss.ManagedInstalls, "Rerun")
}

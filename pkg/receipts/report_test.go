package receipts

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportStoreAppendAccumulates(t *testing.T) {
	store := NewReportStore(filepath.Join(t.TempDir(), "ManagedInstallReport.plist"))

	require.NoError(t, store.Append(ItemResult{Name: "Foo", Version: "1.0", Action: ActionInstall, Status: "installed"}))
	require.NoError(t, store.Append(ItemResult{Name: "Bar", Version: "2.0", Action: ActionRemove, Status: "removed", RestartAction: "restart_required"}))

	doc, err := store.Load()
	require.NoError(t, err)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "Foo", doc.Items[0].Name)
	assert.Equal(t, "Bar", doc.Items[1].Name)
	assert.True(t, doc.RestartNeeded)
}

package pkginfo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleItem() Item {
	return Item{
		Name:                  "FooApp",
		Version:               "2.0",
		DisplayName:           "Foo App",
		Catalogs:              []string{"production", "testing"},
		InstallerType:         InstallerPlatformPackage,
		InstallerItemLocation: "apps/FooApp-2.0.pkg",
		InstallerItemHash:     "deadbeef",
		InstallerItemSize:     1024,
		Uninstallable:         true,
		UninstallMethod:       UninstallReceiptRemoval,
		Installs: []InstallProbe{
			{Kind: ProbeApplication, Path: "/Applications/FooApp.app"},
		},
		Requires:            []string{"Lib-1.0"},
		BlockingApplications: []string{"FooApp"},
		RestartAction:        RestartNone,
		UnattendedInstall:    true,
		Extra: map[string]any{
			"notes": "internal authoring note",
		},
	}
}

func TestMarshalUnmarshalItemRoundTrip(t *testing.T) {
	item := sampleItem()

	data, err := MarshalItem(&item)
	require.NoError(t, err)

	got, err := UnmarshalItem(data)
	require.NoError(t, err)

	assert.Equal(t, item.Name, got.Name)
	assert.Equal(t, item.Version, got.Version)
	assert.Equal(t, item.Catalogs, got.Catalogs)
	assert.Equal(t, item.InstallerItemLocation, got.InstallerItemLocation)
	assert.Equal(t, item.Installs, got.Installs)
	assert.Equal(t, item.Requires, got.Requires)
	assert.Equal(t, item.Extra["notes"], got.Extra["notes"])
}

func TestUnmarshalCatalogPreservesUnknownKeys(t *testing.T) {
	items := []Item{sampleItem()}

	data, err := MarshalCatalog(items)
	require.NoError(t, err)

	got, err := UnmarshalCatalog(data)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "internal authoring note", got[0].Extra["notes"])
}

func TestInCatalog(t *testing.T) {
	item := sampleItem()
	assert.True(t, item.InCatalog("production"))
	assert.True(t, item.InCatalog("all"))
	assert.False(t, item.InCatalog("unlisted"))
}

func TestEffectiveVersionKeyDefaultsToShortVersion(t *testing.T) {
	probe := InstallProbe{Kind: ProbeApplication, Path: "/Applications/FooApp.app"}
	assert.Equal(t, "CFBundleShortVersionString", probe.EffectiveVersionKey())

	probe.VersionKey = "CFBundleVersion"
	assert.Equal(t, "CFBundleVersion", probe.EffectiveVersionKey())
}

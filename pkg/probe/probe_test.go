package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
)

type fakeReceipts struct {
	versions map[string]string
}

func (f fakeReceipts) InstalledVersion(packageID string) (string, bool) {
	v, ok := f.versions[packageID]
	return v, ok
}

func writePlist(t *testing.T, path, version string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	content := `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0"><dict>
<key>CFBundleShortVersionString</key><string>` + version + `</string>
</dict></plist>`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestStateNotPresentWhenPlistMissing(t *testing.T) {
	item := &pkginfo.Item{
		Name:    "FooApp",
		Version: "2.0",
		Installs: []pkginfo.InstallProbe{
			{Kind: pkginfo.ProbeApplication, Path: filepath.Join(t.TempDir(), "FooApp.app")},
		},
	}
	got := State(context.Background(), item, fakeReceipts{})
	assert.Equal(t, NotPresent, got)
}

func TestStateEqualWhenVersionMatches(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "FooApp.app")
	writePlist(t, filepath.Join(bundlePath, "Contents", "Info.plist"), "2.0")

	item := &pkginfo.Item{
		Name:    "FooApp",
		Version: "2.0.0",
		Installs: []pkginfo.InstallProbe{
			{Kind: pkginfo.ProbeApplication, Path: bundlePath},
		},
	}
	got := State(context.Background(), item, fakeReceipts{})
	assert.Equal(t, Equal, got)
}

func TestStateLowerWhenInstalledOlder(t *testing.T) {
	dir := t.TempDir()
	bundlePath := filepath.Join(dir, "FooApp.app")
	writePlist(t, filepath.Join(bundlePath, "Contents", "Info.plist"), "1.0")

	item := &pkginfo.Item{
		Name:    "FooApp",
		Version: "2.0",
		Installs: []pkginfo.InstallProbe{
			{Kind: pkginfo.ProbeApplication, Path: bundlePath},
		},
	}
	got := State(context.Background(), item, fakeReceipts{})
	assert.Equal(t, Lower, got)
}

func TestStateFromReceipts(t *testing.T) {
	item := &pkginfo.Item{
		Name:    "FooApp",
		Version: "2.0",
		Receipts: []pkginfo.Receipt{
			{PackageID: "com.example.fooapp", Version: "2.0"},
		},
	}
	got := State(context.Background(), item, fakeReceipts{versions: map[string]string{"com.example.fooapp": "2.0"}})
	assert.Equal(t, Equal, got)

	got = State(context.Background(), item, fakeReceipts{})
	assert.Equal(t, NotPresent, got)
}

func TestStateFileProbeMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "license.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	item := &pkginfo.Item{
		Name:    "FooApp",
		Version: "2.0",
		Installs: []pkginfo.InstallProbe{
			{Kind: pkginfo.ProbeFile, Path: path, MD5Checksum: "deadbeef"},
		},
	}
	got := State(context.Background(), item, fakeReceipts{})
	assert.Equal(t, Mismatch, got)
}

func TestStateNoDetectionMethodWarnsNotPresent(t *testing.T) {
	item := &pkginfo.Item{Name: "Undetectable", Version: "1.0"}
	got := State(context.Background(), item, fakeReceipts{})
	assert.Equal(t, NotPresent, got)
}

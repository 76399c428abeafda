package executor

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/receipts"
)

type fakeInstaller struct {
	outcome Outcome
	err     error
	calls   []string
}

func (f *fakeInstaller) Install(ctx context.Context, item *pkginfo.Item, payloadPath string) (Outcome, error) {
	f.calls = append(f.calls, item.Name)
	return f.outcome, f.err
}

type fakeUninstaller struct {
	outcome Outcome
	err     error
	paths   [][]string
}

func (f *fakeUninstaller) Uninstall(ctx context.Context, item *pkginfo.Item, paths []string) (Outcome, error) {
	f.paths = append(f.paths, paths)
	return f.outcome, f.err
}

func newTestExecutor(t *testing.T) (*Executor, *receipts.ReportStore) {
	t.Helper()
	report := receipts.NewReportStore(filepath.Join(t.TempDir(), "ManagedInstallReport.plist"))
	ex := New()
	ex.Report = report
	ex.CachePathFor = func(item *pkginfo.Item) string {
		return filepath.Join(t.TempDir(), item.Name+".pkg")
	}
	return ex, report
}

func TestRunInstallsSuccessRecordsResult(t *testing.T) {
	ex, report := newTestExecutor(t)
	fake := &fakeInstaller{outcome: Outcome{ExitStatus: 0}}
	ex.Adapters[pkginfo.InstallerPlatformPackage] = fake

	item := &pkginfo.Item{Name: "Firefox", Version: "1.0", InstallerType: pkginfo.InstallerPlatformPackage}
	skipped, restart, results := ex.RunInstalls(context.Background(), []*pkginfo.Item{item})

	assert.Empty(t, skipped)
	assert.False(t, restart)
	require.Len(t, results, 1)
	assert.False(t, results[0].Skipped)
	assert.Equal(t, []string{"Firefox"}, fake.calls)

	doc, err := report.Load()
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Equal(t, "installed", doc.Items[0].Status)
}

func TestRunInstallsUnattendedSkipsOptOutItem(t *testing.T) {
	ex, report := newTestExecutor(t)
	ex.Unattended = true
	fake := &fakeInstaller{outcome: Outcome{ExitStatus: 0}}
	ex.Adapters[pkginfo.InstallerPlatformPackage] = fake

	item := &pkginfo.Item{Name: "Firefox", InstallerType: pkginfo.InstallerPlatformPackage, UnattendedInstall: false}
	skipped, _, results := ex.RunInstalls(context.Background(), []*pkginfo.Item{item})

	assert.True(t, skipped["Firefox"])
	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Empty(t, fake.calls)

	doc, err := report.Load()
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Contains(t, doc.Items[0].Status, "skipped")
}

func TestRunInstallsPropagatesSkipToDependent(t *testing.T) {
	ex, _ := newTestExecutor(t)
	ex.Unattended = true
	fake := &fakeInstaller{outcome: Outcome{ExitStatus: 0}}
	ex.Adapters[pkginfo.InstallerPlatformPackage] = fake

	base := &pkginfo.Item{Name: "Base", InstallerType: pkginfo.InstallerPlatformPackage, UnattendedInstall: false}
	dependent := &pkginfo.Item{Name: "Dependent", InstallerType: pkginfo.InstallerPlatformPackage, UnattendedInstall: true, Requires: []string{"Base"}}

	skipped, _, results := ex.RunInstalls(context.Background(), []*pkginfo.Item{base, dependent})

	assert.True(t, skipped["Base"])
	assert.True(t, skipped["Dependent"])
	require.Len(t, results, 2)
	assert.Contains(t, results[1].Reason, "prerequisite Base skipped")
	assert.Empty(t, fake.calls)
}

func TestRunInstallsFailedInstallerRecordsFailure(t *testing.T) {
	ex, report := newTestExecutor(t)
	fake := &fakeInstaller{outcome: Outcome{ExitStatus: 1, Detail: "installer rejected payload"}}
	ex.Adapters[pkginfo.InstallerPlatformPackage] = fake

	item := &pkginfo.Item{Name: "Broken", InstallerType: pkginfo.InstallerPlatformPackage}
	_, restart, results := ex.RunInstalls(context.Background(), []*pkginfo.Item{item})

	assert.False(t, restart)
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)

	doc, err := report.Load()
	require.NoError(t, err)
	require.Len(t, doc.Items, 1)
	assert.Contains(t, doc.Items[0].Status, "install failed")
}

func TestRunInstallsRestartRequiredAggregates(t *testing.T) {
	ex, _ := newTestExecutor(t)
	fake := &fakeInstaller{outcome: Outcome{ExitStatus: 0, RestartHint: pkginfo.RestartRequired}}
	ex.Adapters[pkginfo.InstallerPlatformPackage] = fake

	item := &pkginfo.Item{Name: "Kernel", InstallerType: pkginfo.InstallerPlatformPackage}
	_, restart, _ := ex.RunInstalls(context.Background(), []*pkginfo.Item{item})
	assert.True(t, restart)
}

func TestRunInstallsOnDemandClearsSelfServe(t *testing.T) {
	ex, _ := newTestExecutor(t)
	selfServe := receipts.NewSelfServeStore(filepath.Join(t.TempDir(), "SelfServeManifest.plist"))
	require.NoError(t, selfServe.AddInstall("Rerun"))
	ex.SelfServe = selfServe

	fake := &fakeInstaller{outcome: Outcome{ExitStatus: 0}}
	ex.Adapters[pkginfo.InstallerPlatformPackage] = fake

	item := &pkginfo.Item{Name: "Rerun", InstallerType: pkginfo.InstallerPlatformPackage, OnDemand: true}
	ex.RunInstalls(context.Background(), []*pkginfo.Item{item})

	ss, err := selfServe.Load()
	require.NoError(t, err)
	assert.NotContains(t, ss.ManagedInstalls, "Rerun")
}

func TestRunRemovalsNotUninstallableFails(t *testing.T) {
	ex, _ := newTestExecutor(t)
	item := &pkginfo.Item{Name: "Locked", Uninstallable: false}
	_, results := ex.RunRemovals(context.Background(), []*pkginfo.Item{item})
	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
}

func TestRunRemovalsReceiptRemovalPassesUniquePathsToAdapter(t *testing.T) {
	ex, _ := newTestExecutor(t)
	db, err := receipts.OpenPathDB(filepath.Join(t.TempDir(), "receipts.db"))
	require.NoError(t, err)
	defer db.Close()
	ex.PathDB = db

	require.NoError(t, db.RecordPackage("Foo-1.0", "com.example.foo", "1.0", ""))
	require.NoError(t, db.RecordPath("Foo-1.0", receipts.PathEntry{Path: "/tmp/foo-only"}))

	fake := &fakeUninstaller{outcome: Outcome{ExitStatus: 0}}
	ex.UninstallAdapters[pkginfo.UninstallReceiptRemoval] = fake

	item := &pkginfo.Item{Name: "Foo", Version: "1.0", Uninstallable: true, UninstallMethod: pkginfo.UninstallReceiptRemoval}
	_, results := ex.RunRemovals(context.Background(), []*pkginfo.Item{item})

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	require.Len(t, fake.paths, 1)
	assert.Equal(t, []string{"/tmp/foo-only"}, fake.paths[0])

	_, ok := db.InstalledVersion("com.example.foo")
	assert.False(t, ok)
}

func TestRunRemovalsUnattendedSkipsOptOutItem(t *testing.T) {
	ex, _ := newTestExecutor(t)
	ex.Unattended = true
	fake := &fakeUninstaller{outcome: Outcome{ExitStatus: 0}}
	ex.UninstallAdapters[pkginfo.UninstallScript] = fake

	item := &pkginfo.Item{Name: "Foo", Uninstallable: true, UninstallMethod: pkginfo.UninstallScript, UnattendedUninstall: false}
	_, results := ex.RunRemovals(context.Background(), []*pkginfo.Item{item})

	require.Len(t, results, 1)
	assert.True(t, results[0].Skipped)
	assert.Empty(t, fake.paths)
}

package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windowsadmins/cimian/pkg/catalogdb"
	"github.com/windowsadmins/cimian/pkg/hostfacts"
	"github.com/windowsadmins/cimian/pkg/manifest"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/probe"
)

func buildDB(t *testing.T, items []pkginfo.Item) *catalogdb.DB {
	t.Helper()
	db, err := catalogdb.Load([]string{"production"}, func(string) ([]pkginfo.Item, error) {
		return items, nil
	})
	require.NoError(t, err)
	return db
}

func probeFrom(states map[string]probe.Result) ProbeFunc {
	return func(_ context.Context, item *pkginfo.Item) probe.Result {
		if r, ok := states[item.Name]; ok {
			return r
		}
		return probe.NotPresent
	}
}

func installNames(plan Plan) []string {
	names := make([]string, 0, len(plan.InstallList))
	for _, it := range plan.InstallList {
		names = append(names, it.Name)
	}
	return names
}

func removalNames(plan Plan) []string {
	names := make([]string, 0, len(plan.RemovalList))
	for _, it := range plan.RemovalList {
		names = append(names, it.Name)
	}
	return names
}

func TestResolveStraightInstall(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{{Name: "Base", Version: "1.0", Catalogs: []string{"production"}}})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"Base"}}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(nil), 0)

	assert.Equal(t, []string{"Base"}, installNames(plan))
	assert.Empty(t, plan.ProblemItems)
}

func TestResolveDependencyOrdering(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{
		{Name: "App", Version: "1.0", Catalogs: []string{"production"}, Requires: []string{"Lib"}},
		{Name: "Lib", Version: "1.0", Catalogs: []string{"production"}},
	})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"App"}}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(nil), 0)

	assert.Equal(t, []string{"Lib", "App"}, installNames(plan))
}

func TestResolveUpdateChainSkipsInstalledBase(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{
		{Name: "Base", Version: "1.0", Catalogs: []string{"production"}},
		{Name: "BaseUpdate", Version: "1.1", Catalogs: []string{"production"}, UpdateFor: []string{"Base"}},
	})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"Base"}}
	states := map[string]probe.Result{"Base": probe.Equal, "BaseUpdate": probe.NotPresent}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(states), 0)

	assert.Equal(t, []string{"BaseUpdate"}, installNames(plan))
}

func TestResolveManagedUpdateNotScheduledWhenNeverInstalled(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{{Name: "Tool", Version: "2.0", Catalogs: []string{"production"}}})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedUpdates: []string{"Tool"}}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(nil), 0)

	assert.Empty(t, plan.InstallList)
	assert.Empty(t, plan.ProblemItems)
}

func TestResolveRemovalWithReverseDependency(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{
		{Name: "App", Version: "1.0", Catalogs: []string{"production"}, Requires: []string{"Lib"}, Uninstallable: true},
		{Name: "Lib", Version: "1.0", Catalogs: []string{"production"}, Uninstallable: true},
	})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedUninstalls: []string{"Lib"}}
	states := map[string]probe.Result{"App": probe.Equal, "Lib": probe.Equal}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(states), 0)

	assert.Equal(t, []string{"App", "Lib"}, removalNames(plan))
}

func TestResolveDiskSpaceBudgetDemotesLastScheduled(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{
		{Name: "Small", Version: "1.0", Catalogs: []string{"production"}, InstallerItemSize: 100},
		{Name: "Big", Version: "1.0", Catalogs: []string{"production"}, InstallerItemSize: 900},
	})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"Small", "Big"}}
	facts := hostfacts.Facts{DiskFreeMB: 500}

	plan := Resolve(context.Background(), db, eff, facts, probeFrom(nil), 0)

	assert.Equal(t, []string{"Small"}, installNames(plan))
	require.Len(t, plan.ProblemItems, 1)
	assert.Equal(t, "Big", plan.ProblemItems[0].Name)
	assert.Equal(t, "insufficient disk space", plan.ProblemItems[0].Note)
}

func TestResolveOnDemandReinstalledEvenWhenPresent(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{{Name: "Rerun", Version: "1.0", Catalogs: []string{"production"}, OnDemand: true}})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"Rerun"}}
	states := map[string]probe.Result{"Rerun": probe.Equal}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(states), 0)

	assert.Equal(t, []string{"Rerun"}, installNames(plan))
}

func TestResolveGatingFailureProducesProblemItem(t *testing.T) {
	db := buildDB(t, []pkginfo.Item{{
		Name: "Tool", Version: "1.0", Catalogs: []string{"production"},
		SupportedArchitectures: []string{"arm64"},
	}})
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"Tool"}}
	facts := hostfacts.Facts{Architecture: "amd64"}

	plan := Resolve(context.Background(), db, eff, facts, probeFrom(nil), 0)

	assert.Empty(t, plan.InstallList)
	require.Len(t, plan.ProblemItems, 1)
	assert.Equal(t, "architecture not supported", plan.ProblemItems[0].Note)
}

func TestResolveUnresolvableNameProducesProblemItem(t *testing.T) {
	db := buildDB(t, nil)
	eff := manifest.Effective{Catalogs: []string{"production"}, ManagedInstalls: []string{"Missing"}}

	plan := Resolve(context.Background(), db, eff, hostfacts.Facts{}, probeFrom(nil), 0)

	require.Len(t, plan.ProblemItems, 1)
	assert.Equal(t, "not found in catalogs", plan.ProblemItems[0].Note)
}

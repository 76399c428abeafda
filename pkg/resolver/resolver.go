// Package resolver turns an effective manifest plus a catalog database
// and installed-state probe into an ordered install list, removal list,
// optional-installs display list, and problem items.
package resolver

import (
	"context"

	"github.com/windowsadmins/cimian/pkg/catalogdb"
	"github.com/windowsadmins/cimian/pkg/hostfacts"
	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/manifest"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/predicates"
	"github.com/windowsadmins/cimian/pkg/probe"
	"github.com/windowsadmins/cimian/pkg/version"
)

// ProbeFunc answers whether item is installed and at what version. The
// session wires this to probe.State plus a receipts.PathDB-backed
// ReceiptLookup; the resolver only needs the outcome.
type ProbeFunc func(ctx context.Context, item *pkginfo.Item) probe.Result

// ProblemItem records a managed item that could not be scheduled, and why.
type ProblemItem struct {
	Name string
	Note string
}

// Plan is the resolver's output: the install list, removal list,
// optional-installs display list, and problem items.
type Plan struct {
	InstallList      []*pkginfo.Item
	RemovalList      []*pkginfo.Item
	OptionalInstalls []*pkginfo.Item
	ProblemItems     []ProblemItem
}

// AgentVersion is consulted against an item's minimum_munki_version gate.
// A package-level var rather than a constant so tests can pin it.
var AgentVersion = func() string { return version.Version().Version }

type resolution struct {
	db        *catalogdb.DB
	catalogs  []string
	facts     hostfacts.Facts
	evaluator *predicates.Evaluator
	probeItem ProbeFunc
	ctx       context.Context

	scheduledInstall map[pkginfo.Key]bool
	schedulingInstall map[string]bool // cycle guard, keyed by name
	scheduledRemoval map[pkginfo.Key]bool
	schedulingRemoval map[string]bool

	plan Plan
}

// Resolve walks an already-expanded manifest against a loaded catalog
// database: managed installs first (recursing into requires and pending
// updates), then managed updates, then managed uninstalls (cascading to
// installed dependents), then the optional-installs display list, and
// finally trims the install list to fit the disk space budget.
func Resolve(ctx context.Context, db *catalogdb.DB, eff manifest.Effective, facts hostfacts.Facts, probeItem ProbeFunc, diskSpaceSafetyMarginMB int64) Plan {
	r := &resolution{
		db:                db,
		catalogs:          eff.Catalogs,
		facts:             facts,
		evaluator:         predicates.NewEvaluator(facts),
		probeItem:         probeItem,
		ctx:               ctx,
		scheduledInstall:  map[pkginfo.Key]bool{},
		schedulingInstall: map[string]bool{},
		scheduledRemoval:  map[pkginfo.Key]bool{},
		schedulingRemoval: map[string]bool{},
	}

	for _, name := range eff.ManagedInstalls {
		r.processManagedInstall(name)
	}
	for _, name := range eff.ManagedUpdates {
		r.processManagedUpdate(name)
	}
	for _, name := range eff.ManagedUninstalls {
		r.processManagedUninstall(name)
	}
	for _, name := range eff.OptionalInstalls {
		r.addOptionalInstall(name)
	}

	r.applyDiskSpaceBudget(facts.DiskFreeMB, diskSpaceSafetyMarginMB)

	return r.plan
}

func (r *resolution) resolveItem(name string) (*pkginfo.Item, bool) {
	return r.db.ResolveInCatalogOrder(name, r.catalogs)
}

// gatingFailure evaluates an item's preconditions: OS bounds, supported
// architectures, minimum agent version, and the item's own
// installable_condition. Returns the failing reason, or "" if every gate
// passes.
func (r *resolution) gatingFailure(item *pkginfo.Item, facts hostfacts.Facts) string {
	if item.MinimumOSVersion != "" && version.Compare(facts.OSVersion, item.MinimumOSVersion) == version.Lower {
		return "minimum_os_version not met"
	}
	if item.MaximumOSVersion != "" && version.Compare(facts.OSVersion, item.MaximumOSVersion) == version.Higher {
		return "maximum_os_version exceeded"
	}
	if len(item.SupportedArchitectures) > 0 && !containsString(item.SupportedArchitectures, facts.Architecture) {
		return "architecture not supported"
	}
	if item.MinimumAgentVersion != "" && version.Compare(AgentVersion(), item.MinimumAgentVersion) == version.Lower {
		return "minimum_munki_version not met"
	}
	if item.InstallableCondition != nil {
		ok, err := r.evaluator.EvaluateCondition(item.InstallableCondition)
		if err != nil {
			logging.Warn("resolver: installable_condition error", "item", item.Name, "error", err.Error())
			return "installable_condition could not be evaluated"
		}
		if !ok {
			return "installable_condition not met"
		}
	}
	return ""
}

func (r *resolution) problem(name, note string) {
	r.plan.ProblemItems = append(r.plan.ProblemItems, ProblemItem{Name: name, Note: note})
}

// processManagedInstall handles one managed_installs entry, recursing
// into requires and scheduling pending updates immediately after the
// base item so updates for an item always follow their target.
func (r *resolution) processManagedInstall(name string) {
	if r.schedulingInstall[name] {
		return
	}
	r.schedulingInstall[name] = true

	item, found := r.resolveItem(name)
	if !found {
		r.problem(name, "not found in catalogs")
		return
	}
	if reason := r.gatingFailure(item, r.facts); reason != "" {
		r.problem(name, reason)
		return
	}

	state := r.probeItem(r.ctx, item)
	installed := state == probe.Equal || state == probe.Higher || state == probe.Match

	for _, req := range item.Requires {
		r.processManagedInstall(req)
	}

	if !installed || item.OnDemand {
		r.scheduleInstall(item)
	}

	for _, update := range r.db.UpdatesFor(name) {
		if reason := r.gatingFailure(update, r.facts); reason != "" {
			continue
		}
		updateState := r.probeItem(r.ctx, update)
		if updateState == probe.NotPresent || updateState == probe.Lower || update.OnDemand {
			for _, req := range update.Requires {
				r.processManagedInstall(req)
			}
			r.scheduleInstall(update)
		}
	}
}

// processManagedUpdate handles one managed_updates entry: the item is
// scheduled only if it is already installed at a lower version; an item
// never installed at all is left alone.
func (r *resolution) processManagedUpdate(name string) {
	item, found := r.resolveItem(name)
	if !found {
		r.problem(name, "not found in catalogs")
		return
	}
	state := r.probeItem(r.ctx, item)
	if state == probe.NotPresent {
		return
	}
	if reason := r.gatingFailure(item, r.facts); reason != "" {
		r.problem(name, reason)
		return
	}
	if state == probe.Lower || item.OnDemand {
		for _, req := range item.Requires {
			r.processManagedInstall(req)
		}
		r.scheduleInstall(item)
	}
}

func (r *resolution) scheduleInstall(item *pkginfo.Item) {
	key := item.Key()
	if r.scheduledInstall[key] {
		return
	}
	r.scheduledInstall[key] = true
	r.plan.InstallList = append(r.plan.InstallList, item)
}

// processManagedUninstall resolves to the installed item, refuses
// non-uninstallable items, and cascades to any installed item whose
// requires names this one (reverse-dependency walk).
func (r *resolution) processManagedUninstall(name string) {
	if r.schedulingRemoval[name] {
		return
	}
	r.schedulingRemoval[name] = true

	item, found := r.resolveInstalledItem(name)
	if !found {
		r.problem(name, "not found in catalogs")
		return
	}
	if !item.Uninstallable {
		r.problem(name, "not uninstallable")
		return
	}

	for _, dependent := range r.installedDependentsOf(name) {
		r.processManagedUninstall(dependent.Name)
	}

	r.scheduleRemoval(item)
}

func (r *resolution) scheduleRemoval(item *pkginfo.Item) {
	key := item.Key()
	if r.scheduledRemoval[key] {
		return
	}
	r.scheduledRemoval[key] = true
	r.plan.RemovalList = append(r.plan.RemovalList, item)
}

// resolveInstalledItem finds the catalog entry matching the version
// actually installed, falling back to the catalog's newest entry when no
// version probes as present (e.g. the item is already gone).
func (r *resolution) resolveInstalledItem(name string) (*pkginfo.Item, bool) {
	for _, candidate := range r.db.AllVersions(name) {
		state := r.probeItem(r.ctx, candidate)
		if state == probe.Equal || state == probe.Higher || state == probe.Match {
			return candidate, true
		}
	}
	return r.db.Newest(name, "")
}

// installedDependentsOf returns every catalog item whose requires names
// target and that is itself currently installed.
func (r *resolution) installedDependentsOf(target string) []*pkginfo.Item {
	var dependents []*pkginfo.Item
	for _, item := range r.db.AllItems() {
		if !containsString(item.Requires, target) {
			continue
		}
		if state := r.probeItem(r.ctx, item); state == probe.Equal || state == probe.Higher || state == probe.Match {
			dependents = append(dependents, item)
		}
	}
	return dependents
}

func (r *resolution) addOptionalInstall(name string) {
	item, found := r.resolveItem(name)
	if !found {
		logging.Warn("resolver: optional_installs entry not found in catalogs", "item", name)
		return
	}
	r.plan.OptionalInstalls = append(r.plan.OptionalInstalls, item)
}

// applyDiskSpaceBudget demotes items from the tail of the install list
// (lowest scheduling priority first) until the projected usage fits
// within free space minus the safety margin. Sizes are tracked in the
// same unit as hostfacts.Facts.DiskFreeMB (MB).
func (r *resolution) applyDiskSpaceBudget(diskFreeMB, safetyMarginMB int64) {
	budget := diskFreeMB - safetyMarginMB
	var total int64
	for _, item := range r.plan.InstallList {
		total += item.InstallerItemSize + item.InstalledSize
	}
	for total > budget && len(r.plan.InstallList) > 0 {
		last := r.plan.InstallList[len(r.plan.InstallList)-1]
		r.plan.InstallList = r.plan.InstallList[:len(r.plan.InstallList)-1]
		total -= last.InstallerItemSize + last.InstalledSize
		delete(r.scheduledInstall, last.Key())
		r.problem(last.Name, "insufficient disk space")
	}
}

func containsString(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

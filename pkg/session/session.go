// Package session wires the repo client, probe, catalog database,
// resolver, fetch scheduler, executor, and receipt stores into the
// seven-phase reconciliation loop driven by cmd/managedsoftwareupdate.
// It replaces the teacher's monolithic main.go phase sequencing with a
// library the CLI binary calls, separating orchestration from flag
// parsing and process bootstrap.
package session

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/windowsadmins/cimian/pkg/catalogdb"
	"github.com/windowsadmins/cimian/pkg/cerr"
	"github.com/windowsadmins/cimian/pkg/config"
	"github.com/windowsadmins/cimian/pkg/executor"
	"github.com/windowsadmins/cimian/pkg/fetch"
	"github.com/windowsadmins/cimian/pkg/hostfacts"
	"github.com/windowsadmins/cimian/pkg/lock"
	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/manifest"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/probe"
	"github.com/windowsadmins/cimian/pkg/progress"
	"github.com/windowsadmins/cimian/pkg/receipts"
	"github.com/windowsadmins/cimian/pkg/repo"
	"github.com/windowsadmins/cimian/pkg/resolver"
)

// Mode names which phases a run executes.
type Mode string

const (
	// ModeCheckOnly runs phases 1-4: no downloads, no installs.
	ModeCheckOnly Mode = "checkonly"
	// ModeInstallOnly runs phases 5-7 against the persisted install plan.
	ModeInstallOnly Mode = "installonly"
	// ModeAuto runs the full seven-phase session.
	ModeAuto Mode = "auto"
)

// Options configures one session run.
type Options struct {
	Mode             Mode
	Unattended       bool
	ManifestName     string
	FetchConcurrency int
}

// Result summarizes one session run for the caller to map onto an exit
// code: 0 success, 1 updates available, 2 configuration error, 3 repo
// unreachable, 4 install failures, 5 restart required.
type Result struct {
	UpdatesAvailable bool
	RestartNeeded    bool
	OfflineCheck     bool
	InstallFailures  int
	Plan             resolver.Plan
	Err              error
}

// Controller runs sessions against one configuration and repo client.
type Controller struct {
	Config *config.Configuration
	Repo   repo.Client

	// StopSignal, when non-nil, is consulted instead of the default
	// stop-request sentinel file check. Tests substitute this.
	StopSignal func() bool
}

// New builds a Controller from cfg and an already-constructed repo client.
func New(cfg *config.Configuration, client repo.Client) *Controller {
	return &Controller{Config: cfg, Repo: client}
}

func (c *Controller) stopRequested() bool {
	if c.StopSignal != nil {
		return c.StopSignal()
	}
	_, err := os.Stat(c.Config.StopRequestPath())
	return err == nil
}

// Run executes the phases opts.Mode selects and returns a Result.
func (c *Controller) Run(ctx context.Context, opts Options) Result {
	heldLock, err := lock.Acquire(c.Config.LockPath())
	if err != nil {
		return Result{Err: fmt.Errorf("session: acquire lock: %w", err)}
	}
	defer heldLock.Release()

	pathDB, err := receipts.OpenPathDB(c.Config.ReceiptDBPath())
	if err != nil {
		return Result{Err: fmt.Errorf("session: open receipt database: %w", err)}
	}
	defer pathDB.Close()

	var plan resolver.Plan
	var offline bool

	if opts.Mode == ModeInstallOnly {
		plan, err = c.loadPersistedPlan(opts)
		if err != nil {
			return Result{Err: err}
		}
	} else {
		plan, offline, err = c.checkPhases(ctx, opts, pathDB)
		if err != nil {
			return Result{OfflineCheck: offline, Err: err}
		}
	}

	result := Result{
		UpdatesAvailable: len(plan.InstallList) > 0 || len(plan.RemovalList) > 0,
		OfflineCheck:     offline,
		Plan:             plan,
	}

	if opts.Mode == ModeCheckOnly {
		return result
	}

	sched := fetch.New(c.Repo, c.Config.CachePath(), opts.FetchConcurrency)
	_, failures := sched.FetchAll(ctx, plan.InstallList)
	for _, failure := range failures {
		logging.Warn("session: item removed from install list", "item", failure.Name, "reason", failure.Note)
		plan.InstallList = removeByName(plan.InstallList, failure.Name)
		plan.ProblemItems = append(plan.ProblemItems, resolver.ProblemItem{Name: failure.Name, Note: failure.Note})
	}
	if err := sched.Sweep(append(append([]*pkginfo.Item{}, plan.InstallList...), plan.OptionalInstalls...)); err != nil {
		logging.Debug("session: cache sweep failed", "error", err.Error())
	}

	reportStore := receipts.NewReportStore(c.Config.ReportPath())
	tracker := progress.New(logging.GetSessionID())
	defer tracker.Close()

	ex := executor.New()
	ex.Unattended = opts.Unattended
	ex.PathDB = pathDB
	ex.SelfServe = receipts.NewSelfServeStore(c.Config.SelfServeManifestPath())
	ex.Report = reportStore
	ex.Progress = tracker
	ex.StopRequested = c.stopRequested
	ex.ScriptTimeout = time.Duration(c.Config.InstallerTimeoutMinutes) * time.Minute
	ex.CachePathFor = sched.CachePath

	_, installRestart, installResults := ex.RunInstalls(ctx, plan.InstallList)
	removeRestart, removalResults := ex.RunRemovals(ctx, plan.RemovalList)

	result.RestartNeeded = installRestart || removeRestart
	for _, r := range installResults {
		if r.Err != nil {
			result.InstallFailures++
		}
	}
	for _, r := range removalResults {
		if r.Err != nil {
			result.InstallFailures++
		}
	}
	result.Plan = plan
	return result
}

// checkPhases runs the refresh-through-resolve phases: refresh from the
// repo, expand the manifest, build the catalog database, run the
// resolver, and persist the resulting plan. When the root manifest
// cannot be fetched the run is marked offline; no locally cached copy
// of a manifest or catalog is read, so expansion then fails with a
// RepoUnreachable error.
func (c *Controller) checkPhases(ctx context.Context, opts Options, pathDB *receipts.PathDB) (resolver.Plan, bool, error) {
	manifestName := opts.ManifestName
	if manifestName == "" {
		manifestName = "site_default"
	}

	selfServe, err := receipts.NewSelfServeStore(c.Config.SelfServeManifestPath()).Load()
	if err != nil {
		logging.Warn("session: failed to load self-serve manifest, proceeding with none", "error", err.Error())
	}

	facts := hostfacts.Collect(c.Config.CachePath())

	offline := false
	if _, err := c.Repo.Get("manifests/" + manifestName); err != nil {
		logging.Warn("session: repo unreachable for manifest, marking run offline", "manifest", manifestName, "error", err.Error())
		offline = true
	}

	eff, err := manifest.Expand(c.Repo, manifestName, facts, selfServe)
	if err != nil {
		kind := cerr.CatalogParseError
		if offline {
			kind = cerr.RepoUnreachable
		}
		return resolver.Plan{}, offline, cerr.Wrap(kind, manifestName, err)
	}

	db, err := catalogdb.Load(eff.Catalogs, c.fetchCatalog)
	if err != nil {
		// fetchCatalog already classifies its failures.
		return resolver.Plan{}, offline, err
	}

	probeFunc := func(ctx context.Context, item *pkginfo.Item) probe.Result {
		return probe.State(ctx, item, pathDB)
	}
	plan := resolver.Resolve(ctx, db, eff, facts, probeFunc, c.Config.DiskSpaceSafetyMarginMB)

	if err := receipts.NewPlanStore(c.Config.InstallInfoPath()).Save(plan); err != nil {
		logging.Warn("session: failed to persist install plan", "error", err.Error())
	}

	return plan, offline, nil
}

// loadPersistedPlan rehydrates the install/removal lists InstallOnly
// mode needs from the plan persisted at the end of a prior check phase,
// looking each entry back up by (name, version) in a freshly built
// catalog database (InstallInfo.plist only records names and versions,
// not full pkginfo records).
func (c *Controller) loadPersistedPlan(opts Options) (resolver.Plan, error) {
	doc, err := receipts.NewPlanStore(c.Config.InstallInfoPath()).Load()
	if err != nil {
		return resolver.Plan{}, fmt.Errorf("session: load persisted install plan: %w", err)
	}

	var catalogNames []string
	if c.Config.Catalogs != nil {
		catalogNames = c.Config.Catalogs
	}
	db, err := catalogdb.Load(catalogNames, c.fetchCatalog)
	if err != nil {
		return resolver.Plan{}, err
	}

	plan := resolver.Plan{}
	for _, entry := range doc.InstallList {
		if item, ok := db.ByKey(pkginfo.Key{Name: entry.Name, Version: entry.Version}); ok {
			plan.InstallList = append(plan.InstallList, item)
		} else {
			plan.ProblemItems = append(plan.ProblemItems, resolver.ProblemItem{Name: entry.Name, Note: "no longer present in catalogs"})
		}
	}
	for _, entry := range doc.RemovalList {
		if item, ok := db.ByKey(pkginfo.Key{Name: entry.Name, Version: entry.Version}); ok {
			plan.RemovalList = append(plan.RemovalList, item)
		}
	}
	return plan, nil
}

func (c *Controller) fetchCatalog(name string) ([]pkginfo.Item, error) {
	data, err := c.Repo.Get("catalogs/" + name)
	if err != nil {
		return nil, cerr.Wrap(cerr.RepoUnreachable, name, err)
	}
	items, err := pkginfo.UnmarshalCatalog(data)
	if err != nil {
		return nil, cerr.Wrap(cerr.CatalogParseError, name, err)
	}
	return items, nil
}

func removeByName(items []*pkginfo.Item, name string) []*pkginfo.Item {
	out := items[:0]
	for _, item := range items {
		if item.Name != name {
			out = append(out, item)
		}
	}
	return out
}

// Package executor runs a resolved plan: installing and removing
// pkginfo items in order, gating each on attended/unattended rules,
// blocking applications, and skip-propagation from earlier failures.
// It generalizes the teacher's pkg/installer.Install dispatch switch
// into a typed-adapter registry, since concrete OS-native installer
// invocation is left to an external collaborator.
package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/windowsadmins/cimian/pkg/blocking"
	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/process"
	"github.com/windowsadmins/cimian/pkg/progress"
	"github.com/windowsadmins/cimian/pkg/receipts"
)

// Outcome is what an adapter reports back after running one install or
// removal.
type Outcome struct {
	ExitStatus  int
	RestartHint pkginfo.RestartAction
	Detail      string
}

// InstallerAdapter performs the OS-native work of installing one item's
// payload. Concrete adapters (MSI/EXE/PS1 invocation, disk image
// mounting, profile push) are an external collaborator's concern; this
// package ships stub adapters for installer types that need no native
// payload (script_only, apple_update_metadata, nopkg) and leaves the
// rest to whatever the caller registers in Adapters.
type InstallerAdapter interface {
	Install(ctx context.Context, item *pkginfo.Item, payloadPath string) (Outcome, error)
}

// UninstallAdapter performs the OS-native work of removing one item.
// paths is the set of filesystem paths PathsUniqueTo found safe to
// delete, populated only for the receipt_removal method.
type UninstallAdapter interface {
	Uninstall(ctx context.Context, item *pkginfo.Item, paths []string) (Outcome, error)
}

// InstallResult records what happened to one item during RunInstalls,
// for the caller to fold into a session-level summary.
type InstallResult struct {
	Item    *pkginfo.Item
	Skipped bool
	Reason  string
	Err     error
}

// RemovalResult records what happened to one item during RunRemovals.
type RemovalResult struct {
	Item    *pkginfo.Item
	Skipped bool
	Reason  string
	Err     error
}

// Executor runs install and removal loops against a resolved plan.
type Executor struct {
	Unattended bool

	Adapters          map[pkginfo.InstallerType]InstallerAdapter
	UninstallAdapters map[pkginfo.UninstallMethod]UninstallAdapter

	PathDB    *receipts.PathDB
	SelfServe *receipts.SelfServeStore
	Report    *receipts.ReportStore

	Progress *progress.Tracker

	ScriptTimeout time.Duration

	// StopRequested is polled between items for cooperative cancellation
	// against the stop-request sentinel file.
	StopRequested func() bool

	// CachePathFor resolves an item's already-downloaded payload path.
	// Wired to fetch.Scheduler.CachePath by the session controller.
	CachePathFor func(*pkginfo.Item) string
}

// New returns an Executor with the default stub adapters registered for
// installer types that need no native payload.
func New() *Executor {
	return &Executor{
		Adapters: map[pkginfo.InstallerType]InstallerAdapter{
			pkginfo.InstallerScriptOnly:      scriptOnlyAdapter{},
			pkginfo.InstallerAppleUpdateMeta: noopAdapter{},
			pkginfo.InstallerNone:            noopAdapter{},
		},
		UninstallAdapters: map[pkginfo.UninstallMethod]UninstallAdapter{
			pkginfo.UninstallScript:         scriptOnlyUninstallAdapter{},
			pkginfo.UninstallReceiptRemoval: receiptRemovalAdapter{},
		},
		ScriptTimeout: 10 * time.Minute,
	}
}

func (e *Executor) stopRequested() bool {
	return e.StopRequested != nil && e.StopRequested()
}

func (e *Executor) cachePathFor(item *pkginfo.Item) string {
	if e.CachePathFor == nil {
		return ""
	}
	return e.CachePathFor(item)
}

func (e *Executor) recordResult(item *pkginfo.Item, action receipts.Action, status string, exitCode int, dur time.Duration, restart pkginfo.RestartAction) {
	if e.Report == nil {
		return
	}
	if err := e.Report.Append(receipts.ItemResult{
		Name:            item.Name,
		Version:         item.Version,
		Action:          action,
		Status:          status,
		ExitCode:        exitCode,
		DurationSeconds: dur.Seconds(),
		RestartAction:   string(restart),
	}); err != nil {
		logging.Warn("executor: failed to append report entry", "item", item.Name, "error", err.Error())
	}
}

// prerequisiteSkipped reports whether any name item depends on
// (requires or update_for) was skipped, so the skip propagates rather
// than leaving a dependent install to run against a missing prerequisite.
func prerequisiteSkipped(item *pkginfo.Item, skipped map[string]bool) (string, bool) {
	for _, dep := range item.Requires {
		if skipped[dep] {
			return dep, true
		}
	}
	for _, dep := range item.UpdateFor {
		if skipped[dep] {
			return dep, true
		}
	}
	return "", false
}

// RunInstalls executes installList in order, returning the set of item
// names that were skipped (for the caller's bookkeeping) and whether
// any completed item demands a restart or logout.
func (e *Executor) RunInstalls(ctx context.Context, installList []*pkginfo.Item) (skipped map[string]bool, restartNeeded bool, results []InstallResult) {
	skipped = make(map[string]bool)

	for _, item := range installList {
		if e.stopRequested() {
			logging.Info("executor: stop requested, halting install loop", "remaining", item.Name)
			break
		}

		if reason, skip := e.gateInstall(item, skipped); skip {
			skipped[item.Name] = true
			e.skipInstall(item, reason)
			results = append(results, InstallResult{Item: item, Skipped: true, Reason: reason})
			continue
		}

		outcome, err := e.installOne(ctx, item)
		if err != nil {
			skipped[item.Name] = true
			results = append(results, InstallResult{Item: item, Err: err})
			continue
		}

		if outcome.RestartHint == pkginfo.RestartRequired || outcome.RestartHint == pkginfo.RestartLogoutRequired ||
			item.RestartAction == pkginfo.RestartRequired || item.RestartAction == pkginfo.RestartLogoutRequired {
			restartNeeded = true
		}

		results = append(results, InstallResult{Item: item})
	}

	e.sweepCache(installList, skipped)
	return skipped, restartNeeded, results
}

// gateInstall decides whether item should be skipped before any work
// runs: the unattended gate (item opted out, or a blocking application
// is running) and the skip-propagation gate.
func (e *Executor) gateInstall(item *pkginfo.Item, skipped map[string]bool) (string, bool) {
	if e.Unattended {
		if !item.UnattendedInstall {
			return "not marked unattended_install", true
		}
		if blocking.Running(item) {
			return "blocking application running", true
		}
	}
	if dep, skip := prerequisiteSkipped(item, skipped); skip {
		return fmt.Sprintf("prerequisite %s skipped", dep), true
	}
	return "", false
}

func (e *Executor) skipInstall(item *pkginfo.Item, reason string) {
	logging.Info("executor: skipping install", "item", item.Name, "reason", reason)
	if e.Progress != nil {
		e.Progress.Skipped(item.Name, "install", reason)
	}
	e.recordResult(item, receipts.ActionInstall, "skipped: "+reason, 0, 0, pkginfo.RestartNone)
}

// installOne runs the preinstall script, dispatches to the registered
// adapter, runs the postinstall script (logged only on failure), and
// records the result.
func (e *Executor) installOne(ctx context.Context, item *pkginfo.Item) (Outcome, error) {
	if e.Progress != nil {
		e.Progress.Installing(item.Name, "install", "preinstall_script")
	}
	if res, err := process.RunScript(ctx, process.Preinstall, item.PreinstallScript, e.ScriptTimeout); err != nil || res.ExitCode != 0 {
		msg := "preinstall script failed"
		if err != nil {
			msg = err.Error()
		}
		logging.Error("executor: preinstall script failed", "item", item.Name, "error", msg)
		if e.Progress != nil {
			e.Progress.Failed(item.Name, "install", msg)
		}
		e.recordResult(item, receipts.ActionInstall, "preinstall failed", res.ExitCode, res.Duration, pkginfo.RestartNone)
		return Outcome{}, fmt.Errorf("executor: preinstall script for %s: %s", item.Name, msg)
	}

	adapter, ok := e.Adapters[item.InstallerType]
	if !ok {
		msg := fmt.Sprintf("no adapter registered for installer_type %q", item.InstallerType)
		logging.Error("executor: install failed", "item", item.Name, "reason", msg)
		if e.Progress != nil {
			e.Progress.Failed(item.Name, "install", msg)
		}
		e.recordResult(item, receipts.ActionInstall, msg, -1, 0, pkginfo.RestartNone)
		return Outcome{}, fmt.Errorf("executor: %s", msg)
	}

	if e.Progress != nil {
		e.Progress.Installing(item.Name, "install", "installer")
	}
	start := time.Now()
	outcome, err := adapter.Install(ctx, item, e.cachePathFor(item))
	dur := time.Since(start)
	if err != nil || outcome.ExitStatus != 0 {
		msg := outcome.Detail
		if err != nil {
			msg = err.Error()
		}
		logging.Error("executor: install failed", "item", item.Name, "error", msg)
		if e.Progress != nil {
			e.Progress.Failed(item.Name, "install", msg)
		}
		e.recordResult(item, receipts.ActionInstall, "install failed: "+msg, outcome.ExitStatus, dur, pkginfo.RestartNone)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("executor: install of %s exited %d", item.Name, outcome.ExitStatus)
	}

	if res, _ := process.RunScript(ctx, process.Postinstall, item.PostinstallScript, e.ScriptTimeout); res.ExitCode != 0 {
		logging.Warn("executor: postinstall script failed, continuing", "item", item.Name, "exit_code", res.ExitCode)
	}

	e.recordPackageReceipts(item)

	if item.OnDemand && e.SelfServe != nil {
		if err := e.SelfServe.ClearOnDemand(item.Name); err != nil {
			logging.Warn("executor: failed to clear self-serve entry", "item", item.Name, "error", err.Error())
		}
	}

	restart := item.RestartAction
	if outcome.RestartHint != "" {
		restart = outcome.RestartHint
	}
	if e.Progress != nil {
		e.Progress.Completed(item.Name, "install")
	}
	e.recordResult(item, receipts.ActionInstall, "installed", outcome.ExitStatus, dur, restart)
	return Outcome{ExitStatus: outcome.ExitStatus, RestartHint: restart}, nil
}

func (e *Executor) recordPackageReceipts(item *pkginfo.Item) {
	if e.PathDB == nil {
		return
	}
	pkgKey := item.Key().String()
	for _, r := range item.Receipts {
		if err := e.PathDB.RecordPackage(pkgKey, r.PackageID, r.Version, ""); err != nil {
			logging.Warn("executor: failed to record receipt", "item", item.Name, "package_id", r.PackageID, "error", err.Error())
		}
	}
	for _, p := range item.Installs {
		if p.Path == "" {
			continue
		}
		if err := e.PathDB.RecordPath(pkgKey, receipts.PathEntry{Path: p.Path}); err != nil {
			logging.Warn("executor: failed to record install path", "item", item.Name, "path", p.Path, "error", err.Error())
		}
	}
}

// sweepCache deletes each successfully-installed item's cached payload
// once no other item in installList still references the same
// installer_item_location.
func (e *Executor) sweepCache(installList []*pkginfo.Item, skipped map[string]bool) {
	if e.CachePathFor == nil {
		return
	}
	refCount := map[string]int{}
	for _, item := range installList {
		refCount[item.InstallerItemLocation]++
	}
	for _, item := range installList {
		if skipped[item.Name] {
			continue
		}
		refCount[item.InstallerItemLocation]--
		if refCount[item.InstallerItemLocation] > 0 {
			continue
		}
		path := e.cachePathFor(item)
		if path == "" {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logging.Debug("executor: cache cleanup failed", "item", item.Name, "path", path, "error", err.Error())
		}
	}
}

// RunRemovals executes removalList in order, most-dependent-first as
// the resolver already scheduled it, dispatching by uninstall_method.
func (e *Executor) RunRemovals(ctx context.Context, removalList []*pkginfo.Item) (restartNeeded bool, results []RemovalResult) {
	for _, item := range removalList {
		if e.stopRequested() {
			logging.Info("executor: stop requested, halting removal loop", "remaining", item.Name)
			break
		}

		if e.Unattended && !item.UnattendedUninstall {
			e.skipRemoval(item, "not marked unattended_uninstall")
			results = append(results, RemovalResult{Item: item, Skipped: true, Reason: "not marked unattended_uninstall"})
			continue
		}

		outcome, err := e.removeOne(ctx, item)
		if err != nil {
			results = append(results, RemovalResult{Item: item, Err: err})
			continue
		}
		if outcome.RestartHint == pkginfo.RestartRequired || outcome.RestartHint == pkginfo.RestartLogoutRequired ||
			item.RestartAction == pkginfo.RestartRequired || item.RestartAction == pkginfo.RestartLogoutRequired {
			restartNeeded = true
		}
		results = append(results, RemovalResult{Item: item})
	}
	return restartNeeded, results
}

func (e *Executor) skipRemoval(item *pkginfo.Item, reason string) {
	logging.Info("executor: skipping removal", "item", item.Name, "reason", reason)
	if e.Progress != nil {
		e.Progress.Skipped(item.Name, "uninstall", reason)
	}
	e.recordResult(item, receipts.ActionRemove, "skipped: "+reason, 0, 0, pkginfo.RestartNone)
}

func (e *Executor) removeOne(ctx context.Context, item *pkginfo.Item) (Outcome, error) {
	if !item.Uninstallable {
		msg := "item is not marked uninstallable"
		e.recordResult(item, receipts.ActionRemove, msg, -1, 0, pkginfo.RestartNone)
		return Outcome{}, fmt.Errorf("executor: %s: %s", item.Name, msg)
	}

	if e.Progress != nil {
		e.Progress.Installing(item.Name, "uninstall", "preuninstall_script")
	}
	if res, err := process.RunScript(ctx, process.Preuninstall, item.PreuninstallScript, e.ScriptTimeout); err != nil || res.ExitCode != 0 {
		msg := "preuninstall script failed"
		if err != nil {
			msg = err.Error()
		}
		e.recordResult(item, receipts.ActionRemove, msg, res.ExitCode, res.Duration, pkginfo.RestartNone)
		return Outcome{}, fmt.Errorf("executor: preuninstall script for %s: %s", item.Name, msg)
	}

	paths, err := e.pathsForRemoval(item)
	if err != nil {
		e.recordResult(item, receipts.ActionRemove, "could not resolve receipt paths: "+err.Error(), -1, 0, pkginfo.RestartNone)
		return Outcome{}, err
	}

	adapter, ok := e.UninstallAdapters[item.UninstallMethod]
	if !ok {
		msg := fmt.Sprintf("no adapter registered for uninstall_method %q", item.UninstallMethod)
		e.recordResult(item, receipts.ActionRemove, msg, -1, 0, pkginfo.RestartNone)
		return Outcome{}, fmt.Errorf("executor: %s", msg)
	}

	if e.Progress != nil {
		e.Progress.Installing(item.Name, "uninstall", "uninstaller")
	}
	start := time.Now()
	outcome, err := adapter.Uninstall(ctx, item, paths)
	dur := time.Since(start)
	if err != nil || outcome.ExitStatus != 0 {
		msg := outcome.Detail
		if err != nil {
			msg = err.Error()
		}
		e.recordResult(item, receipts.ActionRemove, "uninstall failed: "+msg, outcome.ExitStatus, dur, pkginfo.RestartNone)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{}, fmt.Errorf("executor: uninstall of %s exited %d", item.Name, outcome.ExitStatus)
	}

	if res, _ := process.RunScript(ctx, process.Postuninstall, item.PostuninstallScript, e.ScriptTimeout); res.ExitCode != 0 {
		logging.Warn("executor: postuninstall script failed, continuing", "item", item.Name, "exit_code", res.ExitCode)
	}

	if e.PathDB != nil && item.UninstallMethod == pkginfo.UninstallReceiptRemoval {
		if err := e.PathDB.ForgetPackage(item.Key().String()); err != nil {
			logging.Warn("executor: failed to forget package", "item", item.Name, "error", err.Error())
		}
	}

	restart := item.RestartAction
	if outcome.RestartHint != "" {
		restart = outcome.RestartHint
	}
	if e.Progress != nil {
		e.Progress.Completed(item.Name, "uninstall")
	}
	e.recordResult(item, receipts.ActionRemove, "removed", outcome.ExitStatus, dur, restart)
	return Outcome{ExitStatus: outcome.ExitStatus, RestartHint: restart}, nil
}

// pathsForRemoval resolves the filesystem paths a receipt_removal
// uninstall is safe to delete, via the package-path database's
// set-difference query. The actual bottom-up deletion, with its
// non-empty-directory/bundle guard, is carried out by
// receiptRemovalAdapter once these paths reach removeOne's adapter
// dispatch.
func (e *Executor) pathsForRemoval(item *pkginfo.Item) ([]string, error) {
	if item.UninstallMethod != pkginfo.UninstallReceiptRemoval || e.PathDB == nil {
		return nil, nil
	}
	paths, err := e.PathDB.PathsUniqueTo([]string{item.Key().String()})
	if err != nil {
		return nil, fmt.Errorf("executor: resolve receipt paths for %s: %w", item.Name, err)
	}
	return paths, nil
}

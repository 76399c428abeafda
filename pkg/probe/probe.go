// Package probe answers "is item X installed, and at what version?" by
// inspecting application bundles, plists, receipts, and filesystem items
// listed in a pkginfo item's installs array.
package probe

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"os"

	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/plist"
	"github.com/windowsadmins/cimian/pkg/process"
	"github.com/windowsadmins/cimian/pkg/version"
)

// Result is the outcome of probing one pkginfo item's installed state.
type Result int

const (
	NotPresent Result = iota
	Lower
	Equal
	Higher
	Match
	Mismatch
)

func (r Result) String() string {
	switch r {
	case NotPresent:
		return "NOT_PRESENT"
	case Lower:
		return "LOWER"
	case Equal:
		return "EQUAL"
	case Higher:
		return "HIGHER"
	case Match:
		return "MATCH"
	case Mismatch:
		return "MISMATCH"
	default:
		return "UNKNOWN"
	}
}

func (r Result) satisfiesTarget() bool {
	return r == Equal || r == Higher || r == Match
}

// ReceiptLookup answers whether a packageid is installed and at what
// version, backed by pkg/receipts.PathDB at runtime.
type ReceiptLookup interface {
	InstalledVersion(packageID string) (string, bool)
}

// State evaluates one pkginfo item's installed-state probe chain in
// order: installcheck_script short-circuit, then installs array, then
// receipts, else NOT_PRESENT with a warning.
func State(ctx context.Context, item *pkginfo.Item, receipts ReceiptLookup) Result {
	if item.InstallCheckScript != "" {
		return stateFromInstallCheckScript(ctx, item)
	}
	if len(item.Installs) > 0 {
		return stateFromInstalls(item)
	}
	if len(item.Receipts) > 0 {
		return stateFromReceipts(item, receipts)
	}
	logging.Warn("probe: item has no installs, receipts, or installcheck_script", "item", item.Name)
	return NotPresent
}

// stateFromInstallCheckScript runs the embedded installcheck_script.
// Exit 0 means "needs install" (NotPresent); non-zero means "already
// installed" (Equal).
func stateFromInstallCheckScript(ctx context.Context, item *pkginfo.Item) Result {
	res, err := process.RunScript(ctx, process.InstallCheck, item.InstallCheckScript, 0)
	if err != nil && res.ExitCode == 0 {
		logging.Warn("probe: installcheck_script failed to run", "item", item.Name, "error", err.Error())
		return NotPresent
	}
	if res.ExitCode == 0 {
		return NotPresent
	}
	return Equal
}

// stateFromInstalls aggregates every installs probe: installed at a
// version only if every probe is EQUAL/HIGHER/MATCH; NOT_PRESENT if any
// probe is NOT_PRESENT; LOWER if at least one is LOWER and none are
// NOT_PRESENT.
func stateFromInstalls(item *pkginfo.Item) Result {
	sawLower := false
	for _, p := range item.Installs {
		r := evaluateProbe(p, item.Version)
		switch r {
		case NotPresent:
			return NotPresent
		case Lower:
			sawLower = true
		case Mismatch:
			return Mismatch
		}
	}
	if sawLower {
		return Lower
	}
	return Equal
}

func stateFromReceipts(item *pkginfo.Item, receipts ReceiptLookup) Result {
	sawLower := false
	for _, r := range item.Receipts {
		if r.Optional {
			continue
		}
		installed, ok := receipts.InstalledVersion(r.PackageID)
		if !ok {
			return NotPresent
		}
		switch version.Compare(installed, r.Version) {
		case version.Lower:
			sawLower = true
		case version.Higher, version.Equal:
			// satisfies
		}
	}
	if sawLower {
		return Lower
	}
	return Equal
}

// evaluateProbe evaluates one installs-array entry against the owning
// item's target version.
func evaluateProbe(p pkginfo.InstallProbe, targetVersion string) Result {
	switch p.Kind {
	case pkginfo.ProbeApplication, pkginfo.ProbeBundle:
		return evaluateBundleProbe(p, targetVersion)
	case pkginfo.ProbePlist:
		return evaluatePlistProbe(p, targetVersion)
	case pkginfo.ProbeFile:
		return evaluateFileProbe(p)
	default:
		return NotPresent
	}
}

// evaluateBundleProbe checks the given path if one was supplied,
// otherwise searches the live application registry for an installed
// bundle matching by identifier or name. A probe with neither a path
// nor a bundle identifier/name to search by can never resolve to
// anything but NOT_PRESENT.
func evaluateBundleProbe(p pkginfo.InstallProbe, targetVersion string) Result {
	if p.Path != "" {
		return evaluateBundleAtPath(p.Path, p, targetVersion)
	}

	if p.BundleID == "" && p.BundleName == "" {
		logging.Warn("probe: application probe has no path, bundle id, or bundle name")
		return NotPresent
	}

	candidates := findInstalledApplications(p.BundleID, p.BundleName)
	if len(candidates) == 0 {
		return NotPresent
	}

	result := NotPresent
	for _, candidate := range candidates {
		r := evaluateBundleAtPath(candidate.Path, p, targetVersion)
		if r.satisfiesTarget() {
			return r
		}
		if r == Lower {
			result = Lower
		}
	}
	return result
}

func evaluateBundleAtPath(path string, p pkginfo.InstallProbe, targetVersion string) Result {
	infoPlistPath := path
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		infoPlistPath = path + "/Contents/Info.plist"
	}
	return evaluateVersionedPlist(infoPlistPath, p, targetVersion)
}

func evaluatePlistProbe(p pkginfo.InstallProbe, targetVersion string) Result {
	return evaluateVersionedPlist(p.Path, p, targetVersion)
}

// evaluateVersionedPlist reads the probe's version key out of the plist
// at path and compares it against targetVersion, honoring
// minimum_update_version as a floor below which the installed copy is
// never considered an acceptable substitute.
func evaluateVersionedPlist(path string, p pkginfo.InstallProbe, targetVersion string) Result {
	data, err := os.ReadFile(path)
	if err != nil {
		return NotPresent
	}
	var doc map[string]any
	if err := plist.Unmarshal(data, &doc); err != nil {
		logging.Warn("probe: failed to parse plist", "path", path, "error", err.Error())
		return NotPresent
	}

	key := p.EffectiveVersionKey()
	installedVersion, _ := doc[key].(string)
	if installedVersion == "" && key != "CFBundleVersion" {
		installedVersion, _ = doc["CFBundleVersion"].(string)
	}
	if installedVersion == "" {
		return NotPresent
	}

	if p.MinimumUpdateVersion != "" && version.Compare(installedVersion, p.MinimumUpdateVersion) == version.Lower {
		return Lower
	}

	switch version.Compare(installedVersion, targetVersion) {
	case version.Lower:
		return Lower
	case version.Equal:
		return Equal
	default:
		return Higher
	}
}

func evaluateFileProbe(p pkginfo.InstallProbe) Result {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return NotPresent
	}
	if p.MD5Checksum == "" {
		return Match
	}
	sum := md5.Sum(data)
	if hex.EncodeToString(sum[:]) == p.MD5Checksum {
		return Match
	}
	return Mismatch
}

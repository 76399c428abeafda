package probe

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/plist"
	"github.com/windowsadmins/cimian/pkg/version"
)

// ApplicationSearchPaths lists the directories scanned for installed
// application bundles when a probe names a bundle identifier or name
// instead of a fixed path. Tests substitute this.
var ApplicationSearchPaths = []string{"/Applications"}

// installedApplication is one application bundle found on disk during a
// live application registry scan.
type installedApplication struct {
	Path     string
	BundleID string
	Name     string
	Version  string
}

// findInstalledApplications searches ApplicationSearchPaths for bundles
// whose CFBundleIdentifier matches bundleID; only when no bundle matches
// by identifier (or bundleID is empty) are bundles whose CFBundleName
// matches bundleName returned instead. Results are sorted
// highest-version first, mirroring how the original updatecheck picks
// among several matching copies of the same application.
func findInstalledApplications(bundleID, bundleName string) []installedApplication {
	var matches, nameMatches []installedApplication
	for _, root := range ApplicationSearchPaths {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() || filepath.Ext(entry.Name()) != ".app" {
				continue
			}
			path := filepath.Join(root, entry.Name())
			app, ok := readApplicationBundle(path)
			if !ok {
				continue
			}
			if app.BundleID != "" && bundleID != "" && app.BundleID == bundleID {
				matches = append(matches, app)
				continue
			}
			if bundleName != "" && app.Name == bundleName {
				nameMatches = append(nameMatches, app)
			}
		}
	}
	if len(matches) == 0 {
		matches = nameMatches
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return version.Compare(matches[i].Version, matches[j].Version) == version.Higher
	})
	return matches
}

func readApplicationBundle(path string) (installedApplication, bool) {
	data, err := os.ReadFile(path + "/Contents/Info.plist")
	if err != nil {
		return installedApplication{}, false
	}
	var doc map[string]any
	if err := plist.Unmarshal(data, &doc); err != nil {
		logging.Debug("probe: failed to parse application Info.plist", "path", path, "error", err.Error())
		return installedApplication{}, false
	}

	name, _ := doc["CFBundleName"].(string)
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), ".app")
	}
	bundleID, _ := doc["CFBundleIdentifier"].(string)
	vers, _ := doc["CFBundleShortVersionString"].(string)
	if vers == "" {
		vers, _ = doc["CFBundleVersion"].(string)
	}

	return installedApplication{Path: path, BundleID: bundleID, Name: name, Version: vers}, true
}

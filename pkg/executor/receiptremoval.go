package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
)

// bundleExtensions lists the directory extensions treated as an
// installed bundle rather than a plain directory, so a receipt_removal
// uninstall doesn't leave a half-deleted application hanging around.
var bundleExtensions = map[string]bool{
	".action": true, ".app": true, ".bundle": true, ".clr": true,
	".component": true, ".docset": true, ".framework": true,
	".kext": true, ".loginPlugin": true, ".mdimporter": true,
	".plugin": true, ".prefPane": true, ".qlgenerator": true,
	".saver": true, ".service": true, ".wdgt": true,
}

func isBundle(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	return bundleExtensions[filepath.Ext(path)]
}

func insideBundle(path string) bool {
	for {
		parent := filepath.Dir(path)
		if parent == path || parent == "." || parent == string(filepath.Separator) {
			return false
		}
		if isBundle(parent) {
			return true
		}
		path = parent
	}
}

// removeFilesystemPaths deletes paths bottom-up (deepest first, so a
// directory is already empty by the time its own turn comes), refusing
// to delete non-empty directories unless they are application bundles
// and forceDeleteBundles is set. It returns a newline-joined summary of
// any paths it could not remove; a non-empty result is not fatal to the
// overall uninstall, matching the original's behavior of warning about
// leftover items rather than failing the removal.
func removeFilesystemPaths(paths []string, forceDeleteBundles bool) string {
	sorted := append([]string(nil), paths...)
	sort.Sort(sort.Reverse(sort.StringSlice(sorted)))

	var problems []string
	for _, path := range sorted {
		info, err := os.Lstat(path)
		if err != nil {
			continue // already gone
		}

		if info.IsDir() && info.Mode()&os.ModeSymlink == 0 {
			entries, err := os.ReadDir(path)
			if err != nil {
				problems = append(problems, fmt.Sprintf("couldn't list directory %s: %v", path, err))
				continue
			}
			if len(entries) == 0 {
				if err := os.Remove(path); err != nil {
					problems = append(problems, fmt.Sprintf("couldn't remove directory %s: %v", path, err))
				}
				continue
			}

			if forceDeleteBundles && isBundle(path) {
				logging.Warn("executor: removing non-empty bundle", "path", path)
				if err := os.RemoveAll(path); err != nil {
					problems = append(problems, fmt.Sprintf("couldn't remove bundle %s: %v", path, err))
				}
				continue
			}
			if insideBundle(path) && forceDeleteBundles {
				// will be removed along with its owning bundle
				continue
			}
			problems = append(problems, fmt.Sprintf("did not remove %s because it is not empty", path))
			continue
		}

		if err := os.Remove(path); err != nil {
			problems = append(problems, fmt.Sprintf("couldn't remove %s: %v", path, err))
		}
	}
	return strings.Join(problems, "\n")
}

// receiptRemovalAdapter performs a receipt_removal uninstall's actual
// filesystem work: the paths passed in have already been computed as
// unique to the package being removed by the path database's
// set-difference query.
type receiptRemovalAdapter struct{}

func (receiptRemovalAdapter) Uninstall(_ context.Context, item *pkginfo.Item, paths []string) (Outcome, error) {
	problems := removeFilesystemPaths(paths, item.ForceDeleteBundles)
	if problems != "" {
		logging.Warn("executor: problems removing filesystem items", "item", item.Name, "detail", problems)
	}
	return Outcome{ExitStatus: 0, Detail: problems}, nil
}

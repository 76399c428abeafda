// Package blocking detects blocking applications: programs that must not be
// running while a pkginfo item installs.
package blocking

import (
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
)

// IsAppRunning reports whether a process matching appName is currently
// running, matching by exact path, executable name, or bare process name.
func IsAppRunning(appName string) bool {
	processes, err := process.Processes()
	if err != nil {
		logging.Error("blocking: failed to list processes", "error", err.Error())
		return false
	}

	cleanAppName := strings.ToLower(appName)

	for _, proc := range processes {
		name, err := proc.Name()
		if err != nil {
			continue
		}
		processName := strings.ToLower(name)

		switch {
		case strings.HasPrefix(cleanAppName, "/") || strings.HasPrefix(cleanAppName, "c:\\"):
			exe, err := proc.Exe()
			if err != nil {
				continue
			}
			if strings.EqualFold(exe, appName) {
				return true
			}
		case strings.HasSuffix(cleanAppName, ".exe"):
			if processName == cleanAppName {
				return true
			}
		default:
			if processName == cleanAppName || processName == cleanAppName+".exe" {
				return true
			}
		}
	}
	return false
}

// candidateNames returns the application names that block install for an
// item: its explicit blocking_applications, or failing that, the
// application names named by its installs array.
func candidateNames(item *pkginfo.Item) []string {
	if len(item.BlockingApplications) > 0 {
		return item.BlockingApplications
	}

	var names []string
	for _, probe := range item.Installs {
		if probe.Kind == pkginfo.ProbeApplication && probe.Path != "" {
			if name := filepath.Base(probe.Path); name != "" {
				names = append(names, name)
			}
		}
	}
	return names
}

// Running reports whether any blocking application for item is currently
// running.
func Running(item *pkginfo.Item) bool {
	names := candidateNames(item)
	if len(names) == 0 {
		return false
	}
	for _, name := range names {
		if IsAppRunning(name) {
			logging.Info("blocking: application running", "item", item.Name, "process", name)
			return true
		}
	}
	return false
}

// RunningApps returns every blocking application for item that is
// currently running, for logging and reporting.
func RunningApps(item *pkginfo.Item) []string {
	var running []string
	for _, name := range candidateNames(item) {
		if IsAppRunning(name) {
			running = append(running, name)
		}
	}
	return running
}

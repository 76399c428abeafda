// Package hostfacts gathers the host facts gating predicates are
// evaluated against (OS version, architecture, disk free space). The
// Condition/predicate grammar used by pkginfo's installable_condition
// and manifest conditional_items is evaluated by pkg/predicates.
package hostfacts

import (
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"

	"github.com/windowsadmins/cimian/pkg/logging"
)

// Facts is the snapshot of host state gating predicates consult.
type Facts struct {
	Hostname     string
	OSVersion    string
	Architecture string
	DiskFreeMB   int64
	Now          time.Time
	Custom       map[string]any
}

// Collect gathers live host facts. diskPath is the filesystem to report
// free space for (e.g. the cache directory's volume).
func Collect(diskPath string) Facts {
	f := Facts{
		Architecture: runtime.GOARCH,
		Now:          time.Now(),
		Custom:       map[string]any{},
	}
	if hn, err := os.Hostname(); err == nil {
		f.Hostname = hn
	}
	if info, err := host.Info(); err == nil {
		f.OSVersion = info.PlatformVersion
		if f.OSVersion == "" {
			f.OSVersion = info.KernelVersion
		}
	} else {
		logging.Debug("hostfacts: host.Info failed", "error", err.Error())
	}
	if usage, err := disk.Usage(diskPath); err == nil {
		f.DiskFreeMB = int64(usage.Free / (1024 * 1024))
	} else {
		logging.Debug("hostfacts: disk.Usage failed", "path", diskPath, "error", err.Error())
	}
	return f
}

package executor

import (
	"context"
	"time"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/process"
)

// scriptOnlyAdapter handles installer_type "script_only": there is no
// payload to place, only preinstall_script/postinstall_script, which
// the executor's install loop already runs around every adapter call.
// This adapter's own job is just to report success.
type scriptOnlyAdapter struct{}

func (scriptOnlyAdapter) Install(ctx context.Context, item *pkginfo.Item, payloadPath string) (Outcome, error) {
	return Outcome{ExitStatus: 0, RestartHint: item.RestartAction}, nil
}

// noopAdapter handles installer types the agent never installs itself:
// apple_update_metadata (deployed by the platform's own update
// mechanism) and nopkg (no payload at all). Reporting it a success
// lets requires/update_for chains and receipt bookkeeping proceed.
type noopAdapter struct{}

func (noopAdapter) Install(ctx context.Context, item *pkginfo.Item, payloadPath string) (Outcome, error) {
	return Outcome{ExitStatus: 0, RestartHint: item.RestartAction}, nil
}

// scriptOnlyUninstallAdapter handles uninstall_method "uninstall_script":
// the entire removal is the embedded script body, run with its own
// timeout distinct from preuninstall/postuninstall.
type scriptOnlyUninstallAdapter struct{}

func (scriptOnlyUninstallAdapter) Uninstall(ctx context.Context, item *pkginfo.Item, paths []string) (Outcome, error) {
	res, err := process.RunScript(ctx, process.UninstallScript, item.UninstallScriptBody, 10*time.Minute)
	if err != nil {
		return Outcome{ExitStatus: res.ExitCode, Detail: err.Error()}, err
	}
	return Outcome{ExitStatus: res.ExitCode, RestartHint: item.RestartAction}, nil
}

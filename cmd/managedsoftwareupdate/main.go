// Command managedsoftwareupdate drives one session controller run:
// refresh manifests and catalogs, resolve the install plan, download
// payloads, and run installs/removals.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/windowsadmins/cimian/pkg/cerr"
	"github.com/windowsadmins/cimian/pkg/config"
	"github.com/windowsadmins/cimian/pkg/lock"
	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/repo"
	"github.com/windowsadmins/cimian/pkg/session"
	"github.com/windowsadmins/cimian/pkg/version"
)

// Exit codes returned to the caller.
const (
	exitSuccess          = 0
	exitUpdatesAvailable = 1
	exitConfigError      = 2
	exitRepoUnreachable  = 3
	exitInstallFailures  = 4
	exitRestartRequired  = 5
)

func main() {
	checkOnly := flag.Bool("checkonly", false, "Check for updates; no downloads, no installs.")
	installOnly := flag.Bool("installonly", false, "Run installs/removals against the existing plan; no manifest refresh.")
	auto := flag.Bool("auto", false, "Run the full session: refresh, resolve, download, install.")
	unattended := flag.Bool("unattended", false, "Gate installs/removals on unattended_install / unattended_uninstall.")
	manifestName := flag.String("manifest", "site_default", "Manifest to resolve against.")
	quiet := flag.Bool("quiet", false, "Log errors only.")
	verbose := flag.Bool("verbose", false, "Log at INFO level.")
	debug := flag.Bool("debug", false, "Log at DEBUG level.")
	rootDir := flag.String("root", "", "Local state root (defaults to CIMIAN_ROOT or a platform default).")
	showVersion := flag.Bool("version", false, "Print the version and exit.")
	flag.Parse()

	if *showVersion {
		version.Print()
		os.Exit(exitSuccess)
	}

	mode, err := resolveMode(*checkOnly, *installOnly, *auto)
	if err != nil {
		fmt.Fprintln(os.Stderr, "managedsoftwareupdate:", err)
		flag.Usage()
		os.Exit(exitConfigError)
	}

	cfg, err := config.LoadConfig(*rootDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "managedsoftwareupdate: loading configuration:", err)
		os.Exit(exitConfigError)
	}

	switch {
	case *debug:
		cfg.LogLevel = "DEBUG"
		cfg.Debug = true
	case *verbose:
		cfg.LogLevel = "INFO"
		cfg.Verbose = true
	case *quiet:
		cfg.LogLevel = "ERROR"
	}

	if err := logging.Init(cfg); err != nil {
		fmt.Fprintln(os.Stderr, "managedsoftwareupdate: initializing logger:", err)
		os.Exit(exitConfigError)
	}
	defer logging.CloseLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-signalChan
		logging.Warn("managedsoftwareupdate: signal received, cancelling session", "signal", sig.String())
		cancel()
	}()

	client := repo.NewFileRepo(cfg.SoftwareRepoURL)
	ctrl := session.New(cfg, client)

	result := ctrl.Run(ctx, session.Options{
		Mode:             mode,
		Unattended:       *unattended,
		ManifestName:     *manifestName,
		FetchConcurrency: 4,
	})

	os.Exit(exitCodeFor(mode, result))
}

func resolveMode(checkOnly, installOnly, auto bool) (session.Mode, error) {
	count := 0
	for _, b := range []bool{checkOnly, installOnly, auto} {
		if b {
			count++
		}
	}
	if count > 1 {
		return "", errors.New("--checkonly, --installonly, and --auto are mutually exclusive")
	}
	switch {
	case checkOnly:
		return session.ModeCheckOnly, nil
	case installOnly:
		return session.ModeInstallOnly, nil
	case auto:
		return session.ModeAuto, nil
	default:
		return session.ModeAuto, nil
	}
}

func exitCodeFor(mode session.Mode, result session.Result) int {
	if result.Err != nil {
		logging.Error("managedsoftwareupdate: session failed", "error", result.Err.Error())
		if errors.Is(result.Err, lock.ErrHeld) {
			return exitConfigError
		}
		var cerrErr *cerr.Error
		if errors.As(result.Err, &cerrErr) && cerrErr.Kind == cerr.RepoUnreachable {
			return exitRepoUnreachable
		}
		return exitConfigError
	}

	if result.InstallFailures > 0 {
		return exitInstallFailures
	}
	if result.RestartNeeded {
		return exitRestartRequired
	}
	if mode == session.ModeCheckOnly && result.UpdatesAvailable {
		return exitUpdatesAvailable
	}
	return exitSuccess
}

// Command makecatalogs builds the repository's catalogs/<name> plist
// documents from the pkgsinfo/ tree of individually-authored pkginfo
// documents.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/windowsadmins/cimian/pkg/config"
	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/version"
)

func scanPkgsInfo(repoPath string) ([]pkginfo.Item, []string, error) {
	root := filepath.Join(repoPath, "pkgsinfo")
	var items []pkginfo.Item
	var sourcePaths []string

	err := filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ".plist" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		item, err := pkginfo.UnmarshalItem(data)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", path, err)
		}
		items = append(items, item)
		sourcePaths = append(sourcePaths, path)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return items, sourcePaths, nil
}

// verifyPayloads checks that each item's installer_item_location exists
// under pkgs/, returning one warning per item with a missing payload.
func verifyPayloads(repoPath string, items []pkginfo.Item, sourcePaths []string) []string {
	pkgsDir := filepath.Join(repoPath, "pkgs")
	found := map[string]bool{}
	filepath.Walk(pkgsDir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			if rel, relErr := filepath.Rel(repoPath, path); relErr == nil {
				found[strings.ToLower(rel)] = true
			}
		}
		return nil
	})

	var warnings []string
	for i, item := range items {
		if item.InstallerItemLocation == "" {
			continue
		}
		rel := filepath.Join("pkgs", item.InstallerItemLocation)
		if !found[strings.ToLower(rel)] {
			warnings = append(warnings, fmt.Sprintf("%s: missing installer payload %s", sourcePaths[i], rel))
		}
	}
	return warnings
}

// buildCatalogs groups items by every catalog name they declare, plus the
// implicit "all" catalog every item belongs to.
func buildCatalogs(items []pkginfo.Item) map[string][]pkginfo.Item {
	cats := map[string][]pkginfo.Item{"all": items}
	for _, item := range items {
		for _, name := range item.Catalogs {
			cats[name] = append(cats[name], item)
		}
	}
	return cats
}

func writeCatalogs(repoPath string, catalogs map[string][]pkginfo.Item) error {
	catDir := filepath.Join(repoPath, "catalogs")
	if err := os.MkdirAll(catDir, 0o755); err != nil {
		return fmt.Errorf("creating catalogs directory: %w", err)
	}

	entries, _ := os.ReadDir(catDir)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if _, ok := catalogs[base]; !ok {
			if err := os.Remove(filepath.Join(catDir, e.Name())); err == nil {
				logging.Debug("makecatalogs: removed stale catalog", "name", e.Name())
			}
		}
	}

	for name, items := range catalogs {
		data, err := pkginfo.MarshalCatalog(items)
		if err != nil {
			return fmt.Errorf("encoding catalog %s: %w", name, err)
		}
		outPath := filepath.Join(catDir, name)
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", outPath, err)
		}
		logging.Info("makecatalogs: wrote catalog", "name", name, "items", len(items))
	}
	return nil
}

func main() {
	repoFlag := flag.String("repo-path", "", "path to the repository root (default: configured software repo)")
	skipPayloadCheck := flag.Bool("skip-payload-check", false, "do not warn about missing installer payloads")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		version.Print()
		return
	}

	cfg, err := config.LoadConfig(config.DefaultRootDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "makecatalogs: loading config: %v\n", err)
		os.Exit(1)
	}
	if err := logging.Init(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "makecatalogs: initializing logging: %v\n", err)
		os.Exit(1)
	}
	defer logging.CloseLogger()

	repo := *repoFlag
	if repo == "" {
		repo = cfg.SoftwareRepoURL
	}
	if repo == "" {
		logging.Error("makecatalogs: no repo path given via --repo-path or config software_repo_url")
		os.Exit(1)
	}

	items, sourcePaths, err := scanPkgsInfo(repo)
	if err != nil {
		logging.Error("makecatalogs: scanning pkgsinfo", "error", err.Error())
		os.Exit(1)
	}

	if !*skipPayloadCheck {
		for _, w := range verifyPayloads(repo, items, sourcePaths) {
			logging.Warn("makecatalogs: " + w)
		}
	}

	if err := writeCatalogs(repo, buildCatalogs(items)); err != nil {
		logging.Error("makecatalogs: writing catalogs", "error", err.Error())
		os.Exit(1)
	}

	logging.Info("makecatalogs: completed", "items", len(items))
}

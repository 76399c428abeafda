// Command manifestutil inspects and edits the manifest documents in the
// local manifests directory (config ManifestsPath) and the local
// self-serve manifest. It does not read or write the repository's
// manifests/ tree.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	flag "github.com/spf13/pflag"

	"github.com/windowsadmins/cimian/pkg/config"
	"github.com/windowsadmins/cimian/pkg/manifest"
	"github.com/windowsadmins/cimian/pkg/receipts"
	"github.com/windowsadmins/cimian/pkg/version"
)

func listManifests(manifestDir string) ([]string, error) {
	entries, err := os.ReadDir(manifestDir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".plist" {
			names = append(names, strings.TrimSuffix(e.Name(), ".plist"))
		}
	}
	return names, nil
}

func manifestFilePath(manifestDir, name string) string {
	return filepath.Join(manifestDir, name+".plist")
}

func loadManifestFile(path string) (manifest.Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return manifest.Manifest{}, err
	}
	return manifest.Parse(data)
}

func saveManifestFile(path string, m *manifest.Manifest) error {
	data, err := manifest.Marshal(m)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func addToSection(m *manifest.Manifest, pkg, section string) error {
	switch section {
	case "managed_installs":
		m.ManagedInstalls = append(m.ManagedInstalls, pkg)
	case "managed_uninstalls":
		m.ManagedUninstalls = append(m.ManagedUninstalls, pkg)
	case "managed_updates":
		m.ManagedUpdates = append(m.ManagedUpdates, pkg)
	case "optional_installs":
		m.OptionalInstalls = append(m.OptionalInstalls, pkg)
	default:
		return fmt.Errorf("unknown section %q", section)
	}
	return nil
}

func removeFromSection(m *manifest.Manifest, pkg, section string) error {
	remove := func(items []string) []string {
		out := items[:0]
		for _, it := range items {
			if it != pkg {
				out = append(out, it)
			}
		}
		return out
	}
	switch section {
	case "managed_installs":
		m.ManagedInstalls = remove(m.ManagedInstalls)
	case "managed_uninstalls":
		m.ManagedUninstalls = remove(m.ManagedUninstalls)
	case "managed_updates":
		m.ManagedUpdates = remove(m.ManagedUpdates)
	case "optional_installs":
		m.OptionalInstalls = remove(m.OptionalInstalls)
	default:
		return fmt.Errorf("unknown section %q", section)
	}
	return nil
}

func selfServeStore(cfg *config.Configuration) *receipts.SelfServeStore {
	return receipts.NewSelfServeStore(cfg.SelfServeManifestPath())
}

func main() {
	listManifestsFlag := flag.Bool("list-manifests", false, "List available manifests")
	newManifest := flag.String("new-manifest", "", "Create a new, empty manifest with this name")
	addPackage := flag.String("add-pkg", "", "Package to add to a manifest section")
	removePackage := flag.String("remove-pkg", "", "Package to remove from a manifest section")
	section := flag.String("section", "managed_installs", "Manifest section to operate on")
	manifestName := flag.String("manifest", "", "Manifest to operate on")

	listAvailable := flag.Bool("list-available", false, "List the manifest's optional_installs")
	selfServeInstall := flag.String("selfserve-install", "", "Add a package to the local self-serve manifest")
	selfServeRemove := flag.String("selfserve-remove", "", "Remove a package from the local self-serve manifest")
	selfServeStatus := flag.Bool("selfserve-status", false, "Show the local self-serve manifest")

	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		version.Print()
		return
	}

	cfg, err := config.LoadConfig(config.DefaultRootDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "manifestutil: loading config: %v\n", err)
		os.Exit(1)
	}
	manifestDir := cfg.ManifestsPath()

	switch {
	case *listAvailable:
		if *manifestName == "" {
			fmt.Fprintln(os.Stderr, "manifestutil: --list-available requires --manifest")
			os.Exit(1)
		}
		m, err := loadManifestFile(manifestFilePath(manifestDir, *manifestName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		sort.Strings(m.OptionalInstalls)
		for _, name := range m.OptionalInstalls {
			fmt.Println(name)
		}
		return

	case *selfServeStatus:
		ss, err := selfServeStore(cfg).Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("managed_installs:")
		for _, name := range ss.ManagedInstalls {
			fmt.Println("  " + name)
		}
		fmt.Println("managed_uninstalls:")
		for _, name := range ss.ManagedUninstalls {
			fmt.Println("  " + name)
		}
		return

	case *selfServeInstall != "":
		if err := selfServeStore(cfg).AddInstall(*selfServeInstall); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("requested install of %s\n", *selfServeInstall)
		return

	case *selfServeRemove != "":
		if err := selfServeStore(cfg).RemoveInstall(*selfServeRemove); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("removed self-serve request for %s\n", *selfServeRemove)
		return
	}

	if *listManifestsFlag {
		names, err := listManifests(manifestDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Println(name)
		}
		return
	}

	if *newManifest != "" {
		path := manifestFilePath(manifestDir, *newManifest)
		if err := os.MkdirAll(manifestDir, 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		m := manifest.Manifest{}
		if err := saveManifestFile(path, &m); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("created manifest %s\n", path)
		return
	}

	if *manifestName == "" {
		flag.Usage()
		return
	}

	path := manifestFilePath(manifestDir, *manifestName)
	m, err := loadManifestFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
		os.Exit(1)
	}

	changed := false
	if *addPackage != "" {
		if err := addToSection(&m, *addPackage, *section); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		changed = true
	}
	if *removePackage != "" {
		if err := removeFromSection(&m, *removePackage, *section); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		changed = true
	}
	if changed {
		if err := saveManifestFile(path, &m); err != nil {
			fmt.Fprintf(os.Stderr, "manifestutil: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("updated %s\n", path)
	}
}

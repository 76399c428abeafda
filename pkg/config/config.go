// Package config holds the configurable options for the agent. The
// config file itself is YAML (gopkg.in/yaml.v3) even though the
// repository's own documents are property lists — this is purely local,
// ambient configuration, separate from the plist format used for
// pkginfo and manifest documents.
package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultRootDir is used when no root directory is supplied. Rather
// than hardcoding C:\ProgramData\ManagedInstalls, the root is
// configurable so the agent runs on any platform, with this as a sane
// default when unset.
func DefaultRootDir() string {
	if v := os.Getenv("CIMIAN_ROOT"); v != "" {
		return v
	}
	return filepath.Join(os.TempDir(), "ManagedInstalls")
}

// Configuration holds the options that drive one agent run: the local
// state layout plus the per-component settings below it.
type Configuration struct {
	// RootDir anchors every local-state path below (the
	// "ManagedInstalls/" tree): Cache, catalogs, manifests, InstallInfo,
	// ManagedInstallReport, and the lock/stop-request sentinels.
	RootDir string `yaml:"RootDir"`

	SoftwareRepoURL  string   `yaml:"SoftwareRepoURL"`
	ClientIdentifier string   `yaml:"ClientIdentifier"`
	Catalogs         []string `yaml:"Catalogs"`
	LocalManifests   []string `yaml:"LocalManifests"`

	LogLevel string `yaml:"LogLevel"`
	Debug    bool   `yaml:"Debug"`
	Verbose  bool   `yaml:"Verbose"`

	DefaultArch string `yaml:"DefaultArch"`

	// InstallerTimeoutMinutes bounds embedded-script execution; native
	// installer invocations themselves have no default timeout, since
	// they can legitimately take hours.
	InstallerTimeoutMinutes int `yaml:"InstallerTimeoutMinutes"`

	// DiskSpaceSafetyMarginMB is the fixed safety margin added on top of
	// the install list's projected disk usage before the resolver will
	// schedule it.
	DiskSpaceSafetyMarginMB int64 `yaml:"DiskSpaceSafetyMarginMB"`

	Unattended bool `yaml:"-"` // set from --unattended, not persisted
	CheckOnly  bool `yaml:"-"`
}

const configFileName = "Config.yaml"

// ConfigPath returns the path to the local configuration file under root.
func ConfigPath(root string) string {
	return filepath.Join(root, configFileName)
}

// CachePath returns ManagedInstalls/Cache.
func (c *Configuration) CachePath() string { return filepath.Join(c.RootDir, "Cache") }

// CatalogsPath returns ManagedInstalls/catalogs.
func (c *Configuration) CatalogsPath() string { return filepath.Join(c.RootDir, "catalogs") }

// ManifestsPath returns ManagedInstalls/manifests.
func (c *Configuration) ManifestsPath() string { return filepath.Join(c.RootDir, "manifests") }

// LogsPath returns ManagedInstalls/logs.
func (c *Configuration) LogsPath() string { return filepath.Join(c.RootDir, "logs") }

// InstallInfoPath returns ManagedInstalls/InstallInfo.plist.
func (c *Configuration) InstallInfoPath() string {
	return filepath.Join(c.RootDir, "InstallInfo.plist")
}

// ReportPath returns ManagedInstalls/ManagedInstallReport.plist.
func (c *Configuration) ReportPath() string {
	return filepath.Join(c.RootDir, "ManagedInstallReport.plist")
}

// SelfServeManifestPath returns ManagedInstalls/manifests/SelfServeManifest.plist.
func (c *Configuration) SelfServeManifestPath() string {
	return filepath.Join(c.ManifestsPath(), "SelfServeManifest.plist")
}

// LockPath returns the process-wide session lock file path.
func (c *Configuration) LockPath() string {
	return filepath.Join(c.RootDir, ".session.lock")
}

// StopRequestPath returns the "stop requested" sentinel file path.
func (c *Configuration) StopRequestPath() string {
	return filepath.Join(c.RootDir, ".stop_requested")
}

// InstallAtLogoutPath returns the sentinel an external logout helper
// polls for.
func (c *Configuration) InstallAtLogoutPath() string {
	return filepath.Join(c.RootDir, ".install_at_logout")
}

// ReceiptDBPath returns the package path database file.
func (c *Configuration) ReceiptDBPath() string {
	return filepath.Join(c.RootDir, "receipts.db")
}

// GetDefaultConfig returns sensible defaults for a fresh installation.
func GetDefaultConfig() *Configuration {
	return &Configuration{
		RootDir:                 DefaultRootDir(),
		SoftwareRepoURL:         "https://example.com/repo",
		LogLevel:                "INFO",
		DefaultArch:             "x64",
		InstallerTimeoutMinutes: 15,
		DiskSpaceSafetyMarginMB: 1024,
	}
}

// LoadConfig loads configuration from RootDir/Config.yaml, falling back
// to defaults (and creating the state directories, without writing the
// file) if the file does not yet exist.
func LoadConfig(root string) (*Configuration, error) {
	if root == "" {
		root = DefaultRootDir()
	}
	path := ConfigPath(root)

	cfg := GetDefaultConfig()
	cfg.RootDir = root

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mkErr := ensureDirs(cfg); mkErr != nil {
			return nil, mkErr
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := unmarshalYAML(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.RootDir = root

	if err := ensureDirs(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes the configuration back to RootDir/Config.yaml.
func SaveConfig(cfg *Configuration) error {
	data, err := marshalYAML(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	path := ConfigPath(cfg.RootDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config: mkdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

func ensureDirs(cfg *Configuration) error {
	for _, p := range []string{cfg.CachePath(), cfg.CatalogsPath(), cfg.ManifestsPath(), cfg.LogsPath()} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			return fmt.Errorf("config: create directory %s: %w", p, err)
		}
	}
	return nil
}

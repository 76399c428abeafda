// Package pkginfo defines the metadata record describing one installable
// software item and the catalogs that hold them.
package pkginfo

import (
	"fmt"
	"time"

	"github.com/windowsadmins/cimian/pkg/plist"
	"github.com/windowsadmins/cimian/pkg/predicates"
)

// InstallerType names the payload kind and, transitively, which executor
// dispatches the install.
type InstallerType string

const (
	InstallerPlatformPackage   InstallerType = "platform_package"
	InstallerDiskImageCopy     InstallerType = "disk_image_copy"
	InstallerBundleCopyFromImg InstallerType = "bundle_copy_from_image"
	InstallerConfigProfile     InstallerType = "configuration_profile"
	InstallerScriptOnly        InstallerType = "script_only"
	InstallerAppleUpdateMeta   InstallerType = "apple_update_metadata"
	InstallerNone              InstallerType = "nopkg"
)

// UninstallMethod names how a removal is carried out.
type UninstallMethod string

const (
	UninstallReceiptRemoval    UninstallMethod = "receipt_removal"
	UninstallRemoveCopied      UninstallMethod = "remove_copied_items"
	UninstallRemoveProfile     UninstallMethod = "remove_profile"
	UninstallScript            UninstallMethod = "uninstall_script"
	UninstallInstallerSpecific UninstallMethod = "installer-specific"
)

// RestartAction names the reboot/logout consequence of an install or removal.
type RestartAction string

const (
	RestartNone              RestartAction = "none"
	RestartLogoutRequired    RestartAction = "logout_required"
	RestartRequired          RestartAction = "restart_required"
	RestartRecommended       RestartAction = "restart_recommended"
	RestartLogoutRecommended RestartAction = "logout_recommended"
)

// ProbeKind names the installed-state probe variant.
type ProbeKind string

const (
	ProbeApplication ProbeKind = "application"
	ProbeBundle      ProbeKind = "bundle"
	ProbePlist       ProbeKind = "plist"
	ProbeFile        ProbeKind = "filesystem_file"
)

// InstallProbe is one entry in an item's installs array: a way to detect
// whether that piece of the item is present and at what version.
type InstallProbe struct {
	Kind                 ProbeKind
	Path                 string
	VersionKey           string
	MinimumUpdateVersion string
	MD5Checksum          string

	// BundleID and BundleName identify an application probe that has no
	// fixed Path: the probe is resolved by searching the live
	// application registry for an installed bundle matching by
	// identifier first, then by name.
	BundleID   string
	BundleName string
}

// EffectiveVersionKey returns the bundle version key to read: VersionKey
// when set, else CFBundleShortVersionString. The fallback to
// CFBundleVersion when that key is missing from the plist is done by the
// probe that reads it.
func (p InstallProbe) EffectiveVersionKey() string {
	if p.VersionKey != "" {
		return p.VersionKey
	}
	return "CFBundleShortVersionString"
}

// Receipt is one entry in an item's receipts array, used for receipt-based
// state detection and removal.
type Receipt struct {
	PackageID string
	Version   string
	Optional  bool
}

// Item is the unit of manageable software: one (name, version) record
// within a catalog.
type Item struct {
	Name        string
	Version     string
	DisplayName string
	Description string

	Catalogs []string

	InstallerType         InstallerType
	InstallerItemLocation string
	InstallerItemHash     string
	InstallerItemSize     int64
	InstalledSize         int64

	Uninstallable   bool
	UninstallMethod UninstallMethod

	// ForceDeleteBundles allows a receipt_removal uninstall to delete a
	// non-empty directory when it is an application bundle (.app,
	// .framework, and similar extensions), rather than leaving it behind
	// with a warning.
	ForceDeleteBundles bool

	Installs []InstallProbe
	Receipts []Receipt

	Requires  []string
	UpdateFor []string

	BlockingApplications []string
	RestartAction         RestartAction

	MinimumOSVersion       string
	MaximumOSVersion       string
	SupportedArchitectures []string
	MinimumAgentVersion    string
	InstallableCondition   *predicates.Condition

	ForceInstallAfterDate *time.Time
	UnattendedInstall     bool
	UnattendedUninstall   bool
	OnDemand              bool
	Featured              bool

	InstallCheckScript   string
	UninstallCheckScript string
	PreinstallScript     string
	PostinstallScript    string
	PreuninstallScript   string
	PostuninstallScript  string
	UninstallScriptBody  string

	// Extra preserves admin-authored keys this record doesn't model, so a
	// round trip through Marshal/Unmarshal doesn't silently drop them.
	Extra map[string]any
}

// Key identifies an item uniquely within a catalog.
type Key struct {
	Name    string
	Version string
}

func (k Key) String() string { return fmt.Sprintf("%s-%s", k.Name, k.Version) }

// Key returns the item's (name, version) identity.
func (it *Item) Key() Key { return Key{Name: it.Name, Version: it.Version} }

// InCatalog reports whether the item declares membership in the named
// catalog, or in the "all" catalog which every item implicitly belongs to
// for global indexing purposes.
func (it *Item) InCatalog(name string) bool {
	if name == "all" {
		return true
	}
	for _, c := range it.Catalogs {
		if c == name {
			return true
		}
	}
	return false
}

// Catalog is a named, ordered array of pkginfo items, as published under
// catalogs/<name> in the repository.
type Catalog struct {
	Name  string
	Items []Item
}

// MarshalCatalog serializes a catalog's items to a plist array document.
func MarshalCatalog(items []Item) ([]byte, error) {
	docs := make([]map[string]any, 0, len(items))
	for i := range items {
		docs = append(docs, toDoc(&items[i]))
	}
	return plist.Marshal(docs)
}

// UnmarshalCatalog parses a plist array document into pkginfo items,
// preserving any keys not modeled by Item in each item's Extra map.
func UnmarshalCatalog(data []byte) ([]Item, error) {
	var docs []map[string]any
	if err := plist.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("pkginfo: unmarshal catalog: %w", err)
	}
	items := make([]Item, 0, len(docs))
	for _, doc := range docs {
		items = append(items, fromDoc(doc))
	}
	return items, nil
}

// MarshalItem serializes a single pkginfo item, as used for the
// admin-authoring pkgsinfo/... format.
func MarshalItem(it *Item) ([]byte, error) {
	return plist.Marshal(toDoc(it))
}

// UnmarshalItem parses a single pkginfo plist document.
func UnmarshalItem(data []byte) (Item, error) {
	var doc map[string]any
	if err := plist.Unmarshal(data, &doc); err != nil {
		return Item{}, fmt.Errorf("pkginfo: unmarshal item: %w", err)
	}
	return fromDoc(doc), nil
}

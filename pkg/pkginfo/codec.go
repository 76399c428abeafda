package pkginfo

import (
	"time"

	"github.com/windowsadmins/cimian/pkg/predicates"
)

// knownKeys lists every plist key toDoc/fromDoc handle explicitly. Anything
// else round-trips through Item.Extra untouched.
var knownKeys = map[string]bool{
	"name": true, "version": true, "display_name": true, "description": true,
	"catalogs": true,
	"installer_type": true, "installer_item_location": true, "installer_item_hash": true, "installer_item_size": true, "installed_size": true,
	"uninstallable": true, "uninstall_method": true, "force_delete_bundles": true,
	"installs": true, "receipts": true,
	"requires": true, "update_for": true,
	"blocking_applications": true, "RestartAction": true,
	"minimum_os_version": true, "maximum_os_version": true, "supported_architectures": true,
	"minimum_munki_version": true, "installable_condition": true,
	"force_install_after_date": true, "unattended_install": true, "unattended_uninstall": true,
	"OnDemand": true, "featured": true,
	"installcheck_script": true, "uninstallcheck_script": true,
	"preinstall_script": true, "postinstall_script": true,
	"preuninstall_script": true, "postuninstall_script": true, "uninstall_script": true,
}

func toDoc(it *Item) map[string]any {
	doc := map[string]any{}
	for k, v := range it.Extra {
		doc[k] = v
	}

	doc["name"] = it.Name
	doc["version"] = it.Version
	setIfNonEmpty(doc, "display_name", it.DisplayName)
	setIfNonEmpty(doc, "description", it.Description)
	if len(it.Catalogs) > 0 {
		doc["catalogs"] = it.Catalogs
	}
	setIfNonEmpty(doc, "installer_type", string(it.InstallerType))
	setIfNonEmpty(doc, "installer_item_location", it.InstallerItemLocation)
	setIfNonEmpty(doc, "installer_item_hash", it.InstallerItemHash)
	if it.InstallerItemSize != 0 {
		doc["installer_item_size"] = it.InstallerItemSize
	}
	if it.InstalledSize != 0 {
		doc["installed_size"] = it.InstalledSize
	}
	if it.Uninstallable {
		doc["uninstallable"] = it.Uninstallable
	}
	setIfNonEmpty(doc, "uninstall_method", string(it.UninstallMethod))
	if it.ForceDeleteBundles {
		doc["force_delete_bundles"] = it.ForceDeleteBundles
	}

	if len(it.Installs) > 0 {
		probes := make([]map[string]any, 0, len(it.Installs))
		for _, p := range it.Installs {
			pd := map[string]any{"type": string(p.Kind), "path": p.Path}
			setIfNonEmpty(pd, "version_key", p.VersionKey)
			setIfNonEmpty(pd, "minimum_update_version", p.MinimumUpdateVersion)
			setIfNonEmpty(pd, "md5checksum", p.MD5Checksum)
			setIfNonEmpty(pd, "CFBundleIdentifier", p.BundleID)
			setIfNonEmpty(pd, "CFBundleName", p.BundleName)
			probes = append(probes, pd)
		}
		doc["installs"] = probes
	}
	if len(it.Receipts) > 0 {
		receipts := make([]map[string]any, 0, len(it.Receipts))
		for _, r := range it.Receipts {
			rd := map[string]any{"packageid": r.PackageID, "version": r.Version}
			if r.Optional {
				rd["optional"] = true
			}
			receipts = append(receipts, rd)
		}
		doc["receipts"] = receipts
	}

	if len(it.Requires) > 0 {
		doc["requires"] = it.Requires
	}
	if len(it.UpdateFor) > 0 {
		doc["update_for"] = it.UpdateFor
	}
	if len(it.BlockingApplications) > 0 {
		doc["blocking_applications"] = it.BlockingApplications
	}
	setIfNonEmpty(doc, "RestartAction", string(it.RestartAction))

	setIfNonEmpty(doc, "minimum_os_version", it.MinimumOSVersion)
	setIfNonEmpty(doc, "maximum_os_version", it.MaximumOSVersion)
	if len(it.SupportedArchitectures) > 0 {
		doc["supported_architectures"] = it.SupportedArchitectures
	}
	setIfNonEmpty(doc, "minimum_munki_version", it.MinimumAgentVersion)
	if it.InstallableCondition != nil {
		doc["installable_condition"] = map[string]any{
			"key":      it.InstallableCondition.Key,
			"operator": it.InstallableCondition.Operator,
			"value":    it.InstallableCondition.Value,
		}
	}

	if it.ForceInstallAfterDate != nil {
		doc["force_install_after_date"] = *it.ForceInstallAfterDate
	}
	if it.UnattendedInstall {
		doc["unattended_install"] = true
	}
	if it.UnattendedUninstall {
		doc["unattended_uninstall"] = true
	}
	if it.OnDemand {
		doc["OnDemand"] = true
	}
	if it.Featured {
		doc["featured"] = true
	}

	setIfNonEmpty(doc, "installcheck_script", it.InstallCheckScript)
	setIfNonEmpty(doc, "uninstallcheck_script", it.UninstallCheckScript)
	setIfNonEmpty(doc, "preinstall_script", it.PreinstallScript)
	setIfNonEmpty(doc, "postinstall_script", it.PostinstallScript)
	setIfNonEmpty(doc, "preuninstall_script", it.PreuninstallScript)
	setIfNonEmpty(doc, "postuninstall_script", it.PostuninstallScript)
	setIfNonEmpty(doc, "uninstall_script", it.UninstallScriptBody)

	return doc
}

func fromDoc(doc map[string]any) Item {
	it := Item{
		Name:        stringOf(doc["name"]),
		Version:     stringOf(doc["version"]),
		DisplayName: stringOf(doc["display_name"]),
		Description: stringOf(doc["description"]),

		Catalogs: stringSliceOf(doc["catalogs"]),

		InstallerType:         InstallerType(stringOf(doc["installer_type"])),
		InstallerItemLocation: stringOf(doc["installer_item_location"]),
		InstallerItemHash:     stringOf(doc["installer_item_hash"]),
		InstallerItemSize:     int64Of(doc["installer_item_size"]),
		InstalledSize:         int64Of(doc["installed_size"]),

		Uninstallable:      boolOf(doc["uninstallable"]),
		UninstallMethod:    UninstallMethod(stringOf(doc["uninstall_method"])),
		ForceDeleteBundles: boolOf(doc["force_delete_bundles"]),

		Requires:  stringSliceOf(doc["requires"]),
		UpdateFor: stringSliceOf(doc["update_for"]),

		BlockingApplications: stringSliceOf(doc["blocking_applications"]),
		RestartAction:        RestartAction(stringOf(doc["RestartAction"])),

		MinimumOSVersion:       stringOf(doc["minimum_os_version"]),
		MaximumOSVersion:       stringOf(doc["maximum_os_version"]),
		SupportedArchitectures: stringSliceOf(doc["supported_architectures"]),
		MinimumAgentVersion:    stringOf(doc["minimum_munki_version"]),
		InstallableCondition:   conditionOf(doc["installable_condition"]),

		UnattendedInstall:   boolOf(doc["unattended_install"]),
		UnattendedUninstall: boolOf(doc["unattended_uninstall"]),
		OnDemand:            boolOf(doc["OnDemand"]),
		Featured:            boolOf(doc["featured"]),

		InstallCheckScript:   stringOf(doc["installcheck_script"]),
		UninstallCheckScript: stringOf(doc["uninstallcheck_script"]),
		PreinstallScript:     stringOf(doc["preinstall_script"]),
		PostinstallScript:    stringOf(doc["postinstall_script"]),
		PreuninstallScript:   stringOf(doc["preuninstall_script"]),
		PostuninstallScript:  stringOf(doc["postuninstall_script"]),
		UninstallScriptBody:  stringOf(doc["uninstall_script"]),
	}

	if t, ok := doc["force_install_after_date"].(time.Time); ok {
		it.ForceInstallAfterDate = &t
	}

	if raw, ok := doc["installs"].([]any); ok {
		for _, r := range raw {
			pd, ok := r.(map[string]any)
			if !ok {
				continue
			}
			it.Installs = append(it.Installs, InstallProbe{
				Kind:                 ProbeKind(stringOf(pd["type"])),
				Path:                 stringOf(pd["path"]),
				VersionKey:           stringOf(pd["version_key"]),
				MinimumUpdateVersion: stringOf(pd["minimum_update_version"]),
				MD5Checksum:          stringOf(pd["md5checksum"]),
				BundleID:             stringOf(pd["CFBundleIdentifier"]),
				BundleName:           stringOf(pd["CFBundleName"]),
			})
		}
	}
	if raw, ok := doc["receipts"].([]any); ok {
		for _, r := range raw {
			rd, ok := r.(map[string]any)
			if !ok {
				continue
			}
			it.Receipts = append(it.Receipts, Receipt{
				PackageID: stringOf(rd["packageid"]),
				Version:   stringOf(rd["version"]),
				Optional:  boolOf(rd["optional"]),
			})
		}
	}

	it.Extra = map[string]any{}
	for k, v := range doc {
		if !knownKeys[k] {
			it.Extra[k] = v
		}
	}
	if len(it.Extra) == 0 {
		it.Extra = nil
	}
	return it
}

func setIfNonEmpty(doc map[string]any, key, value string) {
	if value != "" {
		doc[key] = value
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}

func boolOf(v any) bool {
	b, _ := v.(bool)
	return b
}

func int64Of(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func stringSliceOf(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func conditionOf(v any) *predicates.Condition {
	d, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &predicates.Condition{
		Key:      stringOf(d["key"]),
		Operator: stringOf(d["operator"]),
		Value:    d["value"],
	}
}

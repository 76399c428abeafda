package manifest

import "github.com/windowsadmins/cimian/pkg/predicates"

var knownKeys = map[string]bool{
	"catalogs": true, "managed_installs": true, "managed_uninstalls": true,
	"managed_updates": true, "optional_installs": true, "featured_items": true,
	"included_manifests": true, "conditional_items": true,
}

func toDoc(m *Manifest) map[string]any {
	doc := map[string]any{}
	for k, v := range m.Extra {
		doc[k] = v
	}

	if len(m.Catalogs) > 0 {
		doc["catalogs"] = m.Catalogs
	}
	if len(m.ManagedInstalls) > 0 {
		doc["managed_installs"] = m.ManagedInstalls
	}
	if len(m.ManagedUninstalls) > 0 {
		doc["managed_uninstalls"] = m.ManagedUninstalls
	}
	if len(m.ManagedUpdates) > 0 {
		doc["managed_updates"] = m.ManagedUpdates
	}
	if len(m.OptionalInstalls) > 0 {
		doc["optional_installs"] = m.OptionalInstalls
	}
	if len(m.FeaturedItems) > 0 {
		doc["featured_items"] = m.FeaturedItems
	}
	if len(m.IncludedManifests) > 0 {
		doc["included_manifests"] = m.IncludedManifests
	}
	if len(m.ConditionalItems) > 0 {
		items := make([]map[string]any, 0, len(m.ConditionalItems))
		for _, ci := range m.ConditionalItems {
			items = append(items, conditionalItemToDoc(ci))
		}
		doc["conditional_items"] = items
	}
	return doc
}

func fromDoc(doc map[string]any) Manifest {
	m := Manifest{
		Catalogs:          stringSliceOf(doc["catalogs"]),
		ManagedInstalls:   stringSliceOf(doc["managed_installs"]),
		ManagedUninstalls: stringSliceOf(doc["managed_uninstalls"]),
		ManagedUpdates:    stringSliceOf(doc["managed_updates"]),
		OptionalInstalls:  stringSliceOf(doc["optional_installs"]),
		FeaturedItems:     stringSliceOf(doc["featured_items"]),
		IncludedManifests: stringSliceOf(doc["included_manifests"]),
	}

	if raw, ok := doc["conditional_items"].([]any); ok {
		for _, r := range raw {
			if cd, ok := r.(map[string]any); ok {
				m.ConditionalItems = append(m.ConditionalItems, conditionalItemFromDoc(cd))
			}
		}
	}

	m.Extra = map[string]any{}
	for k, v := range doc {
		if !knownKeys[k] {
			m.Extra[k] = v
		}
	}
	if len(m.Extra) == 0 {
		m.Extra = nil
	}
	return m
}

func conditionalItemToDoc(ci *predicates.ConditionalItem) map[string]any {
	d := map[string]any{}
	if ci.Condition != nil {
		d["condition"] = conditionToDoc(ci.Condition)
	}
	if len(ci.Conditions) > 0 {
		conds := make([]map[string]any, 0, len(ci.Conditions))
		for _, c := range ci.Conditions {
			conds = append(conds, conditionToDoc(c))
		}
		d["conditions"] = conds
	}
	if ci.ConditionType != "" {
		d["condition_type"] = ci.ConditionType
	}
	if len(ci.ManagedInstalls) > 0 {
		d["managed_installs"] = ci.ManagedInstalls
	}
	if len(ci.ManagedUninstalls) > 0 {
		d["managed_uninstalls"] = ci.ManagedUninstalls
	}
	if len(ci.ManagedUpdates) > 0 {
		d["managed_updates"] = ci.ManagedUpdates
	}
	if len(ci.OptionalInstalls) > 0 {
		d["optional_installs"] = ci.OptionalInstalls
	}
	return d
}

func conditionalItemFromDoc(d map[string]any) *predicates.ConditionalItem {
	ci := &predicates.ConditionalItem{
		ConditionType:     stringOf(d["condition_type"]),
		ManagedInstalls:   stringSliceOf(d["managed_installs"]),
		ManagedUninstalls: stringSliceOf(d["managed_uninstalls"]),
		ManagedUpdates:    stringSliceOf(d["managed_updates"]),
		OptionalInstalls:  stringSliceOf(d["optional_installs"]),
	}
	if cd, ok := d["condition"].(map[string]any); ok {
		ci.Condition = conditionFromDoc(cd)
	}
	if raw, ok := d["conditions"].([]any); ok {
		for _, r := range raw {
			if cd, ok := r.(map[string]any); ok {
				ci.Conditions = append(ci.Conditions, conditionFromDoc(cd))
			}
		}
	}
	return ci
}

func conditionToDoc(c *predicates.Condition) map[string]any {
	return map[string]any{"key": c.Key, "operator": c.Operator, "value": c.Value}
}

func conditionFromDoc(d map[string]any) *predicates.Condition {
	return &predicates.Condition{
		Key:      stringOf(d["key"]),
		Operator: stringOf(d["operator"]),
		Value:    d["value"],
	}
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
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

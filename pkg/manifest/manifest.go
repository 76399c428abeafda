// Package manifest defines the document declaring, for one machine or
// group, which catalogs to consult and which items to install, remove,
// or offer as optional, along with the recursive included_manifests and
// predicate-gated conditional_items that feed into it.
package manifest

import (
	"fmt"

	"github.com/windowsadmins/cimian/pkg/hostfacts"
	"github.com/windowsadmins/cimian/pkg/plist"
	"github.com/windowsadmins/cimian/pkg/predicates"
)

// Manifest declares one machine or group's catalog priority and item lists.
type Manifest struct {
	Name string

	Catalogs []string

	ManagedInstalls   []string
	ManagedUninstalls []string
	ManagedUpdates    []string
	OptionalInstalls  []string
	FeaturedItems     []string

	IncludedManifests []string
	ConditionalItems  []*predicates.ConditionalItem

	// Extra preserves admin-authored keys this record doesn't model.
	Extra map[string]any
}

// SelfServe is the local-only, writable record of optional items a user
// has chosen to install or remove. It is merged into the effective
// manifest before resolution, and rewritten only when the user mutates a
// selection or the executor clears a satisfied OnDemand entry.
type SelfServe struct {
	ManagedInstalls   []string
	ManagedUninstalls []string
}

// Resolver fetches a named manifest document's raw bytes. pkg/repo
// implements this; manifest itself only parses and expands.
type Resolver interface {
	Get(relpath string) ([]byte, error)
}

// Effective is the fully expanded manifest: included_manifests inlined,
// conditional_items merged, self-serve choices unioned in, and installs
// pruned of anything also marked for uninstall.
type Effective struct {
	Catalogs          []string
	ManagedInstalls   []string
	ManagedUninstalls []string
	ManagedUpdates    []string
	OptionalInstalls  []string
	FeaturedItems     []string
}

func manifestPath(name string) string {
	return "manifests/" + name
}

// Parse decodes one manifest plist document.
func Parse(data []byte) (Manifest, error) {
	var doc map[string]any
	if err := plist.Unmarshal(data, &doc); err != nil {
		return Manifest{}, fmt.Errorf("manifest: parse: %w", err)
	}
	return fromDoc(doc), nil
}

// Marshal encodes a manifest back to a plist document.
func Marshal(m *Manifest) ([]byte, error) {
	return plist.Marshal(toDoc(m))
}

// Expand fetches name and every manifest it transitively includes via
// resolver, merges conditional_items against facts, unions in selfServe's
// choices, and removes from ManagedInstalls anything present in
// ManagedUninstalls. A manifest reference already visited is silently
// skipped, breaking include cycles.
func Expand(resolver Resolver, rootName string, facts hostfacts.Facts, selfServe SelfServe) (Effective, error) {
	visited := map[string]bool{}
	var eff Effective

	var walk func(name string) error
	walk = func(name string) error {
		if visited[name] {
			return nil
		}
		visited[name] = true

		data, err := resolver.Get(manifestPath(name))
		if err != nil {
			return fmt.Errorf("manifest: fetch %s: %w", name, err)
		}
		m, err := Parse(data)
		if err != nil {
			return fmt.Errorf("manifest: parse %s: %w", name, err)
		}

		eff.Catalogs = appendUnique(eff.Catalogs, m.Catalogs...)
		eff.ManagedInstalls = appendUnique(eff.ManagedInstalls, m.ManagedInstalls...)
		eff.ManagedUninstalls = appendUnique(eff.ManagedUninstalls, m.ManagedUninstalls...)
		eff.ManagedUpdates = appendUnique(eff.ManagedUpdates, m.ManagedUpdates...)
		eff.OptionalInstalls = appendUnique(eff.OptionalInstalls, m.OptionalInstalls...)
		eff.FeaturedItems = appendUnique(eff.FeaturedItems, m.FeaturedItems...)

		if len(m.ConditionalItems) > 0 {
			evaluator := predicates.NewEvaluator(facts)
			installs, uninstalls, updates, optional := evaluator.ExpandConditionalItems(m.ConditionalItems)
			eff.ManagedInstalls = appendUnique(eff.ManagedInstalls, installs...)
			eff.ManagedUninstalls = appendUnique(eff.ManagedUninstalls, uninstalls...)
			eff.ManagedUpdates = appendUnique(eff.ManagedUpdates, updates...)
			eff.OptionalInstalls = appendUnique(eff.OptionalInstalls, optional...)
		}

		for _, included := range m.IncludedManifests {
			if err := walk(included); err != nil {
				return err
			}
		}
		return nil
	}

	if err := walk(rootName); err != nil {
		return Effective{}, err
	}

	eff.ManagedInstalls = appendUnique(eff.ManagedInstalls, selfServe.ManagedInstalls...)
	eff.ManagedUninstalls = appendUnique(eff.ManagedUninstalls, selfServe.ManagedUninstalls...)
	eff.ManagedInstalls = subtract(eff.ManagedInstalls, eff.ManagedUninstalls)

	return eff, nil
}

func appendUnique(dst []string, items ...string) []string {
	seen := map[string]bool{}
	for _, d := range dst {
		seen[d] = true
	}
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			dst = append(dst, item)
		}
	}
	return dst
}

func subtract(from, remove []string) []string {
	removeSet := map[string]bool{}
	for _, r := range remove {
		removeSet[r] = true
	}
	out := make([]string, 0, len(from))
	for _, item := range from {
		if !removeSet[item] {
			out = append(out, item)
		}
	}
	return out
}

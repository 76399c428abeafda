// Package catalogdb builds an in-memory index over a session's fetched
// catalogs. It is rebuilt per session and discarded at session end; it
// never persists.
package catalogdb

import (
	"sort"

	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/version"
)

// DB is the catalog database: every pkginfo item loaded for this
// session, indexed four ways.
type DB struct {
	byName      map[string][]*pkginfo.Item
	byKey       map[pkginfo.Key]*pkginfo.Item
	byUpdateFor map[string][]*pkginfo.Item
	byHash      map[string]*pkginfo.Item
}

// Load builds a DB from catalogs named by catalogNames, fetched (in
// manifest-declared order) and parsed by fetch. Later catalogs in the
// list do not shadow earlier ones; all items across all named catalogs
// are merged into one index.
func Load(catalogNames []string, fetch func(name string) ([]pkginfo.Item, error)) (*DB, error) {
	db := &DB{
		byName:      map[string][]*pkginfo.Item{},
		byKey:       map[pkginfo.Key]*pkginfo.Item{},
		byUpdateFor: map[string][]*pkginfo.Item{},
		byHash:      map[string]*pkginfo.Item{},
	}

	for _, name := range catalogNames {
		items, err := fetch(name)
		if err != nil {
			return nil, err
		}
		for i := range items {
			db.add(&items[i])
		}
	}

	for name := range db.byName {
		items := db.byName[name]
		sort.SliceStable(items, func(i, j int) bool {
			return version.Compare(items[i].Version, items[j].Version) == version.Higher
		})
		db.byName[name] = items
	}

	return db, nil
}

func (db *DB) add(item *pkginfo.Item) {
	db.byName[item.Name] = append(db.byName[item.Name], item)
	if _, exists := db.byKey[item.Key()]; !exists {
		db.byKey[item.Key()] = item
	}
	for _, target := range item.UpdateFor {
		db.byUpdateFor[target] = append(db.byUpdateFor[target], item)
	}
	if _, exists := db.byHash[item.InstallerItemHash]; item.InstallerItemHash != "" && !exists {
		db.byHash[item.InstallerItemHash] = item
	}
}

// ByKey returns the exact (name, version) item, if present.
func (db *DB) ByKey(key pkginfo.Key) (*pkginfo.Item, bool) {
	item, ok := db.byKey[key]
	return item, ok
}

// ByHash returns the item whose installer_item_hash matches, used by
// authoring tools checking "is this payload already represented".
func (db *DB) ByHash(hash string) (*pkginfo.Item, bool) {
	item, ok := db.byHash[hash]
	return item, ok
}

// UpdatesFor returns every item whose update_for list names target.
func (db *DB) UpdatesFor(target string) []*pkginfo.Item {
	return db.byUpdateFor[target]
}

// Newest returns the highest-versioned item named name, optionally
// constrained to an exact version (modulo right-zero equivalence). The
// name's per-name list is pre-sorted newest-first, so the first
// satisfying entry wins.
func (db *DB) Newest(name, exactVersion string) (*pkginfo.Item, bool) {
	items := db.byName[name]
	if exactVersion == "" {
		if len(items) == 0 {
			return nil, false
		}
		return items[0], true
	}
	for _, item := range items {
		if version.Equivalent(item.Version, exactVersion) {
			return item, true
		}
	}
	return nil, false
}

// AllVersions returns every catalog entry for name, newest first.
func (db *DB) AllVersions(name string) []*pkginfo.Item {
	return db.byName[name]
}

// AllItems returns every distinct item loaded into the database, used by
// the resolver's reverse-dependency walk over `requires`.
func (db *DB) AllItems() []*pkginfo.Item {
	items := make([]*pkginfo.Item, 0, len(db.byKey))
	for _, item := range db.byKey {
		items = append(items, item)
	}
	return items
}

// ResolveInCatalogOrder returns the newest item named name that belongs
// to the earliest catalog in catalogOrder to contain any version of it:
// the "first catalog in manifest order wins" tie-break for items with
// the same name across multiple catalogs.
func (db *DB) ResolveInCatalogOrder(name string, catalogOrder []string) (*pkginfo.Item, bool) {
	versions := db.byName[name]
	if len(versions) == 0 {
		return nil, false
	}
	for _, catalog := range catalogOrder {
		for _, item := range versions {
			if item.InCatalog(catalog) {
				return item, true
			}
		}
	}
	return versions[0], true
}

// Package receipts persists the install plan/report, the self-serve
// manifest, and the package path database used for receipt-based
// uninstall.
package receipts

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// NativeReceipt is one package install record read from the host's
// native receipt store, the input to PathDB.Rebuild. Reading the host's
// actual native receipts is a platform-specific concern left to an
// external collaborator; PathDB only owns the relational shape below.
type NativeReceipt struct {
	PackageID       string
	Version         string
	InstallLocation string
	Paths           []PathEntry
}

// PathEntry is one filesystem path a package's receipt claims, with the
// owner/group/mode recorded at install time (needed to restore them if
// an uninstall needs to recreate a shared directory).
type PathEntry struct {
	Path string
	UID  int
	GID  int
	Mode uint32
}

// PathDB is the relational package-path store: three tables (pkgs,
// paths, pkgs_paths).
type PathDB struct {
	db   *sql.DB
	path string
}

// OpenPathDB opens (creating if necessary) the package path database at
// path, backed by the pure-Go modernc.org/sqlite driver.
func OpenPathDB(path string) (*PathDB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("receipts: create path db directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("receipts: open path db: %w", err)
	}
	p := &PathDB{db: db, path: path}
	if err := p.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return p, nil
}

// Close releases the underlying connection.
func (p *PathDB) Close() error { return p.db.Close() }

func (p *PathDB) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS pkgs (
			pkg_key TEXT PRIMARY KEY,
			packageid TEXT NOT NULL,
			version TEXT NOT NULL,
			install_location TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS paths (
			path_key TEXT PRIMARY KEY,
			path TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS pkgs_paths (
			pkg_key TEXT NOT NULL,
			path_key TEXT NOT NULL,
			uid INTEGER,
			gid INTEGER,
			mode INTEGER,
			PRIMARY KEY (pkg_key, path_key)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.db.Exec(stmt); err != nil {
			return fmt.Errorf("receipts: create tables: %w", err)
		}
	}
	return nil
}

// InstalledVersion answers probe.ReceiptLookup: whether packageID is
// installed and at what version.
func (p *PathDB) InstalledVersion(packageID string) (string, bool) {
	var version string
	row := p.db.QueryRow(`SELECT version FROM pkgs WHERE packageid = ? ORDER BY pkg_key LIMIT 1`, packageID)
	if err := row.Scan(&version); err != nil {
		return "", false
	}
	return version, true
}

// RecordPackage inserts or replaces one package's row, keyed by pkgKey
// (typically "name-version", matching pkginfo.Key.String()).
func (p *PathDB) RecordPackage(pkgKey, packageID, version, installLocation string) error {
	_, err := p.db.Exec(
		`INSERT INTO pkgs (pkg_key, packageid, version, install_location) VALUES (?, ?, ?, ?)
		 ON CONFLICT(pkg_key) DO UPDATE SET packageid = excluded.packageid, version = excluded.version, install_location = excluded.install_location`,
		pkgKey, packageID, version, installLocation)
	return err
}

// RecordPath associates path with pkgKey, recording the owner/group/mode
// it was installed with.
func (p *PathDB) RecordPath(pkgKey string, entry PathEntry) error {
	pathKey := pathKeyOf(entry.Path)
	if _, err := p.db.Exec(
		`INSERT INTO paths (path_key, path) VALUES (?, ?) ON CONFLICT(path_key) DO NOTHING`,
		pathKey, entry.Path); err != nil {
		return err
	}
	_, err := p.db.Exec(
		`INSERT INTO pkgs_paths (pkg_key, path_key, uid, gid, mode) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(pkg_key, path_key) DO UPDATE SET uid = excluded.uid, gid = excluded.gid, mode = excluded.mode`,
		pkgKey, pathKey, entry.UID, entry.GID, entry.Mode)
	return err
}

// PathsUniqueTo returns every path referenced by any of pkgKeys and by
// no package outside that set — the set-difference query the
// receipt_removal uninstall method needs to know what is safe to delete.
func (p *PathDB) PathsUniqueTo(pkgKeys []string) ([]string, error) {
	if len(pkgKeys) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(pkgKeys)*2)
	args := make([]any, 0, len(pkgKeys)*2)
	for i, key := range pkgKeys {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, key)
	}
	for _, key := range pkgKeys {
		args = append(args, key)
	}

	query := fmt.Sprintf(`
		SELECT paths.path FROM paths
		JOIN pkgs_paths ON pkgs_paths.path_key = paths.path_key
		WHERE pkgs_paths.pkg_key IN (%s)
		AND paths.path_key NOT IN (
			SELECT path_key FROM pkgs_paths WHERE pkg_key NOT IN (%s)
		)`, string(placeholders), string(placeholders))

	rows, err := p.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

// ForgetPackage removes pkgKey's rows from pkgs and pkgs_paths, the
// final step of a receipt_removal uninstall.
func (p *PathDB) ForgetPackage(pkgKey string) error {
	if _, err := p.db.Exec(`DELETE FROM pkgs_paths WHERE pkg_key = ?`, pkgKey); err != nil {
		return err
	}
	_, err := p.db.Exec(`DELETE FROM pkgs WHERE pkg_key = ?`, pkgKey)
	return err
}

// NeedsRebuild reports whether any file under receiptDir is newer than
// the database file.
func (p *PathDB) NeedsRebuild(receiptDir string) (bool, error) {
	dbInfo, err := os.Stat(p.path)
	if os.IsNotExist(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	entries, err := os.ReadDir(receiptDir)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(dbInfo.ModTime()) {
			return true, nil
		}
	}
	return false, nil
}

// Rebuild upserts receipts into the database, idempotently: each
// NativeReceipt is upserted by its own (packageid, version) key, so
// re-running Rebuild after a partial failure converges rather than
// duplicating rows. Rows for packages absent from receipts are left in
// place; Rebuild deletes nothing.
func (p *PathDB) Rebuild(receipts []NativeReceipt) error {
	for _, r := range receipts {
		pkgKey := fmt.Sprintf("%s-%s", r.PackageID, r.Version)
		if err := p.RecordPackage(pkgKey, r.PackageID, r.Version, r.InstallLocation); err != nil {
			return fmt.Errorf("receipts: rebuild package %s: %w", r.PackageID, err)
		}
		for _, entry := range r.Paths {
			if err := p.RecordPath(pkgKey, entry); err != nil {
				return fmt.Errorf("receipts: rebuild path %s: %w", entry.Path, err)
			}
		}
	}
	return nil
}

// pathKeyOf derives a stable key for a path using FNV-1a, avoiding the
// path string itself as a primary key (path separators and length vary
// too widely to index directly alongside pkg_key).
func pathKeyOf(path string) string {
	var sum uint64 = 14695981039346656037
	for i := 0; i < len(path); i++ {
		sum ^= uint64(path[i])
		sum *= 1099511628211
	}
	return fmt.Sprintf("%016x", sum)
}

// Package fetch implements the download scheduler: it turns a resolver
// install_list into a populated cache directory, skipping
// anything already present and hash-valid, fetching the rest through a
// bounded worker pool, and sweeping cache entries the current plan no
// longer references.
package fetch

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/windowsadmins/cimian/pkg/logging"
	"github.com/windowsadmins/cimian/pkg/pkginfo"
	"github.com/windowsadmins/cimian/pkg/repo"
	"github.com/windowsadmins/cimian/pkg/retry"
)

// Failure records an item that could not be fetched or failed
// verification, to be removed from the install list.
type Failure struct {
	Name string
	Note string
}

// Result records one successfully cached item, for report throughput
// bookkeeping.
type Result struct {
	Item      *pkginfo.Item
	CachePath string
	Skipped   bool // already cached with a matching hash
	Bytes     int64
	Duration  time.Duration
}

// Scheduler fetches installer items into a local cache directory.
type Scheduler struct {
	Repo        repo.Client
	CacheDir    string
	Concurrency int
	RetryConfig retry.Config
}

// New builds a Scheduler. concurrency <= 0 is treated as 1 (no parallelism).
func New(client repo.Client, cacheDir string, concurrency int) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{Repo: client, CacheDir: cacheDir, Concurrency: concurrency, RetryConfig: retry.DefaultConfig()}
}

// CachePath returns the path the item's installer payload is cached at:
// cache_dir/basename(installer_item_location).
func (s *Scheduler) CachePath(item *pkginfo.Item) string {
	return filepath.Join(s.CacheDir, filepath.Base(item.InstallerItemLocation))
}

// FetchAll fetches every item concurrently (bounded by Concurrency; pure
// I/O, so overlap across downloads is safe), verifying
// installer_item_hash, when the item declares one, whether cached or
// freshly downloaded. It returns the
// items that are ready to install and the failures that must be removed
// from the install list.
func (s *Scheduler) FetchAll(ctx context.Context, items []*pkginfo.Item) ([]Result, []Failure) {
	results := make([]Result, len(items))
	failures := make([]*Failure, len(items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.Concurrency)

	for i, item := range items {
		i, item := i, item
		g.Go(func() error {
			res, fail := s.fetchOne(gctx, item)
			results[i] = res
			failures[i] = fail
			return nil
		})
	}
	_ = g.Wait() // fetchOne never returns an error; failures are reported per-item

	ready := make([]Result, 0, len(items))
	var out []Failure
	for i, r := range results {
		if failures[i] != nil {
			out = append(out, *failures[i])
			continue
		}
		ready = append(ready, r)
	}
	return ready, out
}

func (s *Scheduler) fetchOne(ctx context.Context, item *pkginfo.Item) (Result, *Failure) {
	start := time.Now()
	cachePath := s.CachePath(item)

	if hashMatches(cachePath, item.InstallerItemHash) {
		return Result{Item: item, CachePath: cachePath, Skipped: true, Duration: time.Since(start)}, nil
	}

	err := retry.Do(s.RetryConfig, func() error {
		_, fetchErr := s.Repo.FetchToFile(item.InstallerItemLocation, cachePath, time.Time{})
		return fetchErr
	})
	if err != nil {
		logging.Warn("fetch: download failed", "item", item.Name, "error", err.Error())
		return Result{}, &Failure{Name: item.Name, Note: "download failed"}
	}

	if item.InstallerItemHash != "" && !hashMatches(cachePath, item.InstallerItemHash) {
		os.Remove(cachePath)
		logging.Warn("fetch: hash mismatch after download", "item", item.Name)
		return Result{}, &Failure{Name: item.Name, Note: "integrity check failed"}
	}

	size := fileSize(cachePath)
	return Result{Item: item, CachePath: cachePath, Bytes: size, Duration: time.Since(start)}, nil
}

// Sweep removes every file in the cache directory not referenced by
// keep: the case where an administrator pulls an item back out of a
// manifest or catalog after it was already downloaded.
func (s *Scheduler) Sweep(keep []*pkginfo.Item) error {
	referenced := map[string]bool{}
	for _, item := range keep {
		referenced[s.CachePath(item)] = true
	}

	entries, err := os.ReadDir(s.CacheDir)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(s.CacheDir, entry.Name())
		if !referenced[path] {
			if err := os.Remove(path); err != nil {
				logging.Warn("fetch: cache sweep failed to remove file", "path", path, "error", err.Error())
			}
		}
	}
	return nil
}

// hashMatches reports whether the file at path's hash equals expected.
// A missing file or empty expected hash never matches, except that an
// empty expected hash is treated as "nothing to verify against" by the
// caller (fetchOne only calls this when hash is non-empty, or to decide
// a cache hit in which an empty hash never short-circuits a fetch).
func hashMatches(path, expected string) bool {
	if expected == "" {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	h := hasherFor(expected)
	if h == nil {
		return false
	}
	if _, err := io.Copy(h, f); err != nil {
		return false
	}
	return hex.EncodeToString(h.Sum(nil)) == expected
}

// hasherFor picks the hash algorithm by the expected digest's hex
// length: 32 hex chars is MD5, 64 is SHA-256 — installer_item_hash's two
// observed forms across the corpus, with no single mandated algorithm.
func hasherFor(expectedHex string) hash.Hash {
	switch len(expectedHex) {
	case 32:
		return md5.New()
	case 64:
		return sha256.New()
	default:
		return nil
	}
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

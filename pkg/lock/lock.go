// Package lock implements the process-wide exclusive session lock: a
// second concurrent invocation must exit immediately rather than race
// the first over the cache, plan, report, and self-serve manifest.
package lock

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrHeld is returned by Acquire when another live process holds the lock.
var ErrHeld = fmt.Errorf("lock: already held by another process")

// Lock is a held file lock. Release removes the lock file.
type Lock struct {
	path string
}

// Acquire takes the lock at path, writing the current PID into the file.
// If the file already exists and names a process that is still alive,
// Acquire returns ErrHeld. A lock file naming a dead process is treated
// as stale and reclaimed.
func Acquire(path string) (*Lock, error) {
	if data, err := os.ReadFile(path); err == nil {
		if pid, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			if processAlive(pid) {
				return nil, ErrHeld
			}
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(strconv.Itoa(os.Getpid())); err != nil {
		return nil, fmt.Errorf("lock: write %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if l == nil {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: remove %s: %w", l.path, err)
	}
	return nil
}

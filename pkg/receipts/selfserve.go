package receipts

import (
	"os"
	"path/filepath"

	"github.com/windowsadmins/cimian/pkg/manifest"
	"github.com/windowsadmins/cimian/pkg/plist"
)

// SelfServeStore persists the local, user-writable self-serve manifest:
// the record of optional installs/removals a user has chosen, read back
// into manifest.Expand on every session and rewritten on explicit user
// mutation or OnDemand clearing.
type SelfServeStore struct {
	Path string
}

// NewSelfServeStore opens the store at path, which need not exist yet.
func NewSelfServeStore(path string) *SelfServeStore {
	return &SelfServeStore{Path: path}
}

// Load reads the self-serve manifest, returning an empty one if it has
// never been written.
func (s *SelfServeStore) Load() (manifest.SelfServe, error) {
	data, err := os.ReadFile(s.Path)
	if os.IsNotExist(err) {
		return manifest.SelfServe{}, nil
	}
	if err != nil {
		return manifest.SelfServe{}, err
	}
	var ss manifest.SelfServe
	if err := plist.Unmarshal(data, &ss); err != nil {
		return manifest.SelfServe{}, err
	}
	return ss, nil
}

// Save writes the self-serve manifest back.
func (s *SelfServeStore) Save(ss manifest.SelfServe) error {
	data, err := plist.Marshal(ss)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.Path, data, 0o644)
}

// AddInstall records a user-chosen optional install, idempotently.
func (s *SelfServeStore) AddInstall(name string) error {
	ss, err := s.Load()
	if err != nil {
		return err
	}
	if containsString(ss.ManagedInstalls, name) {
		return nil
	}
	ss.ManagedInstalls = append(ss.ManagedInstalls, name)
	return s.Save(ss)
}

// RemoveInstall drops name from the self-serve install list, if present.
func (s *SelfServeStore) RemoveInstall(name string) error {
	ss, err := s.Load()
	if err != nil {
		return err
	}
	ss.ManagedInstalls = removeString(ss.ManagedInstalls, name)
	return s.Save(ss)
}

// AddUninstall records a user-chosen optional removal, idempotently.
func (s *SelfServeStore) AddUninstall(name string) error {
	ss, err := s.Load()
	if err != nil {
		return err
	}
	if containsString(ss.ManagedUninstalls, name) {
		return nil
	}
	ss.ManagedUninstalls = append(ss.ManagedUninstalls, name)
	return s.Save(ss)
}

// ClearOnDemand removes name from the self-serve installs list, used by
// the executor after a successful OnDemand install: the item is meant
// to be re-requested each time, not installed again on every session
// thereafter.
func (s *SelfServeStore) ClearOnDemand(name string) error {
	return s.RemoveInstall(name)
}

func containsString(items []string, target string) bool {
	for _, it := range items {
		if it == target {
			return true
		}
	}
	return false
}

func removeString(items []string, target string) []string {
	out := items[:0]
	for _, it := range items {
		if it != target {
			out = append(out, it)
		}
	}
	return out
}

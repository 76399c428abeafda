// Package plist is the property-list codec used for the repository's
// pkginfo, manifest, install-plan, report, and self-serve-manifest
// documents. It is a thin wrapper over howett.net/plist so callers
// depend on one stable import regardless of which concrete codec backs
// it.
package plist

import (
	"bytes"
	"fmt"
	"os"

	"howett.net/plist"
)

// Format selects the on-disk plist encoding.
type Format int

const (
	XML Format = iota
	Binary
)

// Marshal encodes v as an XML property list.
func Marshal(v any) ([]byte, error) {
	return MarshalFormat(v, XML)
}

// MarshalFormat encodes v using the requested plist format.
func MarshalFormat(v any, f Format) ([]byte, error) {
	var buf bytes.Buffer
	enc := plist.NewEncoder(&buf)
	switch f {
	case Binary:
		enc.Indent("")
	default:
		enc.Indent("\t")
	}
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("plist: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a property list (XML or binary, auto-detected) into v.
func Unmarshal(data []byte, v any) error {
	_, err := plist.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("plist: unmarshal: %w", err)
	}
	return nil
}

// ReadFile reads and decodes a property-list file into v.
func ReadFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("plist: read %s: %w", path, err)
	}
	return Unmarshal(data, v)
}

// WriteFile encodes v and writes it atomically to path.
func WriteFile(path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("plist: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("plist: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

//go:build !windows

package process

func scriptExt() string { return ".sh" }

func scriptCommand(path string) []string {
	return []string{"/bin/sh", path}
}

//go:build windows

package process

func scriptExt() string { return ".ps1" }

func scriptCommand(path string) []string {
	return []string{"powershell.exe", "-NoProfile", "-ExecutionPolicy", "Bypass", "-File", path}
}

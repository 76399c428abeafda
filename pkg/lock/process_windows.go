//go:build windows

package lock

import "os"

func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Windows has no signal-0 probe; a zero-byte Wait with immediate
	// return indicates the process already exited.
	state, err := proc.Wait()
	if err != nil {
		// Wait fails for processes we don't own (the common case here):
		// treat as alive since we can't disprove it.
		return true
	}
	return !state.Exited()
}

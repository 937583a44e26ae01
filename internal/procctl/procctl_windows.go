//go:build windows

package procctl

import (
	"errors"

	"golang.org/x/sys/windows"
)

// stop opens pid with terminate rights, calls TerminateProcess, and closes
// the handle. A process that is already gone is not an error.
func stop(pid uint32) error {
	handle, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, pid)
	if err != nil {
		if errors.Is(err, windows.ERROR_INVALID_PARAMETER) {
			return nil
		}
		return err
	}
	defer windows.CloseHandle(handle)

	if err := windows.TerminateProcess(handle, 1); err != nil {
		if errors.Is(err, windows.ERROR_INVALID_HANDLE) {
			return nil
		}
		return err
	}
	return nil
}

package preflight

import (
	"fmt"
	"syscall"
)

// MinFileDescriptors is the descriptor limit below which the watcher and
// concurrent extraction may run out of handles.
const MinFileDescriptors = 256

// CheckFileDescriptors checks the open file limit. A low limit is a warning.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name: "file_descriptors",
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", rLimit.Cur, MinFileDescriptors)
	if rLimit.Cur < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 4096' to increase the limit"
		return result
	}
	result.Status = StatusPass
	return result
}

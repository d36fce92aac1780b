package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
)

// MinDiskSpaceBytes is the floor for free space under the indices directory.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace requires room for a full rewrite of the persisted indexes:
// saves write a temporary copy of each artifact before renaming it.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}

	artifacts := indexArtifactBytes(path)
	need := max(uint64(MinDiskSpaceBytes), 2*artifacts)
	free := stat.Bavail * uint64(stat.Bsize)

	result.Message = fmt.Sprintf("%s free (need %s)", humanize.IBytes(free), humanize.IBytes(need))
	if artifacts > 0 {
		result.Details = fmt.Sprintf("indexes use %s", humanize.IBytes(artifacts))
	}
	if free < need {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}

// indexArtifactBytes sums the sizes of index artifacts and sidecars directly
// under dir.
func indexArtifactBytes(dir string) uint64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".index") || strings.HasSuffix(name, ".meta.json")) {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil {
			total += uint64(info.Size())
		}
	}
	return total
}

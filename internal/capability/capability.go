// Package capability implements the coordinator's job-to-worker matching
// engine: a pure function comparing a job's resource requirements against a
// worker's advertised hardware.
package capability

// Requirements are a job's optional capability floor. A nil field always
// matches; a non-nil field must be met or exceeded by the worker.
type Requirements struct {
	MinCores              *int32 `json:"min_cores,omitempty"`
	MinTotalMemoryBytes   *int64 `json:"min_total_memory_bytes,omitempty"`
	MinMemoryPerCoreBytes *int64 `json:"min_memory_per_core_bytes,omitempty"`
	MinFreeDiskBytes      *int64 `json:"min_free_disk_bytes,omitempty"`
}

// Worker is the subset of a worker's self-reported hardware relevant to
// matching.
type Worker struct {
	LogicalCores       int32
	MemoryBytes        int64
	DiskFreeSpaceBytes int64
}

// MemoryPerCore computes bytes-of-memory-per-logical-core, used to satisfy
// MinMemoryPerCoreBytes requirements. Returns 0 if cores is 0, so a
// zero-core worker never satisfies a non-nil per-core requirement.
func MemoryPerCore(memoryBytes int64, cores int32) int64 {
	if cores <= 0 {
		return 0
	}
	return memoryBytes / int64(cores)
}

// Matches reports whether w satisfies req. Architecture is matched
// separately by callers (string equality) before this is ever consulted;
// this function only evaluates the numeric capability floor. A null
// requirement always matches; a non-null requirement matches iff the
// corresponding capability is present and meets or exceeds it. Order of
// checks is immaterial — all must pass.
func Matches(req Requirements, w Worker) bool {
	if req.MinCores != nil && w.LogicalCores < *req.MinCores {
		return false
	}
	if req.MinTotalMemoryBytes != nil && w.MemoryBytes < *req.MinTotalMemoryBytes {
		return false
	}
	if req.MinMemoryPerCoreBytes != nil {
		if MemoryPerCore(w.MemoryBytes, w.LogicalCores) < *req.MinMemoryPerCoreBytes {
			return false
		}
	}
	if req.MinFreeDiskBytes != nil && w.DiskFreeSpaceBytes < *req.MinFreeDiskBytes {
		return false
	}
	return true
}

// Package memsample takes point-in-time memory snapshots of one OS process:
// resident set size from /proc and per-process GPU memory via nvidia-smi.
// Samples are ephemeral; the monitor consumes them immediately.
package memsample

import (
	"context"
	"time"
)

// Sample is one memory observation for a process.
type Sample struct {
	Timestamp     time.Time
	ResidentBytes uint64
	DeviceBytes   uint64
	PID           int
}

// Sampler produces memory samples for a process id. Implementations must
// return within a bounded time; a sampler that cannot answer in time fails
// with a timeout error rather than hanging the caller.
type Sampler interface {
	Sample(ctx context.Context, pid int) (Sample, error)
}

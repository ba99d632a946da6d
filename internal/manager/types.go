package manager

import (
	"sync/atomic"
	"time"

	"chatd/internal/convo"
	"chatd/internal/gpumon"
	"chatd/internal/memsample"
	"chatd/pkg/types"
)

// State represents the lifecycle state of a session.
type State string

const (
	StateIdle       State = "idle"
	StateLoading    State = "loading"
	StateActive     State = "active"
	StateCleaning   State = "cleaning"
	StateTerminated State = "terminated"
)

// Session is one lifecycle record: a chat bound to at most one backend
// process. Field access is guarded by the Manager's mutex; the gate channel
// serializes prompt handling against cleanup for this session only.
type Session struct {
	ID       string
	Model    types.Model
	State    State
	LastUsed time.Time

	Baseline memsample.Sample
	Convo    *convo.Manager
	Monitor  *gpumon.Monitor

	backend BackendSession
	pid     int

	// gate holds at most one token: prompt submission and cleanup both
	// acquire it, so they never interleave on this session.
	gate chan struct{}
	// cleanupPending is set while a cleanup alert is queued for this
	// session, preventing duplicate recycle scheduling.
	cleanupPending atomic.Bool
}

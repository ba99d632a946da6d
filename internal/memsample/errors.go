package memsample

import "fmt"

// errProcessNotFound signals that the process exited between invocation and
// sampling. Callers treat this as an expected race, not a fault.
type errProcessNotFound struct{ pid int }

func (e errProcessNotFound) Error() string {
	return fmt.Sprintf("process not found: pid %d", e.pid)
}

// ErrProcessNotFound constructs a process-not-found error for pid.
func ErrProcessNotFound(pid int) error { return errProcessNotFound{pid: pid} }

// IsProcessNotFound reports whether err indicates the sampled process has exited.
func IsProcessNotFound(err error) bool {
	_, ok := err.(errProcessNotFound)
	return ok
}

// errSampleTimeout signals that sampling did not complete within its bound.
type errSampleTimeout struct{ pid int }

func (e errSampleTimeout) Error() string {
	return fmt.Sprintf("memory sample timed out: pid %d", e.pid)
}

// IsSampleTimeout reports whether err indicates a sampling timeout.
func IsSampleTimeout(err error) bool {
	_, ok := err.(errSampleTimeout)
	return ok
}

package manager

// errSessionExists signals an attempt to create a session id that is already
// registered. Usage error; surfaced immediately.
type errSessionExists struct{ id string }

func (e errSessionExists) Error() string { return "session already exists: " + e.id }

// ErrSessionExists constructs a duplicate-session error.
func ErrSessionExists(id string) error { return errSessionExists{id: id} }

// IsSessionExists reports whether err indicates a duplicate session id.
func IsSessionExists(err error) bool {
	_, ok := err.(errSessionExists)
	return ok
}

// errSessionNotFound signals an unknown session id.
type errSessionNotFound struct{ id string }

func (e errSessionNotFound) Error() string { return "session not found: " + e.id }

// ErrSessionNotFound constructs an unknown-session error.
func ErrSessionNotFound(id string) error { return errSessionNotFound{id: id} }

// IsSessionNotFound reports whether err indicates an unknown session id.
func IsSessionNotFound(err error) bool {
	_, ok := err.(errSessionNotFound)
	return ok
}

// errSessionBusy signals that a prompt or cleanup is already holding the
// session's gate and the caller chose rejection over blocking.
type errSessionBusy struct{ id string }

func (e errSessionBusy) Error() string { return "session busy: " + e.id }

// ErrSessionBusy constructs a gate-contention error.
func ErrSessionBusy(id string) error { return errSessionBusy{id: id} }

// IsSessionBusy reports whether err indicates gate contention (429 mapping).
func IsSessionBusy(err error) bool {
	_, ok := err.(errSessionBusy)
	return ok
}

// errBackendUnavailable signals that the backend process could not be
// started or reached; the session stays unbound.
type errBackendUnavailable struct{ msg string }

func (e errBackendUnavailable) Error() string { return "backend unavailable: " + e.msg }

// ErrBackendUnavailable constructs a backend-unavailable error.
func ErrBackendUnavailable(msg string) error { return errBackendUnavailable{msg: msg} }

// IsBackendUnavailable reports whether err indicates a missing/failed backend.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(errBackendUnavailable)
	return ok
}

// errModelNotFound signals a requested model id absent from the registry.
type errModelNotFound struct{ id string }

func (e errModelNotFound) Error() string { return "model not found: " + e.id }

// ErrModelNotFound constructs an unknown-model error.
func ErrModelNotFound(id string) error { return errModelNotFound{id: id} }

// IsModelNotFound reports whether err indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(errModelNotFound)
	return ok
}

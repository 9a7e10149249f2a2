package procexec

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for kinds that carry no extra payload. Callers check these
// with errors.Is, the same way the teacher checks errors.Is(err,
// redis.ErrChannelNotFound) throughout its HTTP handlers.
var (
	// ErrProcessNotFound means the pid is unknown to the Registry/Output
	// Store. Maps to HTTP 404 in the Management API.
	ErrProcessNotFound = errors.New("procexec: process not found")

	// ErrNotAllowed means the requested command is not present in
	// ALLOWED_COMMANDS; the Resolver returns it before the Supervisor is
	// ever invoked.
	ErrNotAllowed = errors.New("procexec: command not allowed")

	// ErrStoreShuttingDown means a store() call arrived after shutdown().
	ErrStoreShuttingDown = errors.New("procexec: output store is shutting down")
)

// InitializationError means a component could not start. Fatal: the caller
// should propagate it and abort startup.
type InitializationError struct {
	Component string
	Err       error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialize %s: %v", e.Component, e.Err)
}
func (e *InitializationError) Unwrap() error { return e.Err }

// StorageError wraps a failure writing to the Output Store.
type StorageError struct {
	PID    string
	Stream string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("store output for pid %s stream %s: %v", e.PID, e.Stream, e.Err)
}
func (e *StorageError) Unwrap() error { return e.Err }

// OutputRetrievalError wraps a failure reading from the Output Store.
type OutputRetrievalError struct {
	PID string
	Err error
}

func (e *OutputRetrievalError) Error() string {
	return fmt.Sprintf("retrieve output for pid %s: %v", e.PID, e.Err)
}
func (e *OutputRetrievalError) Unwrap() error { return e.Err }

// OutputClearError wraps a failure clearing a process's stored output.
type OutputClearError struct {
	PID string
	Err error
}

func (e *OutputClearError) Error() string {
	return fmt.Sprintf("clear output for pid %s: %v", e.PID, e.Err)
}
func (e *OutputClearError) Unwrap() error { return e.Err }

// CommandExecutionError means the process could not be started at all: a
// bad directory, an unresolvable executable, or a stdin-encoding failure.
type CommandExecutionError struct {
	Reason string
	Err    error
}

func (e *CommandExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot start process: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("cannot start process: %s", e.Reason)
}
func (e *CommandExecutionError) Unwrap() error { return e.Err }

// CommandTimeoutError is raised by the façade when its own wait for
// completion exceeds the deadline. It carries the pid and whatever partial
// output had been produced so far, so the caller can still inspect it.
type CommandTimeoutError struct {
	PID    string
	Stdout []OutputEntry
	Stderr []OutputEntry
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command timed out waiting for pid %s", e.PID)
}

// ProcessTimeoutError drives the supervisor's own internal state transition
// when its deadline elapses. It never crosses the façade boundary directly;
// by the time a caller observes it, the record has already transitioned to
// terminated with an error_message containing "timed out".
type ProcessTimeoutError struct {
	PID      string
	Deadline time.Duration
}

func (e *ProcessTimeoutError) Error() string {
	return fmt.Sprintf("process %s timed out after %s", e.PID, e.Deadline)
}

// ProcessControlError means a stop/kill path failed unrecoverably. Surfaced
// to the caller of stop_process; the record still gets an error annotation
// in its manager stream.
type ProcessControlError struct {
	PID string
	Err error
}

func (e *ProcessControlError) Error() string {
	return fmt.Sprintf("control process %s: %v", e.PID, e.Err)
}
func (e *ProcessControlError) Unwrap() error { return e.Err }

// ProcessCleanError means clean() was attempted on a running or otherwise
// broken record.
type ProcessCleanError struct {
	PID    string
	Reason string
}

func (e *ProcessCleanError) Error() string {
	return fmt.Sprintf("clean process %s: %s", e.PID, e.Reason)
}

// WebInterfaceError means the HTTP plane failed to start or handle a
// request. Maps to a 500 response or a startup failure.
type WebInterfaceError struct {
	Reason string
	Err    error
}

func (e *WebInterfaceError) Error() string {
	return fmt.Sprintf("web interface: %s: %v", e.Reason, e.Err)
}
func (e *WebInterfaceError) Unwrap() error { return e.Err }

// ValidationError means a caller-supplied argument was malformed (e.g. argv
// was neither a list nor a JSON array-of-strings, or status wasn't one of
// the known values).
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Package facade implements the Executor Façade (C5): execute_command
// (synchronous) and start_background_command (asynchronous), composing the
// Parameter Resolver, the Process Supervisor, and the Output Store.
package facade

import (
	"time"

	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/resolver"
	"github.com/edirooss/procexecd/internal/supervisor"
	"github.com/edirooss/procexecd/pkg/procexec"
)

// Facade is one instance shared by the tool-call surface and the HTTP API.
type Facade struct {
	resolver   *resolver.Resolver
	supervisor *supervisor.Supervisor
	store      *outputstore.Store
}

func New(r *resolver.Resolver, s *supervisor.Supervisor, store *outputstore.Store) *Facade {
	return &Facade{resolver: r, supervisor: s, store: store}
}

// ExecuteCommand spawns and awaits completion with the spawn spec's own
// deadline, then reads back stdout/stderr (all lines, or the last
// limitLines if positive) from the Output Store — spec.md §4.5. On
// deadline expiry it returns a *procexec.CommandTimeoutError carrying the
// pid and whatever partial output had accumulated; the process keeps
// running and remains retrievable by pid.
func (f *Facade) ExecuteCommand(args resolver.CallArgs, limitLines int) (procexec.ExecResult, error) {
	spec, err := f.resolver.Resolve(args)
	if err != nil {
		return procexec.ExecResult{}, err
	}

	started := time.Now()
	rec, err := f.supervisor.StartProcess(spec)
	if err != nil {
		return procexec.ExecResult{}, err
	}

	timeout := time.Duration(spec.DeadlineSec) * time.Second
	final, done := f.supervisor.AwaitCompletion(rec.PID, timeout)
	elapsed := time.Since(started)

	tail := tailPointer(limitLines)
	stdout, _ := f.store.Get(rec.PID, procexec.StreamStdout, procexec.GetQuery{Tail: tail})
	stderr, _ := f.store.Get(rec.PID, procexec.StreamStderr, procexec.GetQuery{Tail: tail})

	if !done {
		return procexec.ExecResult{}, &procexec.CommandTimeoutError{PID: rec.PID, Stdout: stdout, Stderr: stderr}
	}

	return procexec.ExecResult{
		PID:           final.PID,
		Status:        final.Status,
		Stdout:        stdout,
		Stderr:        stderr,
		ExitCode:      final.ExitCode,
		ExecutionTime: elapsed,
	}, nil
}

// StartBackgroundCommand spawns and returns immediately without awaiting —
// spec.md §4.5's start_background_command.
func (f *Facade) StartBackgroundCommand(args resolver.CallArgs) (procexec.ProcessRecord, error) {
	spec, err := f.resolver.Resolve(args)
	if err != nil {
		return procexec.ProcessRecord{}, err
	}
	return f.supervisor.StartProcess(spec)
}

func tailPointer(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

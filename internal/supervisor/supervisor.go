package supervisor

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"github.com/edirooss/procexecd/internal/cmdbuild"
	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/registry"
	"github.com/edirooss/procexecd/internal/retention"
	"github.com/edirooss/procexecd/pkg/procexec"
)

// terminationGrace is the bounded wait spec.md §4.3's termination protocol
// gives the waiter to confirm exit after a stop or deadline signal, and also
// the grace period before Close()'s SIGTERM escalates to SIGKILL.
const terminationGrace = 15 * time.Second

// drainGrace bounds how long Wait() will wait for the stream readers to
// join before the supervisor proceeds anyway (spec.md §4.3's
// drain-before-signal, "a bounded wait of a few seconds, then
// cancellation").
const drainGrace = 5 * time.Second

// Supervisor is the Process Supervisor (C3). It owns every live child
// process, drives state transitions under the owning record's mutex, and
// arms the Retention Scheduler on terminal transition.
type Supervisor struct {
	log              *zap.Logger
	reg              *registry.Registry
	store            *outputstore.Store
	retention        *retention.Scheduler
	retentionSeconds int

	mu    sync.Mutex
	procs map[string]*supervisedProc
}

// supervisedProc is the live-task half of a supervised process: the record
// itself lives in the Registry, this struct holds what's needed to control
// and observe its os-level child while it runs.
type supervisedProc struct {
	handle *registry.Handle
	child  *child

	mu            sync.Mutex
	stopRequested bool

	// completed closes once the terminal transition (status/end_time/
	// exit_code/error_message written, stream readers joined) has been
	// published — the "completion signal" of spec.md §5.
	completed chan struct{}
}

// New constructs a Supervisor and starts its Retention Scheduler.
// retentionSeconds<0 disables auto-cleanup.
func New(log *zap.Logger, reg *registry.Registry, store *outputstore.Store, retentionSeconds int) *Supervisor {
	s := &Supervisor{
		log:              log.Named("supervisor"),
		reg:              reg,
		store:            store,
		retentionSeconds: retentionSeconds,
		procs:            make(map[string]*supervisedProc),
	}
	s.retention = retention.New(s.log, s.fireClean)
	return s
}

// StartProcess implements the spawn protocol of spec.md §4.3 steps 1-7: it
// validates the directory, generates a pid, launches the child with piped
// I/O, writes stdin if supplied, records a manager-stream creation entry,
// and registers the record before returning — monitoring proceeds
// asynchronously in a background goroutine.
func (s *Supervisor) StartProcess(spec procexec.SpawnSpec) (procexec.ProcessRecord, error) {
	info, err := os.Stat(spec.Directory)
	if err != nil {
		return procexec.ProcessRecord{}, &procexec.CommandExecutionError{Reason: fmt.Sprintf("directory %q does not exist", spec.Directory), Err: err}
	}
	if !info.IsDir() {
		return procexec.ProcessRecord{}, &procexec.CommandExecutionError{Reason: fmt.Sprintf("%q is not a directory", spec.Directory)}
	}

	pid, err := generatePID(s.reg.Exists)
	if err != nil {
		return procexec.ProcessRecord{}, &procexec.CommandExecutionError{Reason: "generate pid", Err: err}
	}

	stdinPayload := spec.StdinData
	if len(stdinPayload) > 0 {
		encoded, err := encodeText(stdinPayload, spec.Encoding)
		if err != nil {
			return procexec.ProcessRecord{}, &procexec.CommandExecutionError{Reason: "encode stdin", Err: err}
		}
		stdinPayload = encoded
	}

	env := buildEnviron(spec.Env)

	rec := procexec.ProcessRecord{
		PID:       pid,
		Spec:      spec,
		Status:    procexec.StatusRunning,
		StartTime: time.Now(),
		ExitCode:  -1,
	}
	handle := s.reg.Put(rec)

	c, err := newChild(s.log, spec.Argv, spec.Directory, env, spec.Encoding, func(stream, line string) {
		if err := s.store.Store(pid, stream, []string{line}); err != nil {
			s.log.Warn("store output failed", zap.String("pid", pid), zap.String("stream", stream), zap.Error(err))
		}
	})
	if err != nil {
		s.reg.Delete(pid)
		return procexec.ProcessRecord{}, &procexec.CommandExecutionError{Reason: "build command", Err: err}
	}

	if err := c.Start(); err != nil {
		s.reg.Delete(pid)
		return procexec.ProcessRecord{}, &procexec.CommandExecutionError{Reason: "start process", Err: err}
	}

	if len(stdinPayload) > 0 {
		if err := c.WriteStdin(stdinPayload); err != nil {
			s.log.Warn("stdin write failed", zap.String("pid", pid), zap.Error(err))
		}
	} else {
		c.CloseStdin()
	}

	if err := s.store.Store(pid, procexec.StreamManager, []string{
		fmt.Sprintf("process started: %s", cmdbuild.FromArgv(spec.Argv).String()),
	}); err != nil {
		s.log.Warn("manager entry failed", zap.String("pid", pid), zap.Error(err))
	}

	sp := &supervisedProc{handle: handle, child: c, completed: make(chan struct{})}
	s.mu.Lock()
	s.procs[pid] = sp
	s.mu.Unlock()

	go s.monitor(pid, sp, time.Duration(spec.DeadlineSec)*time.Second)

	return handle.Snapshot(), nil
}

// monitor waits for the child to exit or its deadline to elapse, joins the
// stream readers, and publishes the terminal transition — spec.md's
// "running -> {completed, failed, terminated, error}" state machine,
// §4.3's drain-before-signal, and §5's completion-signal ordering.
func (s *Supervisor) monitor(pid string, sp *supervisedProc, deadline time.Duration) {
	var timerC <-chan time.Time
	if deadline > 0 {
		timer := time.NewTimer(deadline)
		defer timer.Stop()
		timerC = timer.C
	}

	timedOut := false
	select {
	case <-sp.child.Done():
	case <-timerC:
		timedOut = true
		if err := sp.child.Signal(syscall.SIGKILL); err != nil {
			s.log.Warn("deadline kill failed", zap.String("pid", pid), zap.Error(err))
		}
		<-sp.child.Done()
	}

	exitCode, waitErr, drained := sp.child.Wait(drainGrace)
	if !drained {
		if err := s.store.Store(pid, procexec.StreamStderr, []string{
			"stream readers did not finish draining within the grace period",
		}); err != nil {
			s.log.Warn("manager entry failed", zap.String("pid", pid), zap.Error(err))
		}
	}

	sp.mu.Lock()
	stopRequested := sp.stopRequested
	sp.mu.Unlock()

	sp.handle.Mutate(func(r *procexec.ProcessRecord) {
		r.EndTime = time.Now()
		r.ExitCode = exitCode
		switch {
		case timedOut:
			r.Status = procexec.StatusTerminated
			r.Error = (&procexec.ProcessTimeoutError{PID: pid, Deadline: deadline}).Error()
		case stopRequested:
			r.Status = procexec.StatusTerminated
		case waitErr != nil && exitCode < 0:
			r.Status = procexec.StatusError
			r.Error = waitErr.Error()
		case exitCode == 0:
			r.Status = procexec.StatusCompleted
		default:
			r.Status = procexec.StatusFailed
		}
	})

	close(sp.completed)

	s.mu.Lock()
	delete(s.procs, pid)
	s.mu.Unlock()

	if s.retentionSeconds >= 0 {
		s.retention.Arm(pid, time.Duration(s.retentionSeconds)*time.Second)
	}
}

// StopProcess is a no-op if pid is unknown to the live-task map or not
// running; otherwise it sends SIGTERM (graceful) or SIGKILL (force), sets
// error_message to reason before the signal per spec.md §4.3, and waits up
// to terminationGrace for the waiter to confirm exit. A timed-out wait is
// annotated rather than raised.
func (s *Supervisor) StopProcess(pid string, force bool, reason string) error {
	handle, ok := s.reg.Get(pid)
	if !ok {
		return procexec.ErrProcessNotFound
	}
	if handle.Snapshot().Status != procexec.StatusRunning {
		return nil
	}

	s.mu.Lock()
	sp, ok := s.procs[pid]
	s.mu.Unlock()
	if !ok {
		return nil
	}

	if reason != "" {
		handle.Mutate(func(r *procexec.ProcessRecord) { r.Error = reason })
	}
	sp.mu.Lock()
	sp.stopRequested = true
	sp.mu.Unlock()

	sig := syscall.SIGTERM
	if force {
		sig = syscall.SIGKILL
	}
	if err := sp.child.Signal(sig); err != nil {
		ctrlErr := &procexec.ProcessControlError{PID: pid, Err: err}
		if serr := s.store.Store(pid, procexec.StreamManager, []string{ctrlErr.Error()}); serr != nil {
			s.log.Warn("manager entry failed", zap.String("pid", pid), zap.Error(serr))
		}
		return ctrlErr
	}

	select {
	case <-sp.completed:
	case <-time.After(terminationGrace):
		handle.Mutate(func(r *procexec.ProcessRecord) {
			r.Error = "process did not confirm exit within the termination grace period"
		})
	}
	return nil
}

// AwaitCompletion blocks until pid's terminal transition has been
// published or timeout elapses (timeout<=0 means wait forever), returning
// the final snapshot and whether it completed in time. This is
// spec.md §5's wait_for_completion(timeout): on expiry the caller sees a
// timeout but the process keeps running and remains tracked.
func (s *Supervisor) AwaitCompletion(pid string, timeout time.Duration) (procexec.ProcessRecord, bool) {
	s.mu.Lock()
	sp, ok := s.procs[pid]
	s.mu.Unlock()
	if !ok {
		if h, ok := s.reg.Get(pid); ok {
			return h.Snapshot(), true
		}
		return procexec.ProcessRecord{}, true
	}

	if timeout <= 0 {
		<-sp.completed
		return sp.handle.Snapshot(), true
	}
	select {
	case <-sp.completed:
		return sp.handle.Snapshot(), true
	case <-time.After(timeout):
		return sp.handle.Snapshot(), false
	}
}

// GetProcess returns a snapshot of pid's record.
func (s *Supervisor) GetProcess(pid string) (procexec.ProcessRecord, error) {
	h, ok := s.reg.Get(pid)
	if !ok {
		return procexec.ProcessRecord{}, procexec.ErrProcessNotFound
	}
	return h.Snapshot(), nil
}

// GetProcessInfo is an alias of GetProcess: spec.md §4.3 names both
// get_process and get_process_info as registry queries without a
// distinguishing semantics, so both map to the same snapshot read.
func (s *Supervisor) GetProcessInfo(pid string) (procexec.ProcessRecord, error) {
	return s.GetProcess(pid)
}

// ListProcesses returns every record matching status (empty = no filter)
// and labels (all must be present).
func (s *Supervisor) ListProcesses(status procexec.Status, labels []string) []procexec.ProcessRecord {
	return s.reg.List(status, labels)
}

// CleanProcesses cleans each pid independently and reports its outcome,
// per spec.md §4.3: "Not found" if unknown, "Failed: still running" if not
// terminal, "Success" otherwise.
func (s *Supervisor) CleanProcesses(pids []string) map[string]procexec.CleanOutcome {
	out := make(map[string]procexec.CleanOutcome, len(pids))
	for _, pid := range pids {
		out[pid] = s.cleanOne(pid)
	}
	return out
}

func (s *Supervisor) cleanOne(pid string) procexec.CleanOutcome {
	h, ok := s.reg.Get(pid)
	if !ok {
		return procexec.CleanOutcomeNotFound
	}
	if !h.Snapshot().Status.Terminal() {
		return procexec.CleanOutcomeStillRunning
	}

	s.retention.Disarm(pid)
	if err := s.store.Clear(pid); err != nil && !errors.Is(err, procexec.ErrProcessNotFound) {
		s.log.Warn("clear output during clean failed", zap.String("pid", pid), zap.Error(err))
	}
	s.reg.Delete(pid)
	return procexec.CleanOutcomeSuccess
}

// fireClean is the Retention Scheduler's fire action: clean pid if it is
// still registered and still terminal, per spec.md §4.2.
func (s *Supervisor) fireClean(pid string) {
	h, ok := s.reg.Get(pid)
	if !ok || !h.Snapshot().Status.Terminal() {
		return
	}
	s.cleanOne(pid)
}

// Shutdown disarms all retention timers implicitly (the scheduler is
// closed outright), force-stops every running child with a "shutting down"
// reason, awaits their exit, then shuts down the Output Store — spec.md
// §4.3's shutdown() operation.
func (s *Supervisor) Shutdown() error {
	s.mu.Lock()
	procs := make([]*supervisedProc, 0, len(s.procs))
	for _, sp := range s.procs {
		procs = append(procs, sp)
	}
	s.mu.Unlock()

	for _, sp := range procs {
		sp.mu.Lock()
		sp.stopRequested = true
		sp.mu.Unlock()
		sp.handle.Mutate(func(r *procexec.ProcessRecord) { r.Error = "shutting down" })
		sp.child.Close(terminationGrace)
	}
	for _, sp := range procs {
		select {
		case <-sp.completed:
		case <-time.After(terminationGrace + drainGrace):
			s.log.Warn("process did not confirm shutdown in time", zap.String("pid", sp.handle.Snapshot().PID))
		}
	}

	s.retention.Close()
	return s.store.Shutdown()
}

// encodeText re-encodes already-decoded text bytes into the named encoding,
// per spec.md §4.3 step 5 ("encode stdin_data using the declared encoding
// if it was supplied as text"). Empty/utf-8 names are a no-op.
func encodeText(data []byte, name string) ([]byte, error) {
	if name == "" || strings.EqualFold(name, "utf-8") || strings.EqualFold(name, "utf8") {
		return data, nil
	}
	enc, err := ianaindex.MIME.Encoding(name)
	if err != nil || enc == nil {
		return nil, fmt.Errorf("unknown encoding %q", name)
	}
	return enc.NewEncoder().Bytes(data)
}

// buildEnviron merges spec-level overrides on top of the supervisor's own
// environment, matching the teacher's practice of inheriting the host
// environment for PATH and similar rather than starting from an empty set.
func buildEnviron(overrides map[string]string) []string {
	base := os.Environ()
	if len(overrides) == 0 {
		return base
	}
	merged := make(map[string]string, len(base)+len(overrides))
	for _, kv := range base {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			merged[kv[:i]] = kv[i+1:]
		}
	}
	for k, v := range overrides {
		merged[k] = v
	}
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

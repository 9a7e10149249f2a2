package supervisor

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// emitFunc appends one already-decoded, CR/LF-stripped, non-empty line to
// a process's stream. Supplied by the Supervisor so child doesn't need to
// know about the Output Store directly.
type emitFunc func(stream, line string)

// child is a direct generalization of the teacher's process type: race-free
// pipe setup, Setpgid/Pdeathsig via buildCmd, goroutine-per-stream
// scanning, a done channel closed exactly once after cmd.Wait(), and
// SIGTERM-then-grace-then-SIGKILL shutdown sent to the process group. The
// teacher's single fixed readiness marker is gone — this spec has no
// readiness-gate concept — replaced by a plain emit callback per decoded
// line.
type child struct {
	log    *zap.Logger
	emit   emitFunc
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser
	enc    string

	started   atomic.Bool
	osPID     atomic.Int64
	startOnce sync.Once
	closeOnce sync.Once

	readersWG sync.WaitGroup
	done      chan struct{}

	mu       sync.Mutex
	waitErr  error
	exitCode int
}

func newChild(log *zap.Logger, argv []string, dir string, env []string, encName string, emit emitFunc) (*child, error) {
	cmd, err := buildCmd(argv, dir, env)
	if err != nil {
		return nil, err
	}

	stdout, stderr, stdin, err := pipes(cmd)
	if err != nil {
		return nil, fmt.Errorf("pipe initialization: %w", err)
	}

	return &child{
		log:      log,
		emit:     emit,
		cmd:      cmd,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		enc:      encName,
		done:     make(chan struct{}),
		exitCode: -1,
	}, nil
}

// pipes prepares stdin, stdout, stderr for exec.Cmd, closing any
// already-opened pipe on partial failure so no file descriptor leaks.
// Adapted verbatim from the teacher's pipes() helper.
func pipes(cmd *exec.Cmd) (io.ReadCloser, io.ReadCloser, io.WriteCloser, error) {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		_ = stdout.Close()
		return nil, nil, nil, fmt.Errorf("stderr pipe: %w", err)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return nil, nil, nil, fmt.Errorf("stdin pipe: %w", err)
	}
	return stdout, stderr, stdin, nil
}

// newDecoder returns a decoder for name that replaces undecodable bytes
// rather than failing, per spec.md §4.3's "decoding with the declared
// encoding (replacement on error)" rule. An empty or unrecognized name
// falls back to UTF-8 passthrough. Uses golang.org/x/text, already an
// indirect dependency of the teacher's go.mod, promoted to direct use here.
func newDecoder(name string) *encoding.Decoder {
	if name != "" {
		if enc, err := ianaindex.MIME.Encoding(name); err == nil && enc != nil {
			return encoding.ReplaceUnsupported(enc).NewDecoder()
		}
	}
	return encoding.ReplaceUnsupported(encoding.Nop).NewDecoder()
}

// Start launches the command exactly once, then begins stream draining and
// a waiter goroutine. Mirrors the teacher's Start/supervise split.
func (c *child) Start() error {
	var startErr error
	c.startOnce.Do(func() {
		if err := c.cmd.Start(); err != nil {
			startErr = err
			return
		}
		c.started.Store(true)
		c.osPID.Store(int64(c.cmd.Process.Pid))

		c.readersWG.Add(2)
		go func() {
			defer c.readersWG.Done()
			c.drain(procexec.StreamStdout, c.stdout)
		}()
		go func() {
			defer c.readersWG.Done()
			c.drain(procexec.StreamStderr, c.stderr)
		}()

		go c.supervise()
	})
	return startErr
}

// drain reads decoded lines from r, strips trailing CR/LF, drops empty
// lines, and emits the rest — spec.md §4.3's monitoring rules. Decode or
// scan failures are logged to the stderr stream as a supervisor annotation,
// then the reader exits (the "single-reader failure (annotated, other
// reader continues)" recoverable case from spec.md §7).
func (c *child) drain(stream string, r io.Reader) {
	tr := transform.NewReader(r, newDecoder(c.enc))
	sc := bufio.NewScanner(tr)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r\n")
		if line == "" {
			continue
		}
		c.emit(stream, line)
	}
	if err := sc.Err(); err != nil {
		c.emit(procexec.StreamStderr, fmt.Sprintf("%s reader failed: %v", stream, err))
	}
}

// supervise waits for the child to exit and records its outcome. Drain
// -before-signal is the caller's responsibility (Wait joins the stream
// readers before reporting), so supervise only needs to reap the process.
func (c *child) supervise() {
	err := c.cmd.Wait()

	c.mu.Lock()
	c.waitErr = err
	if c.cmd.ProcessState != nil {
		c.exitCode = c.cmd.ProcessState.ExitCode()
	}
	c.mu.Unlock()

	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	close(c.done)
}

// WriteStdin writes data then closes stdin, swallowing broken-pipe/reset
// errors per spec.md §4.3 step 4 (the child may have exited quickly).
func (c *child) WriteStdin(data []byte) error {
	defer func() { _ = c.stdin.Close() }()
	if len(data) == 0 {
		return nil
	}
	_, err := c.stdin.Write(data)
	if err != nil && isBrokenPipe(err) {
		return nil
	}
	return err
}

// CloseStdin closes stdin without writing, used when no stdin payload was
// supplied (spec.md §4.3 step 4: "stdin must be closed at start" in the
// shell-wrapper case, and harmlessly for the direct-exec case too).
func (c *child) CloseStdin() {
	_ = c.stdin.Close()
}

func isBrokenPipe(err error) bool {
	return errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ECONNRESET)
}

// Done fires once the child has been reaped.
func (c *child) Done() <-chan struct{} { return c.done }

// Wait blocks until Done(), then joins the stream readers with a bounded
// timeout — spec.md §4.3's drain-before-signal requirement — and returns
// the final exit code and wait error.
func (c *child) Wait(drainTimeout time.Duration) (exitCode int, waitErr error, drained bool) {
	<-c.done

	joined := make(chan struct{})
	go func() {
		c.readersWG.Wait()
		close(joined)
	}()

	drained = true
	select {
	case <-joined:
	case <-time.After(drainTimeout):
		drained = false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exitCode, c.waitErr, drained
}

// Close initiates deterministic shutdown: SIGTERM to the process group,
// escalating to SIGKILL if the child has not exited within gracePeriod.
// Idempotent and concurrency-safe, mirroring the teacher's Close().
func (c *child) Close(gracePeriod time.Duration) {
	c.closeOnce.Do(func() {
		if !c.started.Load() {
			return
		}
		select {
		case <-c.done:
			return
		default:
		}

		pid := int(c.osPID.Load())
		if err := killGroup(pid, syscall.SIGTERM); err != nil {
			c.log.Warn("SIGTERM failed", zap.Int("pid", pid), zap.Error(err))
		}

		timer := time.NewTimer(gracePeriod)
		defer timer.Stop()
		select {
		case <-c.done:
			return
		case <-timer.C:
			if err := killGroup(pid, syscall.SIGKILL); err != nil {
				c.log.Error("SIGKILL failed", zap.Int("pid", pid), zap.Error(err))
			}
		}
	})
}

// OSPID returns the underlying OS process id, valid after Start().
func (c *child) OSPID() int { return int(c.osPID.Load()) }

// Signal sends sig to the child's process group directly, with no grace
// period or escalation — used for an explicit stop_process call and for the
// deadline-elapsed kill path, both of which have their own wait/escalation
// policy layered on top by the caller.
func (c *child) Signal(sig syscall.Signal) error {
	return killGroup(c.OSPID(), sig)
}

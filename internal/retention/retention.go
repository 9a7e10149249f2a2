package retention

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// FireFunc is invoked when pid's retention delay elapses. Per spec.md
// §4.2's fire action, errors are logged by the caller, never propagated.
type FireFunc func(pid string)

// Scheduler is the Retention Scheduler (C2). One driver goroutine sleeps
// until the next fire time or a coalescing wake-up signal, grounded on the
// teacher's ProcessManager2.mainloop/scheduleUnsafe idiom (a `chan
// struct{}, 1` that never blocks a second send).
type Scheduler struct {
	log  *zap.Logger
	fire FireFunc

	mu   sync.Mutex
	heap *timerHeap
	sig  chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New starts the scheduler's driver goroutine immediately.
func New(log *zap.Logger, fire FireFunc) *Scheduler {
	s := &Scheduler{
		log:  log.Named("retention"),
		fire: fire,
		heap: newTimerHeap(),
		sig:  make(chan struct{}, 1),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go s.run()
	return s
}

// Arm schedules cleanup for pid after delay. If already armed, the existing
// timer is cancelled and replaced, matching spec.md §4.2's "already armed"
// rule. delay<0 disables auto-cleanup for this call (no-op).
func (s *Scheduler) Arm(pid string, delay time.Duration) {
	if delay < 0 {
		return
	}
	s.mu.Lock()
	s.heap.push(pid, time.Now().Add(delay))
	s.mu.Unlock()
	s.wake()
}

// Disarm cancels a pending cleanup. Idempotent.
func (s *Scheduler) Disarm(pid string) {
	s.mu.Lock()
	s.heap.remove(pid)
	s.mu.Unlock()
	s.wake()
}

func (s *Scheduler) wake() {
	select {
	case s.sig <- struct{}{}:
	default:
	}
}

// Close stops the driver goroutine and waits for it to exit.
func (s *Scheduler) Close() {
	close(s.stop)
	<-s.done
}

func (s *Scheduler) run() {
	defer close(s.done)

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		s.mu.Lock()
		pid, when, ok := s.heap.next()
		s.mu.Unlock()

		if !ok {
			select {
			case <-s.stop:
				return
			case <-s.sig:
				continue
			}
		}

		delay := time.Until(when)
		if delay > 0 {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(delay)

			select {
			case <-s.stop:
				return
			case <-s.sig:
				continue
			case <-timer.C:
			}
		}

		s.mu.Lock()
		// Re-check: the entry may have been disarmed or re-armed to a later
		// time while we were waiting.
		curPID, curWhen, ok := s.heap.next()
		if !ok || curPID != pid || curWhen.After(time.Now()) {
			s.mu.Unlock()
			continue
		}
		s.heap.pop()
		s.mu.Unlock()

		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("retention fire panicked", zap.String("pid", pid), zap.Any("recover", r))
				}
			}()
			s.fire(pid)
		}()
	}
}

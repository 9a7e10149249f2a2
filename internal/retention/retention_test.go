package retention

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fireRecorder struct {
	mu   sync.Mutex
	pids []string
}

func (r *fireRecorder) record(pid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pids = append(r.pids, pid)
}

func (r *fireRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.pids...)
}

func TestSchedulerFiresAfterDelay(t *testing.T) {
	rec := &fireRecorder{}
	s := New(zap.NewNop(), rec.record)
	defer s.Close()

	s.Arm("p1", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"p1"}, rec.snapshot())
}

func TestSchedulerDisarmCancelsFire(t *testing.T) {
	rec := &fireRecorder{}
	s := New(zap.NewNop(), rec.record)
	defer s.Close()

	s.Arm("p1", 30*time.Millisecond)
	s.Disarm("p1")

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestSchedulerRearmReplacesExisting(t *testing.T) {
	rec := &fireRecorder{}
	s := New(zap.NewNop(), rec.record)
	defer s.Close()

	s.Arm("p1", time.Hour)
	s.Arm("p1", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 1
	}, time.Second, time.Millisecond)
}

func TestSchedulerNegativeDelayNoop(t *testing.T) {
	rec := &fireRecorder{}
	s := New(zap.NewNop(), rec.record)
	defer s.Close()

	s.Arm("p1", -1)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, rec.snapshot())
}

func TestSchedulerOrdersByDeadline(t *testing.T) {
	rec := &fireRecorder{}
	s := New(zap.NewNop(), rec.record)
	defer s.Close()

	s.Arm("late", 60*time.Millisecond)
	s.Arm("early", 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"early", "late"}, rec.snapshot())
}

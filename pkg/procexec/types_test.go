package procexec

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStatusTerminal(t *testing.T) {
	terminal := []Status{StatusCompleted, StatusFailed, StatusTerminated, StatusError}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}
	assert.False(t, StatusRunning.Terminal())
}

func TestStatusValid(t *testing.T) {
	assert.True(t, StatusRunning.Valid())
	assert.False(t, Status("bogus").Valid())
	assert.False(t, Status("").Valid())
}

func TestProcessRecordDuration(t *testing.T) {
	start := time.Now().Add(-5 * time.Second)

	running := ProcessRecord{StartTime: start}
	assert.InDelta(t, 5*time.Second, running.Duration(time.Now()), float64(500*time.Millisecond))

	end := start.Add(3 * time.Second)
	terminal := ProcessRecord{StartTime: start, EndTime: end}
	assert.Equal(t, 3*time.Second, terminal.Duration(time.Now()))
}

func TestProcessRecordHasLabels(t *testing.T) {
	rec := ProcessRecord{Spec: SpawnSpec{Labels: []string{"web", "prod"}}}

	assert.True(t, rec.HasLabels(nil))
	assert.True(t, rec.HasLabels([]string{"web"}))
	assert.True(t, rec.HasLabels([]string{"web", "prod"}))
	assert.False(t, rec.HasLabels([]string{"web", "staging"}))
	assert.False(t, rec.HasLabels([]string{"nonexistent"}))
}

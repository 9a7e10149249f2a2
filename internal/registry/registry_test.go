package registry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edirooss/procexecd/pkg/procexec"
)

func newTestRecord(pid string, labels ...string) procexec.ProcessRecord {
	return procexec.ProcessRecord{
		PID:       pid,
		Spec:      procexec.SpawnSpec{Command: "echo", Labels: labels},
		Status:    procexec.StatusRunning,
		StartTime: time.Now(),
		ExitCode:  -1,
	}
}

func TestPutGetExists(t *testing.T) {
	r := New()
	h := r.Put(newTestRecord("abc12"))
	require.NotNil(t, h)

	got, ok := r.Get("abc12")
	require.True(t, ok)
	assert.Equal(t, "abc12", got.Snapshot().PID)
	assert.True(t, r.Exists("abc12"))
	assert.False(t, r.Exists("zzz99"))
}

func TestDeleteIsIdempotent(t *testing.T) {
	r := New()
	r.Put(newTestRecord("abc12"))
	r.Delete("abc12")
	r.Delete("abc12")

	_, ok := r.Get("abc12")
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestMutateIsVisibleToSnapshot(t *testing.T) {
	r := New()
	h := r.Put(newTestRecord("abc12"))

	h.Mutate(func(rec *procexec.ProcessRecord) {
		rec.Status = procexec.StatusCompleted
		rec.ExitCode = 0
		rec.EndTime = time.Now()
	})

	snap := h.Snapshot()
	assert.Equal(t, procexec.StatusCompleted, snap.Status)
	assert.Equal(t, 0, snap.ExitCode)
	assert.False(t, snap.EndTime.IsZero())
}

func TestListFiltersByStatusAndLabels(t *testing.T) {
	r := New()
	r.Put(newTestRecord("p1", "web", "prod"))
	r.Put(newTestRecord("p2", "web"))
	h3 := r.Put(newTestRecord("p3", "worker"))
	h3.Mutate(func(rec *procexec.ProcessRecord) { rec.Status = procexec.StatusFailed })

	running := r.List(procexec.StatusRunning, nil)
	assert.Len(t, running, 2)

	webProd := r.List("", []string{"web", "prod"})
	require.Len(t, webProd, 1)
	assert.Equal(t, "p1", webProd[0].PID)

	failed := r.List(procexec.StatusFailed, nil)
	require.Len(t, failed, 1)
	assert.Equal(t, "p3", failed[0].PID)
}

func TestListEmptyRegistry(t *testing.T) {
	r := New()
	assert.Empty(t, r.List("", nil))
	assert.Equal(t, 0, r.Len())
}

package supervisor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/registry"
	"github.com/edirooss/procexecd/pkg/procexec"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	reg := registry.New()
	store, err := outputstore.New(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	s := New(zap.NewNop(), reg, store, -1)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestStartProcessCompletesSuccessfully(t *testing.T) {
	s := newTestSupervisor(t)

	rec, err := s.StartProcess(procexec.SpawnSpec{
		Command:   "echo",
		Argv:      []string{"echo", "hello"},
		Directory: t.TempDir(),
	})
	require.NoError(t, err)
	assert.Equal(t, procexec.StatusRunning, rec.Status)

	final, ok := s.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, procexec.StatusCompleted, final.Status)
	assert.Equal(t, 0, final.ExitCode)

	entries, err := s.store.Get(rec.PID, procexec.StreamStdout, procexec.GetQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Text)
}

func TestStartProcessNonZeroExitIsFailed(t *testing.T) {
	s := newTestSupervisor(t)

	rec, err := s.StartProcess(procexec.SpawnSpec{
		Command:   "sh",
		Argv:      []string{"sh", "-c", "exit 3"},
		Directory: t.TempDir(),
	})
	require.NoError(t, err)

	final, ok := s.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, procexec.StatusFailed, final.Status)
	assert.Equal(t, 3, final.ExitCode)
}

func TestStartProcessRejectsMissingDirectory(t *testing.T) {
	s := newTestSupervisor(t)

	_, err := s.StartProcess(procexec.SpawnSpec{
		Command:   "echo",
		Argv:      []string{"echo", "hi"},
		Directory: "/no/such/directory/exists",
	})
	assert.Error(t, err)
}

func TestStopProcessTerminatesRunningChild(t *testing.T) {
	s := newTestSupervisor(t)

	rec, err := s.StartProcess(procexec.SpawnSpec{
		Command:   "sleep",
		Argv:      []string{"sleep", "30"},
		Directory: t.TempDir(),
	})
	require.NoError(t, err)

	require.NoError(t, s.StopProcess(rec.PID, false, "test stop"))

	final, ok := s.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, procexec.StatusTerminated, final.Status)
}

func TestStopProcessUnknownPIDIsError(t *testing.T) {
	s := newTestSupervisor(t)
	assert.ErrorIs(t, s.StopProcess("ghost1", false, ""), procexec.ErrProcessNotFound)
}

func TestDeadlineKillsLongRunningProcess(t *testing.T) {
	s := newTestSupervisor(t)

	rec, err := s.StartProcess(procexec.SpawnSpec{
		Command:     "sleep",
		Argv:        []string{"sleep", "30"},
		Directory:   t.TempDir(),
		DeadlineSec: 1,
	})
	require.NoError(t, err)

	final, ok := s.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, procexec.StatusTerminated, final.Status)
	assert.Contains(t, final.Error, "timed out")
}

func TestCleanProcessesOutcomes(t *testing.T) {
	s := newTestSupervisor(t)

	rec, err := s.StartProcess(procexec.SpawnSpec{
		Command:   "sleep",
		Argv:      []string{"sleep", "30"},
		Directory: t.TempDir(),
	})
	require.NoError(t, err)

	outcomes := s.CleanProcesses([]string{"ghost", rec.PID})
	assert.Equal(t, procexec.CleanOutcomeNotFound, outcomes["ghost"])
	assert.Equal(t, procexec.CleanOutcomeStillRunning, outcomes[rec.PID])

	require.NoError(t, s.StopProcess(rec.PID, true, ""))
	_, ok := s.AwaitCompletion(rec.PID, 5*time.Second)
	require.True(t, ok)

	outcomes = s.CleanProcesses([]string{rec.PID})
	assert.Equal(t, procexec.CleanOutcomeSuccess, outcomes[rec.PID])

	_, err = s.GetProcess(rec.PID)
	assert.ErrorIs(t, err, procexec.ErrProcessNotFound)
}

func TestGeneratePIDAvoidsCollisions(t *testing.T) {
	seen := map[string]struct{}{"AAAAA": {}}
	exists := func(pid string) bool {
		_, ok := seen[pid]
		return ok
	}
	pid, err := generatePID(exists)
	require.NoError(t, err)
	assert.Len(t, pid, pidLength)
	assert.NotEqual(t, "AAAAA", pid)
}

func TestGeneratePIDExhaustsRetries(t *testing.T) {
	alwaysExists := func(string) bool { return true }
	_, err := generatePID(alwaysExists)
	assert.Error(t, err)
}

package outputstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/pkg/procexec"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(zap.NewNop(), t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestStoreAndGetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Store("p1", "stdout", []string{"line one", "line two"}))

	entries, err := s.Get("p1", "stdout", procexec.GetQuery{})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "line one", entries[0].Text)
	assert.Equal(t, "line two", entries[1].Text)
}

func TestGetUnknownPIDFails(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("ghost", "stdout", procexec.GetQuery{})
	assert.ErrorIs(t, err, procexec.ErrProcessNotFound)
}

func TestGetUnknownStreamOnKnownPIDIsEmpty(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Register("p1"))

	entries, err := s.Get("p1", "stderr", procexec.GetQuery{})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestGetAppliesTailLimit(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store("p1", "stdout", []string{"a", "b", "c", "d"}))

	tail := 2
	entries, err := s.Get("p1", "stdout", procexec.GetQuery{Tail: &tail})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "c", entries[0].Text)
	assert.Equal(t, "d", entries[1].Text)
}

func TestGetAppliesGrepLineMode(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store("p1", "stdout", []string{"error: boom", "ok", "error: again"}))

	entries, err := s.Get("p1", "stdout", procexec.GetQuery{Grep: "^error"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "error: boom", entries[0].Text)
	assert.Equal(t, "error: again", entries[1].Text)
}

func TestClearRemovesProcessAndIsIdempotentOnFailure(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Store("p1", "stdout", []string{"a"}))

	require.NoError(t, s.Clear("p1"))
	_, err := s.Get("p1", "stdout", procexec.GetQuery{})
	assert.ErrorIs(t, err, procexec.ErrProcessNotFound)

	err = s.Clear("p1")
	assert.ErrorIs(t, err, procexec.ErrProcessNotFound)
}

func TestStoreEmptyBatchIsNoop(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Store("p1", "stdout", nil))
	_, ok := s.existing("p1")
	assert.False(t, ok)
}

func TestShutdownRejectsFurtherWrites(t *testing.T) {
	s, err := New(zap.NewNop(), t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Shutdown())
	err = s.Store("p1", "stdout", []string{"line"})
	require.Error(t, err)
}

func TestApplyGrepContentModeSplitsMultipleMatches(t *testing.T) {
	entries := []procexec.OutputEntry{{Text: "foo 1 bar 2"}}
	out, err := applyGrep(entries, `\d+`, procexec.GrepModeContent)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "1", out[0].Text)
	assert.Equal(t, "2", out[1].Text)
}

func TestApplyGrepEmptyPatternPassesThrough(t *testing.T) {
	entries := []procexec.OutputEntry{{Text: "a"}, {Text: "b"}}
	out, err := applyGrep(entries, "", procexec.GrepModeLine)
	require.NoError(t, err)
	assert.Equal(t, entries, out)
}

func TestApplyTailBoundaryLaw(t *testing.T) {
	entries := []procexec.OutputEntry{{Text: "a"}, {Text: "b"}, {Text: "c"}}

	assert.Equal(t, entries, applyTail(entries, nil))

	zero := 0
	assert.Empty(t, applyTail(entries, &zero))

	all := len(entries)
	assert.Equal(t, entries, applyTail(entries, &all))

	two := 2
	assert.Equal(t, entries[1:], applyTail(entries, &two))
}

// Package toolsurface implements the seven tool-call operations of
// spec.md §6 as plain functions over the Façade/Supervisor/Output Store.
// The request/response dispatcher and its argument validation are out of
// scope (spec.md §1) — callers hand in already-validated Go values and get
// back the exact wire-format text the protocol expects.
package toolsurface

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/edirooss/procexecd/internal/facade"
	"github.com/edirooss/procexecd/internal/outputstore"
	"github.com/edirooss/procexecd/internal/resolver"
	"github.com/edirooss/procexecd/internal/supervisor"
	"github.com/edirooss/procexecd/pkg/procexec"
)

// Tools bundles the dependencies every tool-call operation needs.
type Tools struct {
	facade     *facade.Facade
	supervisor *supervisor.Supervisor
	store      *outputstore.Store
}

func New(f *facade.Facade, s *supervisor.Supervisor, store *outputstore.Store) *Tools {
	return &Tools{facade: f, supervisor: s, store: store}
}

// CommandExecute implements command_execute: 3 text blocks on completion
// (header, stdout, stderr), 4 on timeout (header/still-running notice,
// partial stdout, partial stderr, a trailing "still running" note).
func (t *Tools) CommandExecute(args resolver.CallArgs, limitLines int) []string {
	result, err := t.facade.ExecuteCommand(args, limitLines)
	if timeoutErr, ok := err.(*procexec.CommandTimeoutError); ok {
		return []string{
			fmt.Sprintf("**process %s still running (timed out waiting)**", timeoutErr.PID),
			fencedBlock("stdout", renderEntries(timeoutErr.Stdout, false, "")),
			fencedBlock("stderr", renderEntries(timeoutErr.Stderr, false, "")),
			fmt.Sprintf("Process %s is still running; use command_ps_logs to retrieve the remainder once it completes.", timeoutErr.PID),
		}
	}
	if err != nil {
		return []string{fmt.Sprintf("**error:** %s", err.Error())}
	}
	header := fmt.Sprintf("**process %s end with %s (exit code: %d)**", result.PID, result.Status, result.ExitCode)
	return []string{
		header,
		fencedBlock("stdout", renderEntries(result.Stdout, false, "")),
		fencedBlock("stderr", renderEntries(result.Stderr, false, "")),
	}
}

// CommandBgStart implements command_bg_start.
func (t *Tools) CommandBgStart(args resolver.CallArgs) string {
	rec, err := t.facade.StartBackgroundCommand(args)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error())
	}
	return fmt.Sprintf("Process started with PID: %s", rec.PID)
}

// CommandPsList implements command_ps_list.
func (t *Tools) CommandPsList(status string, labels []string) string {
	var want procexec.Status
	if status != "" {
		want = procexec.Status(status)
		if !want.Valid() {
			names := make([]string, len(procexec.AllStatuses))
			for i, s := range procexec.AllStatuses {
				names[i] = string(s)
			}
			return fmt.Sprintf("Invalid status: %s. Must be one of %s", status, strings.Join(names, ", "))
		}
	}

	records := t.supervisor.ListProcesses(want, labels)
	if len(records) == 0 {
		return "No processes found."
	}
	sort.Slice(records, func(i, j int) bool { return records[i].StartTime.Before(records[j].StartTime) })

	var b strings.Builder
	b.WriteString("| PID | Status | Command | Description | Labels |\n")
	b.WriteString("|---|---|---|---|---|\n")
	for _, r := range records {
		pid := r.PID
		if len(pid) > 8 {
			pid = pid[:8]
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			pid, r.Status, r.Spec.Command, r.Spec.Description, strings.Join(r.Spec.Labels, ", "))
	}
	return b.String()
}

// CommandPsStop implements command_ps_stop.
func (t *Tools) CommandPsStop(pid string, force bool) string {
	if err := t.supervisor.StopProcess(pid, force, "stopped via command_ps_stop"); err != nil {
		return fmt.Sprintf("error: %s", err.Error())
	}
	return fmt.Sprintf("Process %s stopped.", pid)
}

// LogsQuery bundles command_ps_logs' many optional inputs.
type LogsQuery struct {
	PID           string
	Tail          *int
	Since, Until  time.Time
	WithStdout    bool
	WithStderr    bool
	AddTimePrefix bool
	TimePrefixFmt string
	FollowSeconds int
	LimitLines    int
	Grep          string
	GrepMode      procexec.GrepMode
}

// CommandPsLogs implements command_ps_logs: a header block with PID/
// command/description/status, then up to two fenced blocks for the
// requested streams. A positive FollowSeconds blocks briefly beforehand to
// give a still-running process a chance to produce more output, a
// best-effort approximation of `tail -f` over the store's pull-based Get.
func (t *Tools) CommandPsLogs(q LogsQuery) []string {
	rec, err := t.supervisor.GetProcess(q.PID)
	if err != nil {
		return []string{fmt.Sprintf("error: %s", err.Error())}
	}

	if q.FollowSeconds > 0 {
		t.follow(q.PID, time.Duration(q.FollowSeconds)*time.Second)
	}

	format := q.TimePrefixFmt
	if format == "" {
		format = "%Y-%m-%d %H:%M:%S.%f"
	}

	blocks := []string{fmt.Sprintf("**PID:** %s | **command:** %s | **description:** %s | **status:** %s",
		rec.PID, rec.Spec.Command, rec.Spec.Description, rec.Status)}

	query := procexec.GetQuery{Since: q.Since, Until: q.Until, Tail: q.Tail, Grep: q.Grep, GrepMode: q.GrepMode}

	if q.WithStdout {
		entries, _ := t.store.Get(q.PID, procexec.StreamStdout, query)
		entries = limitEntries(entries, q.LimitLines)
		blocks = append(blocks, fencedBlock("stdout", renderEntries(entries, q.AddTimePrefix, format)))
	}
	if q.WithStderr {
		entries, _ := t.store.Get(q.PID, procexec.StreamStderr, query)
		entries = limitEntries(entries, q.LimitLines)
		blocks = append(blocks, fencedBlock("stderr", renderEntries(entries, q.AddTimePrefix, format)))
	}
	return blocks
}

func (t *Tools) follow(pid string, d time.Duration) {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		rec, err := t.supervisor.GetProcess(pid)
		if err != nil || rec.Status.Terminal() {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

// CommandPsClean implements command_ps_clean.
func (t *Tools) CommandPsClean(pids []string) string {
	outcomes := t.supervisor.CleanProcesses(pids)
	lines := make([]string, 0, len(pids))
	for _, pid := range pids {
		lines = append(lines, fmt.Sprintf("%s: %s", pid, outcomes[pid]))
	}
	return strings.Join(lines, "\n")
}

// CommandPsDetail implements command_ps_detail: spec.md §3's fields plus
// duration, rendered as markdown.
func (t *Tools) CommandPsDetail(pid string) string {
	rec, err := t.supervisor.GetProcess(pid)
	if err != nil {
		return fmt.Sprintf("error: %s", err.Error())
	}

	var argv string
	if len(rec.Spec.Argv) > 1 {
		argv = strings.Join(rec.Spec.Argv[1:], " ")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**PID:** %s\n\n", rec.PID)
	fmt.Fprintf(&b, "**Command:** %s\n\n", rec.Spec.Command)
	fmt.Fprintf(&b, "**Args:** %s\n\n", argv)
	fmt.Fprintf(&b, "**Directory:** %s\n\n", rec.Spec.Directory)
	fmt.Fprintf(&b, "**Description:** %s\n\n", rec.Spec.Description)
	fmt.Fprintf(&b, "**Labels:** %s\n\n", strings.Join(rec.Spec.Labels, ", "))
	fmt.Fprintf(&b, "**Status:** %s\n\n", rec.Status)
	fmt.Fprintf(&b, "**Start time:** %s\n\n", rec.StartTime.Format(time.RFC3339))
	if !rec.EndTime.IsZero() {
		fmt.Fprintf(&b, "**End time:** %s\n\n", rec.EndTime.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "**Exit code:** %d\n\n", rec.ExitCode)
	if rec.Error != "" {
		fmt.Fprintf(&b, "**Error:** %s\n\n", rec.Error)
	}
	fmt.Fprintf(&b, "**Duration:** %s\n", rec.Duration(time.Now()).Round(time.Millisecond))
	return b.String()
}

func limitEntries(entries []procexec.OutputEntry, limit int) []procexec.OutputEntry {
	if limit <= 0 || len(entries) <= limit {
		return entries
	}
	return entries[len(entries)-limit:]
}

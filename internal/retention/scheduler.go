// Package retention implements the Retention Scheduler (C2): a single
// driver goroutine backed by a min-heap, arming and disarming delayed
// cleanup of terminal processes.
package retention

import (
	"container/heap"
	"time"
)

// schedEvent is one pending cleanup, keyed by pid with an index maintained
// by container/heap for O(log n) arbitrary removal.
type schedEvent struct {
	pid   string
	when  time.Time
	index int
}

// eventHeap is a min-heap ordered by fire time. Adapted near-verbatim from
// the supervisor's scheduler/eventHeap (container/heap min-heap keyed by
// time, side-indexed for O(log n) removal), with the keyed id generalized
// from int64 to the opaque string pid.
type eventHeap []*schedEvent

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].when.Before(h[j].when) }
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *eventHeap) Push(x any) {
	ev := x.(*schedEvent)
	ev.index = len(*h)
	*h = append(*h, ev)
}
func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	ev.index = -1
	*h = old[:n-1]
	return ev
}

// timerHeap wraps the bare eventHeap with the pid->event side index and
// exposes the push/remove vocabulary the Scheduler's Arm/Disarm build on.
type timerHeap struct {
	h       eventHeap
	entries map[string]*schedEvent
}

func newTimerHeap() *timerHeap {
	h := eventHeap{}
	heap.Init(&h)
	return &timerHeap{h: h, entries: make(map[string]*schedEvent)}
}

// push inserts or replaces (re-arms) the event for pid.
func (t *timerHeap) push(pid string, when time.Time) {
	if old, ok := t.entries[pid]; ok {
		heap.Remove(&t.h, old.index)
		delete(t.entries, pid)
	}
	ev := &schedEvent{pid: pid, when: when}
	t.entries[pid] = ev
	heap.Push(&t.h, ev)
}

func (t *timerHeap) next() (pid string, when time.Time, ok bool) {
	if len(t.h) == 0 {
		return "", time.Time{}, false
	}
	ev := t.h[0]
	return ev.pid, ev.when, true
}

func (t *timerHeap) pop() {
	if len(t.h) == 0 {
		return
	}
	ev := heap.Pop(&t.h).(*schedEvent)
	delete(t.entries, ev.pid)
}

func (t *timerHeap) remove(pid string) {
	ev, ok := t.entries[pid]
	if !ok {
		return
	}
	heap.Remove(&t.h, ev.index)
	delete(t.entries, pid)
}

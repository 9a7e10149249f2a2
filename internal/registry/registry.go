// Package registry implements the Process Registry (C4): an in-memory
// mapping of pid to supervised process record, guarded by a single mutex.
// It is the sole source of existence truth every other component consults.
package registry

import (
	"sync"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// Registry holds one *Handle per live pid. The handle (not exported from
// this package's callers' view as a mutable pointer) carries the per-record
// mutex spec.md §3 requires ("Ownership... through an internal mutex").
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Handle
}

// Handle wraps one ProcessRecord with the mutex that guards mutation of its
// lifecycle fields, matching the teacher's pattern of a map of pointers
// rather than a map of values (so in-place mutation doesn't require a
// map re-assignment under the top lock on every state transition).
type Handle struct {
	mu     sync.Mutex
	record procexec.ProcessRecord
}

// Snapshot returns a copy of the current record state. Safe to read without
// holding any lock afterward — spec.md §5's "read copies must not escape
// the lock as mutable references" rule.
func (h *Handle) Snapshot() procexec.ProcessRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.record
}

// Mutate runs fn with the record's mutex held, the only sanctioned way to
// change status/end_time/exit_code/error. spec.md invariant 3
// (end_time/exit_code set before the completion signal fires) holds because
// the supervisor returns from Mutate before it closes the completion signal;
// the signal itself is not closed inside this critical section.
func (h *Handle) Mutate(fn func(r *procexec.ProcessRecord)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	fn(&h.record)
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{records: make(map[string]*Handle)}
}

// Put registers a new record. Callers must have already guaranteed pid
// uniqueness (see internal/supervisor's id generator).
func (r *Registry) Put(rec procexec.ProcessRecord) *Handle {
	h := &Handle{record: rec}
	r.mu.Lock()
	r.records[rec.PID] = h
	r.mu.Unlock()
	return h
}

// Get returns the handle for pid, or (nil, false) if unknown.
func (r *Registry) Get(pid string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.records[pid]
	return h, ok
}

// Exists reports whether pid is currently registered. Used by the id
// generator's rejection-sampling loop.
func (r *Registry) Exists(pid string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.records[pid]
	return ok
}

// Delete removes pid from the registry. Idempotent.
func (r *Registry) Delete(pid string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, pid)
}

// List returns a snapshot of every record whose status matches (empty
// status means "no filter") and whose labels are a superset of want.
func (r *Registry) List(status procexec.Status, labels []string) []procexec.ProcessRecord {
	r.mu.RLock()
	handles := make([]*Handle, 0, len(r.records))
	for _, h := range r.records {
		handles = append(handles, h)
	}
	r.mu.RUnlock()

	out := make([]procexec.ProcessRecord, 0, len(handles))
	for _, h := range handles {
		rec := h.Snapshot()
		if status != "" && rec.Status != status {
			continue
		}
		if !rec.HasLabels(labels) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// Len returns the number of registered records (including running and
// not-yet-cleaned terminal ones).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

package outputstore

import (
	"sync"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// tailCache is a thread-safe circular buffer of the most recent entries
// written to one (process, stream) pair. It exists purely as a fast path for
// tail-only queries against a live writer: the store is the source of truth,
// this is a cache, invalidated wholesale on clear.
//
// Adapted from the supervisor's original logBuffer: the element type moves
// from a bare string to a procexec.OutputEntry (timestamp + text) since the
// store persists timestamps. Capacity is the fixed tailCacheCapacity (500
// entries per stream).
type tailCache struct {
	entries []procexec.OutputEntry
	head    int
	size    int
	full    bool
	mu      sync.RWMutex
}

const tailCacheCapacity = 500

func newTailCache() *tailCache {
	return &tailCache{entries: make([]procexec.OutputEntry, tailCacheCapacity)}
}

// Append records one entry, overwriting the oldest once full.
func (b *tailCache) Append(e procexec.OutputEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capN := len(b.entries)
	b.entries[b.head] = e
	b.head = (b.head + 1) % capN

	if b.full {
		return
	}
	b.size++
	if b.size == capN {
		b.full = true
	}
}

// Read returns up to n entries, newest first. n<=0 or n>capacity is clamped
// to capacity.
func (b *tailCache) Read(n int) []procexec.OutputEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	capN := len(b.entries)
	if b.size == 0 {
		return nil
	}
	if n <= 0 || n > capN {
		n = capN
	}
	if n > b.size {
		n = b.size
	}

	result := make([]procexec.OutputEntry, n)
	var newest int
	if b.full {
		newest = (b.head - 1 + capN) % capN
	} else {
		newest = b.size - 1
	}
	for i := 0; i < n; i++ {
		idx := (newest - i + capN) % capN
		result[i] = b.entries[idx]
	}
	return result
}

// tailCacheIndex lazily creates one tailCache per (pid, stream) pair,
// adapted from the supervisor's LogManager (map + RWMutex + lazy Get).
type tailCacheIndex struct {
	mu      sync.RWMutex
	buffers map[string]*tailCache
}

func newTailCacheIndex() *tailCacheIndex {
	return &tailCacheIndex{buffers: make(map[string]*tailCache)}
}

func key(pid, stream string) string { return pid + "\x00" + stream }

func (idx *tailCacheIndex) get(pid, stream string) *tailCache {
	k := key(pid, stream)

	idx.mu.RLock()
	b, ok := idx.buffers[k]
	idx.mu.RUnlock()
	if ok {
		return b
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if b, ok = idx.buffers[k]; ok {
		return b
	}
	b = newTailCache()
	idx.buffers[k] = b
	return b
}

// dropProcess removes every cached stream for pid, called from clear.
func (idx *tailCacheIndex) dropProcess(pid string) {
	prefix := pid + "\x00"
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for k := range idx.buffers {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(idx.buffers, k)
		}
	}
}

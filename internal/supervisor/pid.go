package supervisor

import (
	"crypto/rand"
	"fmt"
)

const pidAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
const pidLength = 5
const pidMaxRetries = 10

// existsFunc reports whether pid is already registered; the id generator
// rejects any sample for which this returns true.
type existsFunc func(pid string) bool

// generatePID produces a 5-character alphanumeric id via rejection
// sampling against the live registry, per spec.md §3. Structurally
// grounded on the teacher's PIDAllocator (an allocator wrapping an in-use
// set with bounded retries), but the sampling strategy itself is new:
// the teacher's allocator walks a monotonic integer space, this draws at
// random from a ~916-million-id alphanumeric space instead. Each character
// is a random byte reduced modulo 62, so the first 8 alphabet characters
// are slightly more likely than the rest.
func generatePID(exists existsFunc) (string, error) {
	for attempt := 0; attempt < pidMaxRetries; attempt++ {
		candidate, err := randomPID()
		if err != nil {
			return "", fmt.Errorf("generate pid: %w", err)
		}
		if !exists(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("generate pid: exhausted %d attempts", pidMaxRetries)
}

func randomPID() (string, error) {
	buf := make([]byte, pidLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, pidLength)
	for i, b := range buf {
		out[i] = pidAlphabet[int(b)%len(pidAlphabet)]
	}
	return string(out), nil
}

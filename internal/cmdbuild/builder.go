// Package cmdbuild renders a resolved program+argv pair into human-readable
// forms for manager-stream annotations and the tool-call surface. It is
// never used to actually spawn a process — a SpawnSpec's Argv is handed to
// exec.Command directly, never through a shell string (spec.md's "never a
// shell string" non-goal).
//
// Generalized from the teacher's pkg/remuxcmd.Builder: the flag-specific
// With*Flag methods (tied to the remux CLI surface) are gone since this
// package receives an already-resolved argv rather than building one up
// flag by flag, but the shell-quoting convention (BuildString/shQuote) is
// kept verbatim.
package cmdbuild

import "strings"

// Builder wraps a program+argv pair for display. Not concurrency-safe;
// treat as a single-use, short-lived value like the teacher's Builder.
type Builder struct {
	argv []string
}

// New seeds a Builder with program followed by args.
func New(program string, args ...string) *Builder {
	return &Builder{argv: append([]string{program}, args...)}
}

// FromArgv wraps an already-assembled argv (program at index 0).
func FromArgv(argv []string) *Builder {
	b := &Builder{argv: make([]string, len(argv))}
	copy(b.argv, argv)
	return b
}

// Argv returns a defensive copy of the wrapped argument vector.
func (b *Builder) Argv() []string {
	out := make([]string, len(b.argv))
	copy(out, b.argv)
	return out
}

// String renders a single shell-quoted command string for logging and
// manager-stream annotations.
func (b *Builder) String() string {
	quoted := make([]string, len(b.argv))
	for i, a := range b.argv {
		quoted[i] = shQuote(a)
	}
	return strings.Join(quoted, " ")
}

// shQuote returns a POSIX-safe single-quoted token, matching the teacher's
// quoting convention.
func shQuote(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

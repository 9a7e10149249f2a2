package toolsurface

import (
	"fmt"
	"strings"
	"time"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// fencedBlock wraps text in a markdown fenced code block labeled lang.
func fencedBlock(lang, text string) string {
	return fmt.Sprintf("```%s\n%s\n```", lang, text)
}

// renderEntries joins entries' text with newlines, optionally prefixing
// each line with a formatted timestamp per spec.md §6's `[<formatted-ts>]`
// convention for command_ps_logs.
func renderEntries(entries []procexec.OutputEntry, withTime bool, format string) string {
	lines := make([]string, len(entries))
	for i, e := range entries {
		if withTime {
			lines[i] = fmt.Sprintf("[%s] %s", strftime(format, e.Time), e.Text)
		} else {
			lines[i] = e.Text
		}
	}
	return strings.Join(lines, "\n")
}

// strftime renders t using the small subset of C strftime directives
// spec.md's time_prefix_format accepts (default "%Y-%m-%d %H:%M:%S.%f").
// Go's time.Format has no equivalent of "%f" for microseconds, so this is
// hand-rolled rather than translated into a time.Layout string.
func strftime(format string, t time.Time) string {
	var b strings.Builder
	for i := 0; i < len(format); i++ {
		if format[i] != '%' || i == len(format)-1 {
			b.WriteByte(format[i])
			continue
		}
		i++
		switch format[i] {
		case 'Y':
			fmt.Fprintf(&b, "%04d", t.Year())
		case 'm':
			fmt.Fprintf(&b, "%02d", int(t.Month()))
		case 'd':
			fmt.Fprintf(&b, "%02d", t.Day())
		case 'H':
			fmt.Fprintf(&b, "%02d", t.Hour())
		case 'M':
			fmt.Fprintf(&b, "%02d", t.Minute())
		case 'S':
			fmt.Fprintf(&b, "%02d", t.Second())
		case 'f':
			fmt.Fprintf(&b, "%06d", t.Nanosecond()/1000)
		case '%':
			b.WriteByte('%')
		default:
			b.WriteByte('%')
			b.WriteByte(format[i])
		}
	}
	return b.String()
}

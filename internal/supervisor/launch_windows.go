//go:build windows

package supervisor

import (
	"os/exec"
	"strconv"
	"strings"
	"syscall"
)

// builtins is the fixed set of cmd.exe built-in commands that have no
// standalone executable on PATH and must be re-routed through the platform
// shell, per spec.md §4.3 step 2.
var builtins = map[string]struct{}{
	"dir": {}, "copy": {}, "del": {}, "echo": {}, "type": {}, "cd": {},
	"md": {}, "mkdir": {}, "rd": {}, "rmdir": {}, "move": {}, "ren": {},
	"rename": {}, "set": {}, "cls": {}, "exit": {}, "start": {}, "ver": {},
	"vol": {}, "path": {}, "title": {}, "if": {}, "for": {},
}

// shellScriptExtensions are launched through the platform shell even though
// a matching executable may exist, per spec.md §4.3 step 2.
var shellScriptExtensions = []string{".cmd", ".bat", ".com"}

func needsShell(program string) bool {
	lower := strings.ToLower(program)
	if _, ok := builtins[lower]; ok {
		return true
	}
	for _, ext := range shellScriptExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// buildCmd resolves argv into an *exec.Cmd ready for Start(). Built-ins and
// .cmd/.bat/.com scripts are re-routed through cmd.exe /C, matching a
// Windows-like host's actual invocation semantics (spec.md §4.3 step 2);
// everything else is launched directly. The reroute is argv-based (passed
// to cmd.exe as discrete arguments, not concatenated into a shell string),
// preserving the "never a shell string" non-goal even on this path.
func buildCmd(argv []string, dir string, env []string) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	if needsShell(argv[0]) {
		shellArgs := append([]string{"/C"}, argv...)
		cmd = exec.Command("cmd.exe", shellArgs...)
	} else {
		cmd = exec.Command(argv[0], argv[1:]...)
	}
	cmd.Dir = dir
	cmd.Env = env
	return cmd, nil
}

// killGroup on Windows has no process-group signal equivalent; terminate
// the process itself via taskkill against its own process tree.
func killGroup(pid int, _ syscall.Signal) error {
	kill := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(pid))
	return kill.Run()
}

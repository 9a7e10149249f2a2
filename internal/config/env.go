// Package config loads the process-wide settings spec.md §6 names as
// environment inputs into a resolver.GlobalConfig and the other startup
// values the supervisor/output-store/retention components need.
//
// This is a deliberately stdlib-only package: it scans os.Environ()
// directly rather than reaching for a config library, because several of
// the variables it must collect are dynamically named
// (DEFAULT_ENCODING_<CMD>, <CMD>_COMMAND_ENV_<VAR>) and no library in the
// example pack exposes a "give me every var matching this open-ended
// pattern" primitive — spf13/viper's AutomaticEnv binds known keys, it
// doesn't enumerate unknown ones.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/edirooss/procexecd/internal/resolver"
)

// Settings is every environment-derived value needed to wire up the core:
// the Parameter Resolver's GlobalConfig plus the handful of values that
// belong to other components (output storage path, retention window).
type Settings struct {
	Resolver resolver.GlobalConfig

	OutputStoragePath     string // empty means "use a process-lifetime temp dir"
	ProcessRetentionSecs  int    // negative means "forever" (disables auto-cleanup)
}

// Load reads Settings from the current process environment.
func Load() Settings {
	env := os.Environ()
	flat := make(map[string]string, len(env))
	for _, kv := range env {
		if i := strings.IndexByte(kv, '='); i >= 0 {
			flat[kv[:i]] = kv[i+1:]
		}
	}

	s := Settings{
		Resolver: resolver.GlobalConfig{
			AllowedCommands:   parseCommaSet(flat["ALLOWED_COMMANDS"]),
			DefaultEncoding:   flat["DEFAULT_ENCODING"],
			DefaultTimeout:    parseIntOr(flat["DEFAULT_TIMEOUT"], 0),
			GlobalEnv:         make(map[string]string),
			CommandEncoding:   make(map[string]string),
			CommandEnv:        make(map[string]map[string]string),
			ProjectConfigFile: flat["PROJECT_COMMAND_CONFIG_FILE"],
		},
		OutputStoragePath:    flat["OUTPUT_STORAGE_PATH"],
		ProcessRetentionSecs: parseIntOr(flat["PROCESS_RETENTION_SECONDS"], -1),
	}

	for key, val := range flat {
		switch {
		case strings.HasPrefix(key, "DEFAULT_ENCODING_") && key != "DEFAULT_ENCODING":
			cmd := strings.TrimPrefix(key, "DEFAULT_ENCODING_")
			s.Resolver.CommandEncoding[cmd] = val

		case strings.Contains(key, "_COMMAND_ENV_"):
			idx := strings.Index(key, "_COMMAND_ENV_")
			cmd := key[:idx]
			varName := key[idx+len("_COMMAND_ENV_"):]
			if cmd == "" || varName == "" {
				continue
			}
			if s.Resolver.CommandEnv[cmd] == nil {
				s.Resolver.CommandEnv[cmd] = make(map[string]string)
			}
			s.Resolver.CommandEnv[cmd][varName] = val
		}
	}

	return s
}

func parseCommaSet(v string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out[item] = struct{}{}
		}
	}
	return out
}

func parseIntOr(v string, fallback int) int {
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

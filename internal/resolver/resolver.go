// Package resolver implements the Parameter Resolver (C7): it merges
// global defaults, per-command globals, optional per-project config, and
// call-site arguments into a concrete procexec.SpawnSpec, and gates
// unlisted commands before the Supervisor is ever invoked.
package resolver

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/edirooss/procexecd/pkg/procexec"
)

// GlobalConfig is the startup-time configuration loaded from environment —
// the outer two merge layers of spec.md §4.7.
type GlobalConfig struct {
	AllowedCommands map[string]struct{}
	DefaultEncoding string
	DefaultTimeout  int // seconds, 0 = no deadline
	GlobalEnv       map[string]string
	CommandEncoding map[string]string            // command -> default encoding
	CommandEnv      map[string]map[string]string // command -> env overrides

	ProjectConfigFile  string   // basename; empty disables project config entirely
	ProjectConfigRoots []string // upward walk stops once one of these is reached
}

// CallArgs is everything a caller may supply at the call site (layer 4).
// Optional fields use Field so "not given" and "given as null/empty" are
// distinguishable, per spec.md §4.7's delete-sentinel rule.
type CallArgs struct {
	Command     string
	Argv        any // []string, []any of strings, or a JSON-encoded string of strings
	Directory   string
	StdinData   []byte
	Timeout     Field[int]
	Envs        map[string]Field[string]
	Encoding    Field[string]
	Description string
	Labels      []string
}

// Resolver is the Parameter Resolver (C7). One instance serves the whole
// process; it also enforces the ALLOWED_COMMANDS allow-list gate.
type Resolver struct {
	global   GlobalConfig
	projects *projectConfigCache
}

// New constructs a Resolver from startup configuration.
func New(global GlobalConfig) *Resolver {
	return &Resolver{
		global:   global,
		projects: newProjectConfigCache(global.ProjectConfigFile, global.ProjectConfigRoots),
	}
}

// Resolve merges all four layers into a concrete SpawnSpec. Returns
// ErrNotAllowed before any other validation if command isn't configured.
func (r *Resolver) Resolve(args CallArgs) (procexec.SpawnSpec, error) {
	if _, ok := r.global.AllowedCommands[args.Command]; !ok {
		return procexec.SpawnSpec{}, procexec.ErrNotAllowed
	}

	argv, err := ParseArgv(args.Argv)
	if err != nil {
		return procexec.SpawnSpec{}, &procexec.ValidationError{Field: "args", Reason: err.Error()}
	}
	fullArgv := append([]string{args.Command}, argv...)

	encoding := r.global.DefaultEncoding
	if v, ok := r.global.CommandEncoding[args.Command]; ok && v != "" {
		encoding = v
	}
	timeout := r.global.DefaultTimeout

	env := make(map[string]string, len(r.global.GlobalEnv))
	for k, v := range r.global.GlobalEnv {
		if v != "" {
			env[k] = v
		}
	}
	for k, v := range r.global.CommandEnv[args.Command] {
		if v == "" {
			delete(env, k)
			continue
		}
		env[k] = v
	}

	if proj, ok := r.projects.lookup(args.Directory); ok {
		if len(proj.ExtraPaths) > 0 {
			existing := env["PATH"]
			if existing == "" {
				existing = os.Getenv("PATH")
			}
			env["PATH"] = strings.Join(proj.ExtraPaths, string(os.PathListSeparator)) + string(os.PathListSeparator) + existing
		}
		if cmdCfg, ok := proj.Commands[args.Command]; ok {
			if cmdCfg.DefaultEncoding != "" {
				encoding = cmdCfg.DefaultEncoding
			}
			if cmdCfg.DefaultTimeout != 0 {
				timeout = cmdCfg.DefaultTimeout
			}
			for k, v := range cmdCfg.DefaultEnvs {
				if v == "" {
					delete(env, k)
					continue
				}
				env[k] = v
			}
		}
	}

	if v, present := args.Encoding.Value(); present {
		encoding = v
	} else if args.Encoding.IsNull() {
		encoding = ""
	}
	if v, present := args.Timeout.Value(); present {
		timeout = v
	} else if args.Timeout.IsNull() {
		timeout = 0
	}
	for k, f := range args.Envs {
		if v, present := f.Value(); present && v != "" {
			env[k] = v
		} else if f.IsSet() {
			delete(env, k)
		}
	}

	return procexec.SpawnSpec{
		Command:     args.Command,
		Argv:        fullArgv,
		Directory:   args.Directory,
		Env:         env,
		Encoding:    encoding,
		StdinData:   args.StdinData,
		DeadlineSec: timeout,
		Description: args.Description,
		Labels:      args.Labels,
	}, nil
}

// ParseArgv accepts a native list of strings or a JSON-encoded string of
// strings, per spec.md §4.7, rejecting anything else with an error.
func ParseArgv(raw any) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("argv element is not a string")
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, fmt.Errorf("argv string is not a JSON array of strings: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("argv must be a list or a JSON-encoded string of strings")
	}
}

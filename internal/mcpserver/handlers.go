package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/edirooss/procexecd/internal/resolver"
	"github.com/edirooss/procexecd/internal/toolsurface"
	"github.com/edirooss/procexecd/pkg/procexec"
)

type handlers struct {
	tools *toolsurface.Tools
	log   *zap.Logger
}

func (h *handlers) register(s *server.MCPServer) {
	s.AddTool(
		mcp.NewTool("command_execute",
			mcp.WithDescription("Run a command to completion and return its output. Blocks until the process exits or its timeout elapses."),
			mcp.WithString("command", mcp.Required(), mcp.Description("Program name; must be present in ALLOWED_COMMANDS")),
			mcp.WithArray("args", mcp.Description("Command arguments, as a list of strings or a JSON-encoded list-string")),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Absolute working directory for the child process")),
			mcp.WithString("stdin", mcp.Description("Data written to the child's stdin before it starts reading")),
			mcp.WithNumber("timeout", mcp.Description("Deadline in seconds; omit to use the configured default, null clears it")),
			mcp.WithObject("envs", mcp.Description("Environment variable overrides; a null value deletes that variable")),
			mcp.WithString("encoding", mcp.Description("Text encoding for stdio; empty string disables decoding")),
			mcp.WithNumber("limit_lines", mcp.Description("Return only the last N lines of stdout/stderr")),
		),
		h.commandExecute,
	)

	s.AddTool(
		mcp.NewTool("command_bg_start",
			mcp.WithDescription("Start a command in the background and return its PID immediately, without waiting for it to finish."),
			mcp.WithString("command", mcp.Required(), mcp.Description("Program name; must be present in ALLOWED_COMMANDS")),
			mcp.WithArray("args", mcp.Description("Command arguments, as a list of strings or a JSON-encoded list-string")),
			mcp.WithString("directory", mcp.Required(), mcp.Description("Absolute working directory for the child process")),
			mcp.WithString("stdin", mcp.Description("Data written to the child's stdin before it starts reading")),
			mcp.WithNumber("timeout", mcp.Description("Deadline in seconds; omit to use the configured default, null clears it")),
			mcp.WithObject("envs", mcp.Description("Environment variable overrides; a null value deletes that variable")),
			mcp.WithString("encoding", mcp.Description("Text encoding for stdio; empty string disables decoding")),
			mcp.WithString("description", mcp.Description("Free-form note shown in command_ps_list/detail")),
			mcp.WithArray("labels", mcp.Description("Labels for filtering in command_ps_list")),
		),
		h.commandBgStart,
	)

	s.AddTool(
		mcp.NewTool("command_ps_list",
			mcp.WithDescription("List tracked processes, optionally filtered by status and/or labels."),
			mcp.WithString("status", mcp.Description("One of running, completed, failed, terminated, error")),
			mcp.WithArray("labels", mcp.Description("Only processes carrying all of these labels")),
		),
		h.commandPsList,
	)

	s.AddTool(
		mcp.NewTool("command_ps_stop",
			mcp.WithDescription("Stop a running process, gracefully by default or forcibly with force=true."),
			mcp.WithString("pid", mcp.Required(), mcp.Description("Process id returned by command_bg_start")),
			mcp.WithBoolean("force", mcp.Description("Skip the grace period and kill immediately")),
		),
		h.commandPsStop,
	)

	s.AddTool(
		mcp.NewTool("command_ps_logs",
			mcp.WithDescription("Fetch a process's stdout/stderr, optionally filtered by time range, tail count, or a grep pattern."),
			mcp.WithString("pid", mcp.Required(), mcp.Description("Process id")),
			mcp.WithNumber("tail", mcp.Description("Return only the last N output lines")),
			mcp.WithString("since", mcp.Description("ISO-8601 timestamp lower bound")),
			mcp.WithString("until", mcp.Description("ISO-8601 timestamp upper bound")),
			mcp.WithBoolean("with_stdout", mcp.Description("Include the stdout block (default true)")),
			mcp.WithBoolean("with_stderr", mcp.Description("Include the stderr block (default false)")),
			mcp.WithBoolean("add_time_prefix", mcp.Description("Prefix each line with a formatted timestamp (default true)")),
			mcp.WithString("time_prefix_format", mcp.Description("strftime-style format, default %Y-%m-%d %H:%M:%S.%f")),
			mcp.WithNumber("follow_seconds", mcp.Description("Wait up to this many seconds for the process to produce more output first")),
			mcp.WithNumber("limit_lines", mcp.Description("Cap the number of lines returned per stream")),
			mcp.WithString("grep", mcp.Description("Regular expression filter")),
			mcp.WithString("grep_mode", mcp.Description("line or content")),
		),
		h.commandPsLogs,
	)

	s.AddTool(
		mcp.NewTool("command_ps_clean",
			mcp.WithDescription("Remove terminal (non-running) processes from the registry and delete their stored output."),
			mcp.WithArray("pids", mcp.Required(), mcp.Description("Process ids to clean")),
		),
		h.commandPsClean,
	)

	s.AddTool(
		mcp.NewTool("command_ps_detail",
			mcp.WithDescription("Show full detail for a single process: spawn parameters, status, timing, and error if any."),
			mcp.WithString("pid", mcp.Required(), mcp.Description("Process id")),
		),
		h.commandPsDetail,
	)

	h.log.Info("registered MCP tools", zap.Int("count", 7))
}

// defaultLimitLines matches the original mcp_os_server implementation's
// command_execute default (Field(500, ...) in its server.py).
const defaultLimitLines = 500

func (h *handlers) commandExecute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := callArgsFromRequest(req)
	limitLines := getInt(req.GetArguments(), "limit_lines", defaultLimitLines)
	blocks := h.tools.CommandExecute(args, limitLines)
	return textResult(blocks), nil
}

func (h *handlers) commandBgStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := callArgsFromRequest(req)
	args.Description = req.GetString("description", "")
	args.Labels = getStringSlice(req.GetArguments(), "labels")
	return mcp.NewToolResultText(h.tools.CommandBgStart(args)), nil
}

func (h *handlers) commandPsList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := req.GetString("status", "")
	labels := getStringSlice(req.GetArguments(), "labels")
	return mcp.NewToolResultText(h.tools.CommandPsList(status, labels)), nil
}

func (h *handlers) commandPsStop(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("pid")
	if err != nil {
		return mcp.NewToolResultError("pid is required"), nil
	}
	force := getBool(req.GetArguments(), "force", false)
	return mcp.NewToolResultText(h.tools.CommandPsStop(pid, force)), nil
}

func (h *handlers) commandPsLogs(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("pid")
	if err != nil {
		return mcp.NewToolResultError("pid is required"), nil
	}

	m := req.GetArguments()
	q := toolsurface.LogsQuery{
		PID:           pid,
		WithStdout:    getBool(m, "with_stdout", true),
		WithStderr:    getBool(m, "with_stderr", false),
		AddTimePrefix: getBool(m, "add_time_prefix", true),
		TimePrefixFmt: req.GetString("time_prefix_format", ""),
		FollowSeconds: getInt(m, "follow_seconds", 0),
		LimitLines:    getInt(m, "limit_lines", defaultLimitLines),
		Grep:          req.GetString("grep", ""),
		GrepMode:      procexec.GrepMode(req.GetString("grep_mode", string(procexec.GrepModeLine))),
	}
	if n, ok := getIntPtr(m, "tail"); ok {
		q.Tail = n
	}
	if raw := req.GetString("since", ""); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Since = ts
		}
	}
	if raw := req.GetString("until", ""); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			q.Until = ts
		}
	}

	return textResult(h.tools.CommandPsLogs(q)), nil
}

func (h *handlers) commandPsClean(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pids := getStringSlice(req.GetArguments(), "pids")
	if len(pids) == 0 {
		return mcp.NewToolResultError("pids must be a non-empty list"), nil
	}
	return mcp.NewToolResultText(h.tools.CommandPsClean(pids)), nil
}

func (h *handlers) commandPsDetail(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	pid, err := req.RequireString("pid")
	if err != nil {
		return mcp.NewToolResultError("pid is required"), nil
	}
	return mcp.NewToolResultText(h.tools.CommandPsDetail(pid)), nil
}

// callArgsFromRequest builds the shared command_execute/command_bg_start
// argument set. Envs/Timeout/Encoding use resolver.Field's tri-state
// unmarshal so an explicit JSON null (delete) is distinguishable from the
// key being absent (inherit), per spec.md §4.7.
func callArgsFromRequest(req mcp.CallToolRequest) resolver.CallArgs {
	m := req.GetArguments()
	return resolver.CallArgs{
		Command:   req.GetString("command", ""),
		Argv:      m["args"],
		Directory: req.GetString("directory", ""),
		StdinData: []byte(req.GetString("stdin", "")),
		Timeout:   fieldFromMap[int](m, "timeout"),
		Envs:      envsFromMap(m),
		Encoding:  fieldFromMap[string](m, "encoding"),
	}
}

func envsFromMap(m map[string]any) map[string]resolver.Field[string] {
	raw, ok := m["envs"].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]resolver.Field[string], len(raw))
	for k := range raw {
		out[k] = fieldFromMap[string](raw, k)
	}
	return out
}

// fieldFromMap builds a resolver.Field[T] from a raw JSON-decoded map,
// reusing Field's own UnmarshalJSON rather than duplicating its null/unset
// logic.
func fieldFromMap[T any](m map[string]any, key string) resolver.Field[T] {
	var f resolver.Field[T]
	raw, ok := m[key]
	if !ok {
		return f
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return f
	}
	_ = f.UnmarshalJSON(b)
	return f
}

func getInt(m map[string]any, key string, def int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

func getIntPtr(m map[string]any, key string) (*int, bool) {
	switch v := m[key].(type) {
	case float64:
		n := int(v)
		return &n, true
	case int:
		return &v, true
	default:
		return nil, false
	}
}

func getBool(m map[string]any, key string, def bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return def
}

func getStringSlice(m map[string]any, key string) []string {
	raw, ok := m[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Split(v, ",")
	default:
		return nil
	}
}

func textResult(blocks []string) *mcp.CallToolResult {
	return mcp.NewToolResultText(strings.Join(blocks, "\n\n"))
}

// Package logging builds the process-wide zap.Logger, copied directly from
// the teacher's cmd/zmux-server/main.go construction.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a development-style zap logger: colored level, no timestamp
// key (the host's own log collector timestamps lines), no stacktraces or
// caller annotations on every line. debug controls DisableStacktrace/
// DisableCaller so a debug deployment gets full diagnostics.
func New(debug bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.TimeKey = ""
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.DisableStacktrace = !debug
	cfg.DisableCaller = !debug
	return zap.Must(cfg.Build())
}

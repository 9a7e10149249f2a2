package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadParsesAllowedCommandsAndDefaults(t *testing.T) {
	t.Setenv("ALLOWED_COMMANDS", "echo, sh ,ls")
	t.Setenv("DEFAULT_ENCODING", "utf-8")
	t.Setenv("DEFAULT_TIMEOUT", "30")
	t.Setenv("OUTPUT_STORAGE_PATH", "/var/lib/procexecd")
	t.Setenv("PROCESS_RETENTION_SECONDS", "3600")
	t.Setenv("PROJECT_COMMAND_CONFIG_FILE", "procexec.yaml")

	s := Load()

	_, echoOK := s.Resolver.AllowedCommands["echo"]
	_, shOK := s.Resolver.AllowedCommands["sh"]
	_, lsOK := s.Resolver.AllowedCommands["ls"]
	assert.True(t, echoOK)
	assert.True(t, shOK)
	assert.True(t, lsOK)

	assert.Equal(t, "utf-8", s.Resolver.DefaultEncoding)
	assert.Equal(t, 30, s.Resolver.DefaultTimeout)
	assert.Equal(t, "/var/lib/procexecd", s.OutputStoragePath)
	assert.Equal(t, 3600, s.ProcessRetentionSecs)
	assert.Equal(t, "procexec.yaml", s.Resolver.ProjectConfigFile)
}

func TestLoadDefaultsWhenUnset(t *testing.T) {
	t.Setenv("ALLOWED_COMMANDS", "")
	t.Setenv("DEFAULT_TIMEOUT", "")
	t.Setenv("PROCESS_RETENTION_SECONDS", "")

	s := Load()

	assert.Empty(t, s.Resolver.AllowedCommands)
	assert.Equal(t, 0, s.Resolver.DefaultTimeout)
	assert.Equal(t, -1, s.ProcessRetentionSecs)
}

func TestLoadParsesPerCommandEncodingAndEnvOverrides(t *testing.T) {
	t.Setenv("DEFAULT_ENCODING_FFMPEG", "gbk")
	t.Setenv("FFMPEG_COMMAND_ENV_LD_LIBRARY_PATH", "/opt/ffmpeg/lib")
	t.Setenv("FFMPEG_COMMAND_ENV_DEBUG", "1")

	s := Load()

	assert.Equal(t, "gbk", s.Resolver.CommandEncoding["FFMPEG"])
	envOverrides := s.Resolver.CommandEnv["FFMPEG"]
	assert.Equal(t, "/opt/ffmpeg/lib", envOverrides["LD_LIBRARY_PATH"])
	assert.Equal(t, "1", envOverrides["DEBUG"])
}

func TestLoadIgnoresMalformedIntWithFallback(t *testing.T) {
	t.Setenv("DEFAULT_TIMEOUT", "not-a-number")
	s := Load()
	assert.Equal(t, 0, s.Resolver.DefaultTimeout)
}

package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dataflow/internal/app"
)

func TestParse_Defaults(t *testing.T) {
	cfg, exit, err := Parse([]string{"pipe.hcl"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, &app.Config{
		PipelinePath: "pipe.hcl",
		LogFormat:    "text",
		LogLevel:     "info",
		Epochs:       1,
		Optimize:     true,
	}, cfg)
}

func TestParse_Flags(t *testing.T) {
	args := []string{
		"-p", "dir", "-log-level", "DEBUG", "-log-format", "json",
		"-introspect-port", "9090", "-epochs", "4", "-optimize=false", "-print-tree",
	}
	cfg, exit, err := Parse(args, &bytes.Buffer{})
	require.NoError(t, err)
	assert.False(t, exit)
	assert.Equal(t, "dir", cfg.PipelinePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 9090, cfg.IntrospectPort)
	assert.Equal(t, 4, cfg.Epochs)
	assert.False(t, cfg.Optimize)
	assert.True(t, cfg.PrintTree)

	cfg, _, err = Parse([]string{"-pipeline", "long", "-p", "short", "positional"}, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "long", cfg.PipelinePath)
}

func TestParse_ExitsWithUsage(t *testing.T) {
	for _, args := range [][]string{nil, {"-h"}} {
		out := &bytes.Buffer{}
		cfg, exit, err := Parse(args, out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"unknown flag", []string{"-nope"}, "flag provided but not defined"},
		{"log format", []string{"-log-format", "xml", "p"}, "invalid log-format"},
		{"log level", []string{"-log-level", "loud", "p"}, "invalid log-level"},
		{"epochs", []string{"-epochs", "0", "p"}, "invalid epochs 0"},
		{"port", []string{"-introspect-port", "70000", "p"}, "invalid introspect-port 70000"},
		{"two paths", []string{"a.hcl", "b.hcl"}, "expected one pipeline path, got 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, exit, err := Parse(tt.args, &bytes.Buffer{})
			assert.False(t, exit)
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr)
			assert.Equal(t, 2, exitErr.Code)
			assert.Contains(t, exitErr.Message, tt.want)
		})
	}
}

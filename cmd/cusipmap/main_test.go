package main

import (
	"bytes"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.level); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

// execute runs the root command in an empty working directory.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Chdir(dir)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())
	return out.String()
}

func TestValidateCommand(t *testing.T) {
	out := execute(t, "validate", "037833100", "68389x10", "20240115")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"CUSIP", "STRICT", "LENIENT", "CHECK", "DIGIT"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"037833100", "true", "true", "true"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"68389X10", "true", "true", "expects", "5"}, strings.Fields(lines[2]))
	assert.Equal(t, []string{"20240115", "false", "true", "expects", "4"}, strings.Fields(lines[3]))
}

func TestRunCommand(t *testing.T) {
	filings, err := filepath.Abs(filepath.Join("..", "..", "testdata", "filings"))
	require.NoError(t, err)

	execute(t, "run", filings)

	mapping, err := os.ReadFile("cik-cusip-maps.csv")
	require.NoError(t, err)
	assert.Equal(t,
		"cik,cusip6,cusip8\n320193,037833,03783310\n1576940,G6359F,G6359F10\n",
		string(mapping))

	events, err := os.ReadFile("events.csv")
	require.NoError(t, err)
	// header plus one row per filing, the multi-security filing counting three times
	assert.Equal(t, 8, strings.Count(string(events), "\n"))

	dynamics, err := os.ReadFile("cik-cusip-dynamics.csv")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(string(dynamics), "\n"))
}

type failingCloser struct{ err error }

func (c failingCloser) Close() error { return c.err }

func TestCloseOutput(t *testing.T) {
	closeErr := errors.New("disk full")
	writeErr := errors.New("short write")

	assert.NoError(t, closeOutput(failingCloser{}, "out.csv", nil))
	assert.ErrorIs(t, closeOutput(failingCloser{closeErr}, "out.csv", nil), closeErr)
	assert.ErrorIs(t, closeOutput(failingCloser{closeErr}, "out.csv", writeErr), writeErr)
	assert.ErrorIs(t, closeOutput(failingCloser{}, "out.csv", writeErr), writeErr)
}

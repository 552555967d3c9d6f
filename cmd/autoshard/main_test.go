package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"autoshard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRootCmd(t *testing.T) {
	cmd := newRootCmd()

	assert.Equal(t, "autoshard", cmd.Use)
	assert.NotEmpty(t, cmd.Short, "Short should not be empty")

	flags := []string{"env-file", "manifest", "sharded", "shard-related", "verbose"}
	for _, flag := range flags {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)

	names := make([]string, 0, len(cmd.Commands()))
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.ElementsMatch(t, []string{"drop-constraints", "schedule", "history"}, names)
}

func TestNewDropConstraintsCmd(t *testing.T) {
	cmd := newDropConstraintsCmd(&rootOptions{})

	assert.Equal(t, "drop-constraints", cmd.Use)
	assert.NotEmpty(t, cmd.Example, "Example should not be empty")

	list := cmd.Flags().Lookup("list")
	require.NotNil(t, list)
	assert.Equal(t, "l", list.Shorthand)
	assert.Equal(t, "false", list.DefValue)

	assert.Error(t, cmd.Args(cmd, []string{"extra"}))
}

func TestNewHistoryCmd(t *testing.T) {
	cmd := newHistoryCmd(&rootOptions{})

	assert.Equal(t, "history", cmd.Use)
	for _, flag := range []string{"limit", "prune"} {
		assert.NotNil(t, cmd.Flags().Lookup(flag), "flag %q should exist", flag)
	}
	assert.Equal(t, "20", cmd.Flags().Lookup("limit").DefValue)
}

func TestNewLogger(t *testing.T) {
	logger, err := newLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))

	logger, err = newLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))

	_, err = newLogger("loud", false)
	assert.Error(t, err)
}

func TestRenderHistory(t *testing.T) {
	cmd := newHistoryCmd(&rootOptions{})
	var buf bytes.Buffer
	cmd.SetOut(&buf)

	renderHistory(cmd, nil)
	assert.Equal(t, "No runs recorded.\n", buf.String())

	buf.Reset()
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	renderHistory(cmd, []models.RunRecord{{
		ID:         "0b5c1e9a-8f7d-4c55-9f59-3c1b2e8a1d00",
		Database:   "shard_3",
		DryRun:     true,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Planned:    2,
	}})

	out := buf.String()
	assert.True(t, strings.Contains(out, "0b5c1e9a"))
	assert.False(t, strings.Contains(out, "0b5c1e9a-8f7d"))
	assert.Contains(t, out, "shard_3")
	assert.Contains(t, out, "list")
	assert.Contains(t, out, "1.5s")
}

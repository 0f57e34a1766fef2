package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dronenav/internal/runlog"
)

func TestGenThenRun(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenario.txt")
	var out bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"gen", "-seed", "7", "-vehicles", "3", "-deliveries", "8", "-o", path}, &out))
	_, err := os.Stat(path)
	require.NoError(t, err)

	out.Reset()
	logDir := filepath.Join(dir, "runs")
	args := []string{"run", "-scenario", path, "-algo", "all", "-generations", "3", "-population", "6", "-runlog", logDir, "-v"}
	require.NoError(t, run(context.Background(), args, &out))
	s := out.String()
	for _, a := range []string{"router", "csp", "genetic"} {
		assert.Contains(t, s, a)
	}
	assert.Contains(t, s, "3 drones, 8 deliveries")

	files, err := filepath.Glob(filepath.Join(logDir, "*.jsonl.zst"))
	require.NoError(t, err)
	require.NotEmpty(t, files)
	var n int
	for _, f := range files {
		entries, err := runlog.ReadFile(f)
		require.NoError(t, err)
		n += len(entries)
	}
	assert.Equal(t, 3, n)
}

func TestGenFormats(t *testing.T) {
	for _, f := range []string{"yaml", "json"} {
		path := filepath.Join(t.TempDir(), "s."+f)
		require.NoError(t, run(context.Background(), []string{"gen", "-standard", "1", "-o", path}, &bytes.Buffer{}))
		sc, err := load(path)
		require.NoError(t, err)
		assert.Len(t, sc.Deliveries, 20)
	}
}

func TestRunErrors(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, run(ctx, nil, &bytes.Buffer{}), errUsage)
	assert.ErrorIs(t, run(ctx, []string{"fly"}, &bytes.Buffer{}), errUsage)
	assert.Error(t, run(ctx, []string{"run"}, &bytes.Buffer{}))
	assert.Error(t, run(ctx, []string{"run", "-standard", "1", "-algo", "alns"}, &bytes.Buffer{}))
}

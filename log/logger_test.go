/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewLogger_File(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "prooflens.log")
	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.File.Path = logPath
	cfg.Level = LevelWarn

	logger, closeFn := NewLogger(cfg)
	logger.Info("skipped")
	logger.With(String("task_id", "t1")).Warn("task requeued", DurationMs("wait_ms", 1500*time.Millisecond))
	closeFn()

	f, err := os.Open(logPath)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var lines []map[string]interface{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		lines = append(lines, entry)
	}
	require.Len(t, lines, 1)
	require.Equal(t, "task requeued", lines[0]["msg"])
	require.Equal(t, "t1", lines[0]["task_id"])
	require.EqualValues(t, 1500, lines[0]["wait_ms"])
	require.Contains(t, lines[0], "time")
	require.Contains(t, lines[0], "pid")
}

func TestResolvePlaceholders(t *testing.T) {
	res := resolvePlaceholders("/tmp/app-{{pid}}.log")
	require.NotContains(t, res, "{{pid}}")
	require.Contains(t, res, "/tmp/app-")
}

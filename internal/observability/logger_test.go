package observability

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	orig := CLILogger
	defer func() { CLILogger = orig }()

	InitCLILogger("test", false)
	require.NotNil(t, CLILogger)
	assert.False(t, CLILogger.Core().Enabled(zap.DebugLevel))
	assert.True(t, CLILogger.Core().Enabled(zap.InfoLevel))

	InitCLILogger("test", true)
	assert.True(t, CLILogger.Core().Enabled(zap.DebugLevel))
}

func TestNewCLILogger_WritesConsoleLines(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCLILogger("gopbs", &buf, false)
	logger.Info("Job submitted", zap.String("job_id", "1.h.d"))
	logger.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "gopbs")
	assert.Contains(t, out, "Job submitted")
	assert.Contains(t, out, `"job_id": "1.h.d"`)
	assert.NotContains(t, out, "hidden")
}

func TestNewEventLogger_AppendsJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gopbs.log")

	logger, closer := NewEventLogger(EventLogConfig{Path: path, MaxSizeMB: 1, MaxBackups: 1})
	logger.Info("Job started", zap.String("job_id", "1.h.d"), zap.Int("pid", 42))
	logger.Info("Job finished", zap.String("job_id", "1.h.d"), zap.Int("exit_code", 0))
	_ = logger.Sync()
	require.NoError(t, closer.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	var msgs []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &rec))
		assert.Equal(t, "1.h.d", rec["job_id"])
		assert.Contains(t, rec, "time")
		msgs = append(msgs, rec["msg"].(string))
	}
	require.NoError(t, sc.Err())
	assert.Equal(t, []string{"Job started", "Job finished"}, msgs)
}

package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/holla2040/droidscript/internal/config"
)

func TestInitializeConsole(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "droidscript",
		Colors:      config.ColorConfig{Info: "green"},
	}, zapcore.AddSync(&buf))

	GetLogger().Named("session").Info("session started", zap.String("session_id", "abc"))

	out := buf.String()
	assert.Contains(t, out, colorMap["green"]+"INFO"+colorReset)
	assert.Contains(t, out, "droidscript.session.")
	assert.Contains(t, out, "session started")
	assert.Contains(t, out, `"session_id": "abc"`)
}

func TestInitializeJSONAndLevel(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var buf bytes.Buffer
	Initialize(config.LoggerConfig{Level: "warn", Format: "json", ServiceName: "agent"}, zapcore.AddSync(&buf))

	logger := GetLogger()
	logger.Info("filtered out")
	logger.Warn("heartbeat late", zap.Int("seconds", 16))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "agent", entry["logger"])
	assert.Equal(t, float64(16), entry["seconds"])
}

func TestInitializeOnlyOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	var first, second bytes.Buffer
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "one"}, zapcore.AddSync(&first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "two"}, zapcore.AddSync(&second))

	GetLogger().Info("hello")
	assert.Contains(t, first.String(), `"logger":"one"`)
	assert.Empty(t, second.String())
}

func TestLogFileIsJSON(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	path := filepath.Join(t.TempDir(), "droidscript.log")
	var console bytes.Buffer
	Initialize(config.LoggerConfig{
		Level: "info", Format: "console", ServiceName: "serve",
		LogFile: path, MaxSize: 1, MaxBackups: 1, MaxAge: 1,
	}, zapcore.AddSync(&console))

	GetLogger().Info("listening", zap.String("addr", ":8000"))
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &entry))
	assert.Equal(t, "listening", entry["msg"])
	assert.Equal(t, ":8000", entry["addr"])
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	logger := GetLogger()
	require.NotNil(t, logger)
}

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleLoggerLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		level     LogLevel
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{LogLevelTrace, true, true, true},
		{LogLevelDebug, true, true, true},
		{LogLevelInfo, false, true, true},
		{LogLevelWarn, false, false, true},
		{LogLevelError, false, false, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			log := NewSlogLogger(&buf, tt.level)

			log.Debug("debug message")
			log.Info("info message")
			log.Warn("warn message")
			log.Error("error message")

			out := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(out, "debug message"))
			assert.Equal(t, tt.wantInfo, strings.Contains(out, "info message"))
			assert.Equal(t, tt.wantWarn, strings.Contains(out, "warn message"))
			assert.Contains(t, out, "error message")
		})
	}
}

func TestConsoleOmitsTimestamp(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	NewSlogLogger(&buf, LogLevelTrace).Trace("deep detail")

	out := buf.String()
	assert.NotContains(t, out, "time=")
	assert.Contains(t, out, "level=TRACE")
}

func TestNestedModulesAndFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogLogger(&buf, LogLevelInfo)
	log := base.Module("pipeline").Module("processor").With(String("file", "a.wav"))

	log.Info("done", Int("detections", 3), Duration("elapsed", 1500*time.Millisecond), Float64("conf", 0.123456))

	out := buf.String()
	assert.Contains(t, out, "module=pipeline.processor")
	assert.Contains(t, out, "file=a.wav")
	assert.Contains(t, out, "detections=3")
	assert.Contains(t, out, "elapsed=1.5s")
	assert.Contains(t, out, "conf=0.123")
}

func TestWithDoesNotLeakFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := NewSlogLogger(&buf, LogLevelInfo)
	_ = base.With(String("extra", "x"))

	base.Info("plain")
	assert.NotContains(t, buf.String(), "extra=x")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "birda.log")
	var console bytes.Buffer

	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "info",
		Timezone:     "UTC",
		FileOutput:   &FileOutput{Enabled: true, Path: path, Level: "debug"},
	}, &console)
	require.NoError(t, err)

	log := cl.Module("locking")
	log.Debug("only in file", String("lock", "a.wav.birda.lock"))
	log.Info("in both")

	require.NoError(t, cl.Close())

	assert.NotContains(t, console.String(), "only in file")
	assert.Contains(t, console.String(), "in both")

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "only in file", rec["msg"])
	assert.Equal(t, "locking", rec["module"])
	assert.Equal(t, "a.wav.birda.lock", rec["lock"])
}

func TestCentralLoggerModuleLevelOverride(t *testing.T) {
	t.Parallel()

	var console bytes.Buffer
	cl, err := newCentralLogger(&LoggingConfig{
		DefaultLevel: "warn",
		ModuleLevels: map[string]string{"birdnet": "debug"},
	}, &console)
	require.NoError(t, err)
	defer func() { _ = cl.Close() }()

	cl.Module("birdnet").Info("model loaded")
	cl.Module("output").Info("writer opened")

	// console handler itself filters at warn
	assert.Empty(t, console.String())
}

func TestCentralLoggerRejectsBadTimezone(t *testing.T) {
	t.Parallel()

	_, err := NewCentralLogger(&LoggingConfig{Timezone: "Mars/Olympus"})
	require.Error(t, err)

	_, err = NewCentralLogger(nil)
	require.Error(t, err)
}

func TestLevelFromVerbosity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "info", LevelFromVerbosity(0, false))
	assert.Equal(t, "debug", LevelFromVerbosity(1, false))
	assert.Equal(t, "trace", LevelFromVerbosity(3, false))
	assert.Equal(t, "warn", LevelFromVerbosity(2, true))
}

func TestLogFileFlushing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "birda.log")
	w, err := openLogFile(path, time.Hour)
	require.NoError(t, err)

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, data, "write within the flush interval stays buffered")

	require.NoError(t, w.Flush())
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	_, err = w.Write([]byte("late"))
	require.ErrorIs(t, err, errLogFileClosed)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(LogFilePermissions), info.Mode().Perm())
}

func TestLogFileFlushesAfterInterval(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "birda.log")
	w, err := openLogFile(path, 0)
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	_, err = w.Write([]byte("line\n"))
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "line\n", string(data))
}

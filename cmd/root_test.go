package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/buildinfo"
	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/errors"
)

// execute runs the command tree with an isolated config file and returns
// stdout and stderr.
func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("output:\n  mode: human\n"), 0o600))

	var out, errOut bytes.Buffer
	c := cli.NewContext()
	c.Build = buildinfo.NewContext("1.0.0", "0123456789abcdef", "2024-05-01")
	c.Stdout = &out
	c.Stderr = &errOut
	defer c.Close()

	root := RootCommand(c)
	root.SetOut(&errOut)
	root.SetErr(&errOut)
	root.SetArgs(append([]string{"--config", cfg}, args...))
	err = root.ExecuteContext(context.Background())
	exitCode(c, err)
	return out.String(), errOut.String(), err
}

func TestVersionCommand(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "birda 1.0.0 (commit 0123456789ab, built 2024-05-01)\n", stdout)
}

func TestVersionCommandNDJSON(t *testing.T) {
	stdout, _, err := execute(t, "--output-mode", "ndjson", "version")
	require.NoError(t, err)

	var env struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Equal(t, "result", env.Event)
	assert.Equal(t, "version", env.Payload["result_type"])
	assert.Equal(t, "1.0.0", env.Payload["version"])
}

func TestConfigPathCommand(t *testing.T) {
	stdout, _, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Contains(t, stdout, "config.yaml")
}

func TestAnalyzeStdoutConstraints(t *testing.T) {
	_, stderr, err := execute(t, "analyze", "--stdout", "a.wav", "b.wav")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
	assert.Contains(t, stderr, "error: --stdout requires exactly one input file")
}

func TestAnalyzeNoModel(t *testing.T) {
	_, _, err := execute(t, "analyze", "recording.wav")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no model specified")
}

func TestAnalyzeStructuredError(t *testing.T) {
	stdout, _, err := execute(t, "--output-mode", "ndjson", "analyze", "recording.wav")
	require.Error(t, err)

	var env struct {
		Event   string         `json:"event"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &env))
	assert.Equal(t, "error", env.Event)
	assert.Equal(t, "fatal", env.Payload["severity"])
}

func TestClipPaddingLimit(t *testing.T) {
	_, _, err := execute(t, "clip", "--pre", "301", "detections.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "padding")
}

func TestClipRequiresDetectionFiles(t *testing.T) {
	_, _, err := execute(t, "clip")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no detection files given")
}

func TestExitCode(t *testing.T) {
	var out, errOut bytes.Buffer
	c := cli.NewContext()
	c.Stdout = &out
	c.Stderr = &errOut
	defer c.Close()

	assert.Equal(t, 0, exitCode(c, nil))

	cancelled := errors.Newf("stopped").Category(errors.CategoryCancellation).Build()
	assert.Equal(t, exitInterrupted, exitCode(c, cancelled))

	reported := errors.Reported(errors.Newf("corrupt file").Category(errors.CategoryAudioDecode).Build())
	assert.Equal(t, 1, exitCode(c, reported))
	assert.Empty(t, errOut.String(), "reported errors are not presented twice")

	assert.Equal(t, 1, exitCode(c, errors.Newf("corrupt file").Build()))
	assert.Contains(t, errOut.String(), "error: corrupt file")
	assert.Empty(t, out.String())
}

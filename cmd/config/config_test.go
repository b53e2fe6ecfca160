package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/errors"
)

func TestInitConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "birda", "config.yaml")
	require.NoError(t, initConfig(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var settings conf.Settings
	require.NoError(t, yaml.Unmarshal(data, &settings))
	assert.Equal(t, conf.Defaults().Defaults.MinConfidence, settings.Defaults.MinConfidence)

	err = initConfig(path, false)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	require.NoError(t, initConfig(path, true))
}

func TestConfigPathPrefersFlag(t *testing.T) {
	t.Parallel()

	c := cli.NewContext()
	c.ConfigFile = "/tmp/custom.yaml"
	assert.Equal(t, "/tmp/custom.yaml", configPath(c))
}

func TestShowHumanOutput(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := cli.NewContext()
	c.ConfigFile = "/tmp/custom.yaml"
	c.Stdout = &out

	cmd := showCommand(c)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "# /tmp/custom.yaml")
	assert.Contains(t, out.String(), "defaults:")
}

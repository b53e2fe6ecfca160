package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/buildinfo"
	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/events"
)

func TestVersionHuman(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := cli.NewContext()
	c.Build = buildinfo.NewContext("1.2.3", "abcdef", "2024-05-01")
	c.Stdout = &out

	cmd := Command(c)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "birda 1.2.3 (commit abcdef, built 2024-05-01)\n", out.String())
}

func TestResult(t *testing.T) {
	t.Parallel()

	res := result(buildinfo.NewContext("", "", ""))
	assert.Equal(t, events.ResultVersion, res.ResultType)
	assert.Equal(t, buildinfo.UnknownValue, res.Version)
}

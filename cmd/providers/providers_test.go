package providers

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/cpuspec"
	"github.com/tphakala/birda/internal/events"
)

func TestCollect(t *testing.T) {
	t.Parallel()

	spec := cpuspec.CPUSpec{BrandName: "Test CPU", LogicalCores: 8, Features: []string{"AVX2"}}
	res := collect(spec)

	assert.Equal(t, events.ResultProviders, res.ResultType)
	require.Len(t, res.Providers, 3)
	assert.True(t, res.Providers[0].Available)
	assert.Equal(t, "gpu", res.Providers[2].ID)
	assert.False(t, res.Providers[2].Available)
	assert.Equal(t, "Test CPU", res.System.CPUBrand)
	assert.Equal(t, 8, res.System.LogicalCores)
	assert.Equal(t, []string{"AVX2"}, res.System.Features)
}

func TestPrintHuman(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	c := cli.NewContext()
	c.Stdout = &out

	res := collect(cpuspec.CPUSpec{BrandName: "Test CPU", LogicalCores: 4, Features: []string{"NEON"}})
	printHuman(c, &res)

	assert.Contains(t, out.String(), "xnnpack")
	assert.Contains(t, out.String(), "not available")
	assert.Contains(t, out.String(), "Test CPU (4 logical cores)")
	assert.Contains(t, out.String(), "NEON")
}

// Package providers implements the providers command, which lists the
// inference execution providers and host capabilities.
package providers

import (
	"strings"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/spf13/cobra"

	"github.com/tphakala/birda/internal/cli"
	"github.com/tphakala/birda/internal/conf"
	"github.com/tphakala/birda/internal/cpuspec"
	"github.com/tphakala/birda/internal/events"
)

// Command creates the providers command.
func Command(c *cli.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List inference providers and system capabilities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res := collect(cpuspec.GetCPUSpec())
			if !c.EmitResult(res) {
				printHuman(c, &res)
			}
			return nil
		},
	}
}

// collect builds the providers result for spec. Memory is omitted when
// the host does not report it.
func collect(spec cpuspec.CPUSpec) events.ProvidersResult {
	res := events.ProvidersResult{
		ResultType: events.ResultProviders,
		Providers: []events.ProviderInfo{
			{ID: conf.DeviceCPU, Name: "CPU", Description: "TensorFlow Lite CPU kernels", Available: true},
			{ID: "xnnpack", Name: "XNNPACK", Description: "XNNPACK CPU delegate", Available: true},
			{ID: conf.DeviceGPU, Name: "GPU", Description: "GPU delegate, not included in this build", Available: false},
		},
		System: events.SystemInfo{
			CPUBrand:     spec.BrandName,
			LogicalCores: spec.LogicalCores,
			Features:     spec.Features,
		},
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		res.System.TotalMemory = vm.Total
		res.System.FreeMemory = vm.Available
	}
	return res
}

func printHuman(c *cli.Context, res *events.ProvidersResult) {
	c.Printf("Execution providers:\n")
	for _, p := range res.Providers {
		status := "available"
		if !p.Available {
			status = "not available"
		}
		c.Printf("  %-8s %-14s %s\n", p.ID, status, p.Description)
	}

	sys := res.System
	c.Printf("\nSystem:\n")
	c.Printf("  CPU:      %s (%d logical cores)\n", sys.CPUBrand, sys.LogicalCores)
	if len(sys.Features) > 0 {
		c.Printf("  SIMD:     %s\n", strings.Join(sys.Features, ", "))
	}
	if sys.TotalMemory > 0 {
		c.Printf("  Memory:   %.1f GiB total, %.1f GiB available\n", gib(sys.TotalMemory), gib(sys.FreeMemory))
	}
}

func gib(b uint64) float64 {
	return float64(b) / (1 << 30)
}

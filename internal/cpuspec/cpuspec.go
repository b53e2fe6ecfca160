// Package cpuspec inspects the host CPU to size the inference thread pool
// and to report SIMD capabilities.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string   `json:"brand_name"`
	Vendor           string   `json:"vendor"`
	LogicalCores     int      `json:"logical_cores"`
	PhysicalCores    int      `json:"physical_cores"`
	PerformanceCores int      `json:"performance_cores,omitempty"`
	Features         []string `json:"simd_features"`
}

// SIMD features relevant to the tflite CPU kernels, in report order.
var simdFeatures = []struct {
	id   cpuid.FeatureID
	name string
}{
	{cpuid.SSE4, "SSE4.1"},
	{cpuid.SSE42, "SSE4.2"},
	{cpuid.AVX, "AVX"},
	{cpuid.AVX2, "AVX2"},
	{cpuid.FMA3, "FMA3"},
	{cpuid.AVX512F, "AVX512F"},
	{cpuid.ASIMD, "NEON"},
}

// GetCPUSpec returns the specification of the host CPU.
func GetCPUSpec() CPUSpec {
	brandName := cpuid.CPU.BrandName

	spec := CPUSpec{
		BrandName:        brandName,
		Vendor:           cpuid.CPU.VendorString,
		LogicalCores:     cpuid.CPU.LogicalCores,
		PhysicalCores:    cpuid.CPU.PhysicalCores,
		PerformanceCores: determinePerformanceCores(brandName),
	}
	for _, f := range simdFeatures {
		if cpuid.CPU.Supports(f.id) {
			spec.Features = append(spec.Features, f.name)
		}
	}
	return spec
}

// GetOptimalThreadCount returns the recommended number of inference threads.
// Hybrid CPUs use their performance cores only.
func (c CPUSpec) GetOptimalThreadCount() int {
	availableCPUs := runtime.NumCPU()

	if c.PerformanceCores > 0 {
		return min(c.PerformanceCores, availableCPUs)
	}
	if c.LogicalCores > 0 {
		return min(c.LogicalCores, availableCPUs)
	}
	return availableCPUs
}

// ThreadCount resolves a configured thread count. Zero selects the optimal
// count for the host; larger values are capped at the CPU count.
func ThreadCount(configured int) int {
	cpus := runtime.NumCPU()
	if configured <= 0 {
		return GetCPUSpec().GetOptimalThreadCount()
	}
	return min(configured, cpus)
}

var (
	intelHybridRegex = regexp.MustCompile(`intel.*core.*i[3579]-(1[234])(\d)00`)
	intelUltraRegex  = regexp.MustCompile(`intel.*core.*ultra\s+([579])\s+(?:processor\s+)?(\d{3})`)
	appleRegex       = regexp.MustCompile(`apple\s+(m[1-4])(?:\s+(pro|max|ultra))?`)
)

// Performance core counts of Intel hybrid desktop parts, keyed by model
// tier (the digit after the generation: 1 for i3 x100 ... 9 for x900).
var intelHybridPCores = map[string]int{
	"9": 8,
	"7": 8,
	"6": 6,
	"5": 6,
	"4": 6,
	"1": 4,
}

var intelUltraPCores = map[string]int{
	"285": 8,
	"265": 8,
	"255": 8,
	"245": 6,
	"235": 6,
	"225": 4,
}

var applePCores = map[string]int{
	"m1": 4, "m1 pro": 8, "m1 max": 8, "m1 ultra": 16,
	"m2": 4, "m2 pro": 8, "m2 max": 12, "m2 ultra": 24,
	"m3": 4, "m3 pro": 6, "m3 max": 12, "m3 ultra": 24,
	"m4": 4, "m4 pro": 10, "m4 max": 12,
}

// determinePerformanceCores returns the P-core count for known hybrid CPUs,
// or 0 when the CPU is unknown or not hybrid.
func determinePerformanceCores(brandName string) int {
	brandName = strings.ToLower(brandName)

	if m := intelHybridRegex.FindStringSubmatch(brandName); m != nil {
		return intelHybridPCores[m[2]]
	}
	if m := intelUltraRegex.FindStringSubmatch(brandName); m != nil {
		return intelUltraPCores[m[2]]
	}
	if m := appleRegex.FindStringSubmatch(brandName); m != nil {
		chip := m[1]
		if m[2] != "" {
			chip += " " + m[2]
		}
		return applePCores[chip]
	}
	return 0
}

// Package watchdog terminates the process when an inference call hangs.
//
// A hung accelerator call cannot be interrupted from Go, so the only way
// out is to exit. Every inference call is bracketed by Start and Cancel:
//
//	guard := wd.Start(timeout, batchSize)
//	preds, err := classifier.PredictBatch(segments)
//	guard.Cancel()
package watchdog

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/tphakala/birda/internal/logger"
)

const (
	// DefaultTimeout is the inference deadline when nothing overrides it.
	DefaultTimeout = 10 * time.Second

	// EnvTimeout overrides the deadline, in whole seconds.
	EnvTimeout = "BIRDA_INFERENCE_TIMEOUT"

	minTimeoutSeconds = 1
	maxTimeoutSeconds = 3600
)

const (
	stateArmed int32 = iota
	stateCancelled
	stateFired
)

// GetLogger returns the watchdog package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("watchdog")
}

// Watchdog starts guards for inference calls.
type Watchdog struct {
	exit   func(code int)
	out    io.Writer
	memory func() string
}

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithExit replaces os.Exit.
func WithExit(exit func(code int)) Option {
	return func(w *Watchdog) { w.exit = exit }
}

// WithOutput sets where the diagnostic banner is written. Defaults to stderr.
func WithOutput(out io.Writer) Option {
	return func(w *Watchdog) { w.out = out }
}

// New returns a Watchdog that exits the process when a guard fires.
func New(opts ...Option) *Watchdog {
	w := &Watchdog{exit: os.Exit, out: os.Stderr, memory: memorySummary}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Guard is a running deadline for one inference call.
type Guard struct {
	state atomic.Int32
	timer *time.Timer
}

// Start arms a guard. If Cancel is not called within timeout the watchdog
// writes a diagnostic and calls the exit hook with status 1.
func (w *Watchdog) Start(timeout time.Duration, batchSize int) *Guard {
	g := &Guard{}
	g.timer = time.AfterFunc(timeout, func() {
		if !g.state.CompareAndSwap(stateArmed, stateFired) {
			return
		}
		w.fire(timeout, batchSize)
	})
	return g
}

// Cancel disarms the guard. Calling it more than once, or after the guard
// fired, has no effect.
func (g *Guard) Cancel() {
	if g.state.CompareAndSwap(stateArmed, stateCancelled) {
		g.timer.Stop()
	}
}

// Fired reports whether the deadline expired before Cancel.
func (g *Guard) Fired() bool {
	return g.state.Load() == stateFired
}

func (w *Watchdog) fire(timeout time.Duration, batchSize int) {
	memInfo := w.memory()
	GetLogger().Error("inference timeout, terminating",
		logger.Duration("timeout", timeout),
		logger.Int("batch_size", batchSize),
		logger.String("memory", memInfo))

	secs := int(timeout / time.Second)
	rule := strings.Repeat("=", 63)
	var b strings.Builder
	fmt.Fprintf(&b, "\n%s\nFATAL: Inference timeout after %ds (batch size: %d)\n%s\n\n", rule, secs, batchSize, rule)
	b.WriteString("The inference operation did not complete within the expected time.\n")
	b.WriteString("This usually indicates GPU/accelerator memory exhaustion causing the system to hang.\n\n")
	if memInfo != "" {
		fmt.Fprintf(&b, "System memory: %s\n\n", memInfo)
	}
	b.WriteString("Recommendations:\n")
	b.WriteString("  1. Reduce batch size with -b flag\n")
	b.WriteString("  2. Use CPU inference: birda --cpu <input>\n")
	b.WriteString("  3. Close other GPU applications and try again\n\n")
	b.WriteString("Terminating process to prevent system lockup.\n")
	_, _ = io.WriteString(w.out, b.String())

	_ = logger.Global().Flush()
	w.exit(1)
}

func memorySummary() string {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return ""
	}
	const mib = 1024 * 1024
	return fmt.Sprintf("%d MiB used of %d MiB (%.1f%%), %d MiB available",
		vm.Used/mib, vm.Total/mib, vm.UsedPercent, vm.Available/mib)
}

// TimeoutFromEnv returns the deadline from BIRDA_INFERENCE_TIMEOUT, or
// fallback when it is unset, unparsable or outside 1..3600 seconds.
func TimeoutFromEnv(fallback time.Duration) time.Duration {
	return parseTimeout(os.Getenv(EnvTimeout), fallback)
}

func parseTimeout(raw string, fallback time.Duration) time.Duration {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	secs, err := strconv.Atoi(raw)
	if err != nil {
		GetLogger().Warn("ignoring invalid inference timeout",
			logger.String("env", EnvTimeout),
			logger.String("value", raw))
		return fallback
	}
	if secs < minTimeoutSeconds || secs > maxTimeoutSeconds {
		GetLogger().Warn("ignoring out of range inference timeout",
			logger.String("env", EnvTimeout),
			logger.Int("seconds", secs),
			logger.Int("min", minTimeoutSeconds),
			logger.Int("max", maxTimeoutSeconds))
		return fallback
	}
	return time.Duration(secs) * time.Second
}

package reporter

import (
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/tphakala/birda/internal/events"
)

// consoleProgressRate bounds how often the progress line is redrawn.
const consoleProgressRate = 4 // per second

// Console prints human-readable progress, normally to stderr.
type Console struct {
	mu           sync.Mutex
	w            io.Writer
	limiter      *rate.Limiter
	showProgress bool
	totalFiles   int
	lineOpen     bool
}

var _ Reporter = (*Console)(nil)

// NewConsole creates a console reporter. With showProgress false the
// per-segment progress line is suppressed.
func NewConsole(w io.Writer, showProgress bool) *Console {
	return &Console{
		w:            w,
		limiter:      rate.NewLimiter(rate.Limit(consoleProgressRate), 1),
		showProgress: showProgress,
	}
}

func (c *Console) PipelineStarted(p events.PipelineStartedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalFiles = p.TotalFiles
	c.printf("Analyzing %d file(s) with model %s, min confidence %.2f\n", p.TotalFiles, p.Model, p.MinConfidence)
}

func (c *Console) FileStarted(p events.FileStartedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLine()
	c.printf("[%d/%d] %s\n", p.Index+1, c.totalFiles, p.File)
}

// Progress redraws the segment progress line at most consoleProgressRate
// times per second; completion is always drawn.
func (c *Console) Progress(p events.ProgressPayload) {
	if !c.showProgress || p.File == nil {
		return
	}
	done := p.File.SegmentsDone >= p.File.SegmentsTotal
	if !done && !c.limiter.Allow() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.printf("\r  %3.0f%% (%d/%d segments)", p.File.Percent, p.File.SegmentsDone, p.File.SegmentsTotal)
	c.lineOpen = true
}

func (c *Console) FileCompleted(p events.FileCompletedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLine()

	switch p.Status {
	case events.FileProcessed:
		detections := 0
		if p.Detections != nil {
			detections = *p.Detections
		}
		var elapsed time.Duration
		if p.DurationMS != nil {
			elapsed = time.Duration(*p.DurationMS) * time.Millisecond
		}
		c.printf("  %d detection(s) in %s\n", detections, elapsed.Round(10*time.Millisecond))
	case events.FileSkipped:
		c.printf("  skipped, output exists (use --force to reprocess)\n")
	case events.FileLocked:
		c.printf("  skipped, locked by another process\n")
	case events.FileFailed:
		msg := "unknown error"
		if p.Error != nil {
			msg = p.Error.Message
		}
		c.printf("  failed: %s\n", msg)
	}
}

func (c *Console) PipelineCompleted(p events.PipelineCompletedPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLine()
	c.printf("Done: %d processed, %d skipped, %d failed, %d detection(s) in %s (%.1fx realtime)\n",
		p.FilesProcessed, p.FilesSkipped, p.FilesFailed, p.TotalDetections,
		(time.Duration(p.DurationMS) * time.Millisecond).Round(10*time.Millisecond), p.RealtimeFactor)
}

func (c *Console) Error(p events.ErrorPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLine()
	prefix := "error"
	if p.Severity == events.SeverityWarning {
		prefix = "warning"
	}
	c.printf("%s: %s\n", prefix, p.Message)
	if p.Suggestion != "" {
		c.printf("hint: %s\n", p.Suggestion)
	}
}

func (c *Console) Cancelled(p events.CancelledPayload) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLine()
	c.printf("Cancelled after %d of %d file(s)\n", p.FilesCompleted, p.FilesTotal)
}

// Result is a no-op; commands print human-readable results themselves.
func (c *Console) Result(any) {}

func (c *Console) Flush() {}

func (c *Console) closeLine() {
	if c.lineOpen {
		c.printf("\n")
		c.lineOpen = false
	}
}

func (c *Console) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.w, format, args...)
}

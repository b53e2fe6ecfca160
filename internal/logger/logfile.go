package logger

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

const (
	// LogFilePermissions restricts log files to the owner; they contain input paths.
	LogFilePermissions = 0o600

	logBufferSize    = 32 * 1024
	logFlushInterval = 2 * time.Second
)

var errLogFileClosed = errors.New("log file is closed")

// logFile is an append-only buffered log file. A write flushes the buffer
// once flushEvery has passed since the previous flush; Flush and Close
// write out whatever is left.
type logFile struct {
	mu         sync.Mutex
	file       *os.File
	buf        *bufio.Writer
	flushEvery time.Duration
	lastFlush  time.Time
}

func openLogFile(path string, flushEvery time.Duration) (*logFile, error) {
	if err := ensureFileDirectory(path); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, LogFilePermissions) //nolint:gosec // log path comes from config
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &logFile{
		file:       f,
		buf:        bufio.NewWriterSize(f, logBufferSize),
		flushEvery: flushEvery,
		lastFlush:  time.Now(),
	}, nil
}

func (l *logFile) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return 0, errLogFileClosed
	}
	n, err := l.buf.Write(p)
	if err != nil {
		return n, err
	}
	if time.Since(l.lastFlush) >= l.flushEvery {
		err = l.flushLocked()
	}
	return n, err
}

// Flush hands buffered lines to the OS.
func (l *logFile) Flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.flushLocked()
}

func (l *logFile) flushLocked() error {
	l.lastFlush = time.Now()
	if err := l.buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush log file: %w", err)
	}
	return nil
}

// Close flushes, syncs and closes the file. Later calls are no-ops.
func (l *logFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := errors.Join(l.flushLocked(), l.file.Sync(), l.file.Close())
	l.file = nil
	return err
}

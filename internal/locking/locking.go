// Package locking coordinates processing of input files between birda
// processes that share an output directory.
//
// A lock is a file named <input file name>.birda.lock in the output
// directory, created with O_CREATE|O_EXCL so that exactly one process wins.
// The file holds a JSON description of the owner for humans; it is never
// parsed back.
package locking

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tphakala/birda/internal/errors"
	"github.com/tphakala/birda/internal/logger"
)

// LockFileExtension is appended to the input file name to form the lock name.
const LockFileExtension = ".birda.lock"

// ErrFileLocked is returned by Acquire when another owner holds the lock.
var ErrFileLocked = errors.NewStd("file is locked by another process")

// LockInfo is written into the lock file for diagnosis.
type LockInfo struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	StartedAt time.Time `json:"started_at"`
	InputPath string    `json:"input_path"`
	RunID     string    `json:"run_id,omitempty"`
}

// FileLock is a held lock. Release removes the lock file exactly once.
type FileLock struct {
	path string
	once sync.Once
	err  error
}

var (
	activeMu    sync.Mutex
	activeLocks = make(map[string]*FileLock)
)

// GetLogger returns the locking package logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("locking")
}

// LockPath returns the lock file path for input in outputDir.
func LockPath(input, outputDir string) string {
	name := filepath.Base(input)
	if name == "." || name == string(filepath.Separator) || name == "" {
		name = "unknown"
	}
	return filepath.Join(outputDir, name+LockFileExtension)
}

// Acquire creates the lock file for input in outputDir, creating outputDir
// if needed. It fails with ErrFileLocked (category conflict) when the lock
// already exists and with a lock category error for any other failure.
func Acquire(input, outputDir, runID string) (*FileLock, error) {
	lockPath := LockPath(input, outputDir)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, errors.New(fmt.Errorf("failed to create output directory %s: %w", outputDir, err)).
			Component("locking").
			Category(errors.CategoryLock).
			FileContext(lockPath).
			Build()
	}

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644) //nolint:gosec // lock path derived from output dir
	if err != nil {
		if os.IsExist(err) {
			return nil, errors.New(fmt.Errorf("%w: %s", ErrFileLocked, lockPath)).
				Component("locking").
				Category(errors.CategoryConflict).
				FileContext(lockPath).
				Build()
		}
		return nil, errors.New(fmt.Errorf("failed to create lock file %s: %w", lockPath, err)).
			Component("locking").
			Category(errors.CategoryLock).
			FileContext(lockPath).
			Build()
	}

	lock := &FileLock{path: lockPath}
	register(lock)

	hostname, herr := os.Hostname()
	if herr != nil {
		hostname = "unknown"
	}
	info := LockInfo{
		PID:       os.Getpid(),
		Hostname:  hostname,
		StartedAt: time.Now().UTC(),
		InputPath: input,
		RunID:     runID,
	}

	// The lock is held once the file exists; the payload is informational.
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&info); err != nil {
		GetLogger().Debug("failed to write lock info", logger.String("path", lockPath), logger.Error(err))
	}
	if err := f.Close(); err != nil {
		GetLogger().Debug("failed to close lock file", logger.String("path", lockPath), logger.Error(err))
	}

	GetLogger().Trace("lock acquired", logger.String("path", lockPath))
	return lock, nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// Release removes the lock file. Only the first call has an effect; later
// calls return the first call's result.
func (l *FileLock) Release() error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		unregister(l)
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.err = errors.New(fmt.Errorf("failed to remove lock file %s: %w", l.path, err)).
				Component("locking").
				Category(errors.CategoryLock).
				FileContext(l.path).
				Build()
			return
		}
		GetLogger().Trace("lock released", logger.String("path", l.path))
	})
	return l.err
}

// IsLocked reports whether a lock file exists for input in outputDir.
func IsLocked(input, outputDir string) bool {
	_, err := os.Stat(LockPath(input, outputDir))
	return err == nil
}

// IsStale reports whether the lock for input exists and was last modified
// more than maxAge ago.
func IsStale(input, outputDir string, maxAge time.Duration) bool {
	info, err := os.Stat(LockPath(input, outputDir))
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > maxAge
}

// RemoveStale deletes a lock left behind by a crashed owner. It refuses to
// touch locks that are not stale and reports whether a lock was removed.
func RemoveStale(input, outputDir string, maxAge time.Duration) (bool, error) {
	if !IsStale(input, outputDir, maxAge) {
		return false, nil
	}
	lockPath := LockPath(input, outputDir)
	if err := os.Remove(lockPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.New(fmt.Errorf("failed to remove stale lock %s: %w", lockPath, err)).
			Component("locking").
			Category(errors.CategoryLock).
			FileContext(lockPath).
			Build()
	}
	GetLogger().Warn("removed stale lock", logger.String("path", lockPath), logger.Duration("max_age", maxAge))
	return true, nil
}

// ReleaseAll releases every lock held by this process. It is called from
// the interrupt handler so an aborted run leaves no lock files behind.
func ReleaseAll() int {
	activeMu.Lock()
	held := make([]*FileLock, 0, len(activeLocks))
	for _, l := range activeLocks {
		held = append(held, l)
	}
	activeMu.Unlock()

	for _, l := range held {
		if err := l.Release(); err != nil {
			GetLogger().Warn("failed to release lock", logger.String("path", l.path), logger.Error(err))
		}
	}
	return len(held)
}

// ActiveCount returns the number of locks currently held by this process.
func ActiveCount() int {
	activeMu.Lock()
	defer activeMu.Unlock()
	return len(activeLocks)
}

func register(l *FileLock) {
	activeMu.Lock()
	activeLocks[l.path] = l
	activeMu.Unlock()
}

func unregister(l *FileLock) {
	activeMu.Lock()
	if activeLocks[l.path] == l {
		delete(activeLocks, l.path)
	}
	activeMu.Unlock()
}

package internal

import (
	"errors"
	"fmt"
)

// StorageError represents errors accessing session store files
type StorageError struct {
	Path string
	Op   string // "open", "append", "read", "rename"
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// ParseError represents errors decoding a log record or snapshot
type ParseError struct {
	Source string // "session", "snapshot", "config"
	Key    string // file path, optionally with a line number
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error [%s] %s: %v", e.Source, e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// SnapshotError represents a baseline snapshot that cannot be used
type SnapshotError struct {
	Path    string
	Version int
	Err     error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("snapshot error [v%d] %s: %v", e.Version, e.Path, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

// SpawnError represents a wrapped process that could not be started
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn error [%s]: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// ExitError asks the command runner to exit with a specific status
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// ExitCode returns the status carried by err, 0 for nil and 1 for any other error
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

package log

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// FileLogger appends events to a protocol log file (".slog" by convention)
// that scp-log can read back. A device restart reopens the same file, so
// one file covers every boot of a run.
type FileLogger struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	enc     *cbor.Encoder
	errLog  *slog.Logger
	dropped uint64
	closed  bool
}

// FileLoggerOption configures a FileLogger.
type FileLoggerOption func(*FileLogger)

// WithErrorLogger reports failed writes to logger. Only the first failure
// is logged; Dropped counts every event that could not be written.
func WithErrorLogger(logger *slog.Logger) FileLoggerOption {
	return func(l *FileLogger) {
		l.errLog = logger
	}
}

// NewFileLogger opens path for appending, creating it and its directory if
// needed. The file holds device IDs, so it is created owner-only.
func NewFileLogger(path string, opts ...FileLoggerOption) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open protocol log: %w", err)
	}
	l := &FileLogger{
		path: path,
		file: f,
		enc:  newEventEncoder(f),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Log appends event. Write failures never reach the caller.
func (l *FileLogger) Log(event Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err := l.enc.Encode(event); err != nil {
		l.dropped++
		if l.dropped == 1 && l.errLog != nil {
			l.errLog.Warn("protocol log write failed", "path", l.path, "error", err)
		}
	}
}

// Dropped returns the number of events that could not be written.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the file. Later calls to Log and Close do nothing.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

var _ Logger = (*FileLogger)(nil)

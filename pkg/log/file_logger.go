package log

import (
	"fmt"
	"os"
	"sync"
)

// FileLoggerOption configures a FileLogger.
type FileLoggerOption func(*FileLogger)

// WithMaxSize rotates the log once the next event would grow it past n
// bytes. The previous file is kept as path + ".1", replacing any older
// rotation. Zero disables rotation.
func WithMaxSize(n int64) FileLoggerOption {
	return func(l *FileLogger) {
		l.maxSize = n
	}
}

// FileLogger appends lifecycle events to a CBOR file.
// It is safe for concurrent use from multiple goroutines.
type FileLogger struct {
	path    string
	maxSize int64

	mu      sync.Mutex
	file    *os.File
	size    int64
	dropped uint64
	closed  bool
}

// NewFileLogger opens path for appending, creating it with permissions
// 0644 if needed. The parent directory must exist.
func NewFileLogger(path string, opts ...FileLoggerOption) (*FileLogger, error) {
	l := &FileLogger{path: path}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.open(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *FileLogger) open() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	l.file = f
	l.size = info.Size()
	return nil
}

// Log appends an event. Events that cannot be encoded or written are
// counted in Dropped; logging never fails the caller.
func (l *FileLogger) Log(ev Event) {
	data, err := EncodeEvent(ev)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	if err != nil {
		l.dropped++
		return
	}
	if l.maxSize > 0 && l.size > 0 && l.size+int64(len(data)) > l.maxSize {
		if err := l.rotate(); err != nil {
			l.dropped++
			return
		}
	}
	n, err := l.file.Write(data)
	l.size += int64(n)
	if err != nil {
		l.dropped++
	}
}

// rotate moves the current file aside and starts a new one.
func (l *FileLogger) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	if err := os.Rename(l.path, l.path+".1"); err != nil {
		return fmt.Errorf("rotate %s: %w", l.path, err)
	}
	return l.open()
}

// Dropped returns the number of events that were not written.
func (l *FileLogger) Dropped() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.dropped
}

// Close closes the log file. It is safe to call Close multiple times;
// subsequent Log calls are silently ignored.
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

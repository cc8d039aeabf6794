package connection

import (
	"context"
	"sync"
	"sync/atomic"
)

// Signal is a set-once readiness flag. Set may be called from any goroutine
// any number of times; waiters blocked before or after the first Set all
// observe it.
type Signal struct {
	once sync.Once
	set  atomic.Bool
	ch   chan struct{}
}

// NewSignal creates an unset signal.
func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{})}
}

// Set raises the flag. It returns true only for the call that raised it.
func (s *Signal) Set() bool {
	first := false
	s.once.Do(func() {
		s.set.Store(true)
		close(s.ch)
		first = true
	})
	return first
}

// IsSet reports whether the flag has been raised.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel closed once the flag is raised.
func (s *Signal) Done() <-chan struct{} {
	return s.ch
}

// WaitContext blocks until the flag is raised or ctx is done.
func (s *Signal) WaitContext(ctx context.Context) error {
	if s.IsSet() {
		return nil
	}
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

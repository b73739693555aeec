package rotation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/crimson-sun/quill/internal/clock"
	"github.com/crimson-sun/quill/internal/sink"
)

const defaultTimeout = 30 * time.Second

// Swapper replaces the active sink at a point in the record sequence.
// *writer.Writer implements it.
type Swapper interface {
	Swap(ctx context.Context, replace func(old sink.Sink) (sink.Sink, error)) error
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source used to name rotated files.
func WithClock(c clock.Clock) Option {
	return func(co *Coordinator) { co.clock = c }
}

// WithTimeout bounds a rotation whose context carries no deadline.
// Default: 30s.
func WithTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.timeout = d }
}

// Coordinator runs the rotation protocol: records enqueued before Rotate
// land in the retired file, records enqueued after it land in the fresh one.
// Sinks that are not file backed have nothing to rotate and succeed.
type Coordinator struct {
	w       Swapper
	clock   clock.Clock
	timeout time.Duration
	mu      sync.Mutex // one rotation at a time

	rotations atomic.Uint64
	failures  atomic.Uint64
}

// New creates a Coordinator for w.
func New(w Swapper, opts ...Option) *Coordinator {
	c := &Coordinator{
		w:       w,
		clock:   clock.NewRealClock(),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Rotate retires the active file and opens a fresh one at the same path.
// On failure the previous sink stays active and the error is returned.
func (c *Coordinator) Rotate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := ctx.Deadline(); !ok && c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	rotated := false
	err := c.w.Swap(ctx, func(old sink.Sink) (sink.Sink, error) {
		r, ok := old.(sink.Rotator)
		if !ok {
			return old, nil
		}
		next, err := r.Rotate(c.clock.Now())
		if err != nil {
			return nil, err
		}
		rotated = true
		return next, nil
	})
	if err != nil {
		c.failures.Add(1)
		slog.Error("audit log rotation failed", "error", err)
		return fmt.Errorf("rotation: %w", err)
	}
	if rotated {
		c.rotations.Add(1)
		slog.Info("audit log rotated")
	}
	return nil
}

// Stats returns the number of completed and failed rotations.
func (c *Coordinator) Stats() (rotations, failures uint64) {
	return c.rotations.Load(), c.failures.Load()
}

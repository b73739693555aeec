package profile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/crimson-sun/quill/internal/model"
)

const defaultRecorderBuffer = 1024

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithBufferSize sets the queue capacity. Default: 1024.
func WithBufferSize(n int) RecorderOption {
	return func(r *Recorder) { r.bufSize = n }
}

// WithBlockIfFull makes Record wait for room, bounded by its context,
// instead of dropping.
func WithBlockIfFull() RecorderOption {
	return func(r *Recorder) { r.dropIfFull = false }
}

// WithOnError sets the callback invoked when an insert fails.
// Default: logs a warning via slog.
func WithOnError(f func(error)) RecorderOption {
	return func(r *Recorder) { r.errFunc = f }
}

// Recorder inserts profile records into a Store from a background
// goroutine. Profiling is lossy: when the queue is full the record is
// dropped and counted.
type Recorder struct {
	store      Store
	ch         chan model.ProfileRecord
	done       chan struct{}
	wg         sync.WaitGroup
	bufSize    int
	dropIfFull bool
	errFunc    func(error)

	// sendMu is held shared by Record while it sends and exclusively by
	// Close while it flips closed, so no send lands after run has drained.
	sendMu    sync.RWMutex
	closed    bool
	recorded  atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closeOnce sync.Once
}

// NewRecorder starts a Recorder over store.
func NewRecorder(store Store, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		store:      store,
		bufSize:    defaultRecorderBuffer,
		dropIfFull: true,
		errFunc:    func(err error) { slog.Warn("profile insert failed", "error", err) },
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.bufSize <= 0 {
		r.bufSize = 1
	}
	r.ch = make(chan model.ProfileRecord, r.bufSize)
	r.done = make(chan struct{})
	r.wg.Add(1)
	go r.run()
	return r
}

func (r *Recorder) run() {
	defer r.wg.Done()
	for {
		select {
		case rec := <-r.ch:
			r.insert(rec)
		case <-r.done:
			for {
				select {
				case rec := <-r.ch:
					r.insert(rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) insert(rec model.ProfileRecord) {
	if err := r.store.Insert(context.Background(), rec); err != nil {
		r.failed.Add(1)
		r.errFunc(err)
		return
	}
	r.recorded.Add(1)
}

// Record queues rec for insertion. It never returns an error; lost records
// show up in Dropped. Records arriving after Close are ignored.
func (r *Recorder) Record(ctx context.Context, rec model.ProfileRecord) {
	if r == nil {
		return
	}
	r.sendMu.RLock()
	defer r.sendMu.RUnlock()
	if r.closed {
		return
	}
	if r.dropIfFull {
		select {
		case r.ch <- rec:
		default:
			r.dropped.Add(1)
		}
		return
	}
	select {
	case r.ch <- rec:
	case <-ctx.Done():
		r.dropped.Add(1)
	}
}

// Close stops accepting records and waits for queued ones to be inserted.
// It waits for in-flight Record calls to finish sending first. The store is
// not closed.
func (r *Recorder) Close() {
	if r == nil {
		return
	}
	r.closeOnce.Do(func() {
		r.sendMu.Lock()
		r.closed = true
		close(r.done)
		r.sendMu.Unlock()
		r.wg.Wait()
	})
}

// Stats returns the number of records inserted, dropped and failed.
func (r *Recorder) Stats() (recorded, dropped, failed uint64) {
	if r == nil {
		return 0, 0, 0
	}
	return r.recorded.Load(), r.dropped.Load(), r.failed.Load()
}

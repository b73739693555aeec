package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/crimson-sun/quill/internal/dedup"
	"github.com/crimson-sun/quill/internal/model"
	"github.com/crimson-sun/quill/internal/sink"
)

// ErrClosed is returned by Enqueue and Swap after Close.
var ErrClosed = errors.New("writer: closed")

// Option configures a Writer.
type Option func(*Writer)

// WithMaxPending bounds the pending queue. When full, Enqueue blocks until
// the flusher catches up, or drops the record with WithDropOnFull.
// Default: 0, unbounded.
func WithMaxPending(n int) Option {
	return func(w *Writer) { w.maxPending = n }
}

// WithDropOnFull makes Enqueue drop the record instead of blocking when the
// bounded queue is full.
func WithDropOnFull() Option {
	return func(w *Writer) { w.dropOnFull = true }
}

// WithOnError sets the callback invoked when encoding or a sink operation
// fails. Default: logs a warning via slog.
func WithOnError(f func(error)) Option {
	return func(w *Writer) { w.errFunc = f }
}

// WithDedupWindow sets how many recent lines per file are checked for
// duplicates. Default: 4096.
func WithDedupWindow(n int) Option {
	return func(w *Writer) { w.dedupWindow = n }
}

type item struct {
	seq  uint64
	rec  model.EventRecord
	line []byte // encoded rec, when the producer already has it
	swap *swapRequest
}

const (
	swapPending int32 = iota
	swapRunning
	swapCancelled
)

type swapRequest struct {
	replace func(old sink.Sink) (sink.Sink, error)
	state   atomic.Int32
	done    chan error
}

// Writer is the single funnel between producers and the active sink.
// Enqueue assigns a global sequence number under a short mutex and never
// performs I/O; a background flusher encodes records in sequence order,
// writes them to the sink and syncs after every batch.
type Writer struct {
	mu      sync.Mutex
	space   *sync.Cond
	pending []item
	seq     uint64
	closed  bool
	notify  chan struct{}
	done    chan struct{}

	sinkMu sync.RWMutex
	sink   sink.Sink
	guard  *dedup.Guard

	maxPending  int
	dropOnFull  bool
	dedupWindow int
	errFunc     func(error)

	highWater  atomic.Int64
	written    atomic.Uint64
	dropped    atomic.Uint64
	duplicates atomic.Uint64
	failures   atomic.Uint64
	flushed    atomic.Uint64
	closeErr   error
}

// New creates a Writer over s and starts the flusher. The Writer owns s
// from here on and closes it on Close or when a Swap retires it.
func New(s sink.Sink, opts ...Option) *Writer {
	w := &Writer{
		sink:    s,
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		errFunc: func(err error) { slog.Warn("audit writer error", "error", err) },
	}
	for _, opt := range opts {
		opt(w)
	}
	w.space = sync.NewCond(&w.mu)
	w.guard = dedup.New(dedup.Config{Window: w.dedupWindow})
	go w.run()
	return w
}

// Enqueue appends rec to the pending queue and returns. With an unbounded
// queue it never blocks beyond the queue mutex.
func (w *Writer) Enqueue(rec model.EventRecord) error {
	return w.enqueue(item{rec: rec})
}

// EnqueueEncoded is Enqueue for a record the caller already rendered with
// sink.Encode. The flusher writes line as given instead of encoding rec.
func (w *Writer) EnqueueEncoded(rec model.EventRecord, line []byte) error {
	return w.enqueue(item{rec: rec, line: line})
}

func (w *Writer) enqueue(it item) error {
	w.mu.Lock()
	for w.maxPending > 0 && len(w.pending) >= w.maxPending && !w.closed {
		if w.dropOnFull {
			w.mu.Unlock()
			w.dropped.Add(1)
			slog.Warn("audit writer queue full, dropping record", "atype", it.rec.Atype())
			return nil
		}
		w.space.Wait()
	}
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.seq++
	it.seq = w.seq
	w.pending = append(w.pending, it)
	if n := int64(len(w.pending)); n > w.highWater.Load() {
		w.highWater.Store(n)
	}
	w.mu.Unlock()
	w.wake()
	return nil
}

// Swap installs a barrier after every record enqueued so far. When the
// flusher reaches it, the records before it have been written and synced to
// the current sink; replace is then called with that sink. If replace
// returns a different sink it becomes active and the old one is closed.
// On error the current sink stays active.
//
// If ctx ends before the flusher reaches the barrier, the swap is abandoned
// and ctx.Err() is returned. Once replace has started Swap waits for it.
func (w *Writer) Swap(ctx context.Context, replace func(old sink.Sink) (sink.Sink, error)) error {
	req := &swapRequest{replace: replace, done: make(chan error, 1)}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	w.seq++
	w.pending = append(w.pending, item{seq: w.seq, swap: req})
	w.mu.Unlock()
	w.wake()

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		if req.state.CompareAndSwap(swapPending, swapCancelled) {
			return ctx.Err()
		}
		return <-req.done
	}
}

// Close stops accepting records, waits for the pending queue to drain and
// the sink to be synced and closed. If ctx ends first, Close returns
// ctx.Err() while draining continues in the background; calling Close again
// waits for it.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.space.Broadcast()
	w.mu.Unlock()
	w.wake()

	select {
	case <-w.done:
		return w.closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sink returns the active sink.
func (w *Writer) Sink() sink.Sink {
	w.sinkMu.RLock()
	defer w.sinkMu.RUnlock()
	return w.sink
}

// Seq returns the last sequence number assigned.
func (w *Writer) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Flushed returns the sequence number of the last item the flusher handled.
func (w *Writer) Flushed() uint64 {
	return w.flushed.Load()
}

// Pending returns the number of queued items not yet taken by the flusher.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats is a point-in-time view of the writer's counters.
type Stats struct {
	Written    uint64
	Dropped    uint64
	Duplicates uint64
	Errors     uint64
	HighWater  int64
}

func (w *Writer) Stats() Stats {
	return Stats{
		Written:    w.written.Load(),
		Dropped:    w.dropped.Load(),
		Duplicates: w.duplicates.Load(),
		Errors:     w.failures.Load(),
		HighWater:  w.highWater.Load(),
	}
}

func (w *Writer) wake() {
	select {
	case w.notify <- struct{}{}:
	default:
	}
}

// take removes the whole pending queue.
func (w *Writer) take() (batch []item, closing bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch, w.pending = w.pending, nil
	w.space.Broadcast()
	return batch, w.closed
}

func (w *Writer) run() {
	defer close(w.done)
	for {
		batch, closing := w.take()
		if len(batch) > 0 {
			w.process(batch)
			continue
		}
		if closing {
			w.closeErr = w.sink.Close()
			return
		}
		<-w.notify
	}
}

func (w *Writer) process(batch []item) {
	for _, it := range batch {
		if it.swap != nil {
			w.sync()
			w.swap(it.swap)
		} else {
			w.write(it)
		}
		w.flushed.Store(it.seq)
	}
	w.sync()
}

func (w *Writer) write(it item) {
	line := it.line
	if line == nil {
		var err error
		if line, err = sink.Encode(it.rec); err != nil {
			w.fail(err)
			return
		}
	}
	if !w.guard.Admit(line) {
		w.duplicates.Add(1)
		return
	}
	if err := w.sink.Write(context.Background(), line); err != nil {
		w.fail(err)
		return
	}
	w.written.Add(1)
}

func (w *Writer) sync() {
	if s, ok := w.sink.(sink.Syncer); ok {
		if err := s.Sync(); err != nil {
			w.fail(err)
		}
	}
}

func (w *Writer) swap(req *swapRequest) {
	if !req.state.CompareAndSwap(swapPending, swapRunning) {
		return
	}
	old := w.sink
	next, err := req.replace(old)
	if err == nil && next != nil && next != old {
		w.sinkMu.Lock()
		w.sink = next
		w.sinkMu.Unlock()
		w.guard.Reset()
		if cerr := old.Close(); cerr != nil {
			w.fail(cerr)
		}
	}
	req.done <- err
}

func (w *Writer) fail(err error) {
	w.failures.Add(1)
	w.errFunc(err)
}

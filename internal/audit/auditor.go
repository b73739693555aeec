package audit

import (
	"log/slog"
	"sync/atomic"

	"github.com/crimson-sun/quill/internal/audit/filter"
	"github.com/crimson-sun/quill/internal/clock"
	"github.com/crimson-sun/quill/internal/model"
	"github.com/crimson-sun/quill/internal/sink"
)

// Enqueuer accepts stamped records for delivery. The audit writer
// implements it.
type Enqueuer interface {
	Enqueue(rec model.EventRecord) error
}

// EncodedEnqueuer also accepts a record together with its sink.Encode line.
// When the operator filter has encoded a record, it is handed over this way
// so the writer does not encode it again.
type EncodedEnqueuer interface {
	EnqueueEncoded(rec model.EventRecord, line []byte) error
}

// Client is the connection on whose behalf an event is recorded.
type Client struct {
	Local  model.Endpoint
	Remote model.Endpoint
	Users  []model.UserName
}

// Option configures an Auditor.
type Option func(*Auditor)

// WithClock sets the timestamp source. Default: a monotonic real clock.
func WithClock(c clock.Clock) Option {
	return func(a *Auditor) { a.clock = c }
}

// WithMatcher installs an operator filter applied after the gate.
func WithMatcher(m *filter.Matcher) Option {
	return func(a *Auditor) { a.matcher = m }
}

// Auditor stamps actions and hands them to the writer. A nil *Auditor
// records nothing, which is how a disabled audit log is represented.
type Auditor struct {
	out     Enqueuer
	encOut  EncodedEnqueuer
	gate    *filter.Gate
	matcher *filter.Matcher
	clock   clock.Clock

	emitted  atomic.Uint64
	filtered atomic.Uint64
}

// New creates an Auditor writing to out and gated by gate.
func New(out Enqueuer, gate *filter.Gate, opts ...Option) *Auditor {
	a := &Auditor{
		out:   out,
		gate:  gate,
		clock: clock.NewMonotonic(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.gate == nil {
		a.gate = filter.NewGate(false)
	}
	a.encOut, _ = out.(EncodedEnqueuer)
	return a
}

// Log records act with the given outcome for client c, subject to the gate
// and the operator filter. Failures to enqueue are logged, never returned.
func (a *Auditor) Log(c Client, act Action, result int) {
	if a == nil {
		return
	}
	if !a.gate.ShouldEmit(act.Atype, result) {
		a.filtered.Add(1)
		return
	}
	rec := model.NewEventRecord(act.Atype, a.clock.Now(), c.Local, c.Remote, c.Users, act.Param, result)
	var line []byte
	if a.matcher != nil {
		var err error
		if line, err = sink.Encode(rec); err != nil {
			slog.Warn("audit: encode for filter failed", "atype", act.Atype, "error", err)
			return
		}
		if !a.matcher.Match(line) {
			a.filtered.Add(1)
			return
		}
	}
	var err error
	if line != nil && a.encOut != nil {
		err = a.encOut.EnqueueEncoded(rec, line)
	} else {
		err = a.out.Enqueue(rec)
	}
	if err != nil {
		slog.Warn("audit: enqueue failed", "atype", act.Atype, "error", err)
		return
	}
	a.emitted.Add(1)
}

// Gate returns the authorization-success gate.
func (a *Auditor) Gate() *filter.Gate {
	return a.gate
}

// Matcher returns the operator filter, nil when none is set.
func (a *Auditor) Matcher() *filter.Matcher {
	return a.matcher
}

// Stats returns the number of records handed to the writer and the number
// suppressed by the gate or filter.
func (a *Auditor) Stats() (emitted, filtered uint64) {
	if a == nil {
		return 0, 0
	}
	return a.emitted.Load(), a.filtered.Load()
}

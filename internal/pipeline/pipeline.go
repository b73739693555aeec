// Package pipeline wires the audit and profiling components into one
// capture pipeline.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crimson-sun/quill/internal/audit"
	"github.com/crimson-sun/quill/internal/audit/filter"
	"github.com/crimson-sun/quill/internal/clock"
	"github.com/crimson-sun/quill/internal/command"
	"github.com/crimson-sun/quill/internal/config"
	"github.com/crimson-sun/quill/internal/metrics"
	"github.com/crimson-sun/quill/internal/model"
	"github.com/crimson-sun/quill/internal/profile"
	"github.com/crimson-sun/quill/internal/rotation"
	"github.com/crimson-sun/quill/internal/sampling"
	"github.com/crimson-sun/quill/internal/sink"
	"github.com/crimson-sun/quill/internal/sink/multi"
	"github.com/crimson-sun/quill/internal/writer"

	// Register sink kinds.
	_ "github.com/crimson-sun/quill/internal/sink/console"
	_ "github.com/crimson-sun/quill/internal/sink/file"
	_ "github.com/crimson-sun/quill/internal/sink/syslog"
)

// Option configures a Pipeline.
type Option func(*options)

type options struct {
	clock   clock.Clock
	sink    sink.Sink
	mirrors []sink.Sink
	store   profile.Store
	rand    func() float64
	writer  []writer.Option
}

// WithClock sets the audit timestamp source. Default: a monotonic real clock.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithSink replaces the configured audit destination.
func WithSink(s sink.Sink) Option {
	return func(o *options) { o.sink = s }
}

// WithMirror copies every audit line to s as well as the primary sink.
func WithMirror(s sink.Sink) Option {
	return func(o *options) { o.mirrors = append(o.mirrors, s) }
}

// WithStore replaces the configured profile store.
func WithStore(s profile.Store) Option {
	return func(o *options) { o.store = s }
}

// WithSampleRand sets the random source for sample-rate trials.
func WithSampleRand(f func() float64) Option {
	return func(o *options) { o.rand = f }
}

// WithWriterOptions passes extra options to the audit writer.
func WithWriterOptions(opts ...writer.Option) Option {
	return func(o *options) { o.writer = append(o.writer, opts...) }
}

// Pipeline is the capture pipeline. Safe for concurrent use.
type Pipeline struct {
	cfg      config.AuditConfig
	gate     *filter.Gate
	auditor  *audit.Auditor
	writer   *writer.Writer
	rotation *rotation.Coordinator
	policy   *sampling.Policy
	store    profile.Store
	recorder *profile.Recorder
	metrics  *metrics.Metrics
	commands *command.Dispatcher

	shutdownOnce sync.Once
	shutdownErr  error
}

// New builds a pipeline from cfg. cfg must already be validated. When
// cfg.AuditLog.Destination is empty and no sink option is given, auditing
// is disabled and every audit call is a no-op.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*Pipeline, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	var samplingOpts []sampling.Option
	if o.rand != nil {
		samplingOpts = append(samplingOpts, sampling.WithRand(o.rand))
	}
	policy, err := sampling.New(cfg.Sampling(), samplingOpts...)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	matcher, err := filter.Compile(cfg.AuditLog.Filter)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}

	p := &Pipeline{
		cfg:      cfg.AuditLog,
		gate:     filter.NewGate(cfg.AuditLog.AuthorizationSuccess),
		policy:   policy,
		commands: command.NewDispatcher(),
	}

	store := o.store
	if store == nil {
		store, err = openStore(ctx, cfg.Profiling)
		if err != nil {
			return nil, err
		}
	}
	p.store = store
	p.recorder = profile.NewRecorder(store)

	out := o.sink
	if out == nil && cfg.AuditLog.Destination != "" {
		out, err = sink.Open(cfg.AuditLog.Destination, sink.Options{
			Path:       cfg.AuditLog.Path,
			OnExisting: cfg.AuditLog.OnExisting,
			Tag:        cfg.AuditLog.SyslogTag,
		})
		if err != nil {
			p.recorder.Close()
			store.Close()
			return nil, fmt.Errorf("pipeline: open audit %s: %w", cfg.AuditLog.Destination, err)
		}
	}
	if out != nil && len(o.mirrors) > 0 {
		out = multi.New(append([]sink.Sink{out}, o.mirrors...)...)
	}

	src := metrics.Sources{
		Recorder: p.recorder.Stats,
	}
	if out != nil {
		src.Writer = func() writer.Stats { return p.writer.Stats() }
		src.Pending = func() int { return p.writer.Pending() }
		src.Auditor = func() (uint64, uint64) { return p.auditor.Stats() }
		src.Rotation = func() (uint64, uint64) { return p.rotation.Stats() }
	}
	p.metrics = metrics.New(src, nil)

	if out != nil {
		wopts := append([]writer.Option{writer.WithOnError(p.sinkFailed)}, o.writer...)
		p.writer = writer.New(out, wopts...)
		p.rotation = rotation.New(p.writer)

		aopts := []audit.Option{audit.WithMatcher(matcher)}
		if o.clock != nil {
			aopts = append(aopts, audit.WithClock(o.clock))
		}
		p.auditor = audit.New(p.writer, p.gate, aopts...)
	}
	command.Register(p.commands, p)

	slog.Info("pipeline started",
		"destination", p.cfg.Destination,
		"path", p.cfg.Path,
		"profiling", policy.Settings().Mode,
	)
	return p, nil
}

func openStore(ctx context.Context, cfg config.ProfilingConfig) (profile.Store, error) {
	if cfg.RedisAddr == "" {
		return profile.NewMemory(cfg.StoreCapacity), nil
	}
	s, err := profile.DialRedis(ctx, cfg.RedisAddr, cfg.RedisKey, cfg.StoreCapacity)
	if err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	return s, nil
}

func (p *Pipeline) sinkFailed(err error) {
	slog.Warn("audit sink failure", "destination", p.cfg.Destination, "error", err)
	p.metrics.WriteFailed(err)
}

// Capture offers a completed operation to the profiler. It never blocks on
// I/O.
func (p *Pipeline) Capture(ctx context.Context, c model.OpCandidate) {
	keep, rateLimit := p.policy.Decide(c)
	if !keep {
		return
	}
	p.recorder.Record(ctx, model.NewProfileRecord(c, rateLimit))
}

// Audit records act on behalf of c with the given result code.
func (p *Pipeline) Audit(c audit.Client, act audit.Action, result int) {
	p.auditor.Log(c, act, result)
}

// Auditor returns the audit entry point, nil when auditing is disabled.
// A nil Auditor accepts calls and records nothing.
func (p *Pipeline) Auditor() *audit.Auditor {
	return p.auditor
}

// Command runs an administrative command.
func (p *Pipeline) Command(ctx context.Context, cmd model.Doc) (command.Reply, error) {
	return p.commands.Run(ctx, cmd)
}

// RotateLog rotates the audit destination. A successful rotation clears a
// degraded health state.
func (p *Pipeline) RotateLog(ctx context.Context) error {
	if p.rotation == nil {
		return nil
	}
	if err := p.rotation.Rotate(ctx); err != nil {
		return err
	}
	p.metrics.Health().Recover()
	return nil
}

// Shutdown emits the shutdown event, drains and closes the audit stream,
// then stops the profiler. Only the first call has any effect.
func (p *Pipeline) Shutdown(ctx context.Context) error {
	p.shutdownOnce.Do(func() {
		var errs []error
		if p.writer != nil {
			p.auditor.Log(audit.FromContext(ctx), audit.Shutdown(), model.ResultOK)
			if err := p.writer.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("audit: %w", err))
			}
		}
		p.recorder.Close()
		if err := p.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("profile store: %w", err))
		}
		p.shutdownErr = errors.Join(errs...)
		slog.Info("pipeline stopped", "error", p.shutdownErr)
	})
	return p.shutdownErr
}

// AuditOptions reports the audit configuration.
func (p *Pipeline) AuditOptions() command.AuditOptions {
	return command.AuditOptions{
		Destination: p.cfg.Destination,
		Format:      p.cfg.Format,
		Path:        p.cfg.Path,
		Filter:      p.cfg.Filter,
	}
}

func (p *Pipeline) Gate() *filter.Gate {
	return p.gate
}

func (p *Pipeline) Sampling() *sampling.Policy {
	return p.policy
}

// LogApplicationMessage records an applicationMessage event for the client
// carried by ctx.
func (p *Pipeline) LogApplicationMessage(ctx context.Context, msg string) {
	p.auditor.Log(audit.FromContext(ctx), audit.ApplicationMessage(msg), model.ResultOK)
}

func (p *Pipeline) Store() profile.Store {
	return p.store
}

func (p *Pipeline) Metrics() *metrics.Metrics {
	return p.metrics
}

// Writer returns the audit writer, nil when auditing is disabled.
func (p *Pipeline) Writer() *writer.Writer {
	return p.writer
}

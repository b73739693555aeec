package quill

import (
	"context"
	"fmt"
	"time"

	"github.com/crimson-sun/quill/internal/audit"
	"github.com/crimson-sun/quill/internal/command"
	"github.com/crimson-sun/quill/internal/config"
	"github.com/crimson-sun/quill/internal/model"
	"github.com/crimson-sun/quill/internal/pipeline"
	"github.com/crimson-sun/quill/internal/profile"
)

// Quill records audit events and profiles operations.
// Safe for concurrent use.
type Quill struct {
	p *pipeline.Pipeline
}

// New validates the options and starts the pipeline. With no audit
// destination option, auditing is disabled and only profiling runs.
func New(opts ...Option) (*Quill, error) {
	cfg := config.Default()
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("quill: %w", err)
	}
	p, err := pipeline.New(context.Background(), cfg)
	if err != nil {
		return nil, fmt.Errorf("quill: %w", err)
	}
	return &Quill{p: p}, nil
}

// Capture offers a completed operation to the profiler.
func (q *Quill) Capture(ctx context.Context, op Operation) {
	ts := op.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	q.p.Capture(ctx, model.OpCandidate{
		Op:        op.Op,
		NS:        op.NS,
		Millis:    op.Duration.Milliseconds(),
		Command:   op.Command,
		Timestamp: ts,
		Client:    endpoint(op.Client),
		User:      op.User,
	})
}

// Audit records an event of category atype with the given param document.
// Use the typed helpers where one exists.
func (q *Quill) Audit(c Client, atype string, param Doc, result int) {
	q.p.Audit(toAuditClient(c), audit.Action{Atype: atype, Param: param}, result)
}

// Authenticate records an authentication attempt, successful or not.
func (q *Quill) Authenticate(c Client, mechanism string, user User, result int) {
	q.p.Audit(toAuditClient(c), audit.Authenticate(mechanism, model.UserName{User: user.Name, DB: user.DB}), result)
}

// AuthCheck records an authorization check for a command. Successful
// checks are only recorded when authorization success auditing is on.
func (q *Quill) AuthCheck(c Client, ns string, cmd Doc, result int) {
	q.p.Auditor().CommandAuthzCheck(toAuditClient(c), ns, cmd, result)
}

// ApplicationMessage records a free-form message.
func (q *Quill) ApplicationMessage(c Client, msg string) {
	q.p.Audit(toAuditClient(c), audit.ApplicationMessage(msg), ResultOK)
}

// Command runs an administrative command such as {profile: -1} or
// {setParameter: 1, auditAuthorizationSuccess: true}. Failures carry a
// numeric code retrievable with ErrorCode.
func (q *Quill) Command(ctx context.Context, cmd Doc) (map[string]any, error) {
	r, err := q.p.Command(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// ErrorCode returns the numeric code of a failed Command.
func ErrorCode(err error) int {
	return command.CodeOf(err)
}

// RotateLog renames the audit file aside and continues in a fresh one.
// Destinations without a file report success.
func (q *Quill) RotateLog(ctx context.Context) error {
	return q.p.RotateLog(ctx)
}

// Profile returns stored profile entries, newest first.
func (q *Quill) Profile(ctx context.Context, query ProfileQuery) ([]ProfileEntry, error) {
	recs, err := q.p.Store().Find(ctx, profile.Query{
		Op:        query.Op,
		NS:        query.NS,
		MinMillis: query.MinMillis,
		MaxMillis: query.MaxMillis,
		RateLimit: query.RateLimit,
		Limit:     query.Limit,
	})
	if err != nil {
		return nil, err
	}
	out := make([]ProfileEntry, len(recs))
	for i, r := range recs {
		out[i] = entryFromRecord(r)
	}
	return out, nil
}

// Close records the shutdown event and waits until every queued audit
// event is on disk. It must be called when the instance is no longer
// needed.
func (q *Quill) Close(ctx context.Context) error {
	return q.p.Shutdown(ctx)
}

func toAuditClient(c Client) audit.Client {
	local, remote, users := c.internal()
	return audit.Client{Local: local, Remote: remote, Users: users}
}

// entryFromRecord converts the internal ProfileRecord to the public ProfileEntry type.
func entryFromRecord(r model.ProfileRecord) ProfileEntry {
	return ProfileEntry{
		ID:        r.ID,
		Op:        r.Op,
		NS:        r.NS,
		Millis:    r.Millis,
		Command:   r.Command,
		Timestamp: r.Timestamp,
		Client:    Endpoint{IP: r.Client.IP, Port: r.Client.Port},
		User:      r.User,
		RateLimit: r.RateLimit,
	}
}

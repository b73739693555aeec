package command

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"sort"

	"github.com/crimson-sun/quill/internal/audit/filter"
	"github.com/crimson-sun/quill/internal/model"
	"github.com/crimson-sun/quill/internal/sampling"
)

// AuditOptions describes the running audit configuration.
type AuditOptions struct {
	Destination string
	Format      string
	Path        string
	Filter      string
}

// Backend is the pipeline surface the built-in commands operate on.
type Backend interface {
	AuditOptions() AuditOptions
	Gate() *filter.Gate
	Sampling() *sampling.Policy
	LogApplicationMessage(ctx context.Context, msg string)
	RotateLog(ctx context.Context) error
}

// Runtime parameter names.
const (
	ParamAuditAuthorizationSuccess = "auditAuthorizationSuccess"
	ParamProfilingRateLimit        = "profilingRateLimit"
)

type parameter struct {
	get func(b Backend) any
	set func(b Backend, v any) (was any, err error)
}

var parameters = map[string]parameter{
	ParamAuditAuthorizationSuccess: {
		get: func(b Backend) any { return b.Gate().AuthorizationSuccess() },
		set: func(b Backend, v any) (any, error) {
			on, ok := v.(bool)
			if !ok {
				return nil, errorf(CodeBadValue, "%s has to be a boolean, got %T", ParamAuditAuthorizationSuccess, v)
			}
			return b.Gate().SetAuthorizationSuccess(on), nil
		},
	},
	ParamProfilingRateLimit: {
		get: func(b Backend) any { return b.Sampling().Settings().RateLimit },
		set: func(b Backend, v any) (any, error) {
			n, ok := asInt(v)
			if !ok {
				return nil, errorf(CodeBadValue, "%s has to be a number, got %T", ParamProfilingRateLimit, v)
			}
			if n < 0 || n > math.MaxInt32 {
				return nil, errorf(CodeBadValue, "bad value for %s: %d", ParamProfilingRateLimit, n)
			}
			was, err := b.Sampling().SetRateLimit(int(n))
			if err != nil {
				return nil, errorf(CodeBadValue, "%v", err)
			}
			return was, nil
		},
	},
}

// Register installs the built-in commands on d.
func Register(d *Dispatcher, b Backend) {
	getOptions := func(ctx context.Context, cmd model.Doc) (Reply, error) {
		return auditOptions(b), nil
	}
	d.Handle("getAuditOptions", getOptions)
	d.Handle("auditGetOptions", getOptions)
	d.Handle("setParameter", func(ctx context.Context, cmd model.Doc) (Reply, error) {
		return setParameter(b, cmd)
	})
	d.Handle("getParameter", func(ctx context.Context, cmd model.Doc) (Reply, error) {
		return getParameter(b, cmd)
	})
	d.Handle("profile", func(ctx context.Context, cmd model.Doc) (Reply, error) {
		return profile(b, cmd)
	})
	d.Handle("logApplicationMessage", func(ctx context.Context, cmd model.Doc) (Reply, error) {
		msg, ok := cmd[0].Value.(string)
		if !ok {
			return nil, errorf(CodeBadValue, "logApplicationMessage only accepts string messages")
		}
		b.LogApplicationMessage(ctx, msg)
		return Reply{}, nil
	})
	d.Handle("logRotate", func(ctx context.Context, cmd model.Doc) (Reply, error) {
		if err := b.RotateLog(ctx); err != nil {
			var linkErr *os.LinkError
			if errors.As(err, &linkErr) {
				return nil, errorf(CodeFileRenameFailed, "%v", err)
			}
			return nil, errorf(CodeRotationFailed, "%v", err)
		}
		return Reply{}, nil
	})
}

func auditOptions(b Backend) Reply {
	opts := b.AuditOptions()
	r := Reply{
		"destination": opts.Destination,
		"format":      opts.Format,
	}
	if opts.Path != "" {
		r["path"] = opts.Path
	}
	var f model.Doc
	if opts.Filter == "" || json.Unmarshal([]byte(opts.Filter), &f) != nil {
		f = model.Doc{}
	}
	r["filter"] = f
	return r
}

func setParameter(b Backend, cmd model.Doc) (Reply, error) {
	if len(cmd) != 2 {
		return nil, errorf(CodeBadValue, "setParameter takes exactly one parameter")
	}
	name, v := cmd[1].Key, cmd[1].Value
	p, ok := parameters[name]
	if !ok {
		return nil, errorf(CodeInvalidOptions, "attempted to set unrecognized parameter [%s]", name)
	}
	was, err := p.set(b, v)
	if err != nil {
		return nil, err
	}
	return Reply{"was": was}, nil
}

func getParameter(b Backend, cmd model.Doc) (Reply, error) {
	r := Reply{}
	if all, ok := cmd[0].Value.(string); ok && all == "*" {
		for name, p := range parameters {
			r[name] = p.get(b)
		}
		return r, nil
	}
	if len(cmd) < 2 {
		return nil, errorf(CodeBadValue, "no option found to get")
	}
	for _, f := range cmd[1:] {
		p, ok := parameters[f.Key]
		if !ok {
			return nil, errorf(CodeInvalidOptions, "no such parameter: %s", f.Key)
		}
		r[f.Key] = p.get(b)
	}
	return r, nil
}

func profile(b Backend, cmd model.Doc) (Reply, error) {
	level, ok := asInt(cmd[0].Value)
	if !ok || level < -1 || level > model.ProfileAll {
		return nil, errorf(CodeBadValue, "profiling level must be -1, 0, 1 or 2")
	}
	policy := b.Sampling()
	if level == -1 {
		return profileReply(policy.Settings()), nil
	}

	var mutate []func(*sampling.Settings)
	mutate = append(mutate, func(s *sampling.Settings) { s.Mode = int(level) })
	for _, f := range cmd[1:] {
		switch f.Key {
		case "slowms":
			ms, ok := asInt(f.Value)
			if !ok || ms < 0 {
				return nil, errorf(CodeBadValue, "slowms must be a non-negative number")
			}
			mutate = append(mutate, func(s *sampling.Settings) { s.SlowMs = ms })
		case "ratelimit":
			n, ok := asInt(f.Value)
			if !ok || n < 0 || n > math.MaxInt32 {
				return nil, errorf(CodeBadValue, "ratelimit must be a non-negative number")
			}
			mutate = append(mutate, func(s *sampling.Settings) { s.RateLimit = int(n) })
		case "sampleRate":
			rate, ok := asFloat(f.Value)
			if !ok {
				return nil, errorf(CodeBadValue, "sampleRate must be a number")
			}
			mutate = append(mutate, func(s *sampling.Settings) { s.SampleRate = rate })
		}
	}
	prev, err := policy.Update(func(s *sampling.Settings) {
		for _, m := range mutate {
			m(s)
		}
	})
	if err != nil {
		return nil, errorf(CodeBadValue, "%v", err)
	}
	return profileReply(prev), nil
}

func profileReply(s sampling.Settings) Reply {
	return Reply{
		"was":        s.Mode,
		"slowms":     s.SlowMs,
		"ratelimit":  s.RateLimit,
		"sampleRate": s.SampleRate,
	}
}

// ParameterNames returns the runtime parameter names, sorted.
func ParameterNames() []string {
	names := make([]string, 0, len(parameters))
	for n := range parameters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) && !math.IsInf(n, 0) {
			return int64(n), true
		}
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

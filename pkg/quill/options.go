package quill

import "github.com/crimson-sun/quill/internal/config"

// Option configures a Quill instance.
type Option func(*config.Config)

// WithAuditFile sends audit events to an NDJSON file. path must be
// absolute and its directory must exist.
func WithAuditFile(path string) Option {
	return func(c *config.Config) {
		c.AuditLog.Destination = "file"
		c.AuditLog.Path = path
	}
}

// WithAuditConsole sends audit events to stdout.
func WithAuditConsole() Option {
	return func(c *config.Config) {
		c.AuditLog.Destination = "console"
		c.AuditLog.Path = ""
	}
}

// WithAuditSyslog sends audit events to the local syslog daemon.
func WithAuditSyslog() Option {
	return func(c *config.Config) {
		c.AuditLog.Destination = "syslog"
		c.AuditLog.Path = ""
	}
}

// WithSyslogTag sets the syslog identity of audit lines. Default: "quill".
func WithSyslogTag(tag string) Option {
	return func(c *config.Config) { c.AuditLog.SyslogTag = tag }
}

// WithOnExisting sets what happens to a non-empty audit file at start:
// "rotate" (default), "append" or "fail".
func WithOnExisting(policy string) Option {
	return func(c *config.Config) {
		c.AuditLog.OnExisting = policy
	}
}

// WithAuditFilter only records events matching the JSON query document.
func WithAuditFilter(filter string) Option {
	return func(c *config.Config) {
		c.AuditLog.Filter = filter
	}
}

// WithAuthorizationSuccess records successful authorization checks too.
// Default: only failures.
func WithAuthorizationSuccess(on bool) Option {
	return func(c *config.Config) {
		c.AuditLog.AuthorizationSuccess = on
	}
}

// WithProfiling sets the profiling level and the slow threshold in
// milliseconds. Default: off, 100ms.
func WithProfiling(level int, slowMs int64) Option {
	return func(c *config.Config) {
		c.Profiling.Mode = level
		c.Profiling.SlowMs = slowMs
	}
}

// WithRateLimit keeps one in every n fast operations. Cannot be combined
// with a non-default sample rate.
func WithRateLimit(n int) Option {
	return func(c *config.Config) {
		c.Profiling.RateLimit = n
	}
}

// WithSampleRate keeps each fast operation with probability rate. Cannot
// be combined with a non-default rate limit.
func WithSampleRate(rate float64) Option {
	return func(c *config.Config) {
		c.Profiling.SampleRate = rate
	}
}

// WithProfileCapacity caps the number of stored profile entries.
// Default: 1024.
func WithProfileCapacity(n int) Option {
	return func(c *config.Config) {
		c.Profiling.StoreCapacity = n
	}
}

// WithRedis stores profile entries in a capped Redis list instead of
// memory.
func WithRedis(addr, key string) Option {
	return func(c *config.Config) {
		c.Profiling.RedisAddr = addr
		c.Profiling.RedisKey = key
	}
}

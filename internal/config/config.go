// Package config loads quill configuration from defaults, an optional YAML
// file and QUILL_* environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/crimson-sun/quill/internal/audit/filter"
	"github.com/crimson-sun/quill/internal/sampling"
	"github.com/crimson-sun/quill/internal/sink/file"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// DefaultAuditFile is the audit log file name used when no path is set.
const DefaultAuditFile = "auditLog.json"

// Config holds all quill configuration.
type Config struct {
	AuditLog      AuditConfig     `yaml:"auditLog"`
	Profiling     ProfilingConfig `yaml:"profiling"`
	Log           LogConfig       `yaml:"log"`
	Admin         AdminConfig     `yaml:"admin"`
	ServerLogPath string          `yaml:"serverLogPath"`
}

// AuditConfig holds audit log settings. An empty Destination disables
// auditing.
type AuditConfig struct {
	Destination          string `yaml:"destination"` // "file", "console", "syslog"
	Format               string `yaml:"format"`      // "JSON"
	Path                 string `yaml:"path"`
	Filter               string `yaml:"filter"`
	OnExisting           string `yaml:"onExisting"` // "rotate", "append", "fail"
	SyslogTag            string `yaml:"syslogTag"`
	AuthorizationSuccess bool   `yaml:"authorizationSuccess"`
}

// ProfilingConfig holds sampling and profile store settings.
type ProfilingConfig struct {
	Mode          int     `yaml:"mode"`
	SlowMs        int64   `yaml:"slowms"`
	RateLimit     int     `yaml:"rateLimit"`
	SampleRate    float64 `yaml:"sampleRate"`
	StoreCapacity int     `yaml:"storeCapacity"`
	RedisAddr     string  `yaml:"redisAddr"`
	RedisKey      string  `yaml:"redisKey"`
}

// LogConfig holds diagnostic logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// AdminConfig holds the HTTP admin listener settings. An empty Addr
// disables the listener.
type AdminConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	s := sampling.DefaultSettings()
	return Config{
		AuditLog: AuditConfig{
			Format:     "JSON",
			OnExisting: file.PolicyRotate,
		},
		Profiling: ProfilingConfig{
			Mode:          s.Mode,
			SlowMs:        s.SlowMs,
			RateLimit:     s.RateLimit,
			SampleRate:    s.SampleRate,
			StoreCapacity: 1024,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration. path may be empty to skip the file. The result
// is not validated; call Validate after applying any overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := parseYAML(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.ApplyDefaults()
	return cfg, nil
}

// parseYAML decodes data over cfg. The deprecated "audit" section is
// applied first so that "auditLog" values win.
func parseYAML(data []byte, cfg *Config) error {
	var legacy struct {
		Audit yaml.Node `yaml:"audit"`
	}
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return err
	}
	if !legacy.Audit.IsZero() {
		slog.Warn("config section audit is deprecated, use auditLog")
		if err := legacy.Audit.Decode(&cfg.AuditLog); err != nil {
			return fmt.Errorf("audit: %w", err)
		}
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	a := &cfg.AuditLog
	a.Destination = getenv("QUILL_AUDIT_DESTINATION", a.Destination)
	a.Format = getenv("QUILL_AUDIT_FORMAT", a.Format)
	a.Path = getenv("QUILL_AUDIT_PATH", a.Path)
	a.Filter = getenv("QUILL_AUDIT_FILTER", a.Filter)
	a.OnExisting = getenv("QUILL_AUDIT_ON_EXISTING", a.OnExisting)
	a.SyslogTag = getenv("QUILL_AUDIT_SYSLOG_TAG", a.SyslogTag)
	a.AuthorizationSuccess = getenvBool("QUILL_AUDIT_AUTHORIZATION_SUCCESS", a.AuthorizationSuccess)

	p := &cfg.Profiling
	p.Mode = getenvInt("QUILL_PROFILE_MODE", p.Mode)
	p.SlowMs = int64(getenvInt("QUILL_PROFILE_SLOWMS", int(p.SlowMs)))
	p.RateLimit = getenvInt("QUILL_PROFILE_RATE_LIMIT", p.RateLimit)
	p.SampleRate = getenvFloat("QUILL_PROFILE_SAMPLE_RATE", p.SampleRate)
	p.StoreCapacity = getenvInt("QUILL_PROFILE_STORE_CAPACITY", p.StoreCapacity)
	p.RedisAddr = getenv("QUILL_PROFILE_REDIS_ADDR", p.RedisAddr)
	p.RedisKey = getenv("QUILL_PROFILE_REDIS_KEY", p.RedisKey)

	cfg.Log.Level = getenv("QUILL_LOG_LEVEL", cfg.Log.Level)
	cfg.Admin.Addr = getenv("QUILL_ADMIN_ADDR", cfg.Admin.Addr)
	cfg.ServerLogPath = getenv("QUILL_SERVER_LOG_PATH", cfg.ServerLogPath)
}

// ApplyDefaults fills values derived from other settings. It is idempotent.
func (c *Config) ApplyDefaults() {
	if c.AuditLog.Format == "" {
		c.AuditLog.Format = "JSON"
	}
	if c.AuditLog.OnExisting == "" {
		c.AuditLog.OnExisting = file.PolicyRotate
	}
	if c.AuditLog.Destination == "file" && c.AuditLog.Path == "" {
		c.AuditLog.Path = DefaultAuditPath(c.ServerLogPath)
	}
	if c.Profiling.RateLimit == 0 {
		c.Profiling.RateLimit = sampling.DefaultRateLimit
	}
}

// DefaultAuditPath places the audit log next to the server log, or in the
// working directory when there is none.
func DefaultAuditPath(serverLogPath string) string {
	if serverLogPath != "" {
		return filepath.Join(filepath.Dir(serverLogPath), DefaultAuditFile)
	}
	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	return filepath.Join(wd, DefaultAuditFile)
}

// Sampling returns the profiling settings as a sampling snapshot.
func (c Config) Sampling() sampling.Settings {
	return sampling.Settings{
		Mode:       c.Profiling.Mode,
		SlowMs:     c.Profiling.SlowMs,
		RateLimit:  c.Profiling.RateLimit,
		SampleRate: c.Profiling.SampleRate,
	}.Normalize()
}

// Validate reports the first invalid setting, wrapped in ErrInvalid.
func (c Config) Validate() error {
	a := c.AuditLog
	switch a.Destination {
	case "", "file", "console", "syslog":
	default:
		return fmt.Errorf("%w: auditLog.destination must be file, console or syslog, got %q", ErrInvalid, a.Destination)
	}
	switch strings.ToUpper(a.Format) {
	case "JSON":
	case "BSON":
		return fmt.Errorf("%w: auditLog.format BSON is not supported", ErrInvalid)
	default:
		return fmt.Errorf("%w: auditLog.format must be JSON, got %q", ErrInvalid, a.Format)
	}
	switch a.OnExisting {
	case file.PolicyRotate, file.PolicyAppend, file.PolicyFail:
	default:
		return fmt.Errorf("%w: auditLog.onExisting must be rotate, append or fail, got %q", ErrInvalid, a.OnExisting)
	}
	if a.Destination == "file" {
		if err := file.Validate(a.Path); err != nil {
			return fmt.Errorf("%w: auditLog.path: %w", ErrInvalid, err)
		}
	}
	if _, err := filter.Compile(a.Filter); err != nil {
		return fmt.Errorf("%w: auditLog.filter: %w", ErrInvalid, err)
	}
	if err := c.Sampling().Validate(); err != nil {
		return fmt.Errorf("%w: profiling: %w", ErrInvalid, err)
	}
	if c.Profiling.SlowMs < 0 {
		return fmt.Errorf("%w: profiling.slowms must not be negative", ErrInvalid)
	}
	if c.Profiling.StoreCapacity < 0 {
		return fmt.Errorf("%w: profiling.storeCapacity must not be negative", ErrInvalid)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getenvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

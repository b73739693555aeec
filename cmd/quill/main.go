package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/crimson-sun/quill/internal/admin"
	"github.com/crimson-sun/quill/internal/config"
	"github.com/crimson-sun/quill/internal/logging"
	"github.com/crimson-sun/quill/internal/pipeline"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "quill",
		Short: "Operation audit and profiling capture daemon",
		Long: `quill records privileged operations as durable audit events and samples
operations into a profiling store.

Signals:
  SIGUSR1          rotate the audit log
  SIGINT, SIGTERM  record shutdown, flush and exit`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath, cmd.Flags())
			if err != nil {
				return err
			}
			logging.Init(cfg.AuditLog.Destination == "console", logging.ParseLevel(cfg.Log.Level))
			return serve(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	addConfigFlags(root.Flags())
	root.AddCommand(newValidateCmd(&configPath))
	return root
}

func newValidateCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath, cmd.Flags())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "configuration ok: destination=%q path=%q profiling=%d\n",
				cfg.AuditLog.Destination, cfg.AuditLog.Path, cfg.Profiling.Mode)
			return nil
		},
	}
	addConfigFlags(cmd.Flags())
	return cmd
}

func addConfigFlags(fs *pflag.FlagSet) {
	fs.String("audit-destination", "", "audit destination: file, console or syslog (empty disables auditing)")
	fs.String("audit-path", "", "audit log file path (file destination)")
	fs.String("audit-filter", "", "JSON query document selecting events to record")
	fs.String("audit-on-existing", "", "non-empty audit file at start: rotate, append or fail")
	fs.Bool("audit-authorization-success", false, "also record successful authorization checks")
	fs.Int("profile", 0, "profiling level: 0 off, 1 slow only, 2 all")
	fs.Int64("slowms", 0, "slow operation threshold in milliseconds")
	fs.Int("rate-limit", 0, "keep one in every N fast operations")
	fs.Float64("sample-rate", 0, "keep fast operations with this probability")
	fs.String("redis-addr", "", "store profile records in Redis at this address")
	fs.String("admin-addr", "", "HTTP admin listener address (empty disables)")
	fs.String("log-level", "", "diagnostic log level: debug, info, warn, error")
}

// loadConfig layers explicitly set flags over the file and environment.
func loadConfig(path string, fs *pflag.FlagSet) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(fs, &cfg); err != nil {
		return cfg, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyFlags(fs *pflag.FlagSet, cfg *config.Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if fs.Changed(name) {
			v, err := fs.GetString(name)
			errs = append(errs, err)
			*dst = v
		}
	}
	str("audit-destination", &cfg.AuditLog.Destination)
	str("audit-path", &cfg.AuditLog.Path)
	str("audit-filter", &cfg.AuditLog.Filter)
	str("audit-on-existing", &cfg.AuditLog.OnExisting)
	str("redis-addr", &cfg.Profiling.RedisAddr)
	str("admin-addr", &cfg.Admin.Addr)
	str("log-level", &cfg.Log.Level)

	if fs.Changed("audit-authorization-success") {
		v, err := fs.GetBool("audit-authorization-success")
		errs = append(errs, err)
		cfg.AuditLog.AuthorizationSuccess = v
	}
	if fs.Changed("profile") {
		v, err := fs.GetInt("profile")
		errs = append(errs, err)
		cfg.Profiling.Mode = v
	}
	if fs.Changed("slowms") {
		v, err := fs.GetInt64("slowms")
		errs = append(errs, err)
		cfg.Profiling.SlowMs = v
	}
	if fs.Changed("rate-limit") {
		v, err := fs.GetInt("rate-limit")
		errs = append(errs, err)
		cfg.Profiling.RateLimit = v
	}
	if fs.Changed("sample-rate") {
		v, err := fs.GetFloat64("sample-rate")
		errs = append(errs, err)
		cfg.Profiling.SampleRate = v
	}
	return errors.Join(errs...)
}

// serve runs the pipeline until SIGINT or SIGTERM, rotating on the
// platform's rotate signal.
func serve(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.New(ctx, cfg)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Admin.Addr != "" {
		srv := admin.New(cfg.Admin.Addr, p, p.Metrics())
		g.Go(srv.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	g.Go(func() error {
		rotate := make(chan os.Signal, 1)
		if len(rotateSignals) > 0 {
			signal.Notify(rotate, rotateSignals...)
			defer signal.Stop(rotate)
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-rotate:
				if err := p.RotateLog(gctx); err != nil {
					slog.Error("audit log rotation failed", "error", err)
				}
			}
		}
	})

	slog.Info("quill running", "destination", cfg.AuditLog.Destination, "admin", cfg.Admin.Addr)
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return errors.Join(runErr, p.Shutdown(shutdownCtx))
}

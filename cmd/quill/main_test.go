package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/pflag"

	"github.com/crimson-sun/quill/internal/config"
)

func TestApplyFlagsOnlyChanged(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addConfigFlags(fs)
	if err := fs.Parse([]string{"--audit-destination=console", "--profile=2", "--slowms=50"}); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.AuditLog.Filter = `{"atype":"authenticate"}`
	if err := applyFlags(fs, &cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.AuditLog.Destination != "console" {
		t.Errorf("destination = %q", cfg.AuditLog.Destination)
	}
	if cfg.Profiling.Mode != 2 || cfg.Profiling.SlowMs != 50 {
		t.Errorf("profiling = %+v", cfg.Profiling)
	}
	if cfg.AuditLog.Filter != `{"atype":"authenticate"}` {
		t.Errorf("unset flag overwrote filter: %q", cfg.AuditLog.Filter)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.yaml")
	content := "auditLog:\n  destination: file\n  path: " + filepath.Join(dir, "audit.json") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"validate", "--config", path, "--profile=1"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("validate: %v\n%s", err, out.String())
	}
	if !strings.Contains(out.String(), "configuration ok") || !strings.Contains(out.String(), "profiling=1") {
		t.Errorf("output = %q", out.String())
	}
}

func TestValidateCommandRejects(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"relative path", []string{"validate", "--audit-destination=file", "--audit-path=audit.json"}},
		{"non-numeric profile", []string{"validate", "--profile=nope"}},
		{"bad filter", []string{"validate", "--audit-destination=console", "--audit-filter={"}},
		{"exclusive sampling", []string{"validate", "--rate-limit=5", "--sample-rate=0.5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetErr(&out)
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err == nil {
				t.Fatalf("expected error, output %q", out.String())
			}
		})
	}
}

package sink

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/crimson-sun/quill/internal/model"
)

type nopSink struct{ opts Options }

func (n *nopSink) Write(context.Context, []byte) error { return nil }
func (n *nopSink) Close() error                        { return nil }

func TestRegistry(t *testing.T) {
	Register("test-nop", func(opts Options) (Sink, error) {
		return &nopSink{opts: opts}, nil
	})

	s, err := Open("test-nop", Options{Path: "/x"})
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if s.(*nopSink).opts.Path != "/x" {
		t.Errorf("options not passed through")
	}

	if _, err := Get("nope"); err == nil {
		t.Error("expected error for unknown destination")
	}

	found := false
	for _, d := range Destinations() {
		if d == "test-nop" {
			found = true
		}
	}
	if !found {
		t.Errorf("Destinations() = %v, missing test-nop", Destinations())
	}
}

func TestEncodeTerminatesLine(t *testing.T) {
	rec := model.NewEventRecord(model.AtypeShutdown, time.Unix(0, 0), model.Endpoint{}, model.Endpoint{}, nil, nil, 0)
	line, err := Encode(rec)
	if err != nil {
		t.Fatalf("Encode error: %v", err)
	}
	if !strings.HasSuffix(string(line), "}\n") {
		t.Errorf("line = %q, want trailing }\\n", line)
	}
	if strings.Count(string(line), "\n") != 1 {
		t.Errorf("line contains %d newlines, want 1", strings.Count(string(line), "\n"))
	}
}

func TestEncodeError(t *testing.T) {
	rec := model.NewEventRecord(model.AtypeApplicationMessage, time.Unix(0, 0), model.Endpoint{}, model.Endpoint{}, nil,
		model.D("bad", make(chan int)), 0)
	if _, err := Encode(rec); err == nil {
		t.Error("expected error encoding a channel")
	}
}

func TestRotatedName(t *testing.T) {
	now := time.Date(2026, 2, 28, 12, 30, 45, 0, time.UTC)
	taken := map[string]bool{}
	exists := func(p string) bool { return taken[p] }

	got := RotatedName("/var/log/auditLog.json", now, exists)
	want := "/var/log/auditLog.json.2026-02-28T12-30-45"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}

	taken[want] = true
	taken[want+".1"] = true
	if got := RotatedName("/var/log/auditLog.json", now, exists); got != want+".2" {
		t.Errorf("got %q, want %q", got, want+".2")
	}
}

//go:build !windows && !plan9

package syslog

import (
	"bytes"
	"context"
	"fmt"
	"log/syslog"

	"github.com/crimson-sun/quill/internal/sink"
)

const defaultTag = "quill"

func init() {
	sink.Register("syslog", func(opts sink.Options) (sink.Sink, error) {
		return New(opts.Tag)
	})
}

// logWriter is the subset of *syslog.Writer the sink uses.
type logWriter interface {
	Info(m string) error
	Close() error
}

// Sink forwards audit lines to the local syslog daemon at LOG_USER|LOG_INFO.
type Sink struct {
	w logWriter
}

// New connects to the local syslog daemon. An empty tag uses "quill".
func New(tag string) (*Sink, error) {
	if tag == "" {
		tag = defaultTag
	}
	w, err := syslog.New(syslog.LOG_USER|syslog.LOG_INFO, tag)
	if err != nil {
		return nil, fmt.Errorf("syslog sink: connect: %w", err)
	}
	return &Sink{w: w}, nil
}

// Write sends one line without its trailing newline.
func (s *Sink) Write(_ context.Context, line []byte) error {
	if err := s.w.Info(string(bytes.TrimRight(line, "\n"))); err != nil {
		return fmt.Errorf("syslog sink: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.w.Close()
}

func (s *Sink) Destination() string {
	return "syslog"
}

func (s *Sink) Path() string {
	return ""
}

package multi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/crimson-sun/quill/internal/sink"
)

// ErrMultipleRotatable is returned by Rotate when more than one child is
// file backed, since the group could not be rotated as a unit.
var ErrMultipleRotatable = errors.New("multi sink: more than one rotatable child")

// Multi fans out lines to several sinks in order. If one sink fails, the
// remaining sinks still receive the line.
type Multi struct {
	sinks []sink.Sink

	// rotated is set once Rotate hands the group over to a successor; Close
	// then closes only this child, the rest belong to the successor.
	rotated sink.Sink
}

// New creates a Multi over the given sinks.
func New(sinks ...sink.Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Write delivers the line to every sink. Errors are collected but do not
// prevent delivery to later sinks.
func (m *Multi) Write(ctx context.Context, line []byte) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Write(ctx, line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Sync syncs every child that buffers.
func (m *Multi) Sync() error {
	var errs []error
	for _, s := range m.sinks {
		if sy, ok := s.(sink.Syncer); ok {
			if err := sy.Sync(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Rotate rotates the single rotatable child, if any, and returns a Multi
// holding the replacement in its place. Without a rotatable child it returns
// the receiver.
func (m *Multi) Rotate(now time.Time) (sink.Sink, error) {
	idx := -1
	for i, s := range m.sinks {
		if _, ok := s.(sink.Rotator); ok {
			if idx >= 0 {
				return nil, ErrMultipleRotatable
			}
			idx = i
		}
	}
	if idx < 0 {
		return m, nil
	}
	fresh, err := m.sinks[idx].(sink.Rotator).Rotate(now)
	if err != nil {
		return nil, err
	}
	next := make([]sink.Sink, len(m.sinks))
	copy(next, m.sinks)
	next[idx] = fresh
	m.rotated = m.sinks[idx]
	return &Multi{sinks: next}, nil
}

// Close calls Close on every sink, collecting errors. After a successful
// Rotate only the rotated-away child is closed.
func (m *Multi) Close() error {
	if m.rotated != nil {
		return m.rotated.Close()
	}
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Destination joins the children's destinations with commas.
func (m *Multi) Destination() string {
	var parts []string
	for _, s := range m.sinks {
		if d, ok := s.(sink.Describer); ok {
			parts = append(parts, d.Destination())
		}
	}
	return strings.Join(parts, ",")
}

// Path returns the first non-empty child path.
func (m *Multi) Path() string {
	for _, s := range m.sinks {
		if d, ok := s.(sink.Describer); ok && d.Path() != "" {
			return d.Path()
		}
	}
	return ""
}

func (m *Multi) String() string {
	return fmt.Sprintf("multi(%s)", m.Destination())
}

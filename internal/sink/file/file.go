package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/crimson-sun/quill/internal/sink"
)

const (
	defaultBufSize    = 64 * 1024 // 64KB
	defaultMaxRetries = 10

	// bufferedLimitFactor bounds buffered bytes, as a multiple of bufSize,
	// while the file refuses writes.
	bufferedLimitFactor = 4
)

// On-existing policies applied when the destination already holds data.
const (
	PolicyRotate = "rotate"
	PolicyAppend = "append"
	PolicyFail   = "fail"
)

func init() {
	sink.Register("file", func(opts sink.Options) (sink.Sink, error) {
		return New(opts.Path, WithOnExisting(opts.OnExisting))
	})
}

// Option configures a file Sink.
type Option func(*Sink)

// WithBufSize sets how many bytes are buffered before a write reaches the
// file outside of Sync. Default: 64KB.
func WithBufSize(bytes int) Option {
	return func(s *Sink) { s.bufSize = bytes }
}

// WithMaxBuffered caps the bytes held while the file refuses writes. Once
// the cap is reached Write rejects new lines with sink.ErrBufferFull.
// Default: four times the buffer size.
func WithMaxBuffered(bytes int) Option {
	return func(s *Sink) { s.maxBuffered = bytes }
}

// WithOnExisting sets the policy for a non-empty destination at open time.
// Empty selects PolicyRotate.
func WithOnExisting(policy string) Option {
	return func(s *Sink) {
		if policy != "" {
			s.policy = policy
		}
	}
}

// WithMaxRetries sets how many times a transient write error is retried.
// Default: 10.
func WithMaxRetries(n uint64) Option {
	return func(s *Sink) { s.maxRetries = n }
}

// WithClock sets the time source used to name a file renamed away at open.
func WithClock(now func() time.Time) Option {
	return func(s *Sink) { s.now = now }
}

type handle interface {
	io.Writer
	Sync() error
	Close() error
}

// Sink appends NDJSON lines to a file. Lines are buffered and pushed to the
// file on Sync, which also fsyncs.
type Sink struct {
	mu          sync.Mutex
	f           handle
	buf         bytes.Buffer
	path        string
	policy      string
	bufSize     int
	maxBuffered int
	maxRetries  uint64
	now         func() time.Time
	open        func(path string) (handle, error)
	lost        uint64
}

// New validates path and opens the file according to the on-existing policy.
func New(path string, opts ...Option) (*Sink, error) {
	s := &Sink{
		path:       path,
		policy:     PolicyRotate,
		bufSize:    defaultBufSize,
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		open:       openAppend,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.maxBuffered <= 0 {
		s.maxBuffered = bufferedLimitFactor * s.bufSize
	}
	switch s.policy {
	case PolicyRotate, PolicyAppend, PolicyFail:
	default:
		return nil, fmt.Errorf("%w: %q", sink.ErrBadPolicy, s.policy)
	}
	if err := Validate(path); err != nil {
		return nil, err
	}
	if err := s.prepare(); err != nil {
		return nil, err
	}
	if err := s.openFile(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks that path is absolute and its directory exists.
func Validate(path string) error {
	if !filepath.IsAbs(path) {
		return fmt.Errorf("%w: %q", sink.ErrRelativePath, path)
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", sink.ErrNoDirectory, dir)
	}
	return nil
}

// prepare applies the on-existing policy to a non-empty file at path.
func (s *Sink) prepare() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("file sink: stat %s: %w", s.path, err)
	}
	if info.Size() == 0 {
		return nil
	}
	switch s.policy {
	case PolicyAppend:
		return nil
	case PolicyFail:
		return fmt.Errorf("%w: %s", sink.ErrNotEmpty, s.path)
	default:
		target := sink.RotatedName(s.path, s.now(), exists)
		if err := os.Rename(s.path, target); err != nil {
			return fmt.Errorf("file sink: rename previous %s: %w", s.path, err)
		}
		return nil
	}
}

func openAppend(path string) (handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Sink) openFile() error {
	f, err := s.open(s.path)
	if err != nil {
		return fmt.Errorf("file sink: open %s: %w", s.path, err)
	}
	s.f = f
	return nil
}

// Write buffers one line. The buffer is pushed to the file when it grows
// past the configured size. A failed push keeps the buffered lines for the
// next attempt and is reported by Sync; Write itself fails only when the
// line is rejected because the buffer is at its cap.
func (s *Sink) Write(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len()+len(line) > s.maxBuffered {
		if err := s.flushLocked(); err != nil {
			s.lost++
			return fmt.Errorf("%w: %w", sink.ErrBufferFull, err)
		}
	}
	s.buf.Write(line)
	if s.buf.Len() >= s.bufSize {
		_ = s.flushLocked()
	}
	return nil
}

// Buffered returns the number of bytes not yet written to the file.
func (s *Sink) Buffered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Len()
}

// Lost returns the number of lines rejected with sink.ErrBufferFull.
func (s *Sink) Lost() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lost
}

// Sync writes out buffered lines and fsyncs the file.
func (s *Sink) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return err
	}
	if err := s.f.Sync(); err != nil {
		return fmt.Errorf("file sink: fsync: %w", err)
	}
	return nil
}

// Close flushes, fsyncs and closes the file.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		lines := bytes.Count(s.buf.Bytes(), []byte{'\n'})
		s.buf.Reset()
		s.f.Close()
		return fmt.Errorf("file sink: close: %d buffered lines lost: %w", lines, err)
	}
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return fmt.Errorf("file sink: fsync: %w", err)
	}
	return s.f.Close()
}

// Rotate pushes buffered lines to the current file, renames it to a
// timestamped name and opens a fresh sink at the original path. If the new
// file cannot be opened the rename is undone.
func (s *Sink) Rotate(now time.Time) (sink.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.flushLocked(); err != nil {
		return nil, fmt.Errorf("file sink: rotate: %w", err)
	}
	target := sink.RotatedName(s.path, now, exists)
	if err := os.Rename(s.path, target); err != nil {
		return nil, fmt.Errorf("file sink: rotate: rename: %w", err)
	}
	next := &Sink{
		path:        s.path,
		policy:      s.policy,
		bufSize:     s.bufSize,
		maxBuffered: s.maxBuffered,
		maxRetries:  s.maxRetries,
		now:         s.now,
		open:        s.open,
	}
	if err := next.openFile(); err != nil {
		if rerr := os.Rename(target, s.path); rerr != nil {
			return nil, fmt.Errorf("file sink: rotate: %w (undo rename: %v)", err, rerr)
		}
		return nil, fmt.Errorf("file sink: rotate: %w", err)
	}
	return next, nil
}

func (s *Sink) Destination() string {
	return "file"
}

func (s *Sink) Path() string {
	return s.path
}

// flushLocked writes the buffer to the file, retrying transient errors with
// exponential backoff. Bytes already written are not repeated; on failure
// the unwritten suffix stays buffered, so a line cut short is completed by
// the next successful flush.
func (s *Sink) flushLocked() error {
	if s.buf.Len() == 0 {
		return nil
	}
	op := func() error {
		for s.buf.Len() > 0 {
			n, err := s.f.Write(s.buf.Bytes())
			s.buf.Next(n)
			if err != nil {
				if retryable(err) {
					return err
				}
				return backoff.Permanent(err)
			}
		}
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	if err := backoff.Retry(op, backoff.WithMaxRetries(b, s.maxRetries)); err != nil {
		return fmt.Errorf("file sink: write: %w", err)
	}
	return nil
}

func retryable(err error) bool {
	return errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EWOULDBLOCK) ||
		errors.Is(err, syscall.EINTR)
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/crimson-sun/quill/internal/sink"
)

func init() {
	sink.Register("console", func(sink.Options) (sink.Sink, error) {
		return New(os.Stdout), nil
	})
}

// Sink writes audit lines to a stream, stdout by default.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// New creates a console Sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{w: w}
}

func (s *Sink) Write(_ context.Context, line []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(line); err != nil {
		return fmt.Errorf("console sink: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return nil
}

func (s *Sink) Destination() string {
	return "console"
}

func (s *Sink) Path() string {
	return ""
}

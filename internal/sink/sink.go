package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crimson-sun/quill/internal/model"
)

// Sink is an append-only destination for encoded audit lines. Each line is
// one complete JSON object terminated by a newline.
type Sink interface {
	Write(ctx context.Context, line []byte) error
	Close() error
}

// Syncer is implemented by sinks that buffer. Sync pushes buffered lines to
// durable storage; the writer calls it after every batch.
type Syncer interface {
	Sync() error
}

// Rotator is implemented by sinks backed by a file. Rotate retires the
// current file under a timestamped name and returns a fresh sink at the
// original path. On error the receiver is still usable and nothing on disk
// has changed.
type Rotator interface {
	Rotate(now time.Time) (Sink, error)
}

// Describer reports what getAuditOptions should show for a sink.
type Describer interface {
	Destination() string
	Path() string
}

// Sentinel errors for sink construction.
var (
	ErrRelativePath = errors.New("sink: path must be absolute")
	ErrNoDirectory  = errors.New("sink: destination directory does not exist")
	ErrNotEmpty     = errors.New("sink: destination file exists and is not empty")
	ErrBadPolicy    = errors.New("sink: unknown onExisting policy")
)

// ErrBufferFull is returned by Write when a buffering sink cannot accept a
// line because earlier lines could not be written out. The rejected line is
// lost; lines accepted before it are kept.
var ErrBufferFull = errors.New("sink: write buffer full")

// Encode renders rec as one newline-terminated JSON line.
func Encode(rec model.EventRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("sink: encode %s: %w", rec.Atype(), err)
	}
	return append(data, '\n'), nil
}

// RotatedName returns the name a file at path is renamed to when rotated at
// now. exists reports whether a candidate is taken; a ".N" suffix is added
// until a free name is found.
func RotatedName(path string, now time.Time, exists func(string) bool) string {
	base := path + "." + now.UTC().Format("2006-01-02T15-04-05")
	if !exists(base) {
		return base
	}
	for i := 1; ; i++ {
		name := fmt.Sprintf("%s.%d", base, i)
		if !exists(name) {
			return name
		}
	}
}

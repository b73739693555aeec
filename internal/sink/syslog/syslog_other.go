//go:build windows || plan9

package syslog

import (
	"errors"

	"github.com/crimson-sun/quill/internal/sink"
)

func init() {
	sink.Register("syslog", func(sink.Options) (sink.Sink, error) {
		return nil, errors.New("syslog sink: not supported on this platform")
	})
}

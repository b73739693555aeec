// Package command implements the administrative commands that inspect and
// reconfigure the audit and profiling pipeline at runtime.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/crimson-sun/quill/internal/model"
)

// Reply is a successful command result. Run sets "ok" to 1.
type Reply map[string]any

// Handler runs one command. cmd is the full command document; its first
// key names the command.
type Handler func(ctx context.Context, cmd model.Doc) (Reply, error)

// Dispatcher routes command documents to handlers by name.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Handle registers h under name, replacing any previous handler.
func (d *Dispatcher) Handle(name string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[name] = h
}

// Names returns the registered command names, sorted.
func (d *Dispatcher) Names() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers))
	for n := range d.handlers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes cmd. Failures are always returned as *Error; a panicking
// handler is reported as an internal error.
func (d *Dispatcher) Run(ctx context.Context, cmd model.Doc) (reply Reply, err error) {
	if len(cmd) == 0 {
		return nil, errorf(CodeBadValue, "empty command document")
	}
	name := cmd[0].Key
	d.mu.RLock()
	h, ok := d.handlers[name]
	d.mu.RUnlock()
	if !ok {
		return nil, errorf(CodeCommandNotFound, "no such command: '%s'", name)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("command panicked", "command", name, "panic", r)
			reply, err = nil, errorf(CodeInternalError, "%s: %v", name, r)
		}
	}()
	reply, err = h(ctx, cmd)
	if err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			ce = &Error{Code: CodeInternalError, Message: fmt.Sprintf("%s: %v", name, err)}
		}
		return nil, ce
	}
	if reply == nil {
		reply = Reply{}
	}
	reply["ok"] = 1
	return reply, nil
}

package dedup

import "github.com/cespare/xxhash/v2"

const defaultWindow = 4096

// Config controls deduplication behavior.
type Config struct {
	Window int // number of recent lines remembered (default 4096)
}

// Guard suppresses a line identical to one of the last Window lines written
// to the same file. Identity is the xxhash64 of the encoded line, which
// covers every field of the record.
//
// Not safe for concurrent use; the writer's flusher owns it.
type Guard struct {
	window int
	ring   []uint64
	next   int
	full   bool
	seen   map[uint64]struct{}
	dups   uint64
}

// New creates a Guard with the given config.
func New(cfg Config) *Guard {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	return &Guard{
		window: cfg.Window,
		ring:   make([]uint64, cfg.Window),
		seen:   make(map[uint64]struct{}, cfg.Window),
	}
}

// Admit reports whether line should be written and remembers it if so.
// A duplicate returns false.
func (g *Guard) Admit(line []byte) bool {
	h := xxhash.Sum64(line)
	if _, dup := g.seen[h]; dup {
		g.dups++
		return false
	}
	if g.full {
		delete(g.seen, g.ring[g.next])
	}
	g.ring[g.next] = h
	g.seen[h] = struct{}{}
	g.next++
	if g.next == g.window {
		g.next = 0
		g.full = true
	}
	return true
}

// Reset forgets every remembered line. Called when the writer switches to a
// new file.
func (g *Guard) Reset() {
	clear(g.seen)
	g.next = 0
	g.full = false
}

// Duplicates returns the number of lines rejected so far.
func (g *Guard) Duplicates() uint64 {
	return g.dups
}

package sink

import (
	"fmt"
	"sort"
	"sync"
)

// Options carries the settings a sink kind may need.
type Options struct {
	Path       string // file only
	OnExisting string // file only: rotate, append or fail
	Tag        string // syslog only
}

// Constructor creates a sink from options.
type Constructor func(opts Options) (Sink, error)

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// Register adds a sink constructor under the given destination name.
func Register(name string, ctor Constructor) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = ctor
}

// Get returns the constructor registered for destination.
func Get(name string) (Constructor, error) {
	mu.RLock()
	defer mu.RUnlock()
	ctor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown audit destination: %s", name)
	}
	return ctor, nil
}

// Open looks up destination and constructs the sink.
func Open(destination string, opts Options) (Sink, error) {
	ctor, err := Get(destination)
	if err != nil {
		return nil, err
	}
	return ctor(opts)
}

// Destinations returns the registered destination names, sorted.
func Destinations() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

package sampling

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"

	"github.com/crimson-sun/quill/internal/model"
)

// Defaults for the profiling parameters.
const (
	DefaultSlowMs     = 100
	DefaultRateLimit  = 1
	DefaultSampleRate = 1.0
)

var (
	// ErrMutuallyExclusive is returned when an update would leave both the
	// rate limit and the sample rate away from their defaults.
	ErrMutuallyExclusive = errors.New("sampling: profilingRateLimit and sampleRate are mutually exclusive")
	ErrInvalidMode       = errors.New("sampling: profiling level must be 0, 1 or 2")
	ErrInvalidRateLimit  = errors.New("sampling: rate limit must not be negative")
	ErrInvalidSampleRate = errors.New("sampling: sample rate must be within [0, 1]")
)

// Settings is one immutable configuration of the policy.
type Settings struct {
	Mode       int     // model.ProfileOff, ProfileSlowOnly or ProfileAll
	SlowMs     int64   // candidates at or above this duration are always kept
	RateLimit  int     // keep one in every RateLimit fast candidates
	SampleRate float64 // keep each fast candidate with this probability
}

// DefaultSettings returns profiling off with default thresholds.
func DefaultSettings() Settings {
	return Settings{
		Mode:       model.ProfileOff,
		SlowMs:     DefaultSlowMs,
		RateLimit:  DefaultRateLimit,
		SampleRate: DefaultSampleRate,
	}
}

// Normalize returns s with a zero rate limit mapped to 1.
func (s Settings) Normalize() Settings {
	if s.RateLimit == 0 {
		s.RateLimit = 1
	}
	return s
}

// Validate checks ranges and the mutual exclusion rule. It expects a
// normalized value.
func (s Settings) Validate() error {
	switch s.Mode {
	case model.ProfileOff, model.ProfileSlowOnly, model.ProfileAll:
	default:
		return fmt.Errorf("%w: got %d", ErrInvalidMode, s.Mode)
	}
	if s.RateLimit < 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidRateLimit, s.RateLimit)
	}
	if math.IsNaN(s.SampleRate) || s.SampleRate < 0 || s.SampleRate > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidSampleRate, s.SampleRate)
	}
	if s.RateLimit != DefaultRateLimit && s.SampleRate != DefaultSampleRate {
		return ErrMutuallyExclusive
	}
	return nil
}

// Option configures a Policy.
type Option func(*Policy)

// WithRand sets the source of uniform [0,1) values used for sample-rate
// trials. Default: math/rand/v2.
func WithRand(f func() float64) Option {
	return func(p *Policy) { p.rand = f }
}

// Policy decides which profiling candidates are kept. Decide reads one
// settings snapshot per call; updates swap the snapshot wholesale.
type Policy struct {
	snap    atomic.Pointer[Settings]
	counter atomic.Uint64
	mu      sync.Mutex // serializes updates
	rand    func() float64
}

// New creates a Policy with the given initial settings.
func New(s Settings, opts ...Option) (*Policy, error) {
	s = s.Normalize()
	if err := s.Validate(); err != nil {
		return nil, err
	}
	p := &Policy{rand: rand.Float64}
	for _, opt := range opts {
		opt(p)
	}
	p.snap.Store(&s)
	return p, nil
}

// Settings returns the current snapshot.
func (p *Policy) Settings() Settings {
	return *p.snap.Load()
}

// Decide reports whether c is kept and the rate limit recorded with it.
func (p *Policy) Decide(c model.OpCandidate) (keep bool, effectiveRateLimit int) {
	s := p.snap.Load()
	if c.Millis >= s.SlowMs {
		return true, 1
	}
	if s.Mode != model.ProfileAll {
		return false, 0
	}
	if s.SampleRate != DefaultSampleRate {
		return p.rand() < s.SampleRate, s.RateLimit
	}
	n := p.counter.Add(1) - 1
	return n%uint64(s.RateLimit) == 0, s.RateLimit
}

// Update applies mutate to a copy of the current settings and installs the
// result if it validates. It returns the settings in effect before the call.
// On error the policy is unchanged.
func (p *Policy) Update(mutate func(*Settings)) (prev Settings, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev = *p.snap.Load()
	next := prev
	mutate(&next)
	next = next.Normalize()
	if err := next.Validate(); err != nil {
		return prev, err
	}
	p.snap.Store(&next)
	return prev, nil
}

// SetRateLimit changes the rate limit and returns the previous one.
func (p *Policy) SetRateLimit(n int) (was int, err error) {
	prev, err := p.Update(func(s *Settings) { s.RateLimit = n })
	return prev.RateLimit, err
}

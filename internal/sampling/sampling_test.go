package sampling

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/crimson-sun/quill/internal/model"
)

func fast() model.OpCandidate {
	return model.OpCandidate{Op: "query", NS: "D.foo", Millis: 1}
}

func slow() model.OpCandidate {
	return model.OpCandidate{Op: "query", NS: "D.foo", Millis: 500}
}

func newPolicy(t *testing.T, s Settings, opts ...Option) *Policy {
	t.Helper()
	p, err := New(s, opts...)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	return p
}

func TestRateLimitKeepsOneInN(t *testing.T) {
	s := DefaultSettings()
	s.Mode = model.ProfileAll
	s.RateLimit = 3
	p := newPolicy(t, s)

	kept := 0
	for i := 0; i < 1000; i++ {
		keep, rl := p.Decide(fast())
		if keep {
			kept++
			if rl != 3 {
				t.Fatalf("effective rate limit = %d, want 3", rl)
			}
		}
	}
	if kept != 334 {
		t.Errorf("kept %d of 1000, want 334", kept)
	}
	if kept <= 300 || kept >= 366 {
		t.Errorf("kept %d outside (300, 366)", kept)
	}
}

func TestRateLimitFixedPhase(t *testing.T) {
	s := DefaultSettings()
	s.Mode = model.ProfileAll
	s.RateLimit = 4
	p := newPolicy(t, s)

	var pattern []bool
	for i := 0; i < 8; i++ {
		keep, _ := p.Decide(fast())
		pattern = append(pattern, keep)
	}
	want := []bool{true, false, false, false, true, false, false, false}
	for i := range want {
		if pattern[i] != want[i] {
			t.Fatalf("pattern = %v, want %v", pattern, want)
		}
	}
}

func TestRateLimitConcurrentCount(t *testing.T) {
	s := DefaultSettings()
	s.Mode = model.ProfileAll
	s.RateLimit = 5
	p := newPolicy(t, s)

	var mu sync.Mutex
	kept := 0
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := 0
			for i := 0; i < 100; i++ {
				if keep, _ := p.Decide(fast()); keep {
					local++
				}
			}
			mu.Lock()
			kept += local
			mu.Unlock()
		}()
	}
	wg.Wait()
	if kept != 200 {
		t.Errorf("kept %d of 1000 with N=5, want 200", kept)
	}
}

func TestSlowOverride(t *testing.T) {
	tests := []struct {
		name string
		s    Settings
	}{
		{"off", Settings{Mode: model.ProfileOff, SlowMs: 100, RateLimit: 1, SampleRate: 1}},
		{"slow only", Settings{Mode: model.ProfileSlowOnly, SlowMs: 100, RateLimit: 1, SampleRate: 1}},
		{"rate limited", Settings{Mode: model.ProfileAll, SlowMs: 100, RateLimit: 1000, SampleRate: 1}},
		{"sample rate zero", Settings{Mode: model.ProfileAll, SlowMs: 100, RateLimit: 1, SampleRate: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPolicy(t, tt.s)
			for i := 0; i < 50; i++ {
				keep, rl := p.Decide(slow())
				if !keep || rl != 1 {
					t.Fatalf("slow candidate: keep=%v rateLimit=%d, want true, 1", keep, rl)
				}
			}
		})
	}
}

func TestModeGatesFastCandidates(t *testing.T) {
	for _, mode := range []int{model.ProfileOff, model.ProfileSlowOnly} {
		s := DefaultSettings()
		s.Mode = mode
		p := newPolicy(t, s)
		if keep, _ := p.Decide(fast()); keep {
			t.Errorf("mode %d kept a fast candidate", mode)
		}
	}
}

func TestSampleRateUsesRand(t *testing.T) {
	vals := []float64{0.1, 0.6, 0.49, 0.5}
	i := 0
	s := DefaultSettings()
	s.Mode = model.ProfileAll
	s.SampleRate = 0.5
	p := newPolicy(t, s, WithRand(func() float64 {
		v := vals[i%len(vals)]
		i++
		return v
	}))

	var got []bool
	for range vals {
		keep, _ := p.Decide(fast())
		got = append(got, keep)
	}
	want := []bool{true, false, true, false}
	for j := range want {
		if got[j] != want[j] {
			t.Fatalf("decisions = %v, want %v", got, want)
		}
	}
}

func TestMutualExclusion(t *testing.T) {
	s := DefaultSettings()
	s.SampleRate = 0.5
	p := newPolicy(t, s)

	if _, err := p.SetRateLimit(10); !errors.Is(err, ErrMutuallyExclusive) {
		t.Fatalf("SetRateLimit(10) with sampleRate 0.5: err = %v, want ErrMutuallyExclusive", err)
	}
	if got := p.Settings().RateLimit; got != 1 {
		t.Errorf("rate limit changed to %d after rejected update", got)
	}

	// Default values are always accepted.
	if _, err := p.SetRateLimit(1); err != nil {
		t.Errorf("SetRateLimit(1): %v", err)
	}

	// Resetting one while changing the other succeeds.
	prev, err := p.Update(func(s *Settings) {
		s.SampleRate = 1.0
		s.RateLimit = 10
	})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if prev.SampleRate != 0.5 {
		t.Errorf("prev sampleRate = %v, want 0.5", prev.SampleRate)
	}
	if got := p.Settings(); got.RateLimit != 10 || got.SampleRate != 1.0 {
		t.Errorf("settings = %+v, want rateLimit 10 sampleRate 1", got)
	}
}

func TestZeroRateLimitNormalized(t *testing.T) {
	p := newPolicy(t, DefaultSettings())
	p.SetRateLimit(7)
	was, err := p.SetRateLimit(0)
	if err != nil {
		t.Fatalf("SetRateLimit(0): %v", err)
	}
	if was != 7 {
		t.Errorf("was = %d, want 7", was)
	}
	if got := p.Settings().RateLimit; got != 1 {
		t.Errorf("rate limit = %d, want 1", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		s    Settings
		want error
	}{
		{Settings{Mode: 3, RateLimit: 1, SampleRate: 1}, ErrInvalidMode},
		{Settings{Mode: -1, RateLimit: 1, SampleRate: 1}, ErrInvalidMode},
		{Settings{RateLimit: -2, SampleRate: 1}, ErrInvalidRateLimit},
		{Settings{RateLimit: 1, SampleRate: 1.5}, ErrInvalidSampleRate},
		{Settings{RateLimit: 1, SampleRate: math.NaN()}, ErrInvalidSampleRate},
		{Settings{RateLimit: 2, SampleRate: 0.3}, ErrMutuallyExclusive},
		{Settings{RateLimit: 2, SampleRate: 1}, nil},
	}
	for _, tt := range tests {
		if err := tt.s.Validate(); !errors.Is(err, tt.want) {
			t.Errorf("Validate(%+v) = %v, want %v", tt.s, err, tt.want)
		}
	}
	if _, err := New(Settings{RateLimit: 2, SampleRate: 0.3}); !errors.Is(err, ErrMutuallyExclusive) {
		t.Errorf("New with both non-default: err = %v", err)
	}
}

func TestUpdateRejectsNaNSampleRate(t *testing.T) {
	p, err := New(DefaultSettings())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Update(func(s *Settings) { s.SampleRate = math.NaN() }); !errors.Is(err, ErrInvalidSampleRate) {
		t.Fatalf("Update(NaN) err = %v, want ErrInvalidSampleRate", err)
	}
	if got := p.Settings().SampleRate; got != DefaultSampleRate {
		t.Errorf("sample rate = %v after rejected update, want %v", got, DefaultSampleRate)
	}
}

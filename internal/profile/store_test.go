package profile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/crimson-sun/quill/internal/model"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return mr, client
}

func profileRec(op, ns string, millis int64, rateLimit int) model.ProfileRecord {
	return model.ProfileRecord{
		Op:        op,
		NS:        ns,
		Millis:    millis,
		Command:   model.D("find", "foo"),
		Timestamp: time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC),
		RateLimit: rateLimit,
	}
}

// stores returns each Store implementation with the given capacity.
func stores(t *testing.T, capacity int) map[string]Store {
	t.Helper()
	_, client := newTestRedis(t)
	r := NewRedis(client, "test:profile", capacity)
	t.Cleanup(func() { r.Close() })
	return map[string]Store{
		"memory": NewMemory(capacity),
		"redis":  r,
	}
}

func TestStoreQuery(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 100) {
		t.Run(name, func(t *testing.T) {
			s.Insert(ctx, profileRec("query", "D.foo", 5, 3))
			s.Insert(ctx, profileRec("query", "D.foo", 250, 1))
			s.Insert(ctx, profileRec("insert", "D.foo", 2, 3))
			s.Insert(ctx, profileRec("query", "D.bar", 7, 3))

			tests := []struct {
				q    Query
				want int
			}{
				{Query{}, 4},
				{Query{Op: "query"}, 3},
				{Query{NS: "D.foo"}, 3},
				{Query{MinMillis: 100}, 1},
				{Query{MaxMillis: 5}, 2},
				{Query{RateLimit: 3}, 3},
				{Query{Op: "query", NS: "D.foo", RateLimit: 1}, 1},
			}
			for _, tt := range tests {
				n, err := s.Count(ctx, tt.q)
				if err != nil {
					t.Fatalf("Count error: %v", err)
				}
				if n != tt.want {
					t.Errorf("Count(%+v) = %d, want %d", tt.q, n, tt.want)
				}
			}

			recs, err := s.Find(ctx, Query{Limit: 2})
			if err != nil {
				t.Fatalf("Find error: %v", err)
			}
			if len(recs) != 2 {
				t.Fatalf("Find with limit returned %d, want 2", len(recs))
			}
			if recs[0].NS != "D.bar" {
				t.Errorf("newest record ns = %q, want D.bar", recs[0].NS)
			}
			if recs[0].ID == "" {
				t.Error("store did not assign an id")
			}
			if v, _ := recs[0].Command.Get("find"); v != "foo" {
				t.Errorf("command.find = %v, want foo", v)
			}
		})
	}
}

func TestStoreCapped(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 5) {
		t.Run(name, func(t *testing.T) {
			for i := 0; i < 12; i++ {
				s.Insert(ctx, profileRec("query", fmt.Sprintf("D.c%d", i), 1, 1))
			}
			recs, err := s.Find(ctx, Query{})
			if err != nil {
				t.Fatalf("Find error: %v", err)
			}
			if len(recs) != 5 {
				t.Fatalf("got %d records, want 5", len(recs))
			}
			for i, r := range recs {
				want := fmt.Sprintf("D.c%d", 11-i)
				if r.NS != want {
					t.Errorf("recs[%d].ns = %q, want %q", i, r.NS, want)
				}
			}
		})
	}
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t, 10) {
		t.Run(name, func(t *testing.T) {
			s.Insert(ctx, profileRec("query", "D.foo", 1, 1))
			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear error: %v", err)
			}
			if n, _ := s.Count(ctx, Query{}); n != 0 {
				t.Errorf("Count after Clear = %d, want 0", n)
			}
		})
	}
}

func TestRedisSkipsCorruptEntries(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	s := NewRedis(client, "", 10)
	defer s.Close()

	s.Insert(ctx, profileRec("query", "D.foo", 1, 1))
	mr.Lpush(defaultRedisKey, "not json")

	n, err := s.Count(ctx, Query{})
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if n != 1 {
		t.Errorf("Count = %d, want 1", n)
	}
}

func TestRedisInsertErrorWhenDown(t *testing.T) {
	mr, client := newTestRedis(t)
	s := NewRedis(client, "k", 10)
	defer s.Close()
	mr.Close()

	if err := s.Insert(context.Background(), profileRec("query", "D.foo", 1, 1)); err == nil {
		t.Error("expected error with redis down")
	}
}

func TestDialRedis(t *testing.T) {
	mr, client := newTestRedis(t)
	client.Close()
	s, err := DialRedis(context.Background(), mr.Addr(), "k", 10)
	if err != nil {
		t.Fatalf("DialRedis error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close error: %v", err)
	}
}

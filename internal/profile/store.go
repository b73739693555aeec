package profile

import (
	"context"

	"github.com/crimson-sun/quill/internal/model"
)

const defaultCapacity = 1024

// Query selects profile records. Zero fields match everything.
type Query struct {
	Op        string
	NS        string
	MinMillis int64
	MaxMillis int64
	RateLimit int
	Limit     int // maximum records returned by Find, newest first
}

// Match reports whether r satisfies every predicate in q.
func (q Query) Match(r model.ProfileRecord) bool {
	if q.Op != "" && r.Op != q.Op {
		return false
	}
	if q.NS != "" && r.NS != q.NS {
		return false
	}
	if q.MinMillis > 0 && r.Millis < q.MinMillis {
		return false
	}
	if q.MaxMillis > 0 && r.Millis > q.MaxMillis {
		return false
	}
	if q.RateLimit > 0 && r.RateLimit != q.RateLimit {
		return false
	}
	return true
}

// Store is a capped collection of profile records. Once full it overwrites
// the oldest record.
type Store interface {
	Insert(ctx context.Context, rec model.ProfileRecord) error
	Find(ctx context.Context, q Query) ([]model.ProfileRecord, error)
	Count(ctx context.Context, q Query) (int, error)
	Clear(ctx context.Context) error
	Close() error
}

// filter applies q to records ordered newest first.
func filter(recs []model.ProfileRecord, q Query) []model.ProfileRecord {
	out := make([]model.ProfileRecord, 0, len(recs))
	for _, r := range recs {
		if !q.Match(r) {
			continue
		}
		out = append(out, r)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out
}

package model

import "time"

// Profiling levels.
const (
	ProfileOff      = 0
	ProfileSlowOnly = 1
	ProfileAll      = 2
)

// OpCandidate is a just-completed operation considered for profiling.
type OpCandidate struct {
	Op        string    // insert, query, update, remove, command, getmore
	NS        string    // <db>.<collection>
	Millis    int64     // execution time
	Command   Doc       // raw command document
	Timestamp time.Time // completion time
	Client    Endpoint
	User      string
}

// ProfileRecord is an OpCandidate kept by the sampling policy.
type ProfileRecord struct {
	ID        string    `json:"id"`
	Op        string    `json:"op"`
	NS        string    `json:"ns"`
	Millis    int64     `json:"millis"`
	Command   Doc       `json:"command,omitempty"`
	Timestamp time.Time `json:"ts"`
	Client    Endpoint  `json:"client"`
	User      string    `json:"user,omitempty"`
	RateLimit int       `json:"rateLimit"`
}

// NewProfileRecord copies c into a record tagged with the effective rate limit.
func NewProfileRecord(c OpCandidate, rateLimit int) ProfileRecord {
	return ProfileRecord{
		Op:        c.Op,
		NS:        c.NS,
		Millis:    c.Millis,
		Command:   c.Command.Clone(),
		Timestamp: c.Timestamp.UTC(),
		Client:    c.Client,
		User:      c.User,
		RateLimit: rateLimit,
	}
}

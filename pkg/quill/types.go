package quill

import (
	"time"

	"github.com/crimson-sun/quill/internal/model"
)

// Result codes for audit events. Other codes are passed through as given.
const (
	ResultOK                   = model.ResultOK
	ResultUnauthorized         = model.ResultUnauthorized
	ResultAuthenticationFailed = model.ResultAuthenticationFailed
)

// Profiling levels.
const (
	ProfileOff      = model.ProfileOff
	ProfileSlowOnly = model.ProfileSlowOnly
	ProfileAll      = model.ProfileAll
)

// Doc is an ordered document. Build one with D.
type Doc = model.Doc

// D builds a Doc from alternating keys and values.
func D(kv ...any) Doc {
	return model.D(kv...)
}

// Endpoint is one side of a client connection.
type Endpoint struct {
	IP   string
	Port int
}

// User is an authenticated identity.
type User struct {
	Name string
	DB   string
}

// Client is the connection an event is recorded for.
type Client struct {
	Local  Endpoint
	Remote Endpoint
	Users  []User // authenticated users, empty when unauthenticated
}

// Operation is a completed operation offered to the profiler.
type Operation struct {
	Op        string        // insert, query, update, remove, command, getmore
	NS        string        // <db>.<collection>
	Duration  time.Duration // execution time
	Command   Doc           // the command document (optional)
	Timestamp time.Time     // completion time (zero = time.Now())
	Client    Endpoint
	User      string
}

// ProfileEntry is a stored profiling record.
type ProfileEntry struct {
	ID        string
	Op        string
	NS        string
	Millis    int64
	Command   Doc
	Timestamp time.Time
	Client    Endpoint
	User      string
	RateLimit int // rate limit in effect when the operation was kept
}

// ProfileQuery selects profile entries. Zero fields match everything.
type ProfileQuery struct {
	Op        string
	NS        string
	MinMillis int64
	MaxMillis int64
	RateLimit int
	Limit     int
}

func (c Client) internal() (local, remote model.Endpoint, users []model.UserName) {
	users = make([]model.UserName, len(c.Users))
	for i, u := range c.Users {
		users[i] = model.UserName{User: u.Name, DB: u.DB}
	}
	return endpoint(c.Local), endpoint(c.Remote), users
}

func endpoint(e Endpoint) model.Endpoint {
	return model.Endpoint{IP: e.IP, Port: e.Port}
}

package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// TimestampLayout is the fixed-width UTC layout used for the ts field.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Endpoint identifies one side of a client connection.
type Endpoint struct {
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// IsZero reports whether the endpoint is unset.
func (e Endpoint) IsZero() bool {
	return e.IP == "" && e.Port == 0
}

// MarshalJSON renders an unset endpoint as an empty object.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	if e.IsZero() {
		return []byte("{}"), nil
	}
	type plain Endpoint
	return json.Marshal(plain(e))
}

// UserName is an authenticated identity: user name plus authentication database.
type UserName struct {
	User string `json:"user"`
	DB   string `json:"db"`
}

// RoleName is a role qualified by its database.
type RoleName struct {
	Role string `json:"role"`
	DB   string `json:"db"`
}

// NormalizeUsers returns users with names in Unicode NFC form and duplicate
// identities removed, keeping first-occurrence order. The result is never nil.
func NormalizeUsers(users []UserName) []UserName {
	out := make([]UserName, 0, len(users))
	seen := make(map[UserName]struct{}, len(users))
	for _, u := range users {
		n := UserName{User: norm.NFC.String(u.User), DB: norm.NFC.String(u.DB)}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// EventRecord is one audit event. It is immutable: the constructor copies
// its inputs and accessors return copies.
type EventRecord struct {
	atype  string
	ts     time.Time
	local  Endpoint
	remote Endpoint
	users  []UserName
	param  Doc
	result int
}

// NewEventRecord builds an EventRecord.
func NewEventRecord(atype string, ts time.Time, local, remote Endpoint, users []UserName, param Doc, result int) EventRecord {
	if param == nil {
		param = Doc{}
	}
	return EventRecord{
		atype:  atype,
		ts:     ts.UTC(),
		local:  local,
		remote: remote,
		users:  NormalizeUsers(users),
		param:  param.Clone(),
		result: result,
	}
}

func (e EventRecord) Atype() string {
	return e.atype
}

func (e EventRecord) TS() time.Time {
	return e.ts
}

func (e EventRecord) Local() Endpoint {
	return e.local
}

func (e EventRecord) Remote() Endpoint {
	return e.remote
}

func (e EventRecord) Result() int {
	return e.result
}

func (e EventRecord) Users() []UserName {
	return append([]UserName(nil), e.users...)
}

func (e EventRecord) Param() Doc {
	return e.param.Clone()
}

func (e EventRecord) Succeeded() bool {
	return e.result == ResultOK
}

func (e EventRecord) String() string {
	return fmt.Sprintf("%s@%s result=%d", e.atype, e.ts.Format(TimestampLayout), e.result)
}

// ParamValue returns a top-level param value without copying the document.
func (e EventRecord) ParamValue(key string) (any, bool) {
	return e.param.Get(key)
}

// MarshalJSON writes the record as one JSON object with the field order
// atype, ts, local, remote, users, param, result.
func (e EventRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"atype":`)
	if err := writeJSON(&buf, e.atype); err != nil {
		return nil, err
	}
	buf.WriteString(`,"ts":{"$date":"`)
	buf.WriteString(e.ts.Format(TimestampLayout))
	buf.WriteString(`"},"local":`)
	if err := writeJSON(&buf, e.local); err != nil {
		return nil, err
	}
	buf.WriteString(`,"remote":`)
	if err := writeJSON(&buf, e.remote); err != nil {
		return nil, err
	}
	buf.WriteString(`,"users":`)
	if err := writeJSON(&buf, e.users); err != nil {
		return nil, err
	}
	buf.WriteString(`,"param":`)
	if err := writeJSON(&buf, e.param); err != nil {
		return nil, fmt.Errorf("param: %w", err)
	}
	buf.WriteString(`,"result":`)
	if err := writeJSON(&buf, e.result); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	buf.Write(data)
	return nil
}

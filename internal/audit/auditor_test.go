package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/crimson-sun/quill/internal/audit/filter"
	"github.com/crimson-sun/quill/internal/clock"
	"github.com/crimson-sun/quill/internal/model"
	"github.com/crimson-sun/quill/internal/sink"
)

type mockEnqueuer struct {
	mu   sync.Mutex
	recs []model.EventRecord
	err  error
}

func (m *mockEnqueuer) Enqueue(rec model.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.recs = append(m.recs, rec)
	return nil
}

func (m *mockEnqueuer) atypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.recs))
	for i, r := range m.recs {
		out[i] = r.Atype()
	}
	return out
}

// encodedEnqueuer records what arrives through each entry point.
type encodedEnqueuer struct {
	mockEnqueuer
	lines [][]byte
}

func (e *encodedEnqueuer) EnqueueEncoded(rec model.EventRecord, line []byte) error {
	e.mu.Lock()
	e.lines = append(e.lines, line)
	e.mu.Unlock()
	return nil
}

var testClient = Client{
	Local:  model.Endpoint{IP: "127.0.0.1", Port: 27017},
	Remote: model.Endpoint{IP: "10.1.2.3", Port: 40000},
	Users:  []model.UserName{{User: "admin", DB: "admin"}},
}

func newTestAuditor(authzSuccess bool, opts ...Option) (*Auditor, *mockEnqueuer) {
	out := &mockEnqueuer{}
	vc := clock.NewVirtualClock(time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC))
	opts = append([]Option{WithClock(clock.NewMonotonic(vc))}, opts...)
	return New(out, filter.NewGate(authzSuccess), opts...), out
}

func TestLogCreateCollection(t *testing.T) {
	a, out := newTestAuditor(false)
	a.Log(testClient, CreateCollection("D.foo"), model.ResultOK)

	if len(out.recs) != 1 {
		t.Fatalf("got %d records, want 1", len(out.recs))
	}
	rec := out.recs[0]
	if rec.Atype() != model.AtypeCreateCollection {
		t.Errorf("atype = %q, want createCollection", rec.Atype())
	}
	if ns, _ := rec.ParamValue("ns"); ns != "D.foo" {
		t.Errorf("param.ns = %v, want D.foo", ns)
	}
	if rec.Local() != testClient.Local || rec.Remote() != testClient.Remote {
		t.Errorf("endpoints = %v/%v, want %v/%v", rec.Local(), rec.Remote(), testClient.Local, testClient.Remote)
	}
}

func TestLogTimestampsUnique(t *testing.T) {
	a, out := newTestAuditor(false)
	for i := 0; i < 100; i++ {
		a.Log(testClient, ApplicationMessage("same"), model.ResultOK)
	}
	seen := make(map[time.Time]bool)
	for _, r := range out.recs {
		if seen[r.TS()] {
			t.Fatalf("duplicate ts %v", r.TS())
		}
		seen[r.TS()] = true
	}
}

func TestNilAuditorIsNoop(t *testing.T) {
	var a *Auditor
	a.Log(testClient, Shutdown(), model.ResultOK)
	a.InsertAuthzCheck(testClient, "admin.system.users", nil, model.ResultOK)
	if e, f := a.Stats(); e != 0 || f != 0 {
		t.Errorf("Stats = %d, %d; want 0, 0", e, f)
	}
}

func TestAuthCheckGate(t *testing.T) {
	a, out := newTestAuditor(false)
	a.QueryAuthzCheck(testClient, "D.foo", model.D("x", 1), model.ResultOK)
	a.QueryAuthzCheck(testClient, "D.foo", model.D("x", 1), model.ResultUnauthorized)

	if len(out.recs) != 1 {
		t.Fatalf("got %d records, want 1 (failure only)", len(out.recs))
	}
	if out.recs[0].Result() != model.ResultUnauthorized {
		t.Errorf("result = %d, want %d", out.recs[0].Result(), model.ResultUnauthorized)
	}

	a.Gate().SetAuthorizationSuccess(true)
	a.QueryAuthzCheck(testClient, "D.foo", model.D("x", 1), model.ResultOK)
	if len(out.recs) != 2 {
		t.Fatalf("got %d records after toggle, want 2", len(out.recs))
	}
	if _, f := a.Stats(); f != 1 {
		t.Errorf("filtered = %d, want 1", f)
	}
}

func TestCommandAuthzCheckParams(t *testing.T) {
	a, out := newTestAuditor(true)
	a.CommandAuthzCheck(testClient, "", model.D("currentOp", 1), model.ResultOK)
	a.CommandAuthzCheck(testClient, "D.foo", model.D("killOp", 1, "op", 12), model.ResultUnauthorized)

	if len(out.recs) != 2 {
		t.Fatalf("got %d records, want 2", len(out.recs))
	}
	if keys := out.recs[0].Param().Keys(); strings.Join(keys, ",") != "command,args" {
		t.Errorf("param keys without ns = %v, want [command args]", keys)
	}
	if keys := out.recs[1].Param().Keys(); strings.Join(keys, ",") != "command,ns,args" {
		t.Errorf("param keys = %v, want [command ns args]", keys)
	}
	if cmd, _ := out.recs[1].ParamValue("command"); cmd != "killOp" {
		t.Errorf("command = %v, want killOp", cmd)
	}
}

func TestSystemUsersSideEffects(t *testing.T) {
	tests := []struct {
		name string
		call func(a *Auditor)
		want []string
	}{
		{
			name: "insert succeeds",
			call: func(a *Auditor) {
				a.InsertAuthzCheck(testClient, "admin.system.users", model.D("user", "bob"), model.ResultOK)
			},
			want: []string{model.AtypeAuthCheck, model.AtypeCreateUser},
		},
		{
			name: "update succeeds",
			call: func(a *Auditor) {
				a.UpdateAuthzCheck(testClient, "admin.system.users", model.D("user", "bob"), model.D("$set", 1), false, false, model.ResultOK)
			},
			want: []string{model.AtypeAuthCheck, model.AtypeUpdateUser},
		},
		{
			name: "delete succeeds",
			call: func(a *Auditor) {
				a.DeleteAuthzCheck(testClient, "admin.system.users", model.D("user", "bob"), model.ResultOK)
			},
			want: []string{model.AtypeAuthCheck, model.AtypeDropUser},
		},
		{
			name: "delete unauthorized",
			call: func(a *Auditor) {
				a.DeleteAuthzCheck(testClient, "admin.system.users", model.D("user", "bob"), model.ResultUnauthorized)
			},
			want: []string{model.AtypeAuthCheck},
		},
		{
			name: "ordinary collection",
			call: func(a *Auditor) {
				a.InsertAuthzCheck(testClient, "D.foo", model.D("x", 1), model.ResultOK)
			},
			want: []string{model.AtypeAuthCheck},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, out := newTestAuditor(true)
			tt.call(a)
			got := out.atypes()
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("atypes = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSystemUsersParamCarriesDB(t *testing.T) {
	a, out := newTestAuditor(false)
	a.InsertAuthzCheck(testClient, "test.system.users", model.D("user", "bob"), model.ResultOK)
	if len(out.recs) != 1 {
		t.Fatalf("got %d records, want 1 (createUser only, success gated)", len(out.recs))
	}
	if db, _ := out.recs[0].ParamValue("db"); db != "test" {
		t.Errorf("db = %v, want test", db)
	}
}

func TestMatcherSuppresses(t *testing.T) {
	m, err := filter.Compile(`{"atype":{"$in":["authenticate","dropDatabase"]}}`)
	if err != nil {
		t.Fatalf("Compile error: %v", err)
	}
	a, out := newTestAuditor(false, WithMatcher(m))
	a.Log(testClient, CreateCollection("D.foo"), model.ResultOK)
	a.Log(testClient, DropDatabase("D"), model.ResultOK)
	a.Log(testClient, Authenticate("SCRAM-SHA-1", model.UserName{User: "john", DB: "admin"}), model.ResultAuthenticationFailed)

	got := out.atypes()
	if strings.Join(got, ",") != "dropDatabase,authenticate" {
		t.Errorf("atypes = %v, want [dropDatabase authenticate]", got)
	}
}

func TestEnqueueErrorNotPropagated(t *testing.T) {
	out := &mockEnqueuer{err: errors.New("writer closed")}
	a := New(out, nil)
	a.Log(testClient, Shutdown(), model.ResultOK)
	if e, _ := a.Stats(); e != 0 {
		t.Errorf("emitted = %d, want 0", e)
	}
}

func TestActionParamKeys(t *testing.T) {
	user := model.UserName{User: "bob", DB: "test"}
	role := model.RoleName{Role: "reader", DB: "test"}
	roles := []model.RoleName{{Role: "read", DB: "test"}}
	tests := []struct {
		act  Action
		keys string
	}{
		{Authenticate("SCRAM-SHA-1", user), "user,db,mechanism"},
		{CreateIndex("D.foo", "a_1", model.D("a", 1)), "ns,indexName,indexSpec"},
		{DropIndex("D.foo", "a_1"), "ns,indexName"},
		{RenameCollection("D.a", "D.b"), "old,new"},
		{ShardCollection("D.foo", model.D("_id", 1), true), "ns,key,options"},
		{AddShard("rs1", "rs1/h:27017", 0), "shard,connectionString,maxSize"},
		{RemoveShard("rs1"), "shard"},
		{ReplSetReconfig(nil, nil), "old,new"},
		{CreateUser(user, true, nil, roles), "user,db,password,customData,roles"},
		{UpdateUser(user, false, nil, nil), "user,db,password,customData"},
		{DropUser(user), "user,db"},
		{DropAllUsers("test"), "db"},
		{CreateRole(role, nil, nil), "role,db,roles,privileges"},
		{UpdateRole(role, roles, nil), "role,db,roles"},
		{GrantRolesToUser(user, roles), "user,db,roles"},
		{RevokeRolesFromRole(role, roles), "role,db,roles"},
		{GrantPrivilegesToRole(role, nil), "role,db,privileges"},
		{Shutdown(), ""},
	}
	for _, tt := range tests {
		if got := strings.Join(tt.act.Param.Keys(), ","); got != tt.keys {
			t.Errorf("%s: keys = %q, want %q", tt.act.Atype, got, tt.keys)
		}
	}
}

func TestShardCollectionEncoding(t *testing.T) {
	a, out := newTestAuditor(false)
	a.Log(testClient, ShardCollection("D.foo", model.D("_id", "hashed"), true), model.ResultOK)
	data, err := json.Marshal(out.recs[0])
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `"param":{"ns":"D.foo","key":{"_id":"hashed"},"options":{"unique":true}}`
	if !strings.Contains(string(data), want) {
		t.Errorf("encoded %s missing %s", data, want)
	}
}

func TestClientContext(t *testing.T) {
	if c := FromContext(context.Background()); len(c.Users) != 0 || !c.Local.IsZero() {
		t.Errorf("empty context returned %+v", c)
	}
	c := testClient
	got := FromContext(NewContext(context.Background(), c))
	if got.Remote != c.Remote || len(got.Users) != len(c.Users) {
		t.Errorf("got %+v, want %+v", got, c)
	}
}

func TestFilteredRecordHandedOverEncoded(t *testing.T) {
	m, err := filter.Compile(`{"atype":"createCollection"}`)
	if err != nil {
		t.Fatal(err)
	}
	out := &encodedEnqueuer{}
	vc := clock.NewVirtualClock(time.Date(2026, 2, 28, 12, 0, 0, 0, time.UTC))
	a := New(out, filter.NewGate(false), WithClock(vc), WithMatcher(m))

	a.Log(testClient, CreateCollection("D.foo"), model.ResultOK)
	a.Log(testClient, DropCollection("D.foo"), model.ResultOK)

	if len(out.recs) != 0 {
		t.Errorf("Enqueue called %d times, want 0", len(out.recs))
	}
	if len(out.lines) != 1 {
		t.Fatalf("EnqueueEncoded called %d times, want 1", len(out.lines))
	}
	want, _ := sink.Encode(model.NewEventRecord(model.AtypeCreateCollection, vc.Now(),
		testClient.Local, testClient.Remote, testClient.Users, model.D("ns", "D.foo"), model.ResultOK))
	if string(out.lines[0]) != string(want) {
		t.Errorf("line = %s\nwant   %s", out.lines[0], want)
	}
	if emitted, filtered := a.Stats(); emitted != 1 || filtered != 1 {
		t.Errorf("Stats = %d/%d, want 1/1", emitted, filtered)
	}
}

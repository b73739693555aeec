package audit

import (
	"strings"

	"github.com/crimson-sun/quill/internal/model"
)

const systemUsers = "system.users"

// splitNS splits "<db>.<collection>" at the first dot.
func splitNS(ns string) (db, coll string) {
	db, coll, _ = strings.Cut(ns, ".")
	return db, coll
}

// CommandAuthzCheck records the authorization decision for a command. The
// command name is the first key of cmd.
func (a *Auditor) CommandAuthzCheck(c Client, ns string, cmd model.Doc, result int) {
	name := ""
	if len(cmd) > 0 {
		name = cmd[0].Key
	}
	a.Log(c, AuthCheck(name, ns, cmd), result)
}

func (a *Auditor) QueryAuthzCheck(c Client, ns string, query model.Doc, result int) {
	a.Log(c, AuthCheck("query", ns, model.D("query", orEmpty(query))), result)
}

func (a *Auditor) GetMoreAuthzCheck(c Client, ns string, cursorID int64, result int) {
	a.Log(c, AuthCheck("getMore", ns, model.D("cursorId", cursorID)), result)
}

func (a *Auditor) KillCursorsAuthzCheck(c Client, ns string, cursorID int64, result int) {
	a.Log(c, AuthCheck("killCursors", ns, model.D("cursorId", cursorID)), result)
}

// InsertAuthzCheck records the check for an insert. A successful insert into
// <db>.system.users also records createUser.
func (a *Auditor) InsertAuthzCheck(c Client, ns string, obj model.Doc, result int) {
	a.Log(c, AuthCheck("insert", ns, model.D("obj", orEmpty(obj))), result)
	a.systemUsers(c, ns, model.AtypeCreateUser, result, "userObj", orEmpty(obj))
}

// UpdateAuthzCheck records the check for an update. A successful update of
// <db>.system.users also records updateUser.
func (a *Auditor) UpdateAuthzCheck(c Client, ns string, query, update model.Doc, upsert, multi bool, result int) {
	args := model.D(
		"pattern", orEmpty(query),
		"updateObj", orEmpty(update),
		"upsert", upsert,
		"multi", multi,
	)
	a.Log(c, AuthCheck("update", ns, args), result)
	a.systemUsers(c, ns, model.AtypeUpdateUser, result,
		"pattern", orEmpty(query),
		"updateObj", orEmpty(update),
		"upsert", upsert,
		"multi", multi,
	)
}

// DeleteAuthzCheck records the check for a delete. A successful delete from
// <db>.system.users also records dropUser.
func (a *Auditor) DeleteAuthzCheck(c Client, ns string, pattern model.Doc, result int) {
	a.Log(c, AuthCheck("delete", ns, model.D("pattern", orEmpty(pattern))), result)
	a.systemUsers(c, ns, model.AtypeDropUser, result, "pattern", orEmpty(pattern))
}

func (a *Auditor) systemUsers(c Client, ns, atype string, result int, kv ...any) {
	if a == nil || result != model.ResultOK {
		return
	}
	db, coll := splitNS(ns)
	if coll != systemUsers {
		return
	}
	param := append(model.D("db", db), model.D(kv...)...)
	a.Log(c, Action{Atype: atype, Param: param}, model.ResultOK)
}

package audit

import "github.com/crimson-sun/quill/internal/model"

// Action is an audit category plus its parameters, ready to be stamped and
// recorded by an Auditor.
type Action struct {
	Atype string
	Param model.Doc
}

func nsAction(atype, ns string) Action {
	return Action{Atype: atype, Param: model.D("ns", ns)}
}

func Authenticate(mechanism string, user model.UserName) Action {
	return Action{
		Atype: model.AtypeAuthenticate,
		Param: model.D("user", user.User, "db", user.DB, "mechanism", mechanism),
	}
}

// AuthCheck builds an authorization-check action. ns is omitted when empty.
func AuthCheck(command, ns string, args model.Doc) Action {
	if args == nil {
		args = model.Doc{}
	}
	if ns == "" {
		return Action{Atype: model.AtypeAuthCheck, Param: model.D("command", command, "args", args)}
	}
	return Action{Atype: model.AtypeAuthCheck, Param: model.D("command", command, "ns", ns, "args", args)}
}

func CreateCollection(ns string) Action {
	return nsAction(model.AtypeCreateCollection, ns)
}

func CreateDatabase(ns string) Action {
	return nsAction(model.AtypeCreateDatabase, ns)
}

func DropCollection(ns string) Action {
	return nsAction(model.AtypeDropCollection, ns)
}

func DropDatabase(ns string) Action {
	return nsAction(model.AtypeDropDatabase, ns)
}

func EnableSharding(ns string) Action {
	return nsAction(model.AtypeEnableSharding, ns)
}

func CreateIndex(ns, indexName string, indexSpec model.Doc) Action {
	return Action{
		Atype: model.AtypeCreateIndex,
		Param: model.D("ns", ns, "indexName", indexName, "indexSpec", orEmpty(indexSpec)),
	}
}

func DropIndex(ns, indexName string) Action {
	return Action{Atype: model.AtypeDropIndex, Param: model.D("ns", ns, "indexName", indexName)}
}

func RenameCollection(source, target string) Action {
	return Action{Atype: model.AtypeRenameCollection, Param: model.D("old", source, "new", target)}
}

func ShardCollection(ns string, keyPattern model.Doc, unique bool) Action {
	return Action{
		Atype: model.AtypeShardCollection,
		Param: model.D("ns", ns, "key", orEmpty(keyPattern), "options", model.D("unique", unique)),
	}
}

func AddShard(name, connectionString string, maxSize int64) Action {
	return Action{
		Atype: model.AtypeAddShard,
		Param: model.D("shard", name, "connectionString", connectionString, "maxSize", maxSize),
	}
}

func RemoveShard(name string) Action {
	return Action{Atype: model.AtypeRemoveShard, Param: model.D("shard", name)}
}

func ReplSetReconfig(oldConfig, newConfig model.Doc) Action {
	return Action{
		Atype: model.AtypeReplSetReconfig,
		Param: model.D("old", orEmpty(oldConfig), "new", orEmpty(newConfig)),
	}
}

func ApplicationMessage(msg string) Action {
	return Action{Atype: model.AtypeApplicationMessage, Param: model.D("msg", msg)}
}

func Shutdown() Action {
	return Action{Atype: model.AtypeShutdown, Param: model.Doc{}}
}

// CreateUser records a new user. customData may be nil.
func CreateUser(user model.UserName, password bool, customData model.Doc, roles []model.RoleName) Action {
	return Action{
		Atype: model.AtypeCreateUser,
		Param: model.D(
			"user", user.User,
			"db", user.DB,
			"password", password,
			"customData", orEmpty(customData),
			"roles", rolesOrEmpty(roles),
		),
	}
}

// UpdateUser records a user change. A nil roles slice means roles were not
// part of the update and the key is left out.
func UpdateUser(user model.UserName, password bool, customData model.Doc, roles []model.RoleName) Action {
	p := model.D(
		"user", user.User,
		"db", user.DB,
		"password", password,
		"customData", orEmpty(customData),
	)
	if roles != nil {
		p = append(p, model.Field{Key: "roles", Value: roles})
	}
	return Action{Atype: model.AtypeUpdateUser, Param: p}
}

func DropUser(user model.UserName) Action {
	return Action{Atype: model.AtypeDropUser, Param: model.D("user", user.User, "db", user.DB)}
}

func DropAllUsers(db string) Action {
	return Action{Atype: model.AtypeDropAllUsers, Param: model.D("db", db)}
}

func GrantRolesToUser(user model.UserName, roles []model.RoleName) Action {
	return userRoles(model.AtypeGrantRolesToUser, user, roles)
}

func RevokeRolesFromUser(user model.UserName, roles []model.RoleName) Action {
	return userRoles(model.AtypeRevokeRolesFromUser, user, roles)
}

func userRoles(atype string, user model.UserName, roles []model.RoleName) Action {
	return Action{Atype: atype, Param: model.D("user", user.User, "db", user.DB, "roles", rolesOrEmpty(roles))}
}

// CreateRole records a new role. Each privilege is a resource/actions document.
func CreateRole(role model.RoleName, roles []model.RoleName, privileges []model.Doc) Action {
	return Action{
		Atype: model.AtypeCreateRole,
		Param: model.D(
			"role", role.Role,
			"db", role.DB,
			"roles", rolesOrEmpty(roles),
			"privileges", privilegesOrEmpty(privileges),
		),
	}
}

// UpdateRole records a role change. Nil roles or privileges are left out.
func UpdateRole(role model.RoleName, roles []model.RoleName, privileges []model.Doc) Action {
	p := model.D("role", role.Role, "db", role.DB)
	if roles != nil {
		p = append(p, model.Field{Key: "roles", Value: roles})
	}
	if privileges != nil {
		p = append(p, model.Field{Key: "privileges", Value: privileges})
	}
	return Action{Atype: model.AtypeUpdateRole, Param: p}
}

func DropRole(role model.RoleName) Action {
	return Action{Atype: model.AtypeDropRole, Param: model.D("role", role.Role, "db", role.DB)}
}

func DropAllRoles(db string) Action {
	return Action{Atype: model.AtypeDropAllRoles, Param: model.D("db", db)}
}

func GrantRolesToRole(role model.RoleName, roles []model.RoleName) Action {
	return roleRoles(model.AtypeGrantRolesToRole, role, roles)
}

func RevokeRolesFromRole(role model.RoleName, roles []model.RoleName) Action {
	return roleRoles(model.AtypeRevokeRolesFromRole, role, roles)
}

func roleRoles(atype string, role model.RoleName, roles []model.RoleName) Action {
	return Action{Atype: atype, Param: model.D("role", role.Role, "db", role.DB, "roles", rolesOrEmpty(roles))}
}

func GrantPrivilegesToRole(role model.RoleName, privileges []model.Doc) Action {
	return rolePrivileges(model.AtypeGrantPrivileges, role, privileges)
}

func RevokePrivilegesFromRole(role model.RoleName, privileges []model.Doc) Action {
	return rolePrivileges(model.AtypeRevokePrivileges, role, privileges)
}

func rolePrivileges(atype string, role model.RoleName, privileges []model.Doc) Action {
	return Action{
		Atype: atype,
		Param: model.D("role", role.Role, "db", role.DB, "privileges", privilegesOrEmpty(privileges)),
	}
}

func orEmpty(d model.Doc) model.Doc {
	if d == nil {
		return model.Doc{}
	}
	return d
}

func rolesOrEmpty(r []model.RoleName) []model.RoleName {
	if r == nil {
		return []model.RoleName{}
	}
	return r
}

func privilegesOrEmpty(p []model.Doc) []model.Doc {
	if p == nil {
		return []model.Doc{}
	}
	return p
}

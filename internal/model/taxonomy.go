package model

// Audit event categories (the atype field).
const (
	AtypeAuthenticate        = "authenticate"
	AtypeAuthCheck           = "authCheck"
	AtypeCreateCollection    = "createCollection"
	AtypeCreateDatabase      = "createDatabase"
	AtypeCreateIndex         = "createIndex"
	AtypeDropIndex           = "dropIndex"
	AtypeDropCollection      = "dropCollection"
	AtypeDropDatabase        = "dropDatabase"
	AtypeRenameCollection    = "renameCollection"
	AtypeCreateUser          = "createUser"
	AtypeUpdateUser          = "updateUser"
	AtypeDropUser            = "dropUser"
	AtypeDropAllUsers        = "dropAllUsers"
	AtypeCreateRole          = "createRole"
	AtypeUpdateRole          = "updateRole"
	AtypeDropRole            = "dropRole"
	AtypeDropAllRoles        = "dropAllRoles"
	AtypeGrantRolesToUser    = "grantRolesToUser"
	AtypeRevokeRolesFromUser = "revokeRolesFromUser"
	AtypeGrantRolesToRole    = "grantRolesToRole"
	AtypeRevokeRolesFromRole = "revokeRolesFromRole"
	AtypeGrantPrivileges     = "grantPrivilegesToRole"
	AtypeRevokePrivileges    = "revokePrivilegesFromRole"
	AtypeEnableSharding      = "enableSharding"
	AtypeShardCollection     = "shardCollection"
	AtypeAddShard            = "addShard"
	AtypeRemoveShard         = "removeShard"
	AtypeReplSetReconfig     = "replSetReconfig"
	AtypeApplicationMessage  = "applicationMessage"
	AtypeShutdown            = "shutdown"
)

// Group is the top level of the audit taxonomy.
type Group string

const (
	GroupAuthentication Group = "authentication"
	GroupAuthorization  Group = "authorization"
	GroupSchema         Group = "schema"
	GroupUserManagement Group = "userManagement"
	GroupTopology       Group = "topology"
	GroupLifecycle      Group = "lifecycle"
)

var taxonomy = map[string]Group{
	AtypeAuthenticate:        GroupAuthentication,
	AtypeAuthCheck:           GroupAuthorization,
	AtypeCreateCollection:    GroupSchema,
	AtypeCreateDatabase:      GroupSchema,
	AtypeCreateIndex:         GroupSchema,
	AtypeDropIndex:           GroupSchema,
	AtypeDropCollection:      GroupSchema,
	AtypeDropDatabase:        GroupSchema,
	AtypeRenameCollection:    GroupSchema,
	AtypeCreateUser:          GroupUserManagement,
	AtypeUpdateUser:          GroupUserManagement,
	AtypeDropUser:            GroupUserManagement,
	AtypeDropAllUsers:        GroupUserManagement,
	AtypeCreateRole:          GroupUserManagement,
	AtypeUpdateRole:          GroupUserManagement,
	AtypeDropRole:            GroupUserManagement,
	AtypeDropAllRoles:        GroupUserManagement,
	AtypeGrantRolesToUser:    GroupUserManagement,
	AtypeRevokeRolesFromUser: GroupUserManagement,
	AtypeGrantRolesToRole:    GroupUserManagement,
	AtypeRevokeRolesFromRole: GroupUserManagement,
	AtypeGrantPrivileges:     GroupUserManagement,
	AtypeRevokePrivileges:    GroupUserManagement,
	AtypeEnableSharding:      GroupTopology,
	AtypeShardCollection:     GroupTopology,
	AtypeAddShard:            GroupTopology,
	AtypeRemoveShard:         GroupTopology,
	AtypeReplSetReconfig:     GroupTopology,
	AtypeApplicationMessage:  GroupLifecycle,
	AtypeShutdown:            GroupLifecycle,
}

// GroupOf returns the taxonomy group of atype and whether atype is known.
func GroupOf(atype string) (Group, bool) {
	g, ok := taxonomy[atype]
	return g, ok
}

// IsKnownAtype reports whether atype belongs to the taxonomy.
func IsKnownAtype(atype string) bool {
	_, ok := taxonomy[atype]
	return ok
}

// Atypes returns every known category.
func Atypes() []string {
	out := make([]string, 0, len(taxonomy))
	for a := range taxonomy {
		out = append(out, a)
	}
	return out
}

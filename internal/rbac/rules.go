package rbac

// RolePermissions is the default grant table. Teachers author marketplace exams
// and manage the ones they wrote; admins may do anything.
var RolePermissions = map[string][]string{
	"student": {
		"session:*",
		"exam:view",
		"exam:purchase",
		"shop:*",
		"profile:view-own",
		"asset:view",
		"user:change_password",
		"leaderboard:view",
	},
	"teacher": {
		"session:*",
		"exam:view",
		"exam:purchase",
		"exam:create",
		"exam:import",
		"exam:manage:own",
		"exam:delete:own",
		"shop:*",
		"profile:view-own",
		"asset:view",
		"asset:upload",
		"users:list",
		"user:change_password",
		"leaderboard:view",
	},
	"admin": {
		"*", // everything
	},
}

package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleSupervisor runs the campaign: dispatcher control and configuration.
	RoleSupervisor = "supervisor"
	// RoleAgent works individual leads: selection, manual calls, call-backs.
	RoleAgent = "agent"
	// RoleViewer reads schedules, calls and stats.
	RoleViewer = "viewer"
	// RoleAdmin is the operator account issued by the deployment.
	RoleAdmin = "admin"
)

func IsAdmin(role string) bool { return role == RoleAdmin }

// Readers may use every GET route.
var Readers = []string{RoleSupervisor, RoleAgent, RoleViewer}

// Operators may act on individual leads.
var Operators = []string{RoleSupervisor, RoleAgent}

package domain

type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAdmin   Role = "admin"
)

// Principal is an authenticated actor as returned by identity verification.
type Principal struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (p Principal) IsAdmin() bool { return p.Role == RoleAdmin }

type Operation string

const (
	OpModify Operation = "modify"
	OpDelete Operation = "delete"
)

// CanMutate must be given the stored report, never one built from request data.
func CanMutate(p Principal, stored *Report) bool {
	if stored == nil {
		return false
	}
	if p.IsAdmin() {
		return true
	}
	return p.ID != "" && p.ID == stored.OwnerID
}

func ForbiddenReason(op Operation) string {
	return "not authorized to " + string(op) + " this report"
}

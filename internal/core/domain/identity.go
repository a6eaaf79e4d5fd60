package domain

type Role string

const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleDoctor, RolePatient:
		return true
	default:
		return false
	}
}

// Identity is the resolved caller, passed explicitly into every core operation.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

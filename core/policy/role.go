// Package policy decides who may do what: role power levels, school tenancy and
// AI usage limits, composed by the Gate into a single decision per request.
package policy

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Role is one of the five principal roles, stored and transmitted in lowercase.
type Role string

const (
	RoleMember      Role = "member"
	RoleStudent     Role = "student"
	RoleTeacher     Role = "teacher"
	RoleSchoolAdmin Role = "schooladmin"
	RoleSuperAdmin  Role = "superadmin"
)

var (
	// AllRoles lists every role from the least to the most powerful.
	AllRoles = []Role{RoleMember, RoleStudent, RoleTeacher, RoleSchoolAdmin, RoleSuperAdmin}

	powerLevels = map[Role]int{
		RoleMember:      1,
		RoleStudent:     2,
		RoleTeacher:     3,
		RoleSchoolAdmin: 4,
		RoleSuperAdmin:  5,
	}

	roleNames = map[Role]string{
		RoleMember:      "Member",
		RoleStudent:     "Student",
		RoleTeacher:     "Teacher",
		RoleSchoolAdmin: "School Admin",
		RoleSuperAdmin:  "Super Admin",
	}

	roleReplacer = strings.NewReplacer("_", "", "-", "", " ", "")
)

const (
	MinPowerLevel = 1
	MaxPowerLevel = 5
)

// NormalizeRole folds legacy spellings (`TEACHER`, ` Teacher `, `school_admin`...) into the canonical form.
func NormalizeRole(s string) Role {
	return Role(roleReplacer.Replace(strings.ToLower(strings.TrimSpace(s))))
}

// ParseRole normalizes s. Unrecognised roles degrade to RoleMember, the least powerful one.
func ParseRole(s string) (Role, bool) {
	r := NormalizeRole(s)
	if r.IsValid() {
		return r, true
	}
	return RoleMember, false
}

func (r Role) IsValid() bool {
	_, ok := powerLevels[r]
	return ok
}

// PowerLevel returns 1 to 5. Unknown roles get the lowest level.
func (r Role) PowerLevel() int {
	if lvl, ok := powerLevels[NormalizeRole(string(r))]; ok {
		return lvl
	}
	return MinPowerLevel
}

// IsAuthorized reports whether r is at least as powerful as required.
func (r Role) IsAuthorized(required Role) bool {
	return r.PowerLevel() >= required.PowerLevel()
}

func (r Role) Name() string {
	if name, ok := roleNames[NormalizeRole(string(r))]; ok {
		return name
	}
	return roleNames[RoleMember]
}

func (r Role) String() string { return string(r) }

// PowerLevel is the functional form of Role.PowerLevel for raw role strings.
func PowerLevel(role string) int {
	return Role(role).PowerLevel()
}

// IsAuthorized is the functional form of Role.IsAuthorized for raw role strings.
func IsAuthorized(actor, required string) bool {
	return PowerLevel(actor) >= PowerLevel(required)
}

// MaxRolePowerLevel returns the highest power level among roles, 0 when there are none.
func MaxRolePowerLevel(roles ...Role) int {
	var max int
	for _, role := range roles {
		if lvl := role.PowerLevel(); lvl > max {
			max = lvl
		}
	}
	return max
}

// UnmarshalText normalizes casing without falling back, so invalid input can still be reported by validators.
func (r *Role) UnmarshalText(text []byte) error {
	*r = NormalizeRole(string(text))
	return nil
}

func (r Role) MarshalText() ([]byte, error) {
	role, _ := ParseRole(string(r))
	return []byte(role), nil
}

func (r Role) Value() (driver.Value, error) {
	role, _ := ParseRole(string(r))
	return string(role), nil
}

func (r *Role) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*r, _ = ParseRole(v)
	case []byte:
		*r, _ = ParseRole(string(v))
	case nil:
		*r = RoleMember
	default:
		return fmt.Errorf("policy.Role: cannot scan %T", src)
	}
	return nil
}

// RoleOption describes a role for clients building role pickers.
type RoleOption struct {
	Name       string `json:"name"`
	Value      Role   `json:"value"`
	PowerLevel int    `json:"power_level"`
}

// RoleOptions lists the roles a principal with the given role may assign.
func RoleOptions(assigner Role) []RoleOption {
	opts := make([]RoleOption, 0, len(AllRoles))
	for _, r := range AllRoles {
		if assigner.IsAuthorized(r) {
			opts = append(opts, RoleOption{Name: r.Name(), Value: r, PowerLevel: r.PowerLevel()})
		}
	}
	return opts
}

package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
)

// School is a tenant: every class and every user but superadmins belongs to one.
type School struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"` // UTC
	UpdatedAt time.Time `json:"updated_at"` // UTC
}

func (s School) Scope() policy.Scope { return policy.Scope{TenantID: s.ID} }

type Class struct {
	ID        string    `json:"id"`
	SchoolID  string    `json:"school_id"`
	TeacherID string    `json:"teacher_id,omitempty"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"` // UTC
}

func (c Class) Scope() policy.Scope { return policy.Scope{TenantID: c.SchoolID, OwnerID: c.TeacherID} }

type NewSchool struct {
	Name string `json:"name" validate:"required,max=255"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	return validate.Struct(ns)
}

type UpdateSchool struct {
	Name     string `json:"name" validate:"max=255"`
	IsActive *bool  `json:"is_active"`
}

func (us *UpdateSchool) Validate(orig School, validate *validator.Validate) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	return validate.Struct(us)
}

type NewClass struct {
	Name      string `json:"name" validate:"required,max=255"`
	TeacherID string `json:"teacher_id" validate:"omitempty,uuid"`
}

func (nc *NewClass) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.TeacherID = core.CleanString(nc.TeacherID, true /* lower */)
	return validate.Struct(nc)
}

type QueryFilter struct {
	Search   string // case-insensitive match on Name
	IsActive *bool
	IDs      []string // restricts the listing to these schools when not nil
}

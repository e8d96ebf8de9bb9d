package user

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
)

type User struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Username     string        `json:"username"`
	Email        string        `json:"email"`
	IsActive     bool          `json:"is_active"`
	Role         policy.Role   `json:"role"`
	SchoolID     string        `json:"school_id,omitempty"`
	Tier         usage.Tier    `json:"subscription_tier"`
	Usage        usage.Counter `json:"usage"`
	PasswordHash []byte        `json:"-"`
	CreatedAt    time.Time     `json:"created_at"` // UTC
	UpdatedAt    time.Time     `json:"updated_at"` // UTC
	LastLogin    time.Time     `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) IsSuperAdmin() bool { return u.Role == policy.RoleSuperAdmin }

// Principal returns the policy view of u.
func (u User) Principal() policy.Principal {
	return policy.Principal{
		ID:       u.ID,
		Role:     u.Role,
		TenantID: u.SchoolID,
		Tier:     u.Tier,
	}
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string      `json:"name" validate:"required"`
	Username        string      `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string      `json:"email" validate:"omitempty,email"`
	Password        string      `json:"password" validate:"required"`
	PasswordConfirm string      `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            policy.Role `json:"role" validate:"omitempty,role"`
	SchoolID        string      `json:"school_id" validate:"omitempty,uuid"`
	Tier            usage.Tier  `json:"subscription_tier" validate:"omitempty,tier"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.SchoolID = core.CleanString(nu.SchoolID, true /* lower */)
	nu.Role = policy.NormalizeRole(string(nu.Role))
	if nu.Role == "" {
		nu.Role = policy.RoleMember
	}
	nu.Tier = usage.Tier(core.CleanString(string(nu.Tier), true /* lower */))
	if nu.Tier == "" {
		nu.Tier = usage.TierFree
	}
}

func (nu *NewUser) Validate(ctx context.Context, validate *validator.Validate, svc Service) error {
	nu.Clean()
	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
// Usage counters and subscription tier are not part of it: they have their own operations.
type UpdateUser struct {
	Name            string      `json:"name"`
	Username        string      `json:"username" validate:"omitempty,min=3,alphanum_"`
	Email           string      `json:"email" validate:"omitempty,email"`
	IsActive        *bool       `json:"is_active"`
	Role            policy.Role `json:"role" validate:"omitempty,role"`
	SchoolID        *string     `json:"school_id" validate:"omitempty,uuid_or_empty"` // "" detaches the user
	Password        string      `json:"password" validate:"omitempty"`
	PasswordConfirm string      `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

// HasPrivilegedFields reports whether uu touches fields only admins may change.
func (uu *UpdateUser) HasPrivilegedFields() bool {
	return uu.IsActive != nil || uu.Role != "" || uu.SchoolID != nil || uu.Username != "" || uu.Email != ""
}

func (uu *UpdateUser) Validate(ctx context.Context, origUsr User, validate *validator.Validate, svc Service) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}
	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}
	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}
	uu.Role = policy.NormalizeRole(string(uu.Role))
	if uu.SchoolID != nil {
		schoolID := core.CleanString(*uu.SchoolID, true /* lower */)
		uu.SchoolID = &schoolID
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(ctx, uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error { return validate.Struct(rp) }

// QueryFilter narrows a user listing. Set fields are ANDed.
type QueryFilter struct {
	Search      string        // case-insensitive match on one of Name, Username or Email
	Roles       []policy.Role // any of
	SchoolID    string
	IsActive    *bool
	CreatedFrom time.Time
	CreatedTo   time.Time
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.SchoolID == "" && qf.IsActive == nil &&
		qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
	qf.SchoolID = core.CleanString(qf.SchoolID, true /* lower */)
	for i, r := range qf.Roles {
		qf.Roles[i] = policy.NormalizeRole(string(r))
	}
}

// GetFilter selects a single User. The first non-empty field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string
}

package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
)

var (
	// errors
	ErrNotFound         = errors.New("user not found")
	ErrEmailExists      = errors.New("a user with this email already exists")
	ErrUsernameExists   = errors.New("a user with this username already exists")
	ErrRoleTooHigh      = errors.New("not enough rights to set this role")
	ErrSuperAdminSchool = errors.New("a superadmin cannot belong to a school")

	errInvalidValue = "invalid value"
)

type (
	Repository interface {
		usage.Store

		// CheckUsernameUniqueness returns ErrUsernameExists or ErrEmailExists when another user,
		// apart from excludedUsers, already uses username or email.
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers ...User) error
		CreateUser(ctx context.Context, usr User) (User, error)
		QueryUsers(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetUser(ctx context.Context, filter GetFilter) (User, error)
		// UpdateUser saves every field but the subscription tier and the usage counters.
		UpdateUser(ctx context.Context, usr User) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User) (User, error)
		SetSubscriptionTier(ctx context.Context, id string, tier usage.Tier) (User, error)
		// DeleteUsersByID deletes all or none of ids.
		DeleteUsersByID(ctx context.Context, ids ...string) (int, error)
	}

	Service interface {
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
		Create(ctx context.Context, nu NewUser) (User, error)
		Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsername(ctx context.Context, uname string) (User, error)
		GetByEmail(ctx context.Context, email string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		Update(ctx context.Context, usr User, uu UpdateUser) (User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetSubscriptionTier(ctx context.Context, id string, tier usage.Tier) (User, error)
		Delete(ctx context.Context, ids ...string) error
		RequestPasswordReset(ctx context.Context, email string) error
		ResetPassword(ctx context.Context, data ResetUserPassword) error
		NotifyUsageLimitReached(usr User, report usage.Report)
	}

	service struct {
		repo    Repository
		mailSvc core.EmailService
		tokens  TokenGenerator
	}
)

var _ Service = (*service)(nil) // interface compliance check

func NewService(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &service{
		repo:    repo,
		mailSvc: mailSvc,
		tokens:  NewTokenGenerator(conf.SecretKey, conf.Server.PasswordResetTimeoutDelta),
	}
}

// CheckAssignment enforces who may give which role and school to a user:
// nobody assigns a role above their own, only superadmins assign other schools,
// and superadmins belong to no school.
func CheckAssignment(actor policy.Principal, role policy.Role, schoolID string) error {
	if role.PowerLevel() > actor.PowerLevel() {
		return core.NewValidationError(ErrRoleTooHigh, core.FieldError{Field: "role", Error: ErrRoleTooHigh.Error()})
	}
	if role == policy.RoleSuperAdmin && schoolID != "" {
		return core.NewValidationError(ErrSuperAdminSchool, core.FieldError{Field: "school_id", Error: ErrSuperAdminSchool.Error()})
	}
	if !actor.IsSuperAdmin() && schoolID != actor.TenantID {
		return &policy.DeniedError{Reason: policy.ReasonWrongTenant}
	}
	return nil
}

func (svc *service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers...); err != nil {
		var field string
		switch errors.Cause(err) {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return errors.Wrap(err, "checking uniqueness")
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

func (svc *service) Create(ctx context.Context, nu NewUser) (User, error) {
	now := time.Now().UTC()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Role:      nu.Role,
		SchoolID:  nu.SchoolID,
		Tier:      nu.Tier,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, errors.Wrap(err, "setting password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *service) Query(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering) ([]User, error) {
	return svc.repo.QueryUsers(ctx, filter, ordering)
}

func (svc *service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: core.CleanString(id, true /* lower */)})
}

func (svc *service) GetByUsername(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Username: core.CleanString(uname, true /* lower */)})
}

func (svc *service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
}

func (svc *service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{core.CleanString(uname, true /* lower */)}})
}

func (svc *service) Update(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	usr.Name = uu.Name
	usr.Username = uu.Username
	usr.Email = uu.Email
	if uu.IsActive != nil {
		usr.IsActive = *uu.IsActive
	}
	if uu.Role != "" {
		usr.Role = uu.Role
	}
	if uu.SchoolID != nil {
		usr.SchoolID = *uu.SchoolID
	}
	if uu.Password != "" {
		if err := usr.SetPassword(uu.Password); err != nil {
			return User{}, errors.Wrap(err, "setting password")
		}
	}
	usr.UpdatedAt = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = time.Now().UTC()
	return svc.repo.UpdateUser(ctx, usr)
}

func (svc *service) SetSubscriptionTier(ctx context.Context, id string, tier usage.Tier) (User, error) {
	if !tier.IsValid() {
		return User{}, core.NewFieldValidationError("subscription_tier", tierText)
	}
	return svc.repo.SetSubscriptionTier(ctx, id, tier)
}

func (svc *service) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := svc.repo.DeleteUsersByID(ctx, ids...)
	return err
}

func (svc *service) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if !usr.IsActive {
		return ErrNotFound
	}
	go svc.sendPasswordResetMail(usr)
	return nil
}

func (svc *service) sendPasswordResetMail(usr User) {
	msg := core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Password Reset",
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"Name":  usr.Name,
			"UID":   EncodeUID(usr),
			"Token": svc.tokens.MakeToken(usr),
		},
	}
	svc.mailSvc.SendMessages(&msg)
}

func (svc *service) ResetPassword(ctx context.Context, data ResetUserPassword) error {
	id, err := decodeUID(data.UID)
	if err != nil {
		return core.NewFieldValidationError("uid", errInvalidValue)
	}
	usr, err := svc.GetByID(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return core.NewFieldValidationError("uid", errInvalidValue)
		}
		return errors.Wrap(err, "finding user by ID")
	}
	if err = svc.tokens.verifyToken(usr, data.Token); err != nil {
		return core.NewFieldValidationError("token", errInvalidValue)
	}
	if err = usr.SetPassword(data.Password); err != nil {
		return errors.Wrap(err, "setting password")
	}
	usr.UpdatedAt = time.Now().UTC()
	if _, err = svc.repo.UpdateUser(ctx, usr); err != nil {
		return errors.Wrap(err, "updating user")
	}
	return nil
}

// NotifyUsageLimitReached emails usr that they used up their AI requests for the period.
func (svc *service) NotifyUsageLimitReached(usr User, report usage.Report) {
	if usr.Email == "" {
		return
	}
	data := map[string]interface{}{
		"Name":    usr.Name,
		"Limit":   report.Limit.Max,
		"Tier":    string(report.Tier),
		"Period":  string(report.Limit.Period),
		"ResetAt": "",
	}
	if report.ResetAt != nil {
		data["ResetAt"] = report.ResetAt.Format(time.RFC1123)
	}
	msg := core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      fmt.Sprintf("You reached your %s AI limit", report.Limit.Period),
		TemplateName: "usage_limit_reached",
		TemplateData: data,
	}
	svc.mailSvc.SendMessages(&msg)
}

package echoapi

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

var (
	errUsrNotFoundInCtx = errors.New("user object not found in echo.Context")

	contextObjectKey = "object"

	errUnknownSchool = "school does not exist"
)

type userApi struct {
	svc       user.Service
	schoolSvc school.Service
	meter     *usage.Meter
	gate     *policy.Gate
	auth     *Auth
	validate *validator.Validate
	logger   core.Logger
}

func registerUserAPI(g *echo.Group, authed []echo.MiddlewareFunc, s *Server) {
	api := userApi{
		svc:       s.UserSvc,
		schoolSvc: s.SchoolSvc,
		meter:     s.Meter,
		gate:      s.Gate,
		auth:      s.auth,
		validate:  s.Validate,
		logger:    s.Logger,
	}
	admin := requireRole(s.Gate, policy.RoleSchoolAdmin)
	superadmin := requireRole(s.Gate, policy.RoleSuperAdmin)

	ug := g.Group("/users")

	// un-authed endpoints
	ug.POST("/login", api.login, rateLimit(s.Limiter, "login", s.Logger))
	ug.POST("/password-reset", api.resetPassword, rateLimit(s.Limiter, "password-reset", s.Logger))
	ug.POST("/password-reset-confirm", api.confirmPasswordReset)

	// authed endpoints
	ag := ug.Group("", authed...)
	ag.POST("/token-refresh", api.refreshToken)
	ag.POST("/register", api.create, admin)
	ag.GET("", api.query, admin)
	ag.DELETE("", api.destroyMultiple, admin)
	ag.GET("/roles", api.queryRoles, admin)
	ag.GET("/me/usage", api.usage)

	// detail endpoints
	dg := ag.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, admin)
	dg.PUT("/subscription", api.setSubscription, superadmin)
	dg.POST("/usage/reset", api.resetUsage, superadmin)
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, api.validate, api.svc); err != nil {
		return err
	}

	p := getPrincipal(ctx)
	if data.SchoolID == "" && !p.IsSuperAdmin() {
		data.SchoolID = p.TenantID
	}
	if err := user.CheckAssignment(*p, data.Role, data.SchoolID); err != nil {
		return err
	}
	if err := api.checkSchool(reqCtx, data.SchoolID); err != nil {
		return err
	}

	usr, err := api.svc.Create(reqCtx, data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := api.auth.authenticate(ctx.Request().Context(), data.Username, data.Password, api.svc)
	if err != nil {
		return errors.Wrap(err, "authenticating")
	}
	token, err := api.auth.GenerateToken(claims)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) resetPassword(ctx echo.Context) error {
	var data PasswordResetRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to PasswordResetRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	err := api.svc.RequestPasswordReset(ctx.Request().Context(), data.Email)
	if !(err == nil || errors.Cause(err) == user.ErrNotFound) {
		// do not return errors to attackers
		api.logger.Error("requesting password reset: "+err.Error(), err)
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{
		Success: "If the email address supplied is associated with an active account on this system, " +
			"an email will arrive in your inbox shortly with instructions to reset your password.",
	})
}

func (api *userApi) confirmPasswordReset(ctx echo.Context) error {
	var data user.ResetUserPassword
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResetUserPassword")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	if err := api.svc.ResetPassword(ctx.Request().Context(), data); err != nil {
		return errors.Wrap(err, "resetting password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Password has been reset with the new password."})
}

func (api *userApi) query(ctx echo.Context) error {
	filter := bindUserFilter(ctx)

	// school admins only see their own school
	p := getPrincipal(ctx)
	if !p.IsSuperAdmin() {
		if p.TenantID == "" {
			return &policy.DeniedError{Reason: policy.ReasonWrongTenant}
		}
		filter.SchoolID = p.TenantID
	}

	users, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	// `IsActive`, `Role`, `SchoolID`, `Username` and `Email` can only be changed by admins
	p := getPrincipal(ctx)
	if data.HasPrivilegedFields() && !p.Role.IsAuthorized(policy.RoleSchoolAdmin) {
		return errHttpForbidden
	}

	reqCtx := ctx.Request().Context()
	if err := data.Validate(reqCtx, usr, api.validate, api.svc); err != nil {
		return err
	}

	if data.Role != "" || data.SchoolID != nil {
		role, schoolID := usr.Role, usr.SchoolID
		if data.Role != "" {
			role = data.Role
		}
		if data.SchoolID != nil {
			schoolID = *data.SchoolID
		}
		if err := user.CheckAssignment(*p, role, schoolID); err != nil {
			return err
		}
		if data.SchoolID != nil {
			if err := api.checkSchool(reqCtx, *data.SchoolID); err != nil {
				return err
			}
		}
	}

	usr, err := api.svc.Update(reqCtx, usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	// Say No to Suicide! ctxUser cannot delete themselves
	if usr.ID == getPrincipal(ctx).ID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if len(query.IDs) == 0 {
		return ctx.NoContent(http.StatusNoContent)
	}

	p := getPrincipal(ctx)
	reqCtx := ctx.Request().Context()
	for _, id := range query.IDs {
		// Say No to Suicide! ctxUser cannot delete themselves
		if id == p.ID {
			return errHttpForbidden
		}
		usr, err := api.svc.GetByID(reqCtx, id)
		if err != nil {
			return errors.Wrap(err, "finding user by ID")
		}
		if err = api.canManage(p, usr); err != nil {
			return err
		}
	}

	if err := api.svc.Delete(reqCtx, query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, policy.RoleOptions(getPrincipal(ctx).Role))
}

func (api *userApi) refreshToken(ctx echo.Context) error {
	token, err := api.auth.refreshToken(ctx)
	if err != nil {
		return errors.Wrap(err, "refreshing token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token})
}

func (api *userApi) usage(ctx echo.Context) error {
	report, err := api.gate.Usage(ctx.Request().Context(), getPrincipal(ctx))
	if err != nil {
		return errors.Wrap(err, "getting usage")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *userApi) setSubscription(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	var data SubscriptionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SubscriptionRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	usr, err := api.svc.SetSubscriptionTier(ctx.Request().Context(), usr.ID, data.Tier)
	if err != nil {
		return errors.Wrap(err, "setting subscription tier")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) resetUsage(ctx echo.Context) error {
	usr, ok := ctx.Get(contextObjectKey).(user.User)
	if !ok {
		return errors.Wrap(errUsrNotFoundInCtx, "retrieving object from context")
	}

	report, err := api.meter.Reset(ctx.Request().Context(), usr.ID, usr.Tier)
	if err != nil {
		return errors.Wrap(err, "resetting usage")
	}
	return ctx.JSON(http.StatusOK, report)
}

// canManage lets admins act on users of their school that are not more powerful than themselves.
func (api *userApi) canManage(p *policy.Principal, usr user.User) error {
	if err := api.gate.Authorize(p, policy.RoleSchoolAdmin, usr.SchoolID).Err(); err != nil {
		return err
	}
	if usr.Role.PowerLevel() > p.PowerLevel() {
		return &policy.DeniedError{Reason: policy.ReasonInsufficientRole}
	}
	return nil
}

// checkSchool rejects assignments to a school that does not exist. An empty ID detaches the user.
func (api *userApi) checkSchool(ctx context.Context, schoolID string) error {
	if schoolID == "" {
		return nil
	}
	if _, err := api.schoolSvc.GetByID(ctx, schoolID); err != nil {
		if errors.Cause(err) == school.ErrNotFound {
			return core.NewFieldValidationError("school_id", errUnknownSchool)
		}
		return errors.Wrap(err, "finding school by ID")
	}
	return nil
}

// objectMiddleware loads the `:id` user, visible to themselves and to the admins who can manage them.
func (api *userApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		usr, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding user by ID")
		}
		if p := getPrincipal(ctx); usr.ID != p.ID {
			if err = api.canManage(p, usr); err != nil {
				return err
			}
		}
		ctx.Set(contextObjectKey, usr)
		return next(ctx)
	}
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/user"
)

var (
	errSchoolNotFoundInCtx = errors.New("school object not found in echo.Context")

	errInvalidTeacher = "must be a teacher of this school"
)

type schoolApi struct {
	svc      school.Service
	userSvc  user.Service
	gate     *policy.Gate
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, authed []echo.MiddlewareFunc, s *Server) {
	api := schoolApi{
		svc:      s.SchoolSvc,
		userSvc:  s.UserSvc,
		gate:     s.Gate,
		validate: s.Validate,
	}

	sg := g.Group("/schools", authed...)
	sg.POST("", api.create, requireRole(s.Gate, policy.RoleSuperAdmin))
	sg.GET("", api.query)

	// detail endpoints
	dg := sg.Group("/:id", api.objectMiddleware)
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, requireRole(s.Gate, policy.RoleSchoolAdmin))
	dg.DELETE("", api.destroy, requireRole(s.Gate, policy.RoleSuperAdmin))
	dg.POST("/classes", api.createClass, requireRole(s.Gate, policy.RoleTeacher))
	dg.GET("/classes", api.queryClasses, requireRole(s.Gate, policy.RoleStudent))
	dg.DELETE("/classes/:classId", api.destroyClass, requireRole(s.Gate, policy.RoleTeacher))
}

func ctxSchool(ctx echo.Context) (school.School, error) {
	s, ok := ctx.Get(contextObjectKey).(school.School)
	if !ok {
		return school.School{}, errors.Wrap(errSchoolNotFoundInCtx, "retrieving object from context")
	}
	return s, nil
}

// Handlers

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *schoolApi) query(ctx echo.Context) error {
	params := ctx.QueryParams()
	filter := &school.QueryFilter{
		Search:   params.Get("search"),
		IsActive: bindBool(params, "is_active"),
	}

	// everybody but superadmins only sees their own school
	if p := getPrincipal(ctx); !p.IsSuperAdmin() {
		filter.IDs = []string{}
		if p.TenantID != "" {
			filter.IDs = append(filter.IDs, p.TenantID)
		}
	}

	schools, err := api.svc.Query(ctx.Request().Context(), filter, bindOrdering(ctx))
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	s, err := ctxSchool(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) update(ctx echo.Context) error {
	s, err := ctxSchool(ctx)
	if err != nil {
		return err
	}

	var data school.UpdateSchool
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	// only superadmins (de)activate schools
	if data.IsActive != nil && !getPrincipal(ctx).IsSuperAdmin() {
		return errHttpForbidden
	}
	if err = data.Validate(s, api.validate); err != nil {
		return err
	}

	s, err = api.svc.Update(ctx.Request().Context(), s, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *schoolApi) destroy(ctx echo.Context) error {
	s, err := ctxSchool(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), s.ID); err != nil {
		return errors.Wrap(err, "deleting school")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *schoolApi) createClass(ctx echo.Context) error {
	s, err := ctxSchool(ctx)
	if err != nil {
		return err
	}

	var data school.NewClass
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewClass")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	p := getPrincipal(ctx)
	switch {
	case data.TeacherID == "" && p.Role == policy.RoleTeacher:
		data.TeacherID = p.ID
	case data.TeacherID != "" && data.TeacherID != p.ID:
		teacher, err := api.userSvc.GetByID(reqCtx, data.TeacherID)
		if err != nil && errors.Cause(err) != user.ErrNotFound {
			return errors.Wrap(err, "finding teacher by ID")
		}
		if err != nil || teacher.SchoolID != s.ID || teacher.Role != policy.RoleTeacher {
			return core.NewFieldValidationError("teacher_id", errInvalidTeacher)
		}
		// teachers only open classes for themselves
		if !p.Role.IsAuthorized(policy.RoleSchoolAdmin) {
			return errHttpForbidden
		}
	}

	c, err := api.svc.CreateClass(reqCtx, s.ID, data)
	if err != nil {
		return errors.Wrap(err, "creating class")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *schoolApi) queryClasses(ctx echo.Context) error {
	s, err := ctxSchool(ctx)
	if err != nil {
		return err
	}
	classes, err := api.svc.QueryClasses(ctx.Request().Context(), s.ID)
	if err != nil {
		return errors.Wrap(err, "querying classes")
	}
	if classes == nil {
		classes = []school.Class{}
	}
	return ctx.JSON(http.StatusOK, classes)
}

func (api *schoolApi) destroyClass(ctx echo.Context) error {
	s, err := ctxSchool(ctx)
	if err != nil {
		return err
	}

	reqCtx := ctx.Request().Context()
	c, err := api.svc.GetClass(reqCtx, s.ID, ctx.Param("classId"))
	if err != nil {
		return errors.Wrap(err, "finding class by ID")
	}
	// the teacher of the class or any admin of the school
	if err = api.gate.AuthorizeOwned(getPrincipal(ctx), policy.RoleTeacher, policy.RoleSchoolAdmin, c.Scope()).Err(); err != nil {
		return err
	}

	if err = api.svc.DeleteClass(reqCtx, c); err != nil {
		return errors.Wrap(err, "deleting class")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// objectMiddleware loads the `:id` school, reachable only from inside its tenant.
func (api *schoolApi) objectMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		s, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
		if err != nil {
			return errors.Wrap(err, "finding school by ID")
		}
		if err = api.gate.Authorize(getPrincipal(ctx), policy.RoleMember, s.ID).Err(); err != nil {
			return err
		}
		ctx.Set(contextObjectKey, s)
		return next(ctx)
	}
}

package echoapi

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/ai"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/usage"
	"github.com/quizzq/backend/core/user"
)

var orderingParam = "ordering"

// bindOrdering reads the `ordering` query param, eg. `?ordering=role,-created_at`.
func bindOrdering(ctx echo.Context) []core.DBOrdering {
	return core.ParseOrdering(ctx.QueryParam(orderingParam))
}

// bindBool parses an optional boolean query param. Invalid values are ignored.
func bindBool(params url.Values, key string) *bool {
	if val := params.Get(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return &b
		}
	}
	return nil
}

// bindTime parses an optional RFC3339 query param. Invalid values are ignored.
func bindTime(params url.Values, key string) time.Time {
	if val := params.Get(key); val != "" {
		if t, err := time.Parse(time.RFC3339, val); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func bindUserFilter(ctx echo.Context) *user.QueryFilter {
	params := ctx.QueryParams()
	filter := &user.QueryFilter{
		Search:      params.Get("search"),
		SchoolID:    params.Get("school_id"),
		IsActive:    bindBool(params, "is_active"),
		CreatedFrom: bindTime(params, "created_from"),
		CreatedTo:   bindTime(params, "created_to"),
	}
	for _, r := range params["role"] {
		for _, role := range strings.Split(r, ",") {
			filter.Roles = append(filter.Roles, policy.Role(role))
		}
	}
	filter.Clean()
	return filter
}

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	PasswordResetRequest struct {
		Email string `json:"email" validate:"required,email"`
	}

	SubscriptionRequest struct {
		Tier usage.Tier `json:"subscription_tier" validate:"required,tier"`
	}

	SuccessResponse struct {
		Success string `json:"success"`
	}

	DestroyMultipleRequest struct {
		IDs []string `query:"id"`
	}

	TutorResponse struct {
		Answer string       `json:"answer"`
		Usage  usage.Report `json:"usage"`
	}

	QuizResponse struct {
		Quiz  ai.Quiz      `json:"quiz"`
		Usage usage.Report `json:"usage"`
	}
)

func (lr *LoginRequest) Validate(validate *validator.Validate) error {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
	return validate.Struct(lr)
}

func (pr *PasswordResetRequest) Validate(validate *validator.Validate) error {
	pr.Email = core.CleanString(pr.Email, true /* lower */)
	return validate.Struct(pr)
}

func (sr *SubscriptionRequest) Validate(validate *validator.Validate) error {
	return validate.Struct(sr)
}

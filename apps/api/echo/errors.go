package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/quizzq/backend/core"
	"github.com/quizzq/backend/core/ai"
	"github.com/quizzq/backend/core/policy"
	"github.com/quizzq/backend/core/school"
	"github.com/quizzq/backend/core/user"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errRefreshExpired       = echo.NewHTTPError(http.StatusForbidden, "refresh has expired")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyAttempts      = echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, please try again later")
)

// deniedStatus maps gate denials to HTTP status codes.
var deniedStatus = map[policy.Reason]int{
	policy.ReasonNoSession:          http.StatusUnauthorized,
	policy.ReasonInsufficientRole:   http.StatusForbidden,
	policy.ReasonWrongTenant:        http.StatusForbidden,
	policy.ReasonUsageLimitExceeded: http.StatusTooManyRequests,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch cause {
		case user.ErrNotFound, school.ErrNotFound, school.ErrClassNotFound:
			cause = errHttpNotFound
		case ai.ErrAssistant: // already logged
			cause = echo.NewHTTPError(http.StatusInternalServerError, ai.ErrAssistant.Error())
		}

		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				message = origErr.Message
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case *policy.DeniedError:
			code = http.StatusForbidden
			if c, ok := deniedStatus[origErr.Reason]; ok {
				code = c
			}
			if origErr.Usage != nil {
				message = echo.Map{
					"error":   origErr.Error(),
					"upgrade": origErr.UpgradePrompt(),
					"usage":   origErr.Usage,
				}
			} else {
				message = origErr.Error()
			}
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if p := getPrincipal(ctx); p != nil {
				args = append(args, p)
				if usr, err := getContextUser(ctx); err == nil {
					args = append(args, usr)
				}
			}
			logger.Error(msg, args...)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

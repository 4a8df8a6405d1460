package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	"github.com/kudatec/karo/core/payments"
)

var (
	errUnauthorized  = echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	errHttpForbidden = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound  = echo.NewHTTPError(http.StatusNotFound, "not found")
)

// badRequestErrs are domain errors surfaced as 400s with their own message:
// referencing a missing student/term/transaction is a caller mistake, never a
// silent no-op.
var badRequestErrs = map[error]bool{
	ledger.ErrStudentNotFound:       true,
	ledger.ErrTermNotFound:          true,
	ledger.ErrTermActive:            true,
	ledger.ErrTermNotActive:         true,
	ledger.ErrLastActiveTerm:        true,
	ledger.ErrFeeScheduleNotSet:     true,
	ledger.ErrUsernameExists:        true,
	payments.ErrTransactionNotFound: true,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that renders
// every failure as the {success:false, error:...} envelope.
// signalShutdown is called to gracefully stop the server whenever a
// core shutdown error bubbles up.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		switch origErr := errors.Cause(err).(type) {
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
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *payments.GatewayError:
			code = http.StatusBadGateway
			message = origErr.Msg
		case *core.ValidationError:
			if flds := origErr.FieldMap(); flds != nil {
				message = flds
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		default:
			if badRequestErrs[errors.Cause(err)] {
				code = http.StatusBadRequest
				message = errors.Cause(err).Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			message = http.StatusText(http.StatusInternalServerError)

			logger.Error(message.(string), errors.Wrap(err, "request failed"))

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug && code == http.StatusInternalServerError {
			message = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead {
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, echo.Map{"success": false, "error": message})
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

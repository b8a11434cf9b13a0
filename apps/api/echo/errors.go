package echoapi

import (
	"fmt"
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/yekiapp/yeki/core"
	"github.com/yekiapp/yeki/core/user"
)

const (
	kindUnauthenticated = "unauthenticated"
	kindInternal        = "internal"
)

var kindStatuses = map[core.Kind]int{
	core.KindValidation:             http.StatusBadRequest,
	core.KindPermissionDenied:       http.StatusForbidden,
	core.KindInvalidActor:           http.StatusForbidden,
	core.KindNotFound:               http.StatusNotFound,
	core.KindConflict:               http.StatusConflict,
	core.KindAttemptLimitExceeded:   http.StatusConflict,
	core.KindExpiredSession:         http.StatusGone,
	core.KindSessionAlreadyFinished: http.StatusConflict,
}

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Kind   string            `json:"kind"`
	Error  string            `json:"error"`
	Code   string            `json:"code,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
}

// httpErrorKind derives a kind for errors raised by echo itself.
func httpErrorKind(code int) string {
	switch code {
	case http.StatusBadRequest:
		return string(core.KindValidation)
	case http.StatusUnauthorized:
		return kindUnauthenticated
	case http.StatusForbidden:
		return string(core.KindPermissionDenied)
	case http.StatusNotFound:
		return string(core.KindNotFound)
	case http.StatusConflict:
		return string(core.KindConflict)
	}
	if code >= http.StatusInternalServerError {
		return kindInternal
	}
	return "http_error"
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var resp ErrorResponse

		switch origErr := errors.Cause(err).(type) {
		case *echo.HTTPError:
			if origErr == middleware.ErrJWTMissing {
				code = http.StatusUnauthorized
				resp = ErrorResponse{Kind: kindUnauthenticated, Error: fmt.Sprint(origErr.Message)}
				break
			}
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			resp = ErrorResponse{Kind: httpErrorKind(code), Error: fmt.Sprint(origErr.Message)}
		case validator.ValidationErrors:
			code, resp = validationResponse(core.TranslateValidationErrors(origErr, translator))
		default:
			kind := core.KindOf(err)
			if kind == core.KindValidation {
				code, resp = validationResponse(err)
				break
			}
			if status, ok := kindStatuses[kind]; ok {
				code = status
				resp = ErrorResponse{Kind: string(kind), Error: errors.Cause(err).Error()}
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			resp = ErrorResponse{Kind: kindInternal, Error: msg}

			usr, _ := getContextUser(ctx)
			if usr.ID == "" {
				if claims, cErr := getContextClaims(ctx); cErr == nil {
					usr = user.User{ID: claims.Subject, Username: claims.Username, Email: claims.Email}
				}
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			resp.Error = err.Error()
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, resp)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}

func validationResponse(err error) (int, ErrorResponse) {
	resp := ErrorResponse{
		Kind:  string(core.KindValidation),
		Error: errors.Cause(err).Error(),
		Code:  core.ValidationCode(err),
	}
	var vErr *core.ValidationError
	if errors.As(err, &vErr) && len(vErr.Fields) > 0 {
		resp.Fields = make(map[string]string, len(vErr.Fields))
		for _, fErr := range vErr.Fields {
			resp.Fields[fErr.Field] = fErr.Error
		}
	}
	return http.StatusBadRequest, resp
}

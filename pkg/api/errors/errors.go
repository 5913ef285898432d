package errors

import (
	"net/http"
	"sync/atomic"

	"github.com/am0414/success-academy-international/pkg/domain"
	"github.com/am0414/success-academy-international/pkg/logger"
	"github.com/am0414/success-academy-international/pkg/models"
	"github.com/labstack/echo/v4"
)

type logHolder struct{ logger.Logger }

var log atomic.Value

func init() {
	log.Store(logHolder{logger.NewNop()})
}

// SetLogger sets the logger used to record the internal cause of error responses
func SetLogger(l logger.Logger) {
	if l == nil {
		l = logger.NewNop()
	}
	log.Store(logHolder{l})
}

func current() logger.Logger {
	return log.Load().(logHolder).Logger
}

// ValidationError returns a generic validation error without exposing internal details
func ValidationError(c echo.Context, err error) error {
	current().Warn("validation error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "validation_error",
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// BadRequestError returns a 400 with a message that is safe to expose
func BadRequestError(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "bad_request",
		Message: message,
	})
}

// DatabaseError returns a generic database error without exposing internal details
func DatabaseError(c echo.Context, err error) error {
	current().Error("database error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "database_error",
		Message: "A database error occurred. Please try again later.",
	})
}

// InternalError returns a generic internal server error
func InternalError(c echo.Context, err error) error {
	current().Error("internal error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred. Please try again later.",
	})
}

// ProviderError returns a generic payment provider failure
func ProviderError(c echo.Context, err error) error {
	current().Error("payment provider error", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   "payment_provider_error",
		Message: "The payment provider could not process the request. Please try again later.",
	})
}

// NotFoundError returns a generic not found error
func NotFoundError(c echo.Context, resource string) error {
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   "not_found",
		Message: "The requested resource was not found.",
	})
}

// ConflictError returns a generic conflict error
func ConflictError(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   "conflict",
		Message: message,
	})
}

// ReferralRejected returns the business-rule reason a referral was refused
func ReferralRejected(c echo.Context, reason string) error {
	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "referral_rejected",
		Message: reason,
	})
}

// FromDomain maps an error returned by a service onto the matching response.
// Errors without a domain code are treated as internal.
func FromDomain(c echo.Context, err error) error {
	switch domain.GetErrorCode(err) {
	case domain.ErrCodeNotFound:
		return NotFoundError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeValidation:
		return ValidationError(c, err)
	case domain.ErrCodeBadRequest:
		return BadRequestError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeConflict:
		return ConflictError(c, domain.GetErrorMessage(err))
	case domain.ErrCodeReferralReject:
		return ReferralRejected(c, domain.GetErrorMessage(err))
	case domain.ErrCodeProvider:
		return ProviderError(c, err)
	default:
		return InternalError(c, err)
	}
}

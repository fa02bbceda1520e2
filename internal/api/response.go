package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// Response is the envelope every JSON endpoint returns
type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Error   interface{} `json:"error,omitempty"`
	Hints   []string    `json:"hints,omitempty"`
}

// SuccessResponse sends a success response
func SuccessResponse(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Status: "success", Data: data})
}

// SuccessMessageResponse sends a success response with a message
func SuccessMessageResponse(c echo.Context, message string, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Status: "success", Message: message, Data: data})
}

// ErrorResponse sends an error response
func ErrorResponse(c echo.Context, statusCode int, message string, err interface{}) error {
	return c.JSON(statusCode, Response{Status: "error", Message: message, Error: err})
}

// BadRequestResponse sends a 400 Bad Request response
func BadRequestResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusBadRequest, message, nil)
}

// UnauthorizedResponse sends a 401 Unauthorized response
func UnauthorizedResponse(c echo.Context, message string) error {
	return ErrorResponse(c, http.StatusUnauthorized, message, nil)
}

// statusFor maps an error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.IsInvalidConfiguration(err):
		return http.StatusBadRequest
	case errors.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.IsSchedulerNotRunning(err):
		return http.StatusServiceUnavailable
	case errors.IsExchangeError(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FailureResponse sends err with the status its kind maps to, plus any hints
func FailureResponse(c echo.Context, message string, err error) error {
	return c.JSON(statusFor(err), Response{
		Status:  "error",
		Message: message,
		Error:   err.Error(),
		Hints:   errors.GetAllHints(err),
	})
}

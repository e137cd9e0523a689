package http

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope every route answers with. Error responses
// carry a []ValidationError in Data.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError is one error detail.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_REQUIRED"`
	Field   string                 `json:"field,omitempty" example:"long.threshold"`
	Message string                 `json:"message,omitempty" example:"threshold is required"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// Page wraps a list with its total.
type Page struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}

// Respond writes the envelope with status as both the HTTP status and the
// body status.
func Respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, APIResponse{
		Status:  status,
		Message: http.StatusText(status),
		Data:    data,
	})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return Respond(c, http.StatusOK, data)
}

func CreatedResponse(c echo.Context, data interface{}) error {
	return Respond(c, http.StatusCreated, data)
}

func ListResponse(c echo.Context, rows interface{}, total int64) error {
	return Respond(c, http.StatusOK, &Page{Rows: rows, Total: total})
}

// BadRequestResponse writes a 400 with the given details.
func BadRequestResponse(c echo.Context, details interface{}) error {
	return Respond(c, http.StatusBadRequest, details)
}

// ErrorResponse writes err as a single detail. Errors that are not an
// *AppError become a bare 500 so internals do not leak.
func ErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = Internal(err)
	}
	return Respond(c, appErr.Status, []ValidationError{appErr.Detail()})
}

package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	models "EntryGate/internal/domain/models"
	xhttp "EntryGate/pkg/http"
	xlogger "EntryGate/pkg/logger"
)

// schemaErrors converts a SchemaError to response details.
func schemaErrors(se *models.SchemaError) []xhttp.ValidationError {
	out := make([]xhttp.ValidationError, 0, len(se.Issues))
	for _, is := range se.Issues {
		out = append(out, xhttp.ValidationError{
			Code:    "ERR_SCHEMA",
			Field:   is.Field,
			Message: is.Reason,
		})
	}
	return out
}

// errorResponse maps domain errors to HTTP statuses. Anything unrecognised
// is logged and reported as a 500.
func errorResponse(c echo.Context, log *xlogger.Logger, op string, err error) error {
	if se, ok := models.AsSchemaError(err); ok {
		return xhttp.BadRequestResponse(c, schemaErrors(se))
	}
	switch {
	case errors.Is(err, models.ErrVersionNotFound):
		return xhttp.ErrorResponse(c, xhttp.NotFound("%s", err.Error()))
	case errors.Is(err, models.ErrStoreBusy):
		return xhttp.ErrorResponse(c, xhttp.Conflict(err.Error()))
	case errors.Is(err, models.ErrPairIndex):
		return xhttp.ErrorResponse(c, xhttp.Fail(http.StatusBadRequest, "ERR_PAIR_INDEX", err.Error()).On("index"))
	}
	log.Error(op+" failed", xlogger.Error(err))
	return xhttp.ErrorResponse(c, xhttp.Internal(err))
}

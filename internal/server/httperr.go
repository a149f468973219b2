package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"nestcare/backend/internal/apperr"
)

// MapError translates the service error taxonomy onto HTTP status codes.
// Handlers return service errors as-is and route them through here.
func MapError(err error) error {
	var (
		validation     *apperr.ValidationError
		invalidState   *apperr.InvalidStateError
		alreadyClaimed *apperr.AlreadyClaimedError
		notFound       *apperr.NotFoundError
		denied         *apperr.PermissionDeniedError
		transport      *apperr.TransportError
		classification *apperr.ClassificationError
	)
	switch {
	case errors.As(err, &validation):
		return echo.NewHTTPError(http.StatusBadRequest, validation.Error())
	case errors.As(err, &invalidState):
		return echo.NewHTTPError(http.StatusConflict, invalidState.Error())
	case errors.As(err, &alreadyClaimed):
		return echo.NewHTTPError(http.StatusConflict, alreadyClaimed.Error())
	case errors.As(err, &notFound):
		return echo.NewHTTPError(http.StatusNotFound, notFound.Error())
	case errors.As(err, &denied):
		return echo.NewHTTPError(http.StatusForbidden, denied.Error())
	case errors.As(err, &transport):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "store temporarily unavailable")
	case errors.As(err, &classification):
		return echo.NewHTTPError(http.StatusBadGateway, "classification unavailable")
	default:
		return err
	}
}

package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/apperrors"
)

// ErrorHandler maps domain errors to JSON responses. Validation and schedule
// problems are 400, ownership 403, missing entities 404, state conflicts and
// full classes 409, gateway trouble 502, everything else 500.
func ErrorHandler(log *logrus.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		message := "something went wrong"

		var (
			httpErr     *echo.HTTPError
			validation  *apperrors.ValidationError
			notFound    *apperrors.NotFoundError
			forbidden   *apperrors.ForbiddenError
			conflict    *apperrors.ConflictError
			capacity    *apperrors.CapacityExceededError
			badSchedule *apperrors.InvalidScheduleError
			gatewayErr  *apperrors.GatewayError
		)
		switch {
		case errors.As(err, &httpErr):
			code = httpErr.Code
			if msg, ok := httpErr.Message.(string); ok {
				message = msg
			}
		case errors.As(err, &validation):
			code = http.StatusBadRequest
			message = validation.Error()
		case errors.As(err, &badSchedule):
			code = http.StatusBadRequest
			message = badSchedule.Error()
		case errors.As(err, &forbidden):
			code = http.StatusForbidden
			message = forbidden.Error()
		case errors.As(err, &notFound):
			code = http.StatusNotFound
			message = notFound.Error()
		case errors.As(err, &conflict):
			code = http.StatusConflict
			message = conflict.Error()
		case errors.As(err, &capacity):
			code = http.StatusConflict
			message = capacity.Error()
		case errors.As(err, &gatewayErr):
			code = http.StatusBadGateway
			message = "payment provider is unavailable, please try again"
		}

		entry := log.WithFields(logrus.Fields{
			"method": c.Request().Method,
			"path":   c.Request().URL.Path,
			"status": code,
		})
		if code >= http.StatusInternalServerError {
			entry.WithError(err).Error("request failed")
		} else {
			entry.WithError(err).Info("request rejected")
		}

		if resErr := c.JSON(code, map[string]string{"error": message}); resErr != nil {
			log.WithError(resErr).Error("could not write error response")
		}
	}
}

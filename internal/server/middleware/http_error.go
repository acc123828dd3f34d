package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nguyentranbao-ct/field-booking-admin/internal/models"
)

// StatusClientClosedRequest is reported when the caller went away.
const StatusClientClosedRequest = 499

// domainErrors maps sentinel errors to their HTTP status and error code.
var domainErrors = []struct {
	err    error
	status int
	code   string
}{
	{models.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
	{models.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{models.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
	{models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{models.ErrForbidden, http.StatusForbidden, "forbidden"},
	{models.ErrNotFound, http.StatusNotFound, "not_found"},
	{models.ErrChannelUnavailable, http.StatusServiceUnavailable, "channel_unavailable"},
}

// ToResponseError converts any handler error into the response envelope.
func ToResponseError(err error) *ResponseError {
	var respErr *ResponseError
	if errors.As(err, &respErr) {
		return respErr
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return &ResponseError{
			Status:       httpErr.Code,
			Err:          err,
			ErrorMessage: fmt.Sprint(httpErr.Message),
		}
	}
	for _, de := range domainErrors {
		if errors.Is(err, de.err) {
			return NewResponseError(de.status, de.code, err)
		}
	}
	return &ResponseError{
		Status:       http.StatusInternalServerError,
		Err:          err,
		ErrorCode:    "internal",
		ErrorMessage: err.Error(),
	}
}

// ErrorHandler return custom http error handler.
func ErrorHandler(log Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if err == nil || c.Response().Committed {
			return
		}

		resp := ToResponseError(err)
		if errors.Is(err, context.Canceled) && c.Request().Context().Err() == context.Canceled {
			resp.Status = StatusClientClosedRequest
		}
		if resp.Status == http.StatusNotFound && isNotFoundHandler(c.Handler()) {
			resp.ErrorMessage = "no route matched"
		}
		if resp.Status >= http.StatusInternalServerError {
			log.Errorw("request failed", "path", c.Path(), "error", err)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(resp.Status)
		} else {
			err = c.JSON(resp.Status, resp)
		}
		if err != nil {
			log.Errorw("could not response", "code", resp.Status, "response_body", resp)
		}
	}
}

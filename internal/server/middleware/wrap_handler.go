package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// WrapHandler adapts a typed handler to echo: the request struct is bound
// and validated first, the result is written in the Response envelope.
// Returning a *Response lets the handler pick the status code.
func WrapHandler[Req any, Res any](fn func(c echo.Context, req Req) (Res, error)) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req Req
		if err := BindAndValidate(c, &req); err != nil {
			return err
		}

		data, err := fn(c, req)
		if err != nil {
			return err
		}
		if c.Response().Committed {
			return nil
		}

		var resp *Response
		if v, ok := any(data).(*Response); ok && v != nil {
			resp = v
		} else {
			resp = &Response{Status: http.StatusOK, Success: true, Data: data}
		}
		if resp.Status == 0 {
			resp.Status = http.StatusOK
		}
		return c.JSON(resp.Status, resp)
	}
}

// WrapAction is WrapHandler for handlers without a result; it answers 204.
func WrapAction[Req any](fn func(c echo.Context, req Req) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req Req
		if err := BindAndValidate(c, &req); err != nil {
			return err
		}
		if err := fn(c, req); err != nil {
			return err
		}
		if c.Response().Committed {
			return nil
		}
		return c.NoContent(http.StatusNoContent)
	}
}

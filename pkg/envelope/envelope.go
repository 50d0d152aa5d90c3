// Package envelope renders the JSON shape every endpoint answers with:
// {"success": bool, "data": ..., "message": ..., "error": ..., "pagination": ...}.
package envelope

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/hospital/hms/pkg/pagination"
)

type Body struct {
	Success    bool             `json:"success"`
	Data       interface{}      `json:"data,omitempty"`
	Message    string           `json:"message,omitempty"`
	Error      string           `json:"error,omitempty"`
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// OK writes a successful response.
func OK(c echo.Context, status int, data interface{}, message string) error {
	return c.JSON(status, Body{Success: true, Data: data, Message: message})
}

// Page writes a successful list response with pagination metadata.
func Page(c echo.Context, data interface{}, p pagination.Params, total int) error {
	return c.JSON(http.StatusOK, Body{Success: true, Data: data, Pagination: pagination.NewMeta(p, total)})
}

// Fail writes an error response without going through the error handler.
func Fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, Body{Success: false, Error: msg})
}

// ErrorHandler converts handler errors into the error envelope. Errors that
// are not *echo.HTTPError are reported as 500 without leaking their text.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		msg := http.StatusText(status)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			msg = messageOf(he)
		}

		if status >= http.StatusInternalServerError {
			rid, _ := c.Get("request_id").(string)
			logger.Error().Err(err).
				Str("request_id", rid).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = Fail(c, status, msg)
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

func messageOf(he *echo.HTTPError) string {
	switch m := he.Message.(type) {
	case string:
		return m
	case error:
		return m.Error()
	case nil:
		return http.StatusText(he.Code)
	default:
		return fmt.Sprintf("%v", m)
	}
}

package handler

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"useraccounts/internal/errors"
)

// Response is the envelope every endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
	Token   string      `json:"token,omitempty"`
}

// fail converts a service error to an echo.HTTPError carrying the error envelope.
// The original error is kept as the internal cause for logging.
func fail(err error) error {
	httpErr := errors.MapErrorToHTTP(err)
	return echo.NewHTTPError(httpErr.StatusCode, httpErr.ToErrorResponse()).SetInternal(err)
}

// bindAndValidate decodes the request body into req and runs struct validation.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fail(errors.Validationf("invalid request body"))
	}
	if err := c.Validate(req); err != nil {
		return fail(errors.Validation(err))
	}
	return nil
}

// accountID parses the :id path parameter. Anything that is not a uuid cannot
// name an account, so it is reported as not found.
func accountID(c echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fail(errors.ErrNotFound)
	}
	return id, nil
}

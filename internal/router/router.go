package router

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	apperrors "useraccounts/internal/errors"
	"useraccounts/internal/handler"
	"useraccounts/internal/logging"
	authmw "useraccounts/internal/middleware"
	"useraccounts/internal/model"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	logger logging.Logger,
	tokens authmw.TokenVerifier,
	roles authmw.RoleResolver,
	authHandler *handler.AuthHandler,
	accountHandler *handler.AccountHandler,
) {
	e.HideBanner = true
	e.HTTPErrorHandler = ErrorHandler(logger)
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	authenticate := authmw.Authenticate(tokens)
	adminOnly := authmw.Authorize(roles, model.RoleAdmin)
	selfOrAdmin := authmw.SelfOrRole(roles, model.RoleAdmin)

	users := e.Group("/users")

	// Public routes
	users.POST("/register", authHandler.Register)
	users.POST("/login", authHandler.Login)
	users.POST("/request-password-reset", authHandler.RequestPasswordReset)
	users.POST("/reset-password/:token", authHandler.ResetPassword)

	// Bearer routes
	users.GET("/:id", accountHandler.GetAccount, authenticate)
	users.PUT("/:id", accountHandler.UpdateAccount, authenticate, selfOrAdmin)

	// Admin routes
	users.GET("", accountHandler.ListAccounts, authenticate, adminOnly)
	users.GET("/", accountHandler.ListAccounts, authenticate, adminOnly)
	users.DELETE("/:id", accountHandler.DeleteAccount, authenticate, adminOnly)
	users.PATCH("/:id/role", accountHandler.SetRole, authenticate, adminOnly)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// ErrorHandler renders every failure in the response envelope. Causes of 5xx
// responses are logged and never sent to the client.
func ErrorHandler(logger logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status, body, cause := render(err)
		if status >= http.StatusInternalServerError {
			logger.Error(c.Request().Context(), "request failed",
				"method", c.Request().Method,
				"path", c.Path(),
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"error", cause,
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			logger.Warn(c.Request().Context(), "write error response", "error", err)
		}
	}
}

func render(err error) (int, apperrors.ErrorResponse, error) {
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		httpErr := apperrors.MapErrorToHTTP(err)
		return httpErr.StatusCode, httpErr.ToErrorResponse(), err
	}

	cause := err
	if he.Internal != nil {
		cause = he.Internal
	}

	if resp, ok := he.Message.(apperrors.ErrorResponse); ok {
		return he.Code, resp, cause
	}

	// echo's own errors: unknown route, wrong method, oversized body and the like
	if he.Code >= http.StatusInternalServerError {
		httpErr := apperrors.MapErrorToHTTP(cause)
		return he.Code, httpErr.ToErrorResponse(), cause
	}
	return he.Code, apperrors.ErrorResponse{
		Success: false,
		Message: fmt.Sprint(he.Message),
		Code:    strings.ToUpper(strings.ReplaceAll(http.StatusText(he.Code), " ", "_")),
	}, cause
}

func requestLogger(logger logging.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogRemoteIP:  true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info(c.Request().Context(), "request",
				"method", v.Method,
				"path", v.URIPath,
				"status", v.Status,
				"latency", v.Latency,
				"request_id", v.RequestID,
				"remote_ip", v.RemoteIP,
			)
			return nil
		},
	})
}

package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"useraccounts/internal/service"
)

// AuthHandler handles the public registration, login and password reset endpoints.
type AuthHandler struct {
	accountService service.AccountService
	resetService   service.PasswordResetService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(accountService service.AccountService, resetService service.PasswordResetService) *AuthHandler {
	return &AuthHandler{
		accountService: accountService,
		resetService:   resetService,
	}
}

// RegisterRequest represents a registration request. Fields are validated by
// the account service after normalization.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a login request.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RequestResetRequest asks for a password reset email.
type RequestResetRequest struct {
	Email string `json:"email"`
}

// ResetPasswordRequest carries the new password for a reset token.
type ResetPasswordRequest struct {
	NewPassword string `json:"newPassword"`
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration data"
// @Success 201 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, token, err := h.accountService.Register(c.Request().Context(), service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusCreated, Response{
		Success: true,
		Message: "Account registered successfully.",
		Data:    account,
		Token:   token,
	})
}

// Login godoc
// @Summary Log in with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Credentials"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, token, err := h.accountService.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Login successful.",
		Data:    account,
		Token:   token,
	})
}

// RequestPasswordReset godoc
// @Summary Request a password reset email
// @Description The reset token is also returned in the response body.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RequestResetRequest true "Account email"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/request-password-reset [post]
func (h *AuthHandler) RequestPasswordReset(c echo.Context) error {
	var req RequestResetRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, err := h.resetService.RequestReset(c.Request().Context(), req.Email)
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Password reset token generated.",
		Token:   token,
	})
}

// ResetPassword godoc
// @Summary Set a new password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param token path string true "Reset token"
// @Param request body ResetPasswordRequest true "New password"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/reset-password/{token} [post]
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req ResetPasswordRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.resetService.ConsumeReset(c.Request().Context(), c.Param("token"), req.NewPassword); err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Password reset successful.",
	})
}

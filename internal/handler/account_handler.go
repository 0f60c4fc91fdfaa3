package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"useraccounts/internal/model"
	"useraccounts/internal/service"
)

// AccountHandler handles the authenticated account endpoints.
type AccountHandler struct {
	accountService service.AccountService
}

// NewAccountHandler creates a new account handler.
func NewAccountHandler(accountService service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

// UpdateAccountRequest is a partial profile update. Omitted fields are left unchanged.
type UpdateAccountRequest struct {
	Name     *string `json:"name,omitempty"`
	Password *string `json:"password,omitempty"`
}

// SetRoleRequest changes an account's role.
type SetRoleRequest struct {
	Role string `json:"role"`
}

// GetAccount godoc
// @Summary Get an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Failure 401 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/{id} [get]
func (h *AccountHandler) GetAccount(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	account, err := h.accountService.Get(c.Request().Context(), id)
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Account found.",
		Data:    account,
	})
}

// UpdateAccount godoc
// @Summary Update an account's name or password
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body UpdateAccountRequest true "Fields to change"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/{id} [put]
func (h *AccountHandler) UpdateAccount(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	var req UpdateAccountRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, err := h.accountService.Update(c.Request().Context(), id, service.UpdateInput{
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Account updated successfully.",
		Data:    account,
	})
}

// DeleteAccount godoc
// @Summary Delete an account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Success 200 {object} Response
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/{id} [delete]
func (h *AccountHandler) DeleteAccount(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	if err := h.accountService.Delete(c.Request().Context(), id); err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Account deleted successfully.",
	})
}

// ListAccounts godoc
// @Summary List accounts
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size" default(10)
// @Success 200 {object} Response{data=service.AccountPage}
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users [get]
func (h *AccountHandler) ListAccounts(c echo.Context) error {
	// unparsable values fall back to the defaults
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))

	result, err := h.accountService.List(c.Request().Context(), page, pageSize)
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    result,
	})
}

// SetRole godoc
// @Summary Change an account's role
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Account ID"
// @Param request body SetRoleRequest true "New role"
// @Success 200 {object} Response
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Failure 403 {object} errors.ErrorResponse
// @Failure 404 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /users/{id}/role [patch]
func (h *AccountHandler) SetRole(c echo.Context) error {
	id, err := accountID(c)
	if err != nil {
		return err
	}

	var req SetRoleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	account, err := h.accountService.SetRole(c.Request().Context(), id, model.Role(req.Role))
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, Response{
		Success: true,
		Message: "Role updated successfully.",
		Data:    account,
	})
}

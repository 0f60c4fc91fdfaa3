package middleware

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"useraccounts/internal/auth"
	apperrors "useraccounts/internal/errors"
	"useraccounts/internal/model"
)

const (
	claimsKey    = "claims"
	accountIDKey = "account_id"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// RoleResolver looks up the current role of an account.
type RoleResolver interface {
	Role(ctx context.Context, id uuid.UUID) (model.Role, error)
}

// Authenticate requires a valid "Authorization: Bearer <token>" header and
// exposes the authenticated account id through AccountIDFrom.
func Authenticate(tokens TokenVerifier) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  claimsKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ",
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := tokens.Verify(token)
			if err != nil {
				return nil, err
			}
			id, err := uuid.Parse(claims.Subject)
			if err != nil {
				return nil, fmt.Errorf("%w: subject is not an account id", apperrors.ErrInvalidToken)
			}

			c.Set(accountIDKey, id)
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			if errors.Is(err, apperrors.ErrInvalidToken) {
				return apperrors.ErrInvalidToken
			}
			// nothing usable in the Authorization header
			return apperrors.ErrUnauthenticated
		},
	})
}

// Authorize admits the request only when the authenticated account holds one
// of roles. The role comes from resolver on every request.
func Authorize(resolver RoleResolver, roles ...model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id, ok := AccountIDFrom(c)
			if !ok {
				return apperrors.ErrUnauthenticated
			}

			role, err := resolver.Role(c.Request().Context(), id)
			if err != nil {
				return err
			}

			for _, allowed := range roles {
				if role == allowed {
					return next(c)
				}
			}
			return apperrors.ErrForbidden
		}
	}
}

// SelfOrRole admits the request when the :id path parameter names the
// authenticated account, and otherwise behaves like Authorize.
func SelfOrRole(resolver RoleResolver, roles ...model.Role) echo.MiddlewareFunc {
	authorize := Authorize(resolver, roles...)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		authorized := authorize(next)
		return func(c echo.Context) error {
			id, ok := AccountIDFrom(c)
			if !ok {
				return apperrors.ErrUnauthenticated
			}
			if target, err := uuid.Parse(c.Param("id")); err == nil && target == id {
				return next(c)
			}
			return authorized(c)
		}
	}
}

// AccountIDFrom returns the account id stored by Authenticate.
func AccountIDFrom(c echo.Context) (uuid.UUID, bool) {
	id, ok := c.Get(accountIDKey).(uuid.UUID)
	return id, ok
}

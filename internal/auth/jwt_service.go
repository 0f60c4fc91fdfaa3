package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	apperrors "useraccounts/internal/errors"
)

const (
	// TokenExpiry is the lifetime of both bearer and password reset tokens.
	TokenExpiry = time.Hour

	audienceAccess = "access"
	audienceReset  = "password-reset"
)

// Claims represents JWT claims. The account id travels as the subject.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTService handles JWT token generation and validation.
type JWTService struct {
	secret []byte
	now    func() time.Time
}

// NewJWTService creates a new JWT service with the given secret.
// A nil clock means time.Now.
func NewJWTService(secret string, clock func() time.Time) *JWTService {
	if clock == nil {
		clock = time.Now
	}
	return &JWTService{
		secret: []byte(secret),
		now:    clock,
	}
}

// Issue generates a bearer token for subject, valid for TokenExpiry.
func (s *JWTService) Issue(subject string) (string, error) {
	return s.sign(subject, audienceAccess)
}

// Verify validates a bearer token and returns its claims.
// Every failure is reported as ErrInvalidToken.
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	return s.parse(tokenString, audienceAccess)
}

// IssueReset generates a password reset token for subject. Reset tokens are
// rejected by Verify, so a leaked reset link cannot be used as a bearer token.
func (s *JWTService) IssueReset(subject string) (string, error) {
	return s.sign(subject, audienceReset)
}

// VerifyReset validates a password reset token.
func (s *JWTService) VerifyReset(tokenString string) (*Claims, error) {
	return s.parse(tokenString, audienceReset)
}

func (s *JWTService) sign(subject, audience string) (string, error) {
	if subject == "" {
		return "", errors.New("token subject is empty")
	}

	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *JWTService) parse(tokenString, audience string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, apperrors.ErrInvalidToken
	}

	return claims, nil
}

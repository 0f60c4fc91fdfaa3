package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"

	"useraccounts/internal/auth"
	"useraccounts/internal/cache"
	apperrors "useraccounts/internal/errors"
	"useraccounts/internal/logging"
	"useraccounts/internal/mail"
	"useraccounts/internal/repository"
)

const resetEmailSubject = "Password reset request"

// ResetTokenIssuer mints and checks password reset tokens.
type ResetTokenIssuer interface {
	IssueReset(subject string) (string, error)
	VerifyReset(token string) (*auth.Claims, error)
}

// ResetConfig holds the settings of the reset flow.
type ResetConfig struct {
	// URLBase is prefixed to the token to build the emailed link.
	URLBase     string
	MailTimeout time.Duration
}

// PasswordResetService runs the reset token lifecycle: NoReset -> PendingReset -> NoReset.
type PasswordResetService interface {
	// RequestReset stores a fresh reset token for the account and emails a link.
	// Unknown emails yield ErrNotFound.
	RequestReset(ctx context.Context, email string) (string, error)
	// ConsumeReset sets a new password if token is pending and unexpired. A token
	// can be consumed once.
	ConsumeReset(ctx context.Context, token, newPassword string) error
}

type passwordResetService struct {
	repo     repository.AccountRepository
	hasher   CredentialCodec
	tokens   ResetTokenIssuer
	mailer   mail.Mailer
	cache    *cache.Client
	logger   logging.Logger
	now      func() time.Time
	cfg      ResetConfig
	validate *validator.Validate

	// dispatch runs the email send off the request path.
	dispatch func(func())
}

// NewPasswordResetService builds the reset flow. cache may be nil; a nil clock means time.Now.
func NewPasswordResetService(
	repo repository.AccountRepository,
	hasher CredentialCodec,
	tokens ResetTokenIssuer,
	mailer mail.Mailer,
	cacheClient *cache.Client,
	logger logging.Logger,
	clock func() time.Time,
	cfg ResetConfig,
) PasswordResetService {
	if clock == nil {
		clock = time.Now
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	return &passwordResetService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		mailer:   mailer,
		cache:    cacheClient,
		logger:   logger,
		now:      clock,
		cfg:      cfg,
		validate: validator.New(),
		dispatch: func(f func()) { go f() },
	}
}

func (s *passwordResetService) RequestReset(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email"); err != nil {
		return "", apperrors.Validationf("email must be a valid email address")
	}

	account, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("find account: %w", err)
	}

	token, err := s.tokens.IssueReset(account.ID.String())
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}

	now := s.now()
	supersedes := account.HasPendingReset(now)
	expiresAt := now.Add(auth.TokenExpiry)
	if err := s.repo.SetResetToken(ctx, account.ID, token, expiresAt); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", apperrors.ErrNotFound
		}
		return "", fmt.Errorf("store reset token: %w", err)
	}

	s.logger.Info(ctx, "password reset requested", "account_id", account.ID, "supersedes_pending", supersedes)

	// The token is already persisted; a failed send is logged and the request
	// still succeeds.
	s.sendResetEmail(ctx, account.ID.String(), account.Email, token)

	return token, nil
}

func (s *passwordResetService) ConsumeReset(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return apperrors.ErrInvalidOrExpiredToken
	}

	claims, err := s.tokens.VerifyReset(token)
	if err != nil {
		return apperrors.ErrInvalidOrExpiredToken
	}

	if err := s.validate.Var(newPassword, "required,min=6,max=72"); err != nil {
		return apperrors.Validationf("password must be between 6 and 72 characters")
	}
	if err := checkPasswordBytes(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.repo.ConsumeResetToken(ctx, token, hash, s.now()); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrInvalidOrExpiredToken
		}
		return fmt.Errorf("consume reset token: %w", err)
	}
	_ = s.cache.Delete(ctx, accountCacheKey(claims.Subject))

	s.logger.Info(ctx, "password reset completed", "account_id", claims.Subject)
	return nil
}

func (s *passwordResetService) resetLink(token string) string {
	return strings.TrimRight(s.cfg.URLBase, "/") + "/" + url.PathEscape(token)
}

func (s *passwordResetService) sendResetEmail(ctx context.Context, accountID, to, token string) {
	body := fmt.Sprintf(
		"You requested a password reset.\n\nOpen the link below within %s to choose a new password:\n\n%s\n\nIf you did not request this, you can ignore this email.\n",
		auth.TokenExpiry, s.resetLink(token),
	)

	mailCtx := context.WithoutCancel(ctx)
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(mailCtx, s.cfg.MailTimeout)
		defer cancel()
		if err := s.mailer.Send(ctx, to, resetEmailSubject, body); err != nil {
			s.logger.Warn(ctx, "password reset email failed", "account_id", accountID, "error", err)
		}
	})
}

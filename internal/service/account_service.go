package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"useraccounts/internal/auth"
	"useraccounts/internal/cache"
	apperrors "useraccounts/internal/errors"
	"useraccounts/internal/logging"
	"useraccounts/internal/model"
	"useraccounts/internal/repository"
)

const (
	accountCacheTTL = 5 * time.Minute

	DefaultPageSize = 10
	MaxPageSize     = 100
)

// CredentialCodec hashes and verifies passwords.
type CredentialCodec interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}

// TokenIssuer mints bearer tokens for an account id.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// RegisterInput is the public registration payload.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	Email    string `json:"email" validate:"required,email,max=255"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// UpdateInput is the self-service profile patch. Roles change only through SetRole.
type UpdateInput struct {
	Name     *string `json:"name,omitempty" validate:"omitnil,min=1,max=255"`
	Password *string `json:"password,omitempty" validate:"omitnil,min=6,max=72"`
}

// AccountPage is one page of the administrative listing.
type AccountPage struct {
	Accounts   []model.AccountSummary `json:"accounts"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
	Total      int64                  `json:"total"`
	TotalPages int                    `json:"total_pages"`
}

// AccountService exposes the account directory.
type AccountService interface {
	Register(ctx context.Context, in RegisterInput) (*model.Account, string, error)
	Login(ctx context.Context, email, password string) (*model.Account, string, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Account, error)
	Role(ctx context.Context, id uuid.UUID) (model.Role, error)
	Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*model.Account, error)
	SetRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.Account, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, page, pageSize int) (*AccountPage, error)
}

type accountService struct {
	repo     repository.AccountRepository
	hasher   CredentialCodec
	tokens   TokenIssuer
	cache    *cache.Client
	logger   logging.Logger
	now      func() time.Time
	validate *validator.Validate

	// dummyHash is compared against on logins for unknown emails so both
	// failure paths cost one bcrypt comparison.
	dummyOnce sync.Once
	dummyHash string
}

// NewAccountService builds an AccountService. cache may be nil; a nil clock means time.Now.
func NewAccountService(
	repo repository.AccountRepository,
	hasher CredentialCodec,
	tokens TokenIssuer,
	cacheClient *cache.Client,
	logger logging.Logger,
	clock func() time.Time,
) AccountService {
	if clock == nil {
		clock = time.Now
	}
	return &accountService{
		repo:     repo,
		hasher:   hasher,
		tokens:   tokens,
		cache:    cacheClient,
		logger:   logger,
		now:      clock,
		validate: validator.New(),
	}
}

func accountCacheKey(id string) string {
	return "account:" + id
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// checkPasswordBytes complements the max tag, which counts runes.
func checkPasswordBytes(password string) error {
	if len(password) > auth.MaxPasswordBytes {
		return apperrors.Validationf("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	return nil
}

// Register creates a new account with hashed password and returns it with a bearer token.
func (s *accountService) Register(ctx context.Context, in RegisterInput) (*model.Account, string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return nil, "", apperrors.Validation(err)
	}
	if err := checkPasswordBytes(in.Password); err != nil {
		return nil, "", err
	}

	existing, err := s.repo.FindByEmail(ctx, in.Email)
	if err == nil && existing != nil {
		return nil, "", apperrors.ErrConflict
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", fmt.Errorf("check account existence: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	now := s.now()
	account := &model.Account{
		ID:           uuid.New(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		// lost a race with a concurrent registration
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, "", apperrors.ErrConflict
		}
		return nil, "", fmt.Errorf("create account: %w", err)
	}

	token, err := s.tokens.Issue(account.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}

	s.logger.Info(ctx, "account registered", "account_id", account.ID)
	return account, token, nil
}

// Login authenticates an account by email and password.
func (s *accountService) Login(ctx context.Context, email, password string) (*model.Account, string, error) {
	account, err := s.repo.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.hasher.Verify(password, s.fallbackHash())
			return nil, "", apperrors.ErrUnauthorized
		}
		return nil, "", fmt.Errorf("find account: %w", err)
	}

	if !s.hasher.Verify(password, account.PasswordHash) {
		return nil, "", apperrors.ErrUnauthorized
	}

	token, err := s.tokens.Issue(account.ID.String())
	if err != nil {
		return nil, "", fmt.Errorf("issue token: %w", err)
	}
	return account, token, nil
}

func (s *accountService) fallbackHash() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	return s.dummyHash
}

// Get returns the public view of an account, served from cache when possible.
func (s *accountService) Get(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	key := accountCacheKey(id.String())

	var cached model.Account
	if s.cache.GetJSON(ctx, key, &cached) {
		return &cached, nil
	}

	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cache.SetJSON(ctx, key, account, accountCacheTTL)
	return account, nil
}

// Role returns the stored role of an account. It skips the cache so role
// changes made outside this service apply on the next request.
func (s *accountService) Role(ctx context.Context, id uuid.UUID) (model.Role, error) {
	account, err := s.find(ctx, id)
	if err != nil {
		return "", err
	}
	return account.Role, nil
}

// Update applies a profile patch. A provided password is re-hashed.
func (s *accountService) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (*model.Account, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, apperrors.Validation(err)
	}
	if in.Password != nil {
		if err := checkPasswordBytes(*in.Password); err != nil {
			return nil, err
		}
	}

	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name == nil && in.Password == nil {
		return account, nil
	}

	columns := []string{"updated_at"}
	if in.Name != nil {
		account.Name = *in.Name
		columns = append(columns, "name")
	}
	if in.Password != nil {
		hash, err := s.hasher.Hash(*in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		account.PasswordHash = hash
		columns = append(columns, "password_hash")
	}
	account.UpdatedAt = s.now()

	if err := s.save(ctx, account, columns...); err != nil {
		return nil, err
	}
	return account, nil
}

// SetRole changes an account's role. Only reachable through admin routes.
func (s *accountService) SetRole(ctx context.Context, id uuid.UUID, role model.Role) (*model.Account, error) {
	if !role.Valid() {
		return nil, apperrors.Validationf("role must be one of [%s %s]", model.RoleUser, model.RoleAdmin)
	}

	account, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}

	account.Role = role
	account.UpdatedAt = s.now()
	if err := s.save(ctx, account, "role", "updated_at"); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "account role changed", "account_id", id, "role", role)
	return account, nil
}

// Delete hard-deletes an account.
func (s *accountService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}
	_ = s.cache.Delete(ctx, accountCacheKey(id.String()))

	s.logger.Info(ctx, "account deleted", "account_id", id)
	return nil
}

// List returns a page of account summaries. Out of range paging arguments are clamped.
func (s *accountService) List(ctx context.Context, page, pageSize int) (*AccountPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	accounts, total, err := s.repo.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	summaries := make([]model.AccountSummary, 0, len(accounts))
	for i := range accounts {
		summaries = append(summaries, accounts[i].Summary())
	}

	return &AccountPage{
		Accounts:   summaries,
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: int((total + int64(pageSize) - 1) / int64(pageSize)),
	}, nil
}

func (s *accountService) find(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return account, nil
}

func (s *accountService) save(ctx context.Context, account *model.Account, columns ...string) error {
	if err := s.repo.Update(ctx, account, columns...); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("update account: %w", err)
	}
	_ = s.cache.Delete(ctx, accountCacheKey(account.ID.String()))
	return nil
}

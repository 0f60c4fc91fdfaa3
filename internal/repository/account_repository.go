package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"useraccounts/internal/model"
)

// AccountRepository defines account persistence operations.
// Lookups that match no row return gorm.ErrRecordNotFound.
type AccountRepository interface {
	Create(ctx context.Context, account *model.Account) error
	// Update writes only the named columns of account.
	Update(ctx context.Context, account *model.Account, columns ...string) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	List(ctx context.Context, offset, limit int) ([]model.Account, int64, error)
	Delete(ctx context.Context, id uuid.UUID) error

	SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error
	// ConsumeResetToken replaces the password hash and clears the reset token in
	// one conditional statement, only while the token is stored and unexpired.
	ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) error
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository creates a new account repository.
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create creates a new account.
func (r *accountRepository) Create(ctx context.Context, account *model.Account) error {
	return r.db.WithContext(ctx).Create(account).Error
}

func (r *accountRepository) Update(ctx context.Context, account *model.Account, columns ...string) error {
	res := r.db.WithContext(ctx).Model(account).Select(columns).Updates(account)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// MySQL reports changed rows, not matched rows, so an unchanged row reads as zero.
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Account{}).Where("id = ?", account.ID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByID finds an account by ID.
func (r *accountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *accountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	var account model.Account
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

// List returns one page of accounts in creation order plus the total count.
func (r *accountRepository) List(ctx context.Context, offset, limit int) ([]model.Account, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.Account{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var accounts []model.Account
	if err := r.db.WithContext(ctx).
		Order("created_at ASC").Order("id ASC").
		Offset(offset).Limit(limit).
		Find(&accounts).Error; err != nil {
		return nil, 0, err
	}
	return accounts, total, nil
}

// Delete hard-deletes an account.
func (r *accountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Account{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *accountRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"reset_token":            token,
			"reset_token_expires_at": expiresAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *accountRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("reset_token = ? AND reset_token_expires_at > ?", token, now).
		Updates(map[string]interface{}{
			"password_hash":          passwordHash,
			"reset_token":            nil,
			"reset_token_expires_at": nil,
			"updated_at":             now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ClearExpiredResetTokens drops reset tokens whose expiry has passed.
func (r *accountRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.Account{}).
		Where("reset_token_expires_at IS NOT NULL AND reset_token_expires_at <= ?", now).
		Updates(map[string]interface{}{
			"reset_token":            nil,
			"reset_token_expires_at": nil,
		})
	return res.RowsAffected, res.Error
}

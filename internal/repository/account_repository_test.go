package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"useraccounts/internal/db"
	"useraccounts/internal/model"
)

func newTestRepo(t *testing.T) (AccountRepository, *gorm.DB) {
	t.Helper()
	gormDB, err := db.NewSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return NewAccountRepository(gormDB), gormDB
}

func createAccount(t *testing.T, repo AccountRepository, email string) *model.Account {
	t.Helper()
	account := &model.Account{Name: "Test", Email: email, PasswordHash: "$2a$04$hash"}
	require.NoError(t, repo.Create(context.Background(), account))
	return account
}

var baseTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestAccountRepository_CreateAndFind(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()

	account := createAccount(t, repo, "a@x.com")
	assert.NotEqual(t, uuid.Nil, account.ID)
	assert.Equal(t, model.RoleUser, account.Role)

	byID, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", byID.Email)

	byEmail, err := repo.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, byEmail.ID)

	_, err = repo.FindByID(ctx, uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	_, err = repo.FindByEmail(ctx, "missing@x.com")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAccountRepository_UniqueEmail(t *testing.T) {
	repo, _ := newTestRepo(t)

	createAccount(t, repo, "a@x.com")
	err := repo.Create(context.Background(), &model.Account{Name: "Other", Email: "a@x.com", PasswordHash: "h"})

	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func TestAccountRepository_UpdateSelectedColumns(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	account := createAccount(t, repo, "a@x.com")
	require.NoError(t, repo.SetResetToken(ctx, account.ID, "pending", baseTime.Add(time.Hour)))

	account.Name = "Renamed"
	account.Role = model.RoleAdmin
	account.ResetToken = nil
	require.NoError(t, repo.Update(ctx, account, "name", "updated_at"))

	stored, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Name)
	assert.Equal(t, model.RoleUser, stored.Role, "role was not selected")
	require.NotNil(t, stored.ResetToken, "reset token was not selected")
	assert.Equal(t, "pending", *stored.ResetToken)

	missing := &model.Account{ID: uuid.New(), Name: "ghost"}
	assert.ErrorIs(t, repo.Update(ctx, missing, "name"), gorm.ErrRecordNotFound)
}

func TestAccountRepository_ListPaginates(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		createAccount(t, repo, fmt.Sprintf("user%d@x.com", i))
	}

	page, total, err := repo.List(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, page, 2)

	last, total, err := repo.List(ctx, 4, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	assert.Len(t, last, 1)

	empty, _, err := repo.List(ctx, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAccountRepository_DeleteIsHard(t *testing.T) {
	repo, gormDB := newTestRepo(t)
	ctx := context.Background()
	account := createAccount(t, repo, "a@x.com")

	require.NoError(t, repo.Delete(ctx, account.ID))

	var count int64
	require.NoError(t, gormDB.Unscoped().Model(&model.Account{}).Where("id = ?", account.ID).Count(&count).Error)
	assert.Zero(t, count)

	assert.ErrorIs(t, repo.Delete(ctx, account.ID), gorm.ErrRecordNotFound)
}

func TestAccountRepository_ConsumeResetToken(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	account := createAccount(t, repo, "a@x.com")
	expires := baseTime.Add(time.Hour)

	require.NoError(t, repo.SetResetToken(ctx, account.ID, "token-1", expires))
	pending, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.True(t, pending.HasPendingReset(baseTime))

	assert.ErrorIs(t, repo.ConsumeResetToken(ctx, "wrong", "new-hash", baseTime), gorm.ErrRecordNotFound)

	require.NoError(t, repo.ConsumeResetToken(ctx, "token-1", "new-hash", baseTime.Add(time.Minute)))

	stored, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiresAt)

	assert.ErrorIs(t, repo.ConsumeResetToken(ctx, "token-1", "other-hash", baseTime.Add(2*time.Minute)), gorm.ErrRecordNotFound)
}

func TestAccountRepository_ConsumeResetTokenExpired(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	account := createAccount(t, repo, "a@x.com")
	require.NoError(t, repo.SetResetToken(ctx, account.ID, "token-1", baseTime.Add(time.Hour)))

	err := repo.ConsumeResetToken(ctx, "token-1", "new-hash", baseTime.Add(time.Hour+time.Second))
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	stored, err := repo.FindByID(ctx, account.ID)
	require.NoError(t, err)
	assert.Equal(t, "$2a$04$hash", stored.PasswordHash)
}

func TestAccountRepository_SetResetTokenMissingAccount(t *testing.T) {
	repo, _ := newTestRepo(t)

	err := repo.SetResetToken(context.Background(), uuid.New(), "t", baseTime)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAccountRepository_ClearExpiredResetTokens(t *testing.T) {
	repo, _ := newTestRepo(t)
	ctx := context.Background()
	expired := createAccount(t, repo, "expired@x.com")
	live := createAccount(t, repo, "live@x.com")
	createAccount(t, repo, "none@x.com")

	require.NoError(t, repo.SetResetToken(ctx, expired.ID, "old", baseTime.Add(-time.Minute)))
	require.NoError(t, repo.SetResetToken(ctx, live.ID, "fresh", baseTime.Add(time.Minute)))

	cleared, err := repo.ClearExpiredResetTokens(ctx, baseTime)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cleared)

	stored, err := repo.FindByID(ctx, expired.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiresAt)

	stillLive, err := repo.FindByID(ctx, live.ID)
	require.NoError(t, err)
	require.NotNil(t, stillLive.ResetToken)
	assert.Equal(t, "fresh", *stillLive.ResetToken)
}

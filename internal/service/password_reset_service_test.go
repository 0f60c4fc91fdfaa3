package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"useraccounts/internal/auth"
	apperrors "useraccounts/internal/errors"
	"useraccounts/internal/logging"
	"useraccounts/internal/model"
)

func (f *fixture) expectResetMail(email string) *mock.Call {
	return f.mailer.On("Send", mock.Anything, email, resetEmailSubject, mock.AnythingOfType("string")).Return(nil)
}

func (f *fixture) reload(t *testing.T, email string) *model.Account {
	t.Helper()
	account, err := f.repo.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return account
}

func TestPasswordResetService_RequestReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ana", "ana@x.com", "secret123")
	f.expectResetMail("ana@x.com")

	token, err := f.resets.RequestReset(ctx, "ANA@x.com")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	stored := f.reload(t, "ana@x.com")
	require.NotNil(t, stored.ResetToken)
	assert.Equal(t, token, *stored.ResetToken)
	assert.True(t, stored.HasPendingReset(f.clock.Now()))
	assert.True(t, f.clock.Now().Add(auth.TokenExpiry).Equal(stored.ResetTokenExpiresAt.UTC()))

	f.mailer.AssertExpectations(t)
	body := f.mailer.Calls[0].Arguments.String(3)
	assert.Contains(t, body, "http://localhost:8080/users/reset-password/"+url.PathEscape(token))
	assert.NotContains(t, body, "reset-password//")
}

func TestPasswordResetService_RequestResetUnknownEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.resets.RequestReset(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	f.mailer.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPasswordResetService_RequestResetInvalidEmail(t *testing.T) {
	f := newFixture(t)

	_, err := f.resets.RequestReset(context.Background(), "not-an-email")
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestPasswordResetService_MailFailureStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.register(t, "Ana", "ana@x.com", "secret123")
	f.mailer.On("Send", mock.Anything, "ana@x.com", resetEmailSubject, mock.Anything).Return(errors.New("smtp: connection refused"))

	token, err := f.resets.RequestReset(context.Background(), "ana@x.com")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	f.mailer.AssertExpectations(t)
}

func TestPasswordResetService_ConsumeReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "Ana", "ana@x.com", "secret123")
	f.expectResetMail("ana@x.com")

	token, err := f.resets.RequestReset(ctx, "ana@x.com")
	require.NoError(t, err)

	// warm the cache so the reset must invalidate it
	_, err = f.accounts.Get(ctx, account.ID)
	require.NoError(t, err)

	require.NoError(t, f.resets.ConsumeReset(ctx, token, "newpass"))
	assert.False(t, f.redis.Exists(accountCacheKey(account.ID.String())))

	stored := f.reload(t, "ana@x.com")
	assert.Nil(t, stored.ResetToken)
	assert.Nil(t, stored.ResetTokenExpiresAt)

	_, _, err = f.accounts.Login(ctx, "ana@x.com", "secret123")
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	_, _, err = f.accounts.Login(ctx, "ana@x.com", "newpass")
	assert.NoError(t, err)

	// single use
	err = f.resets.ConsumeReset(ctx, token, "another")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
}

func TestPasswordResetService_ConsumeResetExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ana", "ana@x.com", "secret123")
	f.expectResetMail("ana@x.com")

	token, err := f.resets.RequestReset(ctx, "ana@x.com")
	require.NoError(t, err)

	f.clock.Advance(auth.TokenExpiry + time.Minute)

	err = f.resets.ConsumeReset(ctx, token, "newpass")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)

	_, _, err = f.accounts.Login(ctx, "ana@x.com", "secret123")
	assert.NoError(t, err)
}

func TestPasswordResetService_NewRequestSupersedesOld(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ana", "ana@x.com", "secret123")
	f.expectResetMail("ana@x.com")

	first, err := f.resets.RequestReset(ctx, "ana@x.com")
	require.NoError(t, err)
	second, err := f.resets.RequestReset(ctx, "ana@x.com")
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	assert.ErrorIs(t, f.resets.ConsumeReset(ctx, first, "newpass"), apperrors.ErrInvalidOrExpiredToken)
	assert.NoError(t, f.resets.ConsumeReset(ctx, second, "newpass"))
}

func TestPasswordResetService_ConsumeResetRejectsBadTokens(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	account := f.register(t, "Ana", "ana@x.com", "secret123")

	bearer, err := f.tokens.Issue(account.ID.String())
	require.NoError(t, err)
	// correctly signed but never stored
	unstored, err := f.tokens.IssueReset(account.ID.String())
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "garbage"},
		{"bearer token", bearer},
		{"not stored", unstored},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.resets.ConsumeReset(ctx, tt.token, "newpass")
			assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
		})
	}
}

func TestPasswordResetService_ConsumeResetWeakPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ana", "ana@x.com", "secret123")
	f.expectResetMail("ana@x.com")

	token, err := f.resets.RequestReset(ctx, "ana@x.com")
	require.NoError(t, err)

	err = f.resets.ConsumeReset(ctx, token, "123")
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// 40 runes but 80 bytes
	err = f.resets.ConsumeReset(ctx, token, strings.Repeat("é", 40))
	assert.ErrorIs(t, err, apperrors.ErrValidation)

	// the token survives a rejected password
	assert.True(t, f.reload(t, "ana@x.com").HasPendingReset(f.clock.Now()))
	assert.NoError(t, f.resets.ConsumeReset(ctx, token, "longer-password"))
}

func TestPasswordResetService_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ana", "ana@x.com", "secret123")
	f.expectResetMail("ana@x.com")

	token, err := f.resets.RequestReset(ctx, "ana@x.com")
	require.NoError(t, err)

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = f.resets.ConsumeReset(ctx, token, strings.Repeat("p", 6+i))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
	}
	assert.Equal(t, 1, succeeded)
}

func TestPasswordResetService_RepositoryFailure(t *testing.T) {
	repo := new(MockAccountRepository)
	tokens := auth.NewJWTService("s", nil)
	svc := NewPasswordResetService(repo, auth.NewPasswordHasher(bcrypt.MinCost), tokens, new(MockMailer), nil, logging.Discard(), nil, ResetConfig{})

	repo.On("FindByEmail", mock.Anything, "ana@x.com").Return(nil, errors.New("db down"))
	_, err := svc.RequestReset(context.Background(), "ana@x.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrNotFound)

	token, err := tokens.IssueReset("7b1c3a58-0d7e-4b9c-9a36-2f0b7b3c1d11")
	require.NoError(t, err)
	repo.On("ConsumeResetToken", mock.Anything, token, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(gorm.ErrRecordNotFound)

	err = svc.ConsumeReset(context.Background(), token, "newpass")
	assert.ErrorIs(t, err, apperrors.ErrInvalidOrExpiredToken)
	repo.AssertExpectations(t)
}

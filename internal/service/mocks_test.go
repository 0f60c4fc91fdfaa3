package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"useraccounts/internal/auth"
	"useraccounts/internal/cache"
	"useraccounts/internal/db"
	"useraccounts/internal/logging"
	"useraccounts/internal/model"
	"useraccounts/internal/repository"
)

// MockAccountRepository is a mock implementation of AccountRepository.
type MockAccountRepository struct {
	mock.Mock
}

func (m *MockAccountRepository) Create(ctx context.Context, account *model.Account) error {
	args := m.Called(ctx, account)
	return args.Error(0)
}

func (m *MockAccountRepository) Update(ctx context.Context, account *model.Account, columns ...string) error {
	args := m.Called(ctx, account, columns)
	return args.Error(0)
}

func (m *MockAccountRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Account, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepository) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Account), args.Error(1)
}

func (m *MockAccountRepository) List(ctx context.Context, offset, limit int) ([]model.Account, int64, error) {
	args := m.Called(ctx, offset, limit)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]model.Account), args.Get(1).(int64), args.Error(2)
}

func (m *MockAccountRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAccountRepository) SetResetToken(ctx context.Context, id uuid.UUID, token string, expiresAt time.Time) error {
	args := m.Called(ctx, id, token, expiresAt)
	return args.Error(0)
}

func (m *MockAccountRepository) ConsumeResetToken(ctx context.Context, token, passwordHash string, now time.Time) error {
	args := m.Called(ctx, token, passwordHash, now)
	return args.Error(0)
}

func (m *MockAccountRepository) ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockMailer is a mock implementation of mail.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, to, subject, body string) error {
	args := m.Called(ctx, to, subject, body)
	return args.Error(0)
}

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
}

// fixture wires the services against sqlite and miniredis.
type fixture struct {
	repo     repository.AccountRepository
	hasher   *auth.PasswordHasher
	tokens   *auth.JWTService
	cache    *cache.Client
	redis    *miniredis.Miniredis
	mailer   *MockMailer
	clock    *testClock
	accounts AccountService
	resets   PasswordResetService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	gormDB, err := db.NewSQLite("file:" + uuid.NewString() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))
	t.Cleanup(func() {
		if sqlDB, err := gormDB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	mr := miniredis.RunT(t)
	cacheClient := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cacheClient.Close() })

	f := &fixture{
		repo:   repository.NewAccountRepository(gormDB),
		hasher: auth.NewPasswordHasher(bcrypt.MinCost),
		cache:  cacheClient,
		redis:  mr,
		mailer: new(MockMailer),
		clock:  newTestClock(),
	}
	f.tokens = auth.NewJWTService("service-test-secret", f.clock.Now)
	f.accounts = NewAccountService(f.repo, f.hasher, f.tokens, f.cache, logging.Discard(), f.clock.Now)

	resets := NewPasswordResetService(f.repo, f.hasher, f.tokens, f.mailer, f.cache, logging.Discard(), f.clock.Now, ResetConfig{
		URLBase:     "http://localhost:8080/users/reset-password/",
		MailTimeout: time.Second,
	})
	resets.(*passwordResetService).dispatch = func(fn func()) { fn() }
	f.resets = resets

	return f
}

func (f *fixture) register(t *testing.T, name, email, password string) *model.Account {
	t.Helper()
	account, _, err := f.accounts.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: password})
	require.NoError(t, err)
	return account
}

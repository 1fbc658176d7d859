package identity_test

import (
	"context"
	"sync"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/repository"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) TenantID() int {
	args := m.Called()
	return args.Int(0)
}

func (m *MockUserStore) DomainName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockUserStore) IsExistingUser(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockUserStore) GetUserClaimValues(ctx context.Context, username string, claimURIs []string) ([]identity.Claim, error) {
	args := m.Called(ctx, username, claimURIs)
	claims, _ := args.Get(0).([]identity.Claim)
	return claims, args.Error(1)
}

func (m *MockUserStore) ListUsersByClaim(ctx context.Context, claimURI, value string) ([]string, error) {
	args := m.Called(ctx, claimURI, value)
	users, _ := args.Get(0).([]string)
	return users, args.Error(1)
}

// newUserStore returns a store for tenant 1 in the PRIMARY domain.
func newUserStore() *MockUserStore {
	users := &MockUserStore{}
	users.On("TenantID").Return(1).Maybe()
	users.On("DomainName").Return("primary").Maybe()
	return users
}

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	_, db, err := repository.Open(context.Background(), repository.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestEngine(t *testing.T, opts ...identity.Option) (*identity.Engine, identity.RepositoryManager) {
	t.Helper()

	repo := identity.NewRepositoryManager(newTestDB(t))
	repo.MustValidate()

	base := []identity.Option{
		identity.WithLogger(&captureLogger{}),
		identity.WithClock(fixedClock()),
	}
	return identity.NewEngine(repo, append(base, opts...)...), repo
}

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	return func() time.Time { return now }
}

func seedState(t *testing.T, engine *identity.Engine, users identity.UserStore, username string) *identity.IdentityState {
	t.Helper()

	state, err := engine.StoreUserIdentityState(context.Background(), &identity.IdentityState{Username: username}, users)
	require.NoError(t, err)
	return state
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Trace(message string, args ...any) { l.record("trace", message, args...) }
func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }
func (l *captureLogger) Fatal(message string, args ...any) { l.record("fatal", message, args...) }
func (l *captureLogger) WithContext(context.Context) identity.Logger {
	return l
}

func (l *captureLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.level)
	}
	return out
}

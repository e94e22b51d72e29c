package auth

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/minhtran/blog-backend/internal/model"
	"github.com/minhtran/blog-backend/internal/repository"
	"github.com/minhtran/blog-backend/internal/utils"
)

// ----- in-memory stores -----

type fakeUsers struct {
	mu   sync.Mutex
	seq  uint64
	byID map[uint64]model.User
}

func newFakeUsers() *fakeUsers { return &fakeUsers{byID: map[uint64]model.User{}} }

func (f *fakeUsers) Create(_ context.Context, email, username, passwordHash string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.byID {
		if u.Email == email {
			return model.User{}, repository.ErrEmailExists
		}
		if u.Username == username {
			return model.User{}, repository.ErrUsernameExists
		}
	}
	f.seq++
	now := time.Now().UTC()
	u := model.User{
		ID: f.seq, Email: email, Username: username, PasswordHash: passwordHash,
		Role: model.RoleUser, Status: model.StatusActive, CreatedAt: now, UpdatedAt: now,
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUsers) UpdateLastLogin(_ context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	now := time.Now().UTC()
	u.LastLoginAt = &now
	f.byID[id] = u
	return nil
}

func (f *fakeUsers) setStatus(id uint64, status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.Status = status
	f.byID[id] = u
}

func (f *fakeUsers) setRole(id uint64, role model.Role) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.byID[id]
	u.Role = role
	f.byID[id] = u
}

type fakeTokens struct {
	mu   sync.Mutex
	seq  uint64
	byID map[uint64]model.RefreshToken
}

func newFakeTokens() *fakeTokens { return &fakeTokens{byID: map[uint64]model.RefreshToken{}} }

func (f *fakeTokens) Create(_ context.Context, userID uint64, expiresAt time.Time) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	f.byID[f.seq] = model.RefreshToken{
		ID: f.seq, UserID: userID, ExpiresAt: expiresAt, CreatedAt: time.Now().UTC(),
	}
	return f.seq, nil
}

func (f *fakeTokens) SetToken(_ context.Context, id uint64, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.byID[id]
	if !ok {
		return sql.ErrNoRows
	}
	rt.Token = token
	f.byID[id] = rt
	return nil
}

func (f *fakeTokens) FindByTokenAndID(_ context.Context, token string, id uint64) (model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.byID[id]
	if !ok || rt.Token != token {
		return model.RefreshToken{}, sql.ErrNoRows
	}
	return rt, nil
}

func (f *fakeTokens) DeleteByID(_ context.Context, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return false, nil
	}
	delete(f.byID, id)
	return true, nil
}

func (f *fakeTokens) DeleteByTokenAndID(_ context.Context, token string, id uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.byID[id]
	if !ok || rt.Token != token {
		return false, nil
	}
	delete(f.byID, id)
	return true, nil
}

func (f *fakeTokens) DeleteExpired(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	now := time.Now().UTC()
	for id, rt := range f.byID {
		if rt.ExpiresAt.Before(now) {
			delete(f.byID, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeTokens) DeleteAllForUser(_ context.Context, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, rt := range f.byID {
		if rt.UserID == userID {
			delete(f.byID, id)
		}
	}
	return nil
}

func (f *fakeTokens) expireRow(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt := f.byID[id]
	rt.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	f.byID[id] = rt
}

// ----- helpers -----

func testConfig() Config {
	return Config{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		BcryptCost:    bcrypt.MinCost,
	}
}

func newTestService() (*Service, *fakeUsers, *fakeTokens) {
	users := newFakeUsers()
	tokens := newFakeTokens()
	return NewService(users, tokens, testConfig()), users, tokens
}

// ----- tests -----

func TestRegisterHashesPassword(t *testing.T) {
	svc, users, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	require.Equal(t, model.RoleUser, u.Role)
	require.Equal(t, model.StatusActive, u.Status)

	stored := users.byID[u.ID]
	require.NotEqual(t, "Secret123", stored.PasswordHash)
	require.True(t, utils.VerifyPassword(stored.PasswordHash, "Secret123"))
}

func TestRegisterDuplicateFields(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice@example.com", "alice2", "Secret123")
	require.ErrorIs(t, err, repository.ErrEmailExists)

	_, err = svc.Register(ctx, "alice2@example.com", "alice", "Secret123")
	require.ErrorIs(t, err, repository.ErrUsernameExists)
}

func TestLoginErrors(t *testing.T) {
	svc, users, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)

	_, _, err = svc.Login(ctx, "nobody@example.com", "Secret123")
	require.ErrorIs(t, err, ErrUserNotFound)

	_, _, err = svc.Login(ctx, "alice@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	users.setStatus(u.ID, model.StatusBanned)
	_, _, err = svc.Login(ctx, "alice@example.com", "Secret123")
	require.ErrorIs(t, err, ErrAccountDisabled)
}

func TestLoginIssuesBackedTokens(t *testing.T) {
	svc, users, tokens := newTestService()
	ctx := context.Background()

	reg, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	users.setRole(reg.ID, model.RoleAuthor)

	u, pair, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)
	require.Equal(t, reg.ID, u.ID)
	require.NotNil(t, users.byID[u.ID].LastLoginAt)

	// Access claims reflect the stored user at issuance time.
	ac, err := utils.VerifyAccessToken("access-secret", pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, u.ID, ac.UserID)
	require.Equal(t, "alice", ac.Username)
	require.Equal(t, model.RoleAuthor, ac.Role)

	// The refresh token embeds its own row id and the row carries the
	// signed string after the two-phase backfill.
	rc, err := utils.VerifyRefreshToken("refresh-secret", pair.RefreshToken)
	require.NoError(t, err)
	row, err := tokens.FindByTokenAndID(ctx, pair.RefreshToken, rc.RefreshTokenID)
	require.NoError(t, err)
	require.Equal(t, u.ID, row.UserID)
	require.Equal(t, pair.RefreshToken, row.Token)
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	_, pair1, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)

	// Issued-at has second granularity; make sure the rotated access
	// token cannot be byte-identical to the first one.
	time.Sleep(1100 * time.Millisecond)

	pair2, err := svc.Refresh(ctx, pair1.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair1.AccessToken, pair2.AccessToken)
	require.NotEqual(t, pair1.RefreshToken, pair2.RefreshToken)

	// A refresh token is single-use: replaying the redeemed one fails.
	_, err = svc.Refresh(ctx, pair1.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	// The replacement still works.
	_, err = svc.Refresh(ctx, pair2.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshRejectsGarbage(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Refresh(ctx, "not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthorized)

	// Cryptographically valid but never stored.
	forged, err := utils.SignRefreshToken("refresh-secret", 1, 12345, time.Hour)
	require.NoError(t, err)
	_, err = svc.Refresh(ctx, forged)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshDisabledUser(t *testing.T) {
	svc, users, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)

	users.setStatus(u.ID, model.StatusInactive)
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshExpiredRow(t *testing.T) {
	svc, _, tokens := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)

	rc, err := utils.VerifyRefreshToken("refresh-secret", pair.RefreshToken)
	require.NoError(t, err)
	tokens.expireRow(rc.RefreshTokenID)

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestLogoutInvalidatesToken(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	_, pair, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)

	// Logging out twice is flagged, not silently accepted.
	require.ErrorIs(t, svc.Logout(ctx, pair.RefreshToken), ErrUnauthorized)
}

func TestLogoutAll(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	u, err := svc.Register(ctx, "alice@example.com", "alice", "Secret123")
	require.NoError(t, err)
	_, pair1, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)
	_, pair2, err := svc.Login(ctx, "alice@example.com", "Secret123")
	require.NoError(t, err)

	require.NoError(t, svc.LogoutAll(ctx, u.ID))

	_, err = svc.Refresh(ctx, pair1.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = svc.Refresh(ctx, pair2.RefreshToken)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestSweepExpired(t *testing.T) {
	svc, _, tokens := newTestService()
	ctx := context.Background()

	_, err := tokens.Create(ctx, 1, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	live, err := tokens.Create(ctx, 1, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)

	n, err := svc.SweepExpired(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, ok := tokens.byID[live]
	require.True(t, ok)
}

package auth

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"time"

	"github.com/minhtran/blog-backend/internal/model"
	"github.com/minhtran/blog-backend/internal/utils"
)

// UserStore is the slice of user persistence the auth flows need.
// Lookups return sql.ErrNoRows when no live user matches.
type UserStore interface {
	Create(ctx context.Context, email, username, passwordHash string) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	UpdateLastLogin(ctx context.Context, id uint64) error
}

// TokenStore persists refresh-token rows.  Delete methods report whether a
// row was actually removed so rotation can fail closed under concurrent
// replay of the same token.
type TokenStore interface {
	Create(ctx context.Context, userID uint64, expiresAt time.Time) (uint64, error)
	SetToken(ctx context.Context, id uint64, token string) error
	FindByTokenAndID(ctx context.Context, token string, id uint64) (model.RefreshToken, error)
	DeleteByID(ctx context.Context, id uint64) (bool, error)
	DeleteByTokenAndID(ctx context.Context, token string, id uint64) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
	DeleteAllForUser(ctx context.Context, userID uint64) error
}

// Config carries the immutable process-wide settings the service needs.
// AccessSecret and RefreshSecret must differ; config loading enforces that.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	BcryptCost    int
}

// TokenPair is one issued access/refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Service orchestrates register, login, refresh and logout over the stores.
type Service struct {
	users  UserStore
	tokens TokenStore
	cfg    Config
}

func NewService(users UserStore, tokens TokenStore, cfg Config) *Service {
	return &Service{users: users, tokens: tokens, cfg: cfg}
}

// Register hashes the password and creates an ACTIVE user with role USER.
// Duplicate email/username surfaces as the repository's field-specific
// sentinel.
func (s *Service) Register(ctx context.Context, email, username, password string) (model.User, error) {
	hash, err := utils.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		return model.User{}, err
	}
	return s.users.Create(ctx, email, username, hash)
}

// Login verifies credentials and issues a token pair.  The last-login stamp
// is best-effort: a failure there never blocks the login.
func (s *Service) Login(ctx context.Context, email, password string) (model.User, TokenPair, error) {
	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, TokenPair{}, ErrUserNotFound
		}
		return model.User{}, TokenPair{}, err
	}
	if u.PasswordHash == "" || !utils.VerifyPassword(u.PasswordHash, password) {
		return model.User{}, TokenPair{}, ErrInvalidCredentials
	}
	if u.Status != model.StatusActive {
		return model.User{}, TokenPair{}, ErrAccountDisabled
	}

	if err := s.users.UpdateLastLogin(ctx, u.ID); err != nil {
		log.Printf("auth: last-login update for user %d failed: %v", u.ID, err)
	}

	pair, err := s.issueTokens(ctx, u.ID)
	if err != nil {
		return model.User{}, TokenPair{}, err
	}
	return u, pair, nil
}

// Refresh rotates a refresh token: the presented token is verified, matched
// against its row by both string and embedded id, invalidated, and a fresh
// pair is issued.  Every failure collapses to ErrUnauthorized so "expired",
// "tampered" and "already used" are indistinguishable to the caller.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := utils.VerifyRefreshToken(s.cfg.RefreshSecret, refreshToken)
	if err != nil {
		return TokenPair{}, ErrUnauthorized
	}

	row, err := s.tokens.FindByTokenAndID(ctx, refreshToken, claims.RefreshTokenID)
	if err != nil {
		return TokenPair{}, ErrUnauthorized
	}

	u, err := s.users.GetByID(ctx, row.UserID)
	if err != nil || u.Status != model.StatusActive {
		return TokenPair{}, ErrUnauthorized
	}
	if time.Now().UTC().After(row.ExpiresAt) {
		return TokenPair{}, ErrUnauthorized
	}

	// Rotation.  The conditional delete is the linearization point: a
	// concurrent replay of the same token finds the row already gone and
	// fails closed.
	deleted, err := s.tokens.DeleteByID(ctx, row.ID)
	if err != nil || !deleted {
		return TokenPair{}, ErrUnauthorized
	}

	return s.issueTokens(ctx, row.UserID)
}

// Logout invalidates one session.  A token whose row is already gone yields
// ErrUnauthorized rather than a silent success, so replayed or tampered
// tokens are flagged instead of masked.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	claims, err := utils.VerifyRefreshToken(s.cfg.RefreshSecret, refreshToken)
	if err != nil {
		return ErrUnauthorized
	}
	deleted, err := s.tokens.DeleteByTokenAndID(ctx, refreshToken, claims.RefreshTokenID)
	if err != nil || !deleted {
		return ErrUnauthorized
	}
	return nil
}

// LogoutAll revokes every outstanding session of a user.
func (s *Service) LogoutAll(ctx context.Context, userID uint64) error {
	return s.tokens.DeleteAllForUser(ctx, userID)
}

// SweepExpired deletes expired refresh-token rows.  Run periodically from a
// background job.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx)
}

// issueTokens builds a token pair for userID.  The user record is re-read so
// the access claims carry the current role and a disabled account cannot
// mint tokens, regardless of what the caller believed.  Issuance is
// two-phase: the refresh row must exist before the token embedding its id
// can be signed; the signed string is backfilled afterwards.
func (s *Service) issueTokens(ctx context.Context, userID uint64) (TokenPair, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return TokenPair{}, ErrUserNotFound
		}
		return TokenPair{}, err
	}
	if u.Status != model.StatusActive {
		return TokenPair{}, ErrAccountDisabled
	}

	expiresAt := time.Now().UTC().Add(s.cfg.RefreshTTL)
	rowID, err := s.tokens.Create(ctx, u.ID, expiresAt)
	if err != nil {
		return TokenPair{}, err
	}

	// The two signatures share no data, so sign them concurrently.
	var (
		access, refresh string
		accErr, refErr  error
		done            = make(chan struct{})
	)
	go func() {
		defer close(done)
		access, accErr = utils.SignAccessToken(s.cfg.AccessSecret, u.ID, u.Username, u.Role, s.cfg.AccessTTL)
	}()
	refresh, refErr = utils.SignRefreshToken(s.cfg.RefreshSecret, u.ID, rowID, s.cfg.RefreshTTL)
	<-done
	if accErr != nil {
		return TokenPair{}, accErr
	}
	if refErr != nil {
		return TokenPair{}, refErr
	}

	if err := s.tokens.SetToken(ctx, rowID, refresh); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

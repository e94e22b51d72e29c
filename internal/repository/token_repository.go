package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/minhtran/blog-backend/internal/model"
)

// TokenRepo persists refresh tokens.  Issuance is two-phase: a row is
// inserted with an empty token string to obtain its id, the signed token
// embedding that id is produced, then SetToken backfills the string.  A row
// with an empty token string can never match a signed JWT, so a crash
// between the phases leaves an inert row that the expiry sweep removes.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Create inserts a placeholder refresh-token row and returns its id.
func (r *TokenRepo) Create(ctx context.Context, userID uint64, expiresAt time.Time) (uint64, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token, expires_at) VALUES (?,?,?)",
		userID, "", expiresAt)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}

// SetToken backfills the signed token string into its row.
func (r *TokenRepo) SetToken(ctx context.Context, id uint64, token string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET token=? WHERE id=?", token, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FindByTokenAndID returns the row matching both the token string and the id
// claimed inside it.  A mismatch on either means the token was rotated,
// revoked or forged; callers treat sql.ErrNoRows as unauthorized.
func (r *TokenRepo) FindByTokenAndID(ctx context.Context, token string, id uint64) (model.RefreshToken, error) {
	var rt model.RefreshToken
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, user_id, token, expires_at, created_at FROM refresh_tokens WHERE id=? AND token=? LIMIT 1",
		id, token).Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.ExpiresAt, &rt.CreatedAt)
	return rt, err
}

// DeleteByID removes a row and reports whether it still existed.  The delete
// is the linearization point of rotation: when two requests race to redeem
// the same refresh token, exactly one observes true here.
func (r *TokenRepo) DeleteByID(ctx context.Context, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id=?", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteByTokenAndID removes the row matching both token string and id and
// reports whether it existed.
func (r *TokenRepo) DeleteByTokenAndID(ctx context.Context, token string, id uint64) (bool, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE id=? AND token=?", id, token)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// DeleteExpired removes every row past its expiry and returns the count.
func (r *TokenRepo) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE expires_at < NOW()")
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DeleteAllForUser revokes every session of a user (forced logout-everywhere).
func (r *TokenRepo) DeleteAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM refresh_tokens WHERE user_id=?", userID)
	return err
}

package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/minhtran/blog-backend/internal/model"
)

// UserRepo persists users.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

const userColumns = "id,email,username,password_hash,role,status,last_login_at,created_at,updated_at,deleted_at"

// Create inserts a user with role USER and status ACTIVE and returns the
// stored record.  Unique-index violations are mapped to the field-specific
// sentinel so the handler can name the offending field.
func (r *UserRepo) Create(ctx context.Context, email, username, passwordHash string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, role, status) VALUES (?,?,?,?,?)",
		email, username, passwordHash, model.RoleUser, model.StatusActive)
	if err != nil {
		return model.User{}, mapDuplicate(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByEmail fetches a live user by normalized email.  Returns sql.ErrNoRows
// when absent or soft-deleted.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email=? AND deleted_at IS NULL LIMIT 1", email))
}

// GetByID fetches a live user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id=? AND deleted_at IS NULL LIMIT 1", id))
}

// UpdateLastLogin stamps the user's last successful login.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at=NOW() WHERE id=?", id)
	return err
}

// UpdateRole changes a user's role.  The change reaches issued access tokens
// only at their next refresh.
func (r *UserRepo) UpdateRole(ctx context.Context, id uint64, role model.Role) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET role=? WHERE id=? AND deleted_at IS NULL", role, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus changes a user's account status.
func (r *UserRepo) UpdateStatus(ctx context.Context, id uint64, status model.Status) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE users SET status=? WHERE id=? AND deleted_at IS NULL", status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// List returns up to limit live users, newest first.
func (r *UserRepo) List(ctx context.Context, limit int) ([]model.User, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE deleted_at IS NULL ORDER BY id DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *UserRepo) scanOne(row *sql.Row) (model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
		deleted   sql.NullTime
	)
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Status,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt, &deleted)
	if err != nil {
		return model.User{}, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if deleted.Valid {
		u.DeletedAt = &deleted.Time
	}
	return u, nil
}

func scanUser(rows *sql.Rows) (model.User, error) {
	var (
		u         model.User
		lastLogin sql.NullTime
		deleted   sql.NullTime
	)
	err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.Role, &u.Status,
		&lastLogin, &u.CreatedAt, &u.UpdatedAt, &deleted)
	if err != nil {
		return model.User{}, err
	}
	if lastLogin.Valid {
		u.LastLoginAt = &lastLogin.Time
	}
	if deleted.Valid {
		u.DeletedAt = &deleted.Time
	}
	return u, nil
}

// mapDuplicate translates MySQL error 1062 into the sentinel naming the
// violated unique index.
func mapDuplicate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		msg := strings.ToLower(me.Message)
		if strings.Contains(msg, "username") {
			return ErrUsernameExists
		}
		return ErrEmailExists
	}
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"

	"github.com/minhtran/blog-backend/internal/model"
)

// PostRepo persists posts.  Ownership checks run in middleware before these
// methods are reached, so the queries themselves are not owner-scoped except
// for FindOwner, which feeds the guard.
type PostRepo struct{ DB *sql.DB }

func NewPostRepo(db *sql.DB) *PostRepo { return &PostRepo{DB: db} }

const postColumns = "id,author_id,title,slug,content,status,created_at,updated_at"

// Create inserts a draft post owned by authorID and returns the stored record.
func (r *PostRepo) Create(ctx context.Context, authorID uint64, title, slug, content string) (model.Post, error) {
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO posts (author_id, title, slug, content, status) VALUES (?,?,?,?,?)",
		authorID, title, slug, content, model.PostDraft)
	if err != nil {
		return model.Post{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Post{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a post by id.
func (r *PostRepo) GetByID(ctx context.Context, id uint64) (model.Post, error) {
	var p model.Post
	err := r.DB.QueryRowContext(ctx,
		"SELECT "+postColumns+" FROM posts WHERE id=? LIMIT 1", id).
		Scan(&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.Content, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPublished returns up to limit published posts, newest first.
func (r *PostRepo) ListPublished(ctx context.Context, limit int) ([]model.Post, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+postColumns+" FROM posts WHERE status=? ORDER BY id DESC LIMIT ?",
		model.PostPublished, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Post
	for rows.Next() {
		var p model.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Title, &p.Slug, &p.Content, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Update replaces a post's title, slug and content.
func (r *PostRepo) Update(ctx context.Context, id uint64, title, slug, content string) error {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE posts SET title=?, slug=?, content=? WHERE id=?", title, slug, content, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateStatus moves a post between DRAFT, PUBLISHED and ARCHIVED.
func (r *PostRepo) UpdateStatus(ctx context.Context, id uint64, status model.PostStatus) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE posts SET status=? WHERE id=?", status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a post.
func (r *PostRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM posts WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// FindOwner loads the minimal projection used by the ownership guard.
// Returns sql.ErrNoRows when the post does not exist.
func (r *PostRepo) FindOwner(ctx context.Context, id uint64) (model.PostOwner, error) {
	var po model.PostOwner
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, author_id FROM posts WHERE id=? LIMIT 1", id).Scan(&po.ID, &po.AuthorID)
	return po, err
}

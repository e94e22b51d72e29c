package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/minhtran/blog-backend/internal/middleware"
	"github.com/minhtran/blog-backend/internal/model"
	"github.com/minhtran/blog-backend/internal/repository"
)

// PostHandler implements the post endpoints.  Ownership and role checks run
// in the authorization middleware before any of these handlers execute, so
// they only deal with the resource itself.
type PostHandler struct {
	Posts *repository.PostRepo
}

func NewPostHandler(posts *repository.PostRepo) *PostHandler {
	return &PostHandler{Posts: posts}
}

type postReq struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// Create handles POST /v1/posts.  The authenticated principal becomes the
// post's author.
func (h *PostHandler) Create(c echo.Context) error {
	claims, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req postReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Posts.Create(ctx, claims.UserID, req.Title, slugify(req.Title), req.Content)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create post failed"})
	}
	return c.JSON(http.StatusCreated, p)
}

// List handles GET /v1/posts: published posts, newest first.  The route is
// public and response-cached.
func (h *PostHandler) List(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	posts, err := h.Posts.ListPublished(ctx, 50)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if posts == nil {
		posts = []model.Post{}
	}
	return c.JSON(http.StatusOK, posts)
}

// GetByID handles GET /v1/posts/:id (public).
func (h *PostHandler) GetByID(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	p, err := h.Posts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "post not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Update handles PUT /v1/posts/:id.
func (h *PostHandler) Update(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req postReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "title is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Posts.Update(ctx, id, req.Title, slugify(req.Title), req.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "post not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	p, err := h.Posts.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Publish handles PUT /v1/posts/:id/publish.
func (h *PostHandler) Publish(c echo.Context) error {
	return h.setStatus(c, model.PostPublished)
}

// Delete handles DELETE /v1/posts/:id.
func (h *PostHandler) Delete(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Posts.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "post not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// ForcePublish handles PUT /v1/posts/admin/:id/force-publish.  The route's
// admin-only policy is what distinguishes it from Publish.
func (h *PostHandler) ForcePublish(c echo.Context) error {
	return h.setStatus(c, model.PostPublished)
}

// ForceDelete handles DELETE /v1/posts/admin/:id/force-delete.
func (h *PostHandler) ForceDelete(c echo.Context) error {
	return h.Delete(c)
}

// ChangeStatus handles PUT /v1/posts/admin/:id/status (admin-only).
func (h *PostHandler) ChangeStatus(c echo.Context) error {
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	switch model.PostStatus(req.Status) {
	case model.PostDraft, model.PostPublished, model.PostArchived:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	}
	return h.setStatus(c, model.PostStatus(req.Status))
}

func (h *PostHandler) setStatus(c echo.Context, status model.PostStatus) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Posts.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "post not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	p, err := h.Posts.GetByID(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// slugify derives a URL slug from a title.  Uniqueness handling lives with
// the content service; collisions here surface as driver errors.
func slugify(title string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

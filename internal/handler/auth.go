// Package handler defines the HTTP handlers.  Handlers bind and validate
// request bodies, bound database work with a timeout, call into the service
// layer and translate its error taxonomy to HTTP statuses.  Infrastructure
// errors never reach responses verbatim.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/minhtran/blog-backend/internal/auth"
	"github.com/minhtran/blog-backend/internal/middleware"
	"github.com/minhtran/blog-backend/internal/model"
	"github.com/minhtran/blog-backend/internal/queue"
	"github.com/minhtran/blog-backend/internal/repository"
)

const dbTimeout = 5 * time.Second

// AuthHandler bundles dependencies for the auth endpoints.  Publish is
// optional; when set, successful registrations emit a user.registered event.
type AuthHandler struct {
	Auth    *auth.Service
	Publish func(ctx context.Context, evt queue.UserRegisteredEvent) error
}

func NewAuthHandler(svc *auth.Service) *AuthHandler {
	return &AuthHandler{Auth: svc}
}

// ----- DTOs -----

type registerReq struct {
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken"`
}

type userPayload struct {
	ID        uint64       `json:"id"`
	Email     string       `json:"email"`
	Username  string       `json:"username"`
	Role      model.Role   `json:"role"`
	Status    model.Status `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

func toUserPayload(u model.User) userPayload {
	return userPayload{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Register handles POST /v1/auth/register.  The password never appears in
// the response.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email, username and password are required"})
	}
	if len(req.Password) < 6 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "password must be at least 6 characters"})
	}
	if req.Password != req.ConfirmPassword {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "passwords do not match"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, err := h.Auth.Register(ctx, req.Email, req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrEmailExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists", "field": "email"})
		case errors.Is(err, repository.ErrUsernameExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "username already exists", "field": "username"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	if h.Publish != nil {
		evt := queue.UserRegisteredEvent{
			UserID:       u.ID,
			Email:        u.Email,
			Username:     u.Username,
			Role:         string(u.Role),
			RegisteredAt: u.CreatedAt.UTC().Format(time.RFC3339),
		}
		// Event delivery is best-effort; the publisher logs failures.
		_ = h.Publish(ctx, evt)
	}

	return c.JSON(http.StatusCreated, echo.Map{"user": toUserPayload(u)})
}

// Login handles POST /v1/auth/login.  Note the upstream behavior of
// answering 404 for unknown emails is kept on purpose.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	u, pair, err := h.Auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "account does not exist"})
		case errors.Is(err, auth.ErrInvalidCredentials):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "password incorrect"})
		case errors.Is(err, auth.ErrAccountDisabled):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "account is disabled"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}

	return c.JSON(http.StatusOK, echo.Map{
		"user":         toUserPayload(u),
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// RefreshToken handles POST /v1/auth/refresh-token.  The presented refresh
// token is rotated: it is invalidated and a new pair is returned.
func (h *AuthHandler) RefreshToken(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	pair, err := h.Auth.Refresh(ctx, strings.TrimSpace(req.RefreshToken))
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"accessToken":  pair.AccessToken,
		"refreshToken": pair.RefreshToken,
	})
}

// Logout handles POST /v1/auth/logout.  A refresh token whose session is
// already gone answers 401 rather than a silent success.
func (h *AuthHandler) Logout(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refreshToken is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Auth.Logout(ctx, strings.TrimSpace(req.RefreshToken)); err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out"})
}

// LogoutAll handles POST /v1/auth/logout-all: revokes every session of the
// authenticated principal.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	claims, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), dbTimeout)
	defer cancel()

	if err := h.Auth.LogoutAll(ctx, claims.UserID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "logged out everywhere"})
}

// Me handles GET /v1/me: echoes the authenticated principal.
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.Principal(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"userId":   claims.UserID,
		"username": claims.Username,
		"role":     claims.Role,
	})
}

// Package middleware provides the request-time authorization pipeline and
// supporting HTTP middleware (rate limiting, response caching, metrics).
package middleware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/minhtran/blog-backend/internal/model"
	"github.com/minhtran/blog-backend/internal/utils"
)

// PrincipalKey is the request-scoped key under which the authenticated
// principal (the decoded access claims) is stored.  Downstream checks and
// handlers read it from here instead of re-verifying the token.
const PrincipalKey = "user"

// AuthMode declares whether a route requires a bearer token.  The zero value
// is Bearer so an undeclared route fails closed.
type AuthMode int

const (
	AuthBearer AuthMode = iota
	AuthNone
)

// Policy is the authorization declaration a route registers with.  It is
// evaluated as an ordered chain: authentication, then roles, then ownership.
// An empty role set means any authenticated principal passes the role check.
type Policy struct {
	Mode          AuthMode
	Roles         []model.Role
	Ownership     bool
	AdminOverride bool
}

// Named composite policies used across route registration.

// AdminOnly allows only authenticated ADMINs.
func AdminOnly() Policy { return Policy{Roles: []model.Role{model.RoleAdmin}} }

// AuthorOrAdmin allows authenticated AUTHORs and ADMINs.
func AuthorOrAdmin() Policy { return Policy{Roles: []model.Role{model.RoleAuthor, model.RoleAdmin}} }

// AuthorWithOwnership allows AUTHORs on their own resource and any ADMIN.
func AuthorWithOwnership() Policy {
	return Policy{
		Roles:         []model.Role{model.RoleAuthor, model.RoleAdmin},
		Ownership:     true,
		AdminOverride: true,
	}
}

// AuthorOnlyWithOwnership allows AUTHORs on their own resource; admins get
// no ownership bypass here (and fail the role check outright).
func AuthorOnlyWithOwnership() Policy {
	return Policy{
		Roles:     []model.Role{model.RoleAuthor},
		Ownership: true,
	}
}

// Public allows anonymous access; no principal is attached.
func Public() Policy { return Policy{Mode: AuthNone} }

// PostOwnerStore resolves the minimal ownership projection of a post.
// Implementations return sql.ErrNoRows when the post does not exist.
type PostOwnerStore interface {
	FindOwner(ctx context.Context, id uint64) (model.PostOwner, error)
}

// Principal returns the decoded access claims attached by the
// authentication check, if any.
func Principal(c echo.Context) (*utils.AccessClaims, bool) {
	claims, ok := c.Get(PrincipalKey).(*utils.AccessClaims)
	return claims, ok
}

// check inspects a request and reports whether the chain may proceed.  When
// proceed is false the returned error is the already-written terminal
// response.
type check func(c echo.Context) (proceed bool, err error)

// Authorize evaluates a Policy as an explicit chain of checks.  Later checks
// depend on state the earlier ones attach (the principal), so order is
// fixed: authentication, role, ownership.
func Authorize(p Policy, accessSecret string, posts PostOwnerStore) echo.MiddlewareFunc {
	var checks []check
	if p.Mode != AuthNone {
		checks = append(checks, authenticate(accessSecret))
		checks = append(checks, requireRole(p.Roles))
		if p.Ownership {
			checks = append(checks, requireOwnership(posts, p.AdminOverride))
		}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			for _, chk := range checks {
				proceed, err := chk(c)
				if !proceed {
					return err
				}
			}
			return next(c)
		}
	}
}

// authenticate extracts and verifies the bearer token and attaches the
// principal.  Every failure mode answers the same generic 401; the reason is
// never distinguished to the caller.
func authenticate(secret string) check {
	return func(c echo.Context) (bool, error) {
		authHeader := c.Request().Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			recordAuthFailure()
			return false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
		}
		raw := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := utils.VerifyAccessToken(secret, raw)
		if err != nil {
			recordAuthFailure()
			return false, c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
		}
		c.Set(PrincipalKey, claims)
		return true, nil
	}
}

// requireRole checks the principal's role against the declared set.  An
// empty set imposes no restriction.  The principal's role is the snapshot
// embedded at token-issue time, not the user's current stored role.
func requireRole(roles []model.Role) check {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(c echo.Context) (bool, error) {
		if len(roles) == 0 {
			return true, nil
		}
		claims, ok := Principal(c)
		if !ok {
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "authentication required"})
		}
		if !allowed[claims.Role] {
			names := make([]string, len(roles))
			for i, r := range roles {
				names[i] = string(r)
			}
			return false, c.JSON(http.StatusForbidden, echo.Map{
				"error": fmt.Sprintf("access denied, required roles: %s", strings.Join(names, ", ")),
			})
		}
		return true, nil
	}
}

// requireOwnership verifies the principal owns the post named by the :id
// path parameter.  With adminOverride set, ADMINs bypass the check entirely.
func requireOwnership(posts PostOwnerStore, adminOverride bool) check {
	return func(c echo.Context) (bool, error) {
		claims, ok := Principal(c)
		if !ok {
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "authentication required"})
		}
		if adminOverride && claims.Role == model.RoleAdmin {
			return true, nil
		}

		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "post id is required"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		owner, err := posts.FindOwner(ctx, id)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return false, c.JSON(http.StatusNotFound, echo.Map{"error": "post not found"})
			}
			return false, c.JSON(http.StatusInternalServerError, echo.Map{"error": "ownership lookup failed"})
		}
		if owner.AuthorID != claims.UserID {
			return false, c.JSON(http.StatusForbidden, echo.Map{"error": "you can only access your own posts"})
		}
		return true, nil
	}
}

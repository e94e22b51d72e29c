// Package router wires HTTP routes to handlers and attaches each route's
// authorization policy.  Policies are explicit values evaluated by a single
// middleware chain (authentication, then roles, then ownership) rather than
// metadata looked up at request time.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/minhtran/blog-backend/internal/handler"
	"github.com/minhtran/blog-backend/internal/middleware"
)

// Deps carries everything route registration needs.
type Deps struct {
	AccessSecret string
	Auth         *handler.AuthHandler
	Posts        *handler.PostHandler
	Users        *handler.UserHandler
	PostOwners   middleware.PostOwnerStore
	RateLimiter  echo.MiddlewareFunc // applied to credential endpoints
	Cache        echo.MiddlewareFunc // applied to public post reads
}

// RegisterRoutes registers every route of the service.
func RegisterRoutes(e *echo.Echo, d Deps) {
	authorize := func(p middleware.Policy) echo.MiddlewareFunc {
		return middleware.Authorize(p, d.AccessSecret, d.PostOwners)
	}
	bearer := authorize(middleware.Policy{})

	e.GET("/healthz", handler.Health)

	// Credential endpoints: public and rate limited.
	ag := e.Group("/v1/auth", d.RateLimiter)
	ag.POST("/register", d.Auth.Register)
	ag.POST("/login", d.Auth.Login)
	ag.POST("/refresh-token", d.Auth.RefreshToken)
	ag.POST("/logout", d.Auth.Logout)
	ag.POST("/logout-all", d.Auth.LogoutAll, bearer)

	e.GET("/v1/me", d.Auth.Me, bearer)

	// Posts.  The two admin routes deliberately differ from their
	// non-admin counterparts only in policy: the non-admin publish and
	// delete routes exclude even admins from the ownership bypass.
	e.POST("/v1/posts", d.Posts.Create, authorize(middleware.AuthorOrAdmin()))
	e.GET("/v1/posts", d.Posts.List, d.Cache)
	e.GET("/v1/posts/:id", d.Posts.GetByID)
	e.PUT("/v1/posts/:id", d.Posts.Update, authorize(middleware.AuthorWithOwnership()))
	e.PUT("/v1/posts/:id/publish", d.Posts.Publish, authorize(middleware.AuthorOnlyWithOwnership()))
	e.DELETE("/v1/posts/:id", d.Posts.Delete, authorize(middleware.AuthorOnlyWithOwnership()))
	e.PUT("/v1/posts/admin/:id/force-publish", d.Posts.ForcePublish, authorize(middleware.AdminOnly()))
	e.PUT("/v1/posts/admin/:id/status", d.Posts.ChangeStatus, authorize(middleware.AdminOnly()))
	e.DELETE("/v1/posts/admin/:id/force-delete", d.Posts.ForceDelete, authorize(middleware.AdminOnly()))

	// Admin user management.
	e.GET("/v1/users", d.Users.List, authorize(middleware.AdminOnly()))
	e.PATCH("/v1/users/:id/role", d.Users.UpdateRole, authorize(middleware.AdminOnly()))
	e.PATCH("/v1/users/:id/status", d.Users.UpdateStatus, authorize(middleware.AdminOnly()))
}

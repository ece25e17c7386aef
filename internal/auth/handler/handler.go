package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/gate"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/resolver"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/token"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

// AuthorizeURLBuilder builds the provider authorization URL for a login
// redirect.
type AuthorizeURLBuilder interface {
	AuthCodeURL(state string) string
}

// Handler owns the gateway's HTTP boundary: login redirect, OAuth callback,
// logout, and the protected API routes.
type Handler struct {
	provider   AuthorizeURLBuilder
	resolver   *resolver.Resolver
	gate       *gate.Gate
	flow       *CallbackFlow
	cookieOpts token.CookieOptions
	cookieTTL  time.Duration

	requiredRoleID string
	adminRoleID    string
}

func NewHandler(
	provider AuthorizeURLBuilder,
	res *resolver.Resolver,
	g *gate.Gate,
	flow *CallbackFlow,
	cookieOpts token.CookieOptions,
	cookieTTL time.Duration,
	requiredRoleID string,
	adminRoleID string,
) *Handler {
	return &Handler{
		provider:       provider,
		resolver:       res,
		gate:           g,
		flow:           flow,
		cookieOpts:     cookieOpts,
		cookieTTL:      cookieTTL,
		requiredRoleID: requiredRoleID,
		adminRoleID:    adminRoleID,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/auth/login", h.login)
	r.GET("/auth/callback", h.callback)
	r.GET("/auth/logout", h.logout)

	api := r.Group("/api")
	api.Use(h.RequireIdentity())

	api.GET("/me", h.me)
	api.GET("/profile", h.profile)

	admin := api.Group("")
	admin.Use(h.RequireRole(h.adminRoleID))
	admin.GET("/admin", h.admin)
}

// login redirects to the provider's authorization endpoint. The caller's
// intended destination rides along as the opaque state parameter and comes
// back on the callback.
func (h *Handler) login(c *gin.Context) {
	// Authenticated users asking to log in again just go home.
	store := h.store(c)
	if identity := h.resolver.Resolve(c.Request.Context(), store); identity != nil {
		c.Redirect(http.StatusFound, "/")
		return
	}

	state := c.Query("redirect")
	c.Redirect(http.StatusFound, h.provider.AuthCodeURL(state))
}

// callback translates the flow's result into an actual redirect. All decision
// logic lives in CallbackFlow; this is boundary glue only.
func (h *Handler) callback(c *gin.Context) {
	result := h.flow.Run(
		c.Request.Context(),
		c.Query("code"),
		c.Query("state"),
		h.store(c),
	)

	c.Redirect(http.StatusFound, result.RedirectTarget)
}

// logout clears the credential cookie and sends the user to the login page.
// Clearing is idempotent; a request without a cookie gets the same redirect.
func (h *Handler) logout(c *gin.Context) {
	h.store(c).Clear()

	logger.Info("logout", zap.String("ip", c.ClientIP()))

	c.Redirect(http.StatusSeeOther, "/login")
}

func (h *Handler) me(c *gin.Context) {
	identity := IdentityFromContext(c)

	// Roles are best-effort on this endpoint; identity is the contract.
	roles := []string{}
	if credential, ok := CredentialFromContext(c); ok {
		if set, admission := h.gate.Roles(c.Request.Context(), identity, credential); admission == gate.Granted {
			roles = set.Roles
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       identity.ID,
		"username": identity.Username,
		"avatar":   identity.Avatar,
		"roles":    roles,
	})
}

// profile reports guild membership and both role flags, computed from a single
// cached role set so ordinary and admin checks cost one round trip at most.
func (h *Handler) profile(c *gin.Context) {
	identity := IdentityFromContext(c)
	credential, _ := CredentialFromContext(c)

	guildMember := false
	hasRole := false
	isAdmin := false

	set, admission := h.gate.Roles(c.Request.Context(), identity, credential)
	switch admission {
	case gate.Granted:
		guildMember = true
		hasRole = set.Contains(h.requiredRoleID)
		isAdmin = set.Contains(h.adminRoleID)
	case gate.DeniedNotMember:
		// flags stay false
	default:
		logger.Warn("profile role lookup failed",
			zap.String("subject_id", identity.ID),
			zap.String("admission", admission.String()),
		)
	}

	c.JSON(http.StatusOK, gin.H{
		"user":        identity,
		"guildMember": guildMember,
		"hasRole":     hasRole,
		"isAdmin":     isAdmin,
	})
}

func (h *Handler) admin(c *gin.Context) {
	identity := IdentityFromContext(c)

	c.JSON(http.StatusOK, gin.H{
		"user":   identity,
		"status": "ok",
	})
}

// store binds a cookie-backed credential store to the current request.
func (h *Handler) store(c *gin.Context) *token.CookieStore {
	return token.ForRequest(c.Writer, c.Request, h.cookieOpts)
}

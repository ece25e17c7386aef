package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/gate"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

const (
	identityContextKey   = "auth.identity"
	credentialContextKey = "auth.credential"
	requestIDContextKey  = "request.id"
	requestIDHeader      = "X-Request-ID"
)

// IdentityFromContext returns the identity attached by RequireIdentity, or nil
// outside that middleware.
func IdentityFromContext(c *gin.Context) *auth.Identity {
	v, ok := c.Get(identityContextKey)
	if !ok {
		return nil
	}
	identity, _ := v.(*auth.Identity)
	return identity
}

// CredentialFromContext returns the bearer credential for the current request.
func CredentialFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(credentialContextKey)
	if !ok {
		return "", false
	}
	credential, ok := v.(string)
	return credential, ok && credential != ""
}

// RequestID assigns each request an id, echoing an inbound one when present.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// RequireIdentity resolves the request's credential into an identity and
// attaches both to the context. Requests without a verifiable identity are
// rejected; no protected route renders partially authenticated.
func (h *Handler) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		store := h.store(c)

		identity := h.resolver.Resolve(c.Request.Context(), store)
		if identity == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "auth_required",
			})
			return
		}

		credential, _ := store.Get()
		c.Set(identityContextKey, identity)
		c.Set(credentialContextKey, credential)
		c.Next()
	}
}

// RequireRole admits only identities holding roleID. Runs after
// RequireIdentity. Upstream failures deny, never grant.
func (h *Handler) RequireRole(roleID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := IdentityFromContext(c)
		credential, _ := CredentialFromContext(c)

		admission := h.gate.RequireRole(c.Request.Context(), identity, credential, roleID)
		switch admission {
		case gate.Granted:
			c.Next()
		case gate.DeniedNoIdentity:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "auth_required",
			})
		case gate.DeniedUpstreamError:
			logger.Warn("role check unavailable",
				zap.String("subject_id", identity.ID),
			)
			c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
				"error":   "server_error",
				"message": "Failed to verify permissions",
			})
		default:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "unauthorized",
				"message": "You do not have permission to access this page",
			})
		}
	}
}

package handler

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/rolecache"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/token"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

// CallbackState tracks progress through the OAuth callback flow.
type CallbackState int

const (
	StateStart CallbackState = iota
	StateCodeReceived
	StateTokenExchanged
	StateMembershipVerified
	StateRoleVerified
	StateSessionEstablished
	StateFailed
)

// User-facing error codes carried on the login redirect. Internal error detail
// is logged, never placed in the redirect target.
const (
	ErrCodeNoCode         = "no_code"
	ErrCodeAuthFailed     = "auth_failed"
	ErrCodeServerRequired = "server_required"
	ErrCodeRoleRequired   = "role_required"
)

// CallbackResult is the outcome of one callback invocation. The HTTP boundary
// translates it into an actual redirect; the flow itself never issues one.
type CallbackResult struct {
	Success        bool
	RedirectTarget string
	ErrorCode      string
	State          CallbackState
}

// ProviderClient is the provider surface the callback flow depends on.
type ProviderClient interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
	FetchIdentity(ctx context.Context, credential string) (*auth.Identity, error)
	FetchGuildMembership(ctx context.Context, credential, guildID string) (bool, error)
	FetchGuildRoles(ctx context.Context, credential, guildID string) ([]string, error)
}

// CallbackFlow runs the multi-step login sequence: authorization code →
// credential → membership check → role check → session establishment. Each
// step depends on the prior one and every external call can fail
// independently; failures map to distinct, user-actionable error codes
// because wrong-guild and missing-role need different remediation.
type CallbackFlow struct {
	client         ProviderClient
	cache          *rolecache.Cache
	guildID        string
	requiredRoleID string
	cookieTTL      time.Duration
	loginPath      string
}

func NewCallbackFlow(
	client ProviderClient,
	cache *rolecache.Cache,
	guildID string,
	requiredRoleID string,
	cookieTTL time.Duration,
) *CallbackFlow {
	return &CallbackFlow{
		client:         client,
		cache:          cache,
		guildID:        guildID,
		requiredRoleID: requiredRoleID,
		cookieTTL:      cookieTTL,
		loginPath:      "/login",
	}
}

// Run executes the flow for one callback request. The credential is written to
// store only after membership and role verification succeed; concurrent runs
// race last-write-wins on the store, which is safe because each run re-verifies
// from scratch.
func (f *CallbackFlow) Run(ctx context.Context, code, state string, store token.Store) CallbackResult {
	if code == "" {
		logger.Warn("callback received without authorization code")
		return f.fail(StateStart, ErrCodeNoCode, "")
	}

	credential, err := f.client.ExchangeCode(ctx, code)
	if err != nil {
		logger.Error("token exchange failed", zap.Error(err))
		return f.fail(StateCodeReceived, ErrCodeAuthFailed, "")
	}

	member, err := f.client.FetchGuildMembership(ctx, credential, f.guildID)
	if err != nil || !member {
		if err != nil {
			logger.Error("membership check failed", zap.Error(err))
		} else {
			logger.Info("login denied, user not in required guild")
		}
		return f.fail(StateTokenExchanged, ErrCodeServerRequired,
			"You must be a member of the server to sign in")
	}

	roles, err := f.client.FetchGuildRoles(ctx, credential, f.guildID)
	if err != nil {
		// Upstream contract violation or fetch failure: not evidence the user
		// lacks the role, so this stays on the generic code.
		logger.Error("role fetch failed", zap.Error(err))
		return f.fail(StateMembershipVerified, ErrCodeAuthFailed, "")
	}

	roleSet := rolecache.RoleSet{Roles: roles}
	if !roleSet.Contains(f.requiredRoleID) {
		logger.Info("login denied, required role missing",
			zap.Int("role_count", len(roles)),
		)
		return f.fail(StateMembershipVerified, ErrCodeRoleRequired,
			"Your account does not have the required role")
	}

	identity, err := f.client.FetchIdentity(ctx, credential)
	if err != nil {
		logger.Error("identity fetch failed after role verification", zap.Error(err))
		return f.fail(StateRoleVerified, ErrCodeAuthFailed, "")
	}

	store.Set(credential, f.cookieTTL)
	f.cache.Put(identity.ID, roles)

	target := f.resolveRedirect(state)

	logger.Info("login successful",
		zap.String("subject_id", identity.ID),
		zap.String("redirect", target),
	)

	return CallbackResult{
		Success:        true,
		RedirectTarget: target,
		State:          StateSessionEstablished,
	}
}

// fail builds the denial result: a redirect to the login surface carrying a
// coarse error code and, where useful, a short human-readable message.
func (f *CallbackFlow) fail(reached CallbackState, code, message string) CallbackResult {
	q := url.Values{}
	q.Set("error", code)
	if message != "" {
		q.Set("message", message)
	}

	return CallbackResult{
		Success:        false,
		RedirectTarget: f.loginPath + "?" + q.Encode(),
		ErrorCode:      code,
		State:          reached,
	}
}

// resolveRedirect picks the post-login destination from the echoed state
// parameter. Only same-site absolute paths are accepted, and the login page
// itself never is; everything else falls back to the application root.
func (f *CallbackFlow) resolveRedirect(state string) string {
	decoded, err := url.QueryUnescape(state)
	if err != nil || decoded == "" {
		return "/"
	}
	if !strings.HasPrefix(decoded, "/") || strings.HasPrefix(decoded, "//") {
		return "/"
	}
	if decoded == f.loginPath || strings.HasPrefix(decoded, f.loginPath+"?") {
		return "/"
	}
	return decoded
}

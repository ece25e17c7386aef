package auth

import "errors"

// Failure taxonomy for the provider-facing calls. A missing credential is a
// normal state, not an error, and has no sentinel here.
var (
	// ErrTokenExchange covers a non-2xx token response or one missing the
	// access token field.
	ErrTokenExchange = errors.New("auth: token exchange failed")

	// ErrIdentityFetch covers any failure to resolve the current user from a
	// credential, including an expired or revoked token.
	ErrIdentityFetch = errors.New("auth: identity fetch failed")

	// ErrMembershipCheck covers a failed guild membership lookup. Callers must
	// treat it as "not a member" (fail closed), never as membership.
	ErrMembershipCheck = errors.New("auth: membership check failed")

	// ErrRoleFetch covers a failed guild role lookup. Distinct from a
	// legitimately empty role set.
	ErrRoleFetch = errors.New("auth: role fetch failed")

	// ErrMalformedResponse marks a provider response whose shape violates the
	// expected contract, e.g. a roles field that is not a list.
	ErrMalformedResponse = errors.New("auth: malformed provider response")
)

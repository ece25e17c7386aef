package resolver

import (
	"context"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/token"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

// IdentityFetcher is the slice of the provider client the resolver needs.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, credential string) (*auth.Identity, error)
}

// Resolver turns the request's bearer credential into a verified identity.
// It runs on every request that needs identity, so it makes at most one
// remote call and leaves role checks to the gate.
type Resolver struct {
	client IdentityFetcher
}

func New(client IdentityFetcher) *Resolver {
	return &Resolver{client: client}
}

// Resolve returns the identity behind the credential in store, or nil when
// there is none. A credential the provider rejects is cleared from the store
// before returning — a provably dead cookie is never served again.
func (r *Resolver) Resolve(ctx context.Context, store token.Store) *auth.Identity {
	credential, ok := store.Get()
	if !ok {
		return nil
	}

	identity, err := r.client.FetchIdentity(ctx, credential)
	if err != nil {
		logger.Warn("credential rejected by provider, clearing", zap.Error(err))
		store.Clear()
		return nil
	}

	return identity
}

package resolver

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/token"
)

type fakeFetcher struct {
	identity *auth.Identity
	err      error
	calls    int
}

func (f *fakeFetcher) FetchIdentity(ctx context.Context, credential string) (*auth.Identity, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func TestResolve_NoCredentialIsNotAnError(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := token.NewMemoryStore()

	identity := New(fetcher).Resolve(context.Background(), store)

	assert.Nil(t, identity)
	assert.Zero(t, fetcher.calls, "absent credential must not hit the provider")
}

func TestResolve_ValidCredential(t *testing.T) {
	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42", Username: "walker"}}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)

	identity := New(fetcher).Resolve(context.Background(), store)

	require.NotNil(t, identity)
	assert.Equal(t, "42", identity.ID)
	assert.Equal(t, 1, fetcher.calls)
}

func TestResolve_DeadCredentialIsCleared(t *testing.T) {
	fetcher := &fakeFetcher{err: fmt.Errorf("%w: provider returned status 401", auth.ErrIdentityFetch)}
	store := token.NewMemoryStore()
	store.Set("tok-expired", time.Hour)

	identity := New(fetcher).Resolve(context.Background(), store)
	assert.Nil(t, identity)

	// The observable side effect: the store no longer serves the dead cookie.
	_, ok := store.Get()
	assert.False(t, ok)
}

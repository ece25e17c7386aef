package gate

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/rolecache"
)

type fakeRoleClient struct {
	member      bool
	memberErr   error
	roles       []string
	rolesErr    error
	memberCalls int
	roleCalls   int
}

func (f *fakeRoleClient) FetchGuildMembership(ctx context.Context, credential, guildID string) (bool, error) {
	f.memberCalls++
	return f.member, f.memberErr
}

func (f *fakeRoleClient) FetchGuildRoles(ctx context.Context, credential, guildID string) ([]string, error) {
	f.roleCalls++
	return f.roles, f.rolesErr
}

var testIdentity = &auth.Identity{ID: "42", Username: "walker"}

func newGate(client *fakeRoleClient) (*Gate, *rolecache.Cache) {
	cache := rolecache.New(5 * time.Minute)
	return New(cache, client, "guild-1"), cache
}

func TestRequireRole_NoIdentity(t *testing.T) {
	g, _ := newGate(&fakeRoleClient{})

	admission := g.RequireRole(context.Background(), nil, "", "role_A")
	assert.Equal(t, DeniedNoIdentity, admission)
}

func TestRequireRole_GrantedFromFetch(t *testing.T) {
	client := &fakeRoleClient{member: true, roles: []string{"role_A"}}
	g, _ := newGate(client)

	admission := g.RequireRole(context.Background(), testIdentity, "tok", "role_A")
	assert.Equal(t, Granted, admission)
	assert.Equal(t, 1, client.memberCalls)
	assert.Equal(t, 1, client.roleCalls)
}

func TestRequireRole_NotMember(t *testing.T) {
	client := &fakeRoleClient{member: false}
	g, _ := newGate(client)

	admission := g.RequireRole(context.Background(), testIdentity, "tok", "role_A")
	assert.Equal(t, DeniedNotMember, admission)
	assert.Zero(t, client.roleCalls, "role fetch must not run for non-members")
}

func TestRequireRole_UpstreamFailureDenies(t *testing.T) {
	t.Run("membership check error", func(t *testing.T) {
		client := &fakeRoleClient{memberErr: fmt.Errorf("%w: timeout", auth.ErrMembershipCheck)}
		g, _ := newGate(client)

		admission := g.RequireRole(context.Background(), testIdentity, "tok", "role_A")
		assert.Equal(t, DeniedUpstreamError, admission)
	})

	t.Run("role fetch error", func(t *testing.T) {
		client := &fakeRoleClient{member: true, rolesErr: fmt.Errorf("%w: malformed", auth.ErrRoleFetch)}
		g, _ := newGate(client)

		admission := g.RequireRole(context.Background(), testIdentity, "tok", "role_A")
		assert.Equal(t, DeniedUpstreamError, admission)
	})
}

func TestRequireRole_TwoRolesOneFetch(t *testing.T) {
	client := &fakeRoleClient{member: true, roles: []string{"role_ordinary"}}
	g, _ := newGate(client)

	ordinary := g.RequireRole(context.Background(), testIdentity, "tok", "role_ordinary")
	admin := g.RequireRole(context.Background(), testIdentity, "tok", "role_admin")

	assert.Equal(t, Granted, ordinary)
	assert.Equal(t, DeniedNoRole, admin)

	// The elevated check reuses the cached set within the TTL window.
	assert.Equal(t, 1, client.memberCalls)
	assert.Equal(t, 1, client.roleCalls)
}

func TestRequireRole_CachesEvenWhenDenied(t *testing.T) {
	client := &fakeRoleClient{member: true, roles: []string{"role_other"}}
	g, cache := newGate(client)

	admission := g.RequireRole(context.Background(), testIdentity, "tok", "role_A")
	assert.Equal(t, DeniedNoRole, admission)

	// Caching happens on the successful fetch, independent of the outcome.
	set, ok := cache.Get(testIdentity.ID)
	require.True(t, ok)
	assert.True(t, set.Contains("role_other"))

	// A different role check within the TTL must not re-query.
	g.RequireRole(context.Background(), testIdentity, "tok", "role_B")
	assert.Equal(t, 1, client.roleCalls)
}

func TestRequireRole_CacheHitSkipsRemote(t *testing.T) {
	client := &fakeRoleClient{}
	g, cache := newGate(client)

	cache.Put(testIdentity.ID, []string{"role_A"})

	admission := g.RequireRole(context.Background(), testIdentity, "tok", "role_A")
	assert.Equal(t, Granted, admission)
	assert.Zero(t, client.memberCalls)
	assert.Zero(t, client.roleCalls)
}

func TestRoles_AggregatesForProfileFlags(t *testing.T) {
	client := &fakeRoleClient{member: true, roles: []string{"role_ordinary", "role_admin"}}
	g, _ := newGate(client)

	set, admission := g.Roles(context.Background(), testIdentity, "tok")
	require.Equal(t, Granted, admission)

	assert.True(t, set.Contains("role_ordinary"))
	assert.True(t, set.Contains("role_admin"))
	assert.False(t, set.Contains("role_unknown"))
	assert.Equal(t, 1, client.roleCalls)
}

func TestRoles_NoIdentity(t *testing.T) {
	g, _ := newGate(&fakeRoleClient{})

	_, admission := g.Roles(context.Background(), nil, "")
	assert.Equal(t, DeniedNoIdentity, admission)
}

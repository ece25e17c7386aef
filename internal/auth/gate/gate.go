package gate

import (
	"context"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/rolecache"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

// Admission is the outcome of a route-level authorization check.
type Admission int

const (
	Granted Admission = iota
	DeniedNoIdentity
	DeniedNotMember
	DeniedNoRole
	DeniedUpstreamError
)

func (a Admission) String() string {
	switch a {
	case Granted:
		return "granted"
	case DeniedNoIdentity:
		return "denied_no_identity"
	case DeniedNotMember:
		return "denied_not_member"
	case DeniedNoRole:
		return "denied_no_role"
	case DeniedUpstreamError:
		return "denied_upstream_error"
	default:
		return "unknown"
	}
}

// RoleClient is the slice of the provider client the gate needs on a cache
// miss.
type RoleClient interface {
	FetchGuildMembership(ctx context.Context, credential, guildID string) (bool, error)
	FetchGuildRoles(ctx context.Context, credential, guildID string) ([]string, error)
}

// Gate decides route-level admission from a resolved identity and a role id.
// It consults the role cache first and falls back to the provider; any
// ambiguous or failed upstream check denies access.
type Gate struct {
	cache   *rolecache.Cache
	client  RoleClient
	guildID string
}

func New(cache *rolecache.Cache, client RoleClient, guildID string) *Gate {
	return &Gate{cache: cache, client: client, guildID: guildID}
}

// RequireRole evaluates whether identity holds roleID within the configured
// guild. The role id is arbitrary: ordinary and elevated checks are the same
// algorithm, and within the cache TTL both evaluate against one cached set
// without a second remote round trip.
func (g *Gate) RequireRole(ctx context.Context, identity *auth.Identity, credential, roleID string) Admission {
	if identity == nil {
		return DeniedNoIdentity
	}

	roles, ok := g.cache.Get(identity.ID)
	if !ok {
		fetched, admission := g.fetchRoles(ctx, identity, credential)
		if admission != Granted {
			return admission
		}
		roles = fetched
	}

	if !roles.Contains(roleID) {
		return DeniedNoRole
	}
	return Granted
}

// Roles returns the identity's cached role set, fetching it from the provider
// on a miss. Callers that need several role flags at once use this to keep to
// one round trip.
func (g *Gate) Roles(ctx context.Context, identity *auth.Identity, credential string) (rolecache.RoleSet, Admission) {
	if identity == nil {
		return rolecache.RoleSet{}, DeniedNoIdentity
	}

	if roles, ok := g.cache.Get(identity.ID); ok {
		return roles, Granted
	}
	return g.fetchRoles(ctx, identity, credential)
}

// fetchRoles performs the remote membership and role lookups. A successful
// fetch is cached unconditionally, before any role evaluation, so a user who
// fails one role check is not re-queried for a different one within the TTL.
func (g *Gate) fetchRoles(ctx context.Context, identity *auth.Identity, credential string) (rolecache.RoleSet, Admission) {
	member, err := g.client.FetchGuildMembership(ctx, credential, g.guildID)
	if err != nil {
		logger.Warn("membership check failed",
			zap.String("subject_id", identity.ID),
			zap.Error(err),
		)
		return rolecache.RoleSet{}, DeniedUpstreamError
	}
	if !member {
		return rolecache.RoleSet{}, DeniedNotMember
	}

	roleIDs, err := g.client.FetchGuildRoles(ctx, credential, g.guildID)
	if err != nil {
		logger.Warn("role fetch failed",
			zap.String("subject_id", identity.ID),
			zap.Error(err),
		)
		return rolecache.RoleSet{}, DeniedUpstreamError
	}

	g.cache.Put(identity.ID, roleIDs)

	roles, ok := g.cache.Get(identity.ID)
	if !ok {
		// Only reachable if the entry expired between Put and Get.
		return rolecache.RoleSet{SubjectID: identity.ID, Roles: roleIDs}, Granted
	}
	return roles, Granted
}

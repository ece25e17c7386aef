package discord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

// Scopes requested at flow start. "identify" covers the profile endpoint,
// the guild scopes cover membership and role lookups.
var scopes = []string{"identify", "guilds", "guilds.members.read"}

// Client wraps the identity provider's token and REST surface. It is
// stateless; every call is a single attempt and retry policy belongs to the
// caller.
type Client struct {
	oauth   *oauth2.Config
	baseURL string
	http    *http.Client
}

// Config carries the provider settings the client needs.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
}

func New(cfg Config) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" || cfg.RedirectURI == "" {
		return nil, errors.New("discord: oauth config missing required fields")
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.AuthURL,
			TokenURL: cfg.TokenURL,
		},
	}

	return &Client{
		oauth:   oauthCfg,
		baseURL: cfg.APIBaseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// AuthCodeURL builds the provider authorization URL. The state parameter is
// opaque to the provider and echoed back on the callback.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for a bearer credential.
func (c *Client) ExchangeCode(ctx context.Context, code string) (string, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", auth.ErrTokenExchange, err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("%w: %w: response missing access_token",
			auth.ErrTokenExchange, auth.ErrMalformedResponse)
	}
	return tok.AccessToken, nil
}

// FetchIdentity resolves the current user from a credential. An expired or
// revoked token surfaces as ErrIdentityFetch.
func (c *Client) FetchIdentity(ctx context.Context, credential string) (*auth.Identity, error) {
	var payload struct {
		ID       string `json:"id"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}

	status, err := c.getJSON(ctx, credential, c.baseURL+"/users/@me", &payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrIdentityFetch, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", auth.ErrIdentityFetch, status)
	}
	if payload.ID == "" {
		return nil, fmt.Errorf("%w: %w: user payload missing id",
			auth.ErrIdentityFetch, auth.ErrMalformedResponse)
	}

	return &auth.Identity{
		ID:       payload.ID,
		Username: payload.Username,
		Avatar:   payload.Avatar,
	}, nil
}

// FetchGuildMembership reports whether the credential's subject belongs to the
// given guild. Any non-2xx or transport failure is "unknown"; callers must map
// that to "not a member".
func (c *Client) FetchGuildMembership(ctx context.Context, credential, guildID string) (bool, error) {
	var guilds []struct {
		ID string `json:"id"`
	}

	status, err := c.getJSON(ctx, credential, c.baseURL+"/users/@me/guilds", &guilds)
	if err != nil {
		return false, fmt.Errorf("%w: %w", auth.ErrMembershipCheck, err)
	}
	if status != http.StatusOK {
		return false, fmt.Errorf("%w: provider returned status %d", auth.ErrMembershipCheck, status)
	}

	for _, g := range guilds {
		if g.ID == guildID {
			return true, nil
		}
	}
	return false, nil
}

// FetchGuildRoles returns the subject's role ids within the guild. A missing
// or non-list roles field is a contract violation, reported as ErrRoleFetch
// wrapping ErrMalformedResponse — never conflated with an empty role set.
func (c *Client) FetchGuildRoles(ctx context.Context, credential, guildID string) ([]string, error) {
	var member struct {
		Roles *[]string `json:"roles"`
	}

	url := fmt.Sprintf("%s/users/@me/guilds/%s/member", c.baseURL, guildID)
	status, err := c.getJSON(ctx, credential, url, &member)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrRoleFetch, err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%w: provider returned status %d", auth.ErrRoleFetch, status)
	}
	if member.Roles == nil {
		return nil, fmt.Errorf("%w: %w: member payload missing roles list",
			auth.ErrRoleFetch, auth.ErrMalformedResponse)
	}

	logger.Debug("fetched guild roles",
		zap.String("guild_id", guildID),
		zap.Int("role_count", len(*member.Roles)),
	)

	return *member.Roles, nil
}

// getJSON performs a single bearer-authenticated GET and decodes the body on
// 2xx. The status code is returned so callers keep their own fail-closed
// mapping; bodies of non-2xx responses are discarded.
func (c *Client) getJSON(ctx context.Context, credential, url string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("%w: %v", auth.ErrMalformedResponse, err)
	}
	return resp.StatusCode, nil
}

// Package agent is the client-side counterpart of the gateway: it owns the
// client-visible auth state, persists the bearer credential, fetches identity,
// and coordinates login redirects, preserving the caller's intended
// destination across the round trip.
package agent

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/auth/token"
	"github.com/cjjwisniewski/seeker.cityoftraitors.com/internal/logger"
	"go.uber.org/zap"
)

// ErrReauthRequired is returned by Do when the server rejected the credential
// and a login redirect has been triggered. The original caller's request is
// not continued.
var ErrReauthRequired = errors.New("agent: re-authentication required")

// Session is the client-side view of auth state. One instance per agent,
// mutated only through the agent's transitions.
type Session struct {
	IsAuthenticated bool
	Credential      string
	Identity        *auth.Identity
	IsLoading       bool
	IntendedPath    string
}

// IdentityFetcher resolves a credential into an identity.
type IdentityFetcher interface {
	FetchIdentity(ctx context.Context, credential string) (*auth.Identity, error)
}

// Agent drives the Uninitialized → Initializing → {Authenticated,
// Unauthenticated} transitions. All methods are safe for concurrent use.
type Agent struct {
	store     token.Store
	client    IdentityFetcher
	authorize func(state string) string
	navigate  func(url string)
	http      *http.Client
	logoutURL string
	cookieTTL time.Duration

	mu      sync.Mutex
	session Session
	flight  singleflight.Group
}

// Options configures an Agent. Navigate is invoked with the URL the user
// should be sent to; a nil Navigate is a no-op (headless use).
type Options struct {
	Store        token.Store
	Client       IdentityFetcher
	AuthorizeURL func(state string) string
	Navigate     func(url string)
	HTTPClient   *http.Client
	LogoutURL    string
	CookieTTL    time.Duration
}

func New(opts Options) *Agent {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	navigate := opts.Navigate
	if navigate == nil {
		navigate = func(string) {}
	}

	return &Agent{
		store:     opts.Store,
		client:    opts.Client,
		authorize: opts.AuthorizeURL,
		navigate:  navigate,
		http:      httpClient,
		logoutURL: opts.LogoutURL,
		cookieTTL: opts.CookieTTL,
	}
}

// Session returns a snapshot of the current auth state.
func (a *Agent) Session() Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.session
}

// Initialize loads the persisted credential and resolves it to an identity.
// Concurrent callers share a single in-flight run, and a call made while
// already authenticated with a loaded identity does no work.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	if a.session.IsAuthenticated && a.session.Identity != nil {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	_, err, _ := a.flight.Do("initialize", func() (any, error) {
		return nil, a.initialize(ctx)
	})
	return err
}

func (a *Agent) initialize(ctx context.Context) error {
	a.setLoading(true)
	defer a.setLoading(false)

	credential, ok := a.store.Get()
	if !ok {
		a.setUnauthenticated()
		return nil
	}

	identity, err := a.client.FetchIdentity(ctx, credential)
	if err != nil {
		logger.Warn("persisted credential rejected, clearing", zap.Error(err))
		a.store.Clear()
		a.setUnauthenticated()
		return nil
	}

	a.mu.Lock()
	a.session.IsAuthenticated = true
	a.session.Credential = credential
	a.session.Identity = identity
	a.mu.Unlock()

	return nil
}

// Login records currentPath as the intended destination and sends the user to
// the provider's authorization endpoint with that path encoded as the opaque
// state. It returns the authorization URL.
func (a *Agent) Login(currentPath string) string {
	a.mu.Lock()
	a.session.IntendedPath = currentPath
	a.mu.Unlock()

	authURL := a.authorize(url.QueryEscape(currentPath))
	a.navigate(authURL)
	return authURL
}

// HandleCallback consumes the credential delivered by the provider redirect.
// On success it persists the credential and identity and returns the intended
// path recorded at login (or the root); on failure it clears all auth state.
func (a *Agent) HandleCallback(ctx context.Context, credential string) (string, error) {
	identity, err := a.client.FetchIdentity(ctx, credential)
	if err != nil {
		a.store.Clear()
		a.setUnauthenticated()
		return "", err
	}

	a.store.Set(credential, a.cookieTTL)

	a.mu.Lock()
	a.session.IsAuthenticated = true
	a.session.Credential = credential
	a.session.Identity = identity
	destination := a.session.IntendedPath
	a.session.IntendedPath = ""
	a.mu.Unlock()

	if destination == "" {
		destination = "/"
	}
	return destination, nil
}

// Logout clears the persisted credential and in-memory state synchronously,
// then notifies the remote logout endpoint best-effort. The user's redirect to
// the login page never waits on that call.
func (a *Agent) Logout() {
	a.store.Clear()
	a.setUnauthenticated()

	if a.logoutURL != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.logoutURL, nil)
			if err != nil {
				return
			}
			resp, err := a.http.Do(req)
			if err != nil {
				logger.Debug("logout notification failed", zap.Error(err))
				return
			}
			resp.Body.Close()
		}()
	}

	a.navigate("/login")
}

// Do performs an authenticated request. A 401 or 403 response destroys the
// credential, triggers Login exactly once for the request's path, and returns
// ErrReauthRequired instead of the response; the caller's continuation never
// runs against a dead session.
func (a *Agent) Do(req *http.Request) (*http.Response, error) {
	a.mu.Lock()
	authenticated := a.session.IsAuthenticated
	credential := a.session.Credential
	a.mu.Unlock()

	if !authenticated {
		a.Login(req.URL.RequestURI())
		return nil, ErrReauthRequired
	}

	req.Header.Set("Authorization", "Bearer "+credential)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()

		a.store.Clear()
		a.setUnauthenticated()
		a.Login(req.URL.RequestURI())
		return nil, ErrReauthRequired
	}

	return resp, nil
}

func (a *Agent) setLoading(loading bool) {
	a.mu.Lock()
	a.session.IsLoading = loading
	a.mu.Unlock()
}

func (a *Agent) setUnauthenticated() {
	a.mu.Lock()
	a.session.IsAuthenticated = false
	a.session.Credential = ""
	a.session.Identity = nil
	a.session.IntendedPath = ""
	a.mu.Unlock()
}

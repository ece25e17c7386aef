package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
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
	calls    atomic.Int64
	delay    time.Duration
}

func (f *fakeFetcher) FetchIdentity(ctx context.Context, credential string) (*auth.Identity, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.identity, nil
}

func authorizeURL(state string) string {
	return "https://provider.example/authorize?state=" + state
}

func newAgent(fetcher *fakeFetcher, store token.Store) *Agent {
	return New(Options{
		Store:        store,
		Client:       fetcher,
		AuthorizeURL: authorizeURL,
		CookieTTL:    time.Hour,
	})
}

func TestInitialize_NoPersistedCredential(t *testing.T) {
	fetcher := &fakeFetcher{}
	agent := newAgent(fetcher, token.NewMemoryStore())

	require.NoError(t, agent.Initialize(context.Background()))

	session := agent.Session()
	assert.False(t, session.IsAuthenticated)
	assert.False(t, session.IsLoading)
	assert.Zero(t, fetcher.calls.Load())
}

func TestInitialize_PersistedCredentialResolves(t *testing.T) {
	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42", Username: "walker"}}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)
	agent := newAgent(fetcher, store)

	require.NoError(t, agent.Initialize(context.Background()))

	session := agent.Session()
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, "tok-live", session.Credential)
	require.NotNil(t, session.Identity)
	assert.Equal(t, "42", session.Identity.ID)
}

func TestInitialize_RejectedCredentialIsCleared(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("401 from provider")}
	store := token.NewMemoryStore()
	store.Set("tok-dead", time.Hour)
	agent := newAgent(fetcher, store)

	require.NoError(t, agent.Initialize(context.Background()))

	session := agent.Session()
	assert.False(t, session.IsAuthenticated)

	_, ok := store.Get()
	assert.False(t, ok)
}

func TestInitialize_ConcurrentCallersShareOneFlight(t *testing.T) {
	fetcher := &fakeFetcher{
		identity: &auth.Identity{ID: "42"},
		delay:    50 * time.Millisecond,
	}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)
	agent := newAgent(fetcher, store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = agent.Initialize(context.Background())
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestInitialize_AlreadyAuthenticatedDoesNoWork(t *testing.T) {
	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42"}}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)
	agent := newAgent(fetcher, store)

	require.NoError(t, agent.Initialize(context.Background()))
	require.NoError(t, agent.Initialize(context.Background()))

	assert.Equal(t, int64(1), fetcher.calls.Load())
}

func TestLoginRoundTripPreservesIntendedPath(t *testing.T) {
	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42"}}
	store := token.NewMemoryStore()
	agent := newAgent(fetcher, store)

	authURL := agent.Login("/profile?tab=roles")
	assert.Equal(t, "/profile?tab=roles", agent.Session().IntendedPath)

	// The path rides through the provider as the opaque state parameter.
	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	state := parsed.Query().Get("state")
	decoded, err := url.QueryUnescape(state)
	require.NoError(t, err)
	assert.Equal(t, "/profile?tab=roles", decoded)

	destination, err := agent.HandleCallback(context.Background(), "tok-new")
	require.NoError(t, err)
	assert.Equal(t, "/profile?tab=roles", destination)

	// Consumed once; a second callback falls back to the root.
	destination, err = agent.HandleCallback(context.Background(), "tok-new")
	require.NoError(t, err)
	assert.Equal(t, "/", destination)
}

func TestHandleCallback_PersistsCredentialAndIdentity(t *testing.T) {
	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42", Username: "walker"}}
	store := token.NewMemoryStore()
	agent := newAgent(fetcher, store)

	_, err := agent.HandleCallback(context.Background(), "tok-new")
	require.NoError(t, err)

	session := agent.Session()
	assert.True(t, session.IsAuthenticated)
	assert.Equal(t, "tok-new", session.Credential)

	persisted, ok := store.Get()
	require.True(t, ok)
	assert.Equal(t, "tok-new", persisted)
}

func TestHandleCallback_FailureClearsAllState(t *testing.T) {
	fetcher := &fakeFetcher{err: errors.New("provider rejected token")}
	store := token.NewMemoryStore()
	store.Set("tok-old", time.Hour)
	agent := newAgent(fetcher, store)

	_, err := agent.HandleCallback(context.Background(), "tok-bad")
	require.Error(t, err)

	session := agent.Session()
	assert.False(t, session.IsAuthenticated)
	assert.Empty(t, session.Credential)
	assert.Nil(t, session.Identity)

	_, ok := store.Get()
	assert.False(t, ok)
}

func TestLogout_ClearsStateBeforeNotifying(t *testing.T) {
	release := make(chan struct{})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42"}}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)

	agent := New(Options{
		Store:        store,
		Client:       fetcher,
		AuthorizeURL: authorizeURL,
		LogoutURL:    srv.URL,
		CookieTTL:    time.Hour,
	})
	require.NoError(t, agent.Initialize(context.Background()))

	done := make(chan struct{})
	go func() {
		agent.Logout()
		close(done)
	}()

	// Logout must return while the remote endpoint is still hanging.
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("logout blocked on the remote notification")
	}

	session := agent.Session()
	assert.False(t, session.IsAuthenticated)
	assert.Empty(t, session.IntendedPath)

	_, ok := store.Get()
	assert.False(t, ok)
}

func TestDo_AttachesBearerCredential(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42"}}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)
	agent := newAgent(fetcher, store)
	require.NoError(t, agent.Initialize(context.Background()))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/me", nil)
	resp, err := agent.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, "Bearer tok-live", gotAuth)
}

func TestDo_UnauthorizedTriggersLoginOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	var logins atomic.Int64
	fetcher := &fakeFetcher{identity: &auth.Identity{ID: "42"}}
	store := token.NewMemoryStore()
	store.Set("tok-live", time.Hour)

	agent := New(Options{
		Store:        store,
		Client:       fetcher,
		AuthorizeURL: authorizeURL,
		Navigate: func(string) {
			logins.Add(1)
		},
		CookieTTL: time.Hour,
	})
	require.NoError(t, agent.Initialize(context.Background()))

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/me", nil)
	resp, err := agent.Do(req)

	// The caller's continuation never runs against a dead session.
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, int64(1), logins.Load())

	// The rejected credential is destroyed and the state transitions.
	assert.False(t, agent.Session().IsAuthenticated)
	_, ok := store.Get()
	assert.False(t, ok)
}

func TestDo_UnauthenticatedAgentRedirectsToLogin(t *testing.T) {
	fetcher := &fakeFetcher{}
	agent := newAgent(fetcher, token.NewMemoryStore())
	require.NoError(t, agent.Initialize(context.Background()))

	req, _ := http.NewRequest(http.MethodGet, "http://app.example/api/me", nil)
	_, err := agent.Do(req)

	assert.ErrorIs(t, err, ErrReauthRequired)
	assert.Equal(t, "/api/me", agent.Session().IntendedPath)
}

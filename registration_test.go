package offlinecache

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/offline-cache/offline-cache/cache"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testClient struct {
	mu       sync.Mutex
	versions []string
}

func (c *testClient) ControllerChange(version string) {
	c.mu.Lock()
	c.versions = append(c.versions, version)
	c.mu.Unlock()
}

func (c *testClient) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.versions...)
}

func newVersionedAgent(t *testing.T, originURL, version string, provider cache.CacheProvider, skipWaiting bool) *Agent {
	t.Helper()
	origin, err := url.Parse(originURL)
	require.NoError(t, err)
	logger := zerolog.Nop()
	a, err := New(Config{
		Version:     version,
		Namespace:   "pc",
		Storage:     provider,
		OriginURL:   *origin,
		Logger:      &logger,
		SkipWaiting: skipWaiting,
	})
	require.NoError(t, err)
	return a
}

func TestRegisterActivatesFirstVersion(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	a := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), a))

	require.Same(t, a, reg.Active())
	require.Nil(t, reg.Waiting())
}

func TestSecondVersionWaits(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	v1 := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), v1))

	v2 := newVersionedAgent(t, origin.URL, "v2", provider, false)
	require.NoError(t, reg.Register(context.Background(), v2))

	require.Same(t, v1, reg.Active())
	require.Same(t, v2, reg.Waiting())

	// the old generation's caches are untouched while v2 waits
	names, err := provider.Names()
	require.NoError(t, err)
	require.Contains(t, names, "pc-static-v1")
}

func TestSkipWaitingMessagePromotesWaitingVersion(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	client := &testClient{}
	reg.AddClient(client)

	v1 := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), v1))
	v2 := newVersionedAgent(t, origin.URL, "v2", provider, false)
	require.NoError(t, reg.Register(context.Background(), v2))

	reg.HandleMessage(context.Background(), Message{Type: "SKIP_WAITING"})

	require.Same(t, v2, reg.Active())
	require.Nil(t, reg.Waiting())

	// activation cleaned up the v1 caches
	names, err := provider.Names()
	require.NoError(t, err)
	require.NotContains(t, names, "pc-static-v1")
	require.NotContains(t, names, "pc-runtime-v1")

	// connected clients learned about the controller change
	require.Equal(t, []string{"v1", "v2"}, client.seen())
}

func TestSkipWaitingConfigPromotesImmediately(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	v1 := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), v1))

	v2 := newVersionedAgent(t, origin.URL, "v2", provider, true)
	require.NoError(t, reg.Register(context.Background(), v2))

	require.Same(t, v2, reg.Active())
}

func TestUnknownMessageIgnored(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	v1 := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), v1))
	v2 := newVersionedAgent(t, origin.URL, "v2", provider, false)
	require.NoError(t, reg.Register(context.Background(), v2))

	reg.HandleMessage(context.Background(), Message{Type: "PING"})

	require.Same(t, v1, reg.Active())
	require.Same(t, v2, reg.Waiting())
}

func TestRemovedClientNotNotified(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	client := &testClient{}
	id := reg.AddClient(client)
	reg.RemoveClient(id)

	v1 := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), v1))

	require.Empty(t, client.seen())
}

func TestRegistrationDispatchesToActiveAgent(t *testing.T) {
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("from origin"))
	}))
	defer origin.Close()

	provider := cache.NewMemProvider()
	logger := zerolog.Nop()
	reg := NewRegistration(&logger)

	// no active agent yet
	rr := httptest.NewRecorder()
	reg.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Result().StatusCode)

	v1 := newVersionedAgent(t, origin.URL, "v1", provider, false)
	require.NoError(t, reg.Register(context.Background(), v1))

	rr = httptest.NewRecorder()
	reg.ServeHTTP(rr, navigate("/"))
	require.Equal(t, http.StatusOK, rr.Result().StatusCode)
}

package vk

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/supportdesk/helpdesk-bridge/internal/config"
)

func testClient(baseURL string, cache IdentityCache) *Client {
	cfg := config.VKConfig{
		APIBaseURL:            baseURL,
		APIVersion:            "5.199",
		RequestTimeoutSeconds: 5,
	}
	return NewClient(cfg, cache, zap.NewNop())
}

type mapCache struct {
	mu      sync.Mutex
	entries map[int64]Identity
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[int64]Identity{}}
}

func (c *mapCache) Get(_ context.Context, userID int64) (Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	identity, ok := c.entries[userID]
	return identity, ok
}

func (c *mapCache) Set(_ context.Context, userID int64, identity Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = identity
}

func TestResolveUserSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users.get", r.URL.Path)
		assert.Equal(t, "42", r.URL.Query().Get("user_ids"))
		assert.Equal(t, "token-100", r.URL.Query().Get("access_token"))
		assert.Equal(t, "5.199", r.URL.Query().Get("v"))
		w.Write([]byte(`{"response":[{"first_name":"Ivan","last_name":"Petrov","photo_100":"https://cdn/ava.jpg"}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL, nil)
	identity := client.ResolveUser(context.Background(), 42, "token-100")

	assert.Equal(t, "Ivan Petrov", identity.Name)
	assert.Equal(t, "https://cdn/ava.jpg", identity.Avatar)
}

func TestResolveUserFallbackOnAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"error_code":5,"error_msg":"User authorization failed"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL, nil)
	identity := client.ResolveUser(context.Background(), 42, "bad-token")

	assert.Equal(t, "User 42", identity.Name)
	assert.Empty(t, identity.Avatar)
}

func TestResolveUserFallbackOnMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := testClient(server.URL, nil)
	identity := client.ResolveUser(context.Background(), 42, "token")

	assert.Equal(t, "User 42", identity.Name)
}

func TestResolveUserFallbackOnConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // refuse connections

	client := testClient(server.URL, nil)
	identity := client.ResolveUser(context.Background(), 42, "token")

	assert.Equal(t, "User 42", identity.Name)
}

func TestResolveUserUsesCache(t *testing.T) {
	var hits int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Write([]byte(`{"response":[{"first_name":"Ivan","last_name":"Petrov"}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL, newMapCache())

	first := client.ResolveUser(context.Background(), 42, "token")
	second := client.ResolveUser(context.Background(), 42, "token")

	assert.Equal(t, "Ivan Petrov", first.Name)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, hits)
}

func TestResolveUserFallbackNotCached(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"response":[]}`))
	}))
	defer server.Close()

	cache := newMapCache()
	client := testClient(server.URL, cache)
	client.ResolveUser(context.Background(), 42, "token")

	_, ok := cache.Get(context.Background(), 42)
	assert.False(t, ok)
}

func TestSendMessageSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/messages.send", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "42", r.PostForm.Get("user_id"))
		assert.Equal(t, "hello", r.PostForm.Get("message"))
		assert.Equal(t, "token-100", r.PostForm.Get("access_token"))
		w.Write([]byte(`{"response":123}`))
	}))
	defer server.Close()

	client := testClient(server.URL, nil)
	err := client.SendMessage(context.Background(), 42, "hello", "token-100")
	assert.NoError(t, err)
}

func TestSendMessageAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"error":{"error_code":902,"error_msg":"Can't send messages"}}`))
	}))
	defer server.Close()

	client := testClient(server.URL, nil)
	err := client.SendMessage(context.Background(), 42, "hello", "token")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "api error")
}

func TestSendMessageConnectionError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := testClient(server.URL, nil)
	err := client.SendMessage(context.Background(), 42, "hello", "token")
	require.Error(t, err)
}

func TestFallbackIdentity(t *testing.T) {
	assert.Equal(t, Identity{Name: "User 42"}, FallbackIdentity(42))
}

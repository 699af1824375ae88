package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/supportdesk/helpdesk-bridge/internal/config"
)

// Identity is the displayable identity of a platform user.
type Identity struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// FallbackIdentity is what callers get when the platform lookup fails for
// any reason. Display data degrades, ticket processing does not.
func FallbackIdentity(userID int64) Identity {
	return Identity{Name: fmt.Sprintf("User %d", userID)}
}

// Resolver resolves platform user ids to display identities.
type Resolver interface {
	ResolveUser(ctx context.Context, userID int64, accessToken string) Identity
}

// Sender delivers outbound replies to platform users.
type Sender interface {
	SendMessage(ctx context.Context, userID int64, text, accessToken string) error
}

// Client talks to the platform REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	version    string
	cache      IdentityCache
	logger     *zap.Logger
}

// NewClient builds a Client. cache may be nil.
func NewClient(cfg config.VKConfig, cache IdentityCache, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout()},
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		version:    cfg.APIVersion,
		cache:      cache,
		logger:     logger,
	}
}

type userInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Photo100  string `json:"photo_100"`
}

type usersGetResponse struct {
	Response []userInfo `json:"response"`
}

// ResolveUser looks up the user via users.get. Every failure mode (network,
// bad status, malformed body, empty result) degrades to the synthetic
// fallback identity; no error is ever returned.
func (c *Client) ResolveUser(ctx context.Context, userID int64, accessToken string) Identity {
	if identity, ok := c.cacheGet(ctx, userID); ok {
		return identity
	}

	params := url.Values{}
	params.Set("user_ids", strconv.FormatInt(userID, 10))
	params.Set("access_token", accessToken)
	params.Set("v", c.version)
	params.Set("fields", "first_name,last_name,photo_100")

	endpoint := c.baseURL + "/users.get?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return FallbackIdentity(userID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("identity lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return FallbackIdentity(userID)
	}
	defer resp.Body.Close()

	var decoded usersGetResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.logger.Warn("identity response malformed", zap.Int64("user_id", userID), zap.Error(err))
		return FallbackIdentity(userID)
	}
	if len(decoded.Response) == 0 || decoded.Response[0].FirstName == "" {
		return FallbackIdentity(userID)
	}

	user := decoded.Response[0]
	identity := Identity{
		Name:   strings.TrimSpace(user.FirstName + " " + user.LastName),
		Avatar: user.Photo100,
	}
	c.cacheSet(ctx, userID, identity)
	return identity
}

type sendResponse struct {
	Error json.RawMessage `json:"error"`
}

// SendMessage posts a reply via messages.send. A response body carrying an
// "error" member counts as failure.
func (c *Client) SendMessage(ctx context.Context, userID int64, text, accessToken string) error {
	form := url.Values{}
	form.Set("user_id", strconv.FormatInt(userID, 10))
	form.Set("message", text)
	form.Set("random_id", "0")
	form.Set("access_token", accessToken)
	form.Set("v", c.version)

	endpoint := c.baseURL + "/messages.send"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("send message: malformed response: %w", err)
	}
	if len(decoded.Error) > 0 {
		return fmt.Errorf("send message: api error: %s", string(decoded.Error))
	}
	return nil
}

func (c *Client) cacheGet(ctx context.Context, userID int64) (Identity, bool) {
	if c.cache == nil {
		return Identity{}, false
	}
	return c.cache.Get(ctx, userID)
}

func (c *Client) cacheSet(ctx context.Context, userID int64, identity Identity) {
	if c.cache == nil {
		return
	}
	c.cache.Set(ctx, userID, identity)
}

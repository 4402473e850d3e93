// Package schwab implements the broker capability contract against the
// Schwab trader and market data APIs. Account operations are keyed by
// the opaque account hash, and authentication rides on a refresh-token
// file produced by the one-time OAuth authorization flow.
package schwab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// Client is the authenticated REST client shared by the trader and
// market data endpoints.
type Client struct {
	baseURL       string
	marketDataURL string
	appKey        string
	appSecret     string
	httpClient    *http.Client
	store         *tokenStore
	now           func() time.Time

	mu  sync.Mutex
	tok *token
}

// NewClient creates a client. tokenPath must point at an existing token
// file; the client refreshes it in place as access tokens expire.
func NewClient(baseURL, marketDataURL, appKey, appSecret, tokenPath string) *Client {
	return &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		marketDataURL: strings.TrimRight(marketDataURL, "/"),
		appKey:        appKey,
		appSecret:     appSecret,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		store:         &tokenStore{path: tokenPath},
		now:           time.Now,
	}
}

// statusError is a non-2xx API response.
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("api returned status %d: %s", e.StatusCode, e.Body)
}

// accessToken returns a live access token, refreshing through the OAuth
// endpoint when the stored one has expired.
func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.tok == nil {
		tok, err := c.store.load()
		if err != nil {
			return "", err
		}
		c.tok = tok
	}
	if !c.tok.expired(c.now()) {
		return c.tok.AccessToken, nil
	}

	tok, err := c.refresh(ctx, c.tok.RefreshToken)
	if err != nil {
		return "", err
	}
	c.tok = tok
	if err := c.store.save(tok); err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (*token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create refresh request: %w", err)
	}
	req.SetBasicAuth(c.appKey, c.appSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read refresh response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	var tok token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("decode refresh response: %w", err)
	}
	tok.ObtainedAt = c.now()
	return &tok, nil
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	_, err := c.do(ctx, http.MethodGet, rawURL, nil, out)
	return err
}

// post issues a POST and returns the response headers; order placement
// reads the assigned id out of the Location header.
func (c *Client) post(ctx context.Context, rawURL string, body, out any) (http.Header, error) {
	return c.do(ctx, http.MethodPost, rawURL, body, out)
}

func (c *Client) delete(ctx context.Context, rawURL string) error {
	_, err := c.do(ctx, http.MethodDelete, rawURL, nil, nil)
	return err
}

func (c *Client) do(ctx context.Context, method, rawURL string, reqBody, out any) (http.Header, error) {
	tok, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.Header, nil
}

package onedrive

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"pwsvc/internal/logging"
)

// DefaultGraphURL is the Microsoft Graph v1.0 root.
const DefaultGraphURL = "https://graph.microsoft.com/v1.0"

// Config configures a Client.
type Config struct {
	Credentials
	RefreshToken string
	GraphBaseURL string
	Timeout      time.Duration

	// HTTPClient carries the transport for both token and Graph requests.
	HTTPClient *http.Client
}

// Client downloads drive items on behalf of the refresh token's owner.
type Client struct {
	oauth        *oauth2.Config
	refreshToken string
	graphURL     string
	timeout      time.Duration
	httpClient   *http.Client
	logger       *zap.Logger

	mu      sync.Mutex
	token   *oauth2.Token
	rotated string
}

// NewClient creates a Graph client. The refresh token is required.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.RefreshToken == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrInvalidGrant)
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client id is required")
	}
	graphURL := strings.TrimSuffix(cfg.GraphBaseURL, "/")
	if graphURL == "" {
		graphURL = DefaultGraphURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		oauth:        cfg.OAuthConfig(),
		refreshToken: cfg.RefreshToken,
		graphURL:     graphURL,
		timeout:      timeout,
		httpClient:   httpClient,
		logger:       logging.For(logger, logging.CategoryOneDrive),
	}, nil
}

// Token returns a valid access token, redeeming the refresh token when needed.
func (c *Client) Token(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: c.refreshToken}).Token()
	if err != nil {
		return nil, classifyTokenError(err)
	}
	c.token = tok

	if tok.RefreshToken != "" && tok.RefreshToken != c.refreshToken {
		c.rotated = tok.RefreshToken
		c.logger.Warn("identity provider issued a new refresh token; update REFRESH_TOKEN to keep access working")
	}
	c.logger.Debug("access token acquired", zap.Time("expiry", tok.Expiry))
	return tok, nil
}

// RotatedRefreshToken reports the refresh token issued in place of the configured one.
func (c *Client) RotatedRefreshToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rotated, c.rotated != ""
}

// DownloadFile saves the content of drive item itemID to dest and returns its size.
// The file is written beside dest first and renamed into place on success.
func (c *Client) DownloadFile(ctx context.Context, itemID, dest string) (int64, error) {
	if itemID == "" {
		return 0, fmt.Errorf("drive item id is required")
	}
	// Nests under any caller deadline; the shorter one wins.
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tok, err := c.Token(ctx)
	if err != nil {
		return 0, err
	}

	endpoint := fmt.Sprintf("%s/me/drive/items/%s/content", c.graphURL, url.PathEscape(itemID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	tok.SetAuthHeader(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("download failed (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, fmt.Errorf("failed to create download dir: %w", err)
	}
	tmp := dest + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s: %w", tmp, err)
	}
	n, err := io.Copy(f, resp.Body)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to write download: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return 0, fmt.Errorf("failed to move download into place: %w", err)
	}

	c.logger.Info("file downloaded", zap.String("item_id", itemID), zap.String("path", dest), zap.Int64("bytes", n))
	return n, nil
}

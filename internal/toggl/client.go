// Package toggl exports Toggl Track time entries as per-project hour totals.
package toggl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pwsvc/internal/datefmt"
	"pwsvc/internal/logging"
)

// DefaultBaseURL is the Toggl Track v9 API root.
const DefaultBaseURL = "https://api.track.toggl.com/api/v9"

// ErrUnauthorized is returned when Toggl rejects the API token.
var ErrUnauthorized = errors.New("toggl rejected the API token")

// Workspace is a Toggl workspace.
type Workspace struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Project is a Toggl project.
type Project struct {
	ID          int64  `json:"id"`
	WorkspaceID int64  `json:"workspace_id"`
	Name        string `json:"name"`
}

// TimeEntry is a Toggl time entry. A negative Duration marks a running timer.
type TimeEntry struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	ProjectID   *int64    `json:"project_id"`
	Description string    `json:"description"`
	Start       time.Time `json:"start"`
	Duration    int64     `json:"duration"`
}

// Config configures a Client.
type Config struct {
	APIToken string
	BaseURL  string
	Timeout  time.Duration
}

// Client talks to the Toggl Track API with HTTP basic auth (token, "api_token").
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	maxRetries int
	backoff    time.Duration
	// concurrency bounds parallel project fetches.
	concurrency int
}

// NewClient creates a Toggl client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIToken == "" {
		return nil, fmt.Errorf("%w: empty token", ErrUnauthorized)
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		token:       cfg.APIToken,
		baseURL:     baseURL,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logging.For(logger, logging.CategoryToggl),
		maxRetries:  3,
		backoff:     time.Second,
		concurrency: 4,
	}, nil
}

// Workspaces lists the workspaces of the token's owner.
func (c *Client) Workspaces(ctx context.Context) ([]Workspace, error) {
	var out []Workspace
	if err := c.getJSON(ctx, "/me/workspaces", nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch workspaces: %w", err)
	}
	c.logger.Info("workspaces fetched", zap.Int("count", len(out)))
	return out, nil
}

// Projects lists the projects of one workspace.
func (c *Client) Projects(ctx context.Context, workspaceID int64) ([]Project, error) {
	var out []Project
	if err := c.getJSON(ctx, fmt.Sprintf("/workspaces/%d/projects", workspaceID), nil, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch projects for workspace %d: %w", workspaceID, err)
	}
	c.logger.Debug("projects fetched", zap.Int64("workspace_id", workspaceID), zap.Int("count", len(out)))
	return out, nil
}

// AllProjects fetches the projects of every workspace concurrently.
// Results keep workspace order.
func (c *Client) AllProjects(ctx context.Context, workspaces []Workspace) ([]Project, error) {
	perWorkspace := make([][]Project, len(workspaces))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, ws := range workspaces {
		g.Go(func() error {
			projects, err := c.Projects(gctx, ws.ID)
			if err != nil {
				return err
			}
			perWorkspace[i] = projects
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var all []Project
	for _, p := range perWorkspace {
		all = append(all, p...)
	}
	return all, nil
}

// TimeEntries lists entries whose start falls in [start, end) by calendar date.
func (c *Client) TimeEntries(ctx context.Context, start, end datefmt.Date) ([]TimeEntry, error) {
	q := url.Values{}
	q.Set("start_date", start.String())
	q.Set("end_date", end.String())

	var out []TimeEntry
	if err := c.getJSON(ctx, "/me/time_entries", q, &out); err != nil {
		return nil, fmt.Errorf("failed to fetch time entries: %w", err)
	}
	c.logger.Info("time entries fetched",
		zap.String("start_date", start.String()),
		zap.String("end_date", end.String()),
		zap.Int("count", len(out)))
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, dst any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for i := 0; i <= c.maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(c.backoff * time.Duration(1<<uint(i-1))):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.SetBasicAuth(c.token, "api_token")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, dst); err != nil {
				return fmt.Errorf("failed to parse response: %w", err)
			}
			return nil
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return fmt.Errorf("%w (status %d)", ErrUnauthorized, resp.StatusCode)
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			c.logger.Debug("retryable toggl response", zap.String("path", path), zap.Int("status", resp.StatusCode))
		default:
			return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		}
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

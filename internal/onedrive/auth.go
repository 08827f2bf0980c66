// Package onedrive downloads the activity log from OneDrive through Microsoft Graph.
// Access tokens come from a long-lived refresh token (consumer accounts); the
// one-time authorization code flow that yields that refresh token lives here too.
package onedrive

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Scopes requested for the Graph download. offline_access yields a refresh token.
var Scopes = []string{"Files.Read", "Files.Read.All", "offline_access"}

// ErrInvalidGrant is returned when the refresh token is expired or revoked.
var ErrInvalidGrant = errors.New("refresh token rejected; run `pwsvc auth` to obtain a new one")

// ErrNoRefreshToken is returned when the code exchange yields no refresh token.
var ErrNoRefreshToken = errors.New("authorization response carried no refresh token")

// Credentials identify the registered application.
type Credentials struct {
	ClientID     string
	ClientSecret string
	Tenant       string // consumers, organizations, common or a tenant id
	RedirectURL  string

	// Endpoint overrides the Microsoft identity endpoint.
	Endpoint *oauth2.Endpoint
}

// OAuthConfig builds the oauth2 configuration for c.
func (c Credentials) OAuthConfig() *oauth2.Config {
	tenant := c.Tenant
	if tenant == "" {
		tenant = "consumers"
	}
	endpoint := microsoft.AzureADEndpoint(tenant)
	if c.Endpoint != nil {
		endpoint = *c.Endpoint
	}
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Scopes:       Scopes,
		Endpoint:     endpoint,
	}
}

// classifyTokenError maps identity-provider failures onto ErrInvalidGrant.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
		return fmt.Errorf("%w: %s", ErrInvalidGrant, re.ErrorDescription)
	}
	return fmt.Errorf("failed to acquire access token: %w", err)
}

// AuthFlow is an in-progress authorization code flow.
type AuthFlow struct {
	config *oauth2.Config
	State  string
	URL    string
}

// StartAuth generates state and the URL the user must open in a browser.
func StartAuth(creds Credentials) (*AuthFlow, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("failed to generate state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(b)

	conf := creds.OAuthConfig()
	return &AuthFlow{
		config: conf,
		State:  state,
		URL:    conf.AuthCodeURL(state, oauth2.AccessTypeOffline),
	}, nil
}

// Exchange trades an authorization code for a token that must carry a refresh token.
func (f *AuthFlow) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	tok, err := f.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", err)
	}
	if tok.RefreshToken == "" {
		return nil, ErrNoRefreshToken
	}
	return tok, nil
}

// WaitForCode serves the redirect URL locally until the provider calls back
// with a code matching the flow's state, ctx is done, or an error arrives.
func (f *AuthFlow) WaitForCode(ctx context.Context, logger *zap.Logger) (string, error) {
	u, err := url.Parse(f.config.RedirectURL)
	if err != nil {
		return "", fmt.Errorf("invalid redirect url: %w", err)
	}
	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return "", fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}
	return f.serve(ctx, ln, callbackPath(u), logger)
}

func callbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func (f *AuthFlow) serve(ctx context.Context, ln net.Listener, path string, logger *zap.Logger) (string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if errStr := q.Get("error"); errStr != "" {
			http.Error(w, "Auth failed: "+errStr, http.StatusBadRequest)
			sendErr(errChan, fmt.Errorf("auth failed: %s: %s", errStr, q.Get("error_description")))
			return
		}
		if q.Get("state") != f.State {
			http.Error(w, "Invalid state", http.StatusBadRequest)
			sendErr(errChan, fmt.Errorf("invalid state received"))
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "No code received", http.StatusBadRequest)
			sendErr(errChan, fmt.Errorf("no code received"))
			return
		}

		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body style="font-family: sans-serif; text-align: center; padding: 50px;">
<h1>Authentication complete</h1><p>You can close this tab and return to the terminal.</p></body></html>`))

		select {
		case codeChan <- code:
		default:
		}
	})

	server := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
			sendErr(errChan, err)
		}
	}()
	logger.Debug("waiting for oauth callback", zap.String("addr", ln.Addr().String()), zap.String("path", path))

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	select {
	case code := <-codeChan:
		return code, nil
	case err := <-errChan:
		return "", err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func sendErr(ch chan error, err error) {
	select {
	case ch <- err:
	default:
	}
}

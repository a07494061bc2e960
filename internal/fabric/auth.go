package fabric

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultScope grants access to the Fabric REST surface. Power BI
// endpoints accept the same token.
const DefaultScope = "https://api.fabric.microsoft.com/.default"

const tokenEndpointFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// AuthConfig selects how tokens are obtained. A static token wins over
// client credentials when both are set.
type AuthConfig struct {
	Token        string
	TenantID     string
	ClientID     string
	ClientSecret string
	Scope        string
	TokenURL     string
}

// TokenStatus describes the cached token without exposing its value.
type TokenStatus struct {
	Source  string    `json:"source"`
	Cached  bool      `json:"cached"`
	Expires time.Time `json:"expires,omitempty"`
	Valid   bool      `json:"valid"`
}

// TokenSource hands out bearer tokens and reports on its cache. It wraps
// oauth2.ReuseTokenSource so client-credential tokens are fetched once
// per expiry window.
type TokenSource struct {
	mu     sync.Mutex
	cfg    AuthConfig
	source oauth2.TokenSource
	last   *oauth2.Token
	kind   string
}

// NewTokenSource validates the auth configuration and prepares the
// source. No network call happens until Token is first used.
func NewTokenSource(cfg AuthConfig) (*TokenSource, error) {
	if cfg.Token != "" {
		return &TokenSource{cfg: cfg, kind: "static"}, nil
	}
	if cfg.TenantID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("auth requires a static token or tenant id, client id, and client secret")
	}
	return &TokenSource{cfg: cfg, kind: "client_credentials"}, nil
}

// Token returns a bearer token, fetching or refreshing as needed.
func (ts *TokenSource) Token(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.kind == "static" {
		return ts.cfg.Token, nil
	}
	if ts.source == nil {
		ts.source = ts.newCredentialSource(ctx)
	}
	token, err := ts.source.Token()
	if err != nil {
		return "", fmt.Errorf("acquire token: %w", err)
	}
	ts.last = token
	return token.AccessToken, nil
}

func (ts *TokenSource) newCredentialSource(ctx context.Context) oauth2.TokenSource {
	scope := ts.cfg.Scope
	if scope == "" {
		scope = DefaultScope
	}
	tokenURL := ts.cfg.TokenURL
	if tokenURL == "" {
		tokenURL = fmt.Sprintf(tokenEndpointFormat, ts.cfg.TenantID)
	}
	credentials := &clientcredentials.Config{
		ClientID:     ts.cfg.ClientID,
		ClientSecret: ts.cfg.ClientSecret,
		TokenURL:     tokenURL,
		Scopes:       []string{scope},
	}
	return oauth2.ReuseTokenSource(nil, credentials.TokenSource(ctx))
}

// Status reports whether a token is cached and when it expires.
func (ts *TokenSource) Status() TokenStatus {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	status := TokenStatus{Source: ts.kind}
	if ts.kind == "static" {
		status.Cached = true
		status.Valid = ts.cfg.Token != ""
		return status
	}
	if ts.last != nil {
		status.Cached = true
		status.Expires = ts.last.Expiry
		status.Valid = ts.last.Valid()
	}
	return status
}

// Clear drops the cached token. The next Token call fetches a fresh one.
func (ts *TokenSource) Clear() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.source = nil
	ts.last = nil
}

// Package oauth provides OAuth 2.0 utilities for infographic.
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrTokenNotFound       = errors.New("token not found")
	ErrInvalidState        = errors.New("invalid OAuth state")
	ErrAuthorizationDenied = errors.New("authorization denied")
	ErrTokenExpired        = errors.New("token expired")
)

// Facebook endpoints and the permissions needed to read the feed.
const (
	FacebookAuthURL  = "https://www.facebook.com/dialog/oauth"
	FacebookTokenURL = "https://graph.facebook.com/v2.5/oauth/access_token"
)

var FacebookScopes = []string{"public_profile", "user_posts"}

type Config struct {
	ClientID     string
	ClientSecret string // #nosec G117 - JSON field for OAuth config, not an exposed secret
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
}

func (c Config) Validate() error {
	switch {
	case c.ClientID == "":
		return errors.New("client ID is required")
	case c.ClientSecret == "":
		return errors.New("client secret is required")
	case c.RedirectURL == "":
		return errors.New("redirect URL is required")
	case len(c.Scopes) == 0:
		return errors.New("at least one scope is required")
	}
	return nil
}

func FacebookOAuthConfig(clientID, clientSecret, redirectURL string) Config {
	return Config{ // #nosec G101 -- OAuth URLs are public API endpoints, not hardcoded credentials
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      FacebookAuthURL,
		TokenURL:     FacebookTokenURL,
		RedirectURL:  redirectURL,
		Scopes:       FacebookScopes,
	}
}

type Token struct {
	AccessToken  string `json:"access_token"`  // #nosec G117 - JSON field for OAuth token, not an exposed secret
	RefreshToken string `json:"refresh_token"` // #nosec G117 - JSON field for OAuth token, not an exposed secret
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	// IssuedAt is stamped when the token endpoint answers; with ExpiresIn it
	// dates the token once it has been stored.
	IssuedAt time.Time `json:"issued_at,omitempty"`
}

// ExpiresAt reports when the token stops working. The zero time means the
// provider gave no lifetime.
func (t *Token) ExpiresAt() time.Time {
	if t.ExpiresIn <= 0 || t.IssuedAt.IsZero() {
		return time.Time{}
	}
	return t.IssuedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Expired reports whether the token is past its lifetime at now.
func (t *Token) Expired(now time.Time) bool {
	expires := t.ExpiresAt()
	return !expires.IsZero() && !now.Before(expires)
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Flow struct {
	config     Config
	httpClient HTTPClient
	now        func() time.Time
}

type FlowOption func(*Flow)

func WithHTTPClient(client HTTPClient) FlowOption {
	return func(f *Flow) { f.httpClient = client }
}

func NewFlow(config Config, opts ...FlowOption) *Flow {
	f := &Flow{config: config, httpClient: http.DefaultClient, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GenerateAuthURL returns the provider authorization URL and the random state
// the callback must echo back.
func (f *Flow) GenerateAuthURL() (string, string) {
	state := uuid.NewString()

	q := url.Values{}
	q.Set("client_id", f.config.ClientID)
	q.Set("redirect_uri", f.config.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(f.config.Scopes, ","))
	q.Set("state", state)

	sep := "?"
	if strings.Contains(f.config.AuthURL, "?") {
		sep = "&"
	}
	return f.config.AuthURL + sep + q.Encode(), state
}

// ExchangeCode trades an authorization code for an access token.
func (f *Flow) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	data := url.Values{}
	data.Set("code", code)
	data.Set("client_id", f.config.ClientID)
	data.Set("client_secret", f.config.ClientSecret)
	data.Set("redirect_uri", f.config.RedirectURL)
	data.Set("grant_type", "authorization_code")

	token, err := f.requestToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}

// ExtendToken trades a short-lived Facebook token for a long-lived one.
func (f *Flow) ExtendToken(ctx context.Context, token *Token) (*Token, error) {
	data := url.Values{}
	data.Set("client_id", f.config.ClientID)
	data.Set("client_secret", f.config.ClientSecret)
	data.Set("grant_type", "fb_exchange_token")
	data.Set("fb_exchange_token", token.AccessToken)

	extended, err := f.requestToken(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("failed to extend token: %w", err)
	}
	return extended, nil
}

func (f *Flow) requestToken(ctx context.Context, data url.Values) (*Token, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.TokenURL, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, tokenErrorMessage(body))
	}

	token, err := parseTokenResponse(body)
	if err != nil {
		return nil, err
	}
	token.IssuedAt = f.now().UTC()
	return token, nil
}

// tokenResponse covers the JSON token reply; error is either a string or a
// Graph API error object.
type tokenResponse struct {
	Token
	Expires json.Number     `json:"expires"`
	Error   json.RawMessage `json:"error"`
	// IssuedAt shadows Token.IssuedAt; the issue time is stamped locally.
	IssuedAt json.RawMessage `json:"issued_at"`
}

// parseTokenResponse accepts both JSON and form-encoded
// (access_token=...&expires=...) token replies.
func parseTokenResponse(body []byte) (*Token, error) {
	trimmed := strings.TrimSpace(string(body))

	if strings.HasPrefix(trimmed, "{") {
		var resp tokenResponse
		if err := json.Unmarshal([]byte(trimmed), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse response: %w", err)
		}
		if len(resp.Error) > 0 && string(resp.Error) != "null" {
			return nil, fmt.Errorf("token endpoint error: %s", tokenErrorMessage(body))
		}
		if resp.AccessToken == "" {
			return nil, errors.New("token response has no access token")
		}
		token := resp.Token
		if token.ExpiresIn == 0 && resp.Expires != "" {
			token.ExpiresIn, _ = resp.Expires.Int64()
		}
		return &token, nil
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if values.Get("error") != "" {
		return nil, fmt.Errorf("token endpoint error: %s", values.Get("error"))
	}
	token := &Token{
		AccessToken: values.Get("access_token"),
		TokenType:   values.Get("token_type"),
	}
	if token.AccessToken == "" {
		return nil, errors.New("token response has no access token")
	}
	if expires := values.Get("expires"); expires != "" {
		token.ExpiresIn, _ = strconv.ParseInt(expires, 10, 64)
	}
	return token, nil
}

func tokenErrorMessage(body []byte) string {
	var resp struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Error) == 0 {
		return strings.TrimSpace(string(body))
	}
	if resp.ErrorDescription != "" {
		return resp.ErrorDescription
	}
	var graphErr struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(resp.Error, &graphErr); err == nil && graphErr.Message != "" {
		return graphErr.Message
	}
	var code string
	if err := json.Unmarshal(resp.Error, &code); err == nil {
		return code
	}
	return string(resp.Error)
}

// CallbackServer receives the authorization redirect on localhost during the
// CLI login flow.
type CallbackServer struct {
	port int
}

func NewCallbackServer(port int) *CallbackServer {
	return &CallbackServer{port: port}
}

type callbackResult struct {
	code string
	err  error
}

// WaitForCallback serves /callback until a request arrives, the timeout
// elapses or ctx is done. It returns the authorization code when the state
// matches expectedState.
func (s *CallbackServer) WaitForCallback(ctx context.Context, expectedState string, timeout time.Duration) (string, error) {
	results := make(chan callbackResult, 1)
	deliver := func(r callbackResult) {
		select {
		case results <- r:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("state") != expectedState {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			deliver(callbackResult{err: ErrInvalidState})
			return
		}
		if reason := q.Get("error"); reason != "" {
			msg := q.Get("error_description")
			if msg == "" {
				msg = reason
			}
			http.Error(w, "Authorization was denied. You can close this window.", http.StatusForbidden)
			deliver(callbackResult{err: fmt.Errorf("%w: %s", ErrAuthorizationDenied, msg)})
			return
		}
		code := q.Get("code")
		if code == "" {
			http.Error(w, "Missing authorization code", http.StatusBadRequest)
			deliver(callbackResult{err: errors.New("callback has no authorization code")})
			return
		}
		_, _ = fmt.Fprint(w, "Authentication successful. You can close this window and return to the terminal.")
		deliver(callbackResult{code: code})
	})

	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", s.port))
	if err != nil {
		return "", fmt.Errorf("failed to start callback server: %w", err)
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() { _ = srv.Serve(listener) }()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-results:
		return r.code, r.err
	case <-timer.C:
		return "", fmt.Errorf("timed out after %s waiting for authorization", timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// CallbackPort extracts the local port from a redirect URL such as
// http://localhost:8080/callback.
func CallbackPort(redirectURL string) (int, error) {
	u, err := url.Parse(redirectURL)
	if err != nil {
		return 0, fmt.Errorf("invalid redirect URL: %w", err)
	}
	if u.Port() == "" {
		if u.Scheme == "https" {
			return 443, nil
		}
		return 80, nil
	}
	return strconv.Atoi(u.Port())
}

// TokenStorage keeps one token file per provider in the config directory.
type TokenStorage struct {
	dir string
	now func() time.Time
}

func NewTokenStorage(dir string) *TokenStorage {
	return &TokenStorage{dir: dir, now: time.Now}
}

// path confines provider to a file name inside the storage directory.
func (s *TokenStorage) path(provider string) string {
	return filepath.Join(s.dir, filepath.Base(provider)+"_token.json")
}

// Save writes the token with owner-only permissions. The file is replaced
// atomically so an interrupted save never leaves a truncated token behind.
func (s *TokenStorage) Save(provider string, token *Token) error {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".token-*")
	if err != nil {
		return fmt.Errorf("failed to create token file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write token: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0600); err != nil {
		return fmt.Errorf("failed to protect token file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(provider)); err != nil {
		return fmt.Errorf("failed to store token: %w", err)
	}
	return nil
}

// Load reads the stored token. A token past its lifetime is returned together
// with ErrTokenExpired so callers can report when it lapsed.
func (s *TokenStorage) Load(provider string) (*Token, error) {
	data, err := os.ReadFile(s.path(provider)) // #nosec G304 -- provider is reduced to a base name
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("failed to read token: %w", err)
	}

	var token Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("stored %s token is empty: %w", provider, ErrTokenNotFound)
	}
	if token.Expired(s.now()) {
		return &token, ErrTokenExpired
	}
	return &token, nil
}

package playapi

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// OAuth scopes for the two Play APIs the tools talk to.
const (
	ScopeAndroidPublisher = "https://www.googleapis.com/auth/androidpublisher"
	ScopeReporting        = "https://www.googleapis.com/auth/playdeveloperreporting"
)

const jwtBearerGrant = "urn:ietf:params:oauth:grant-type:jwt-bearer"

// expiryMargin is how long before actual expiry a cached token is refreshed,
// so in-flight upstream calls never carry a token about to lapse.
const expiryMargin = 60 * time.Second

// ServiceCredential is the long-lived service-account identity. Immutable
// once loaded; the private key never leaves this package.
type ServiceCredential struct {
	ClientEmail  string
	PrivateKeyID string
	TokenURI     string
	key          *rsa.PrivateKey
}

// Load parses service-account JSON key material.
// Malformed material is an auth error, not an internal one: the process is
// misconfigured, and callers surface that as a tool error.
func Load(b []byte) (*ServiceCredential, error) {
	var raw struct {
		Type         string `json:"type"`
		ClientEmail  string `json:"client_email"`
		PrivateKey   string `json:"private_key"`
		PrivateKeyID string `json:"private_key_id"`
		TokenURI     string `json:"token_uri"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, Authf(err, "parse service account JSON")
	}
	if raw.Type != "service_account" {
		return nil, Authf(nil, "unexpected credential type %q", raw.Type)
	}
	if raw.ClientEmail == "" || raw.PrivateKey == "" {
		return nil, Authf(nil, "service account JSON missing client_email or private_key")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(raw.PrivateKey))
	if err != nil {
		return nil, Authf(err, "parse service account private key")
	}
	if raw.TokenURI == "" {
		raw.TokenURI = "https://oauth2.googleapis.com/token"
	}
	return &ServiceCredential{
		ClientEmail:  raw.ClientEmail,
		PrivateKeyID: raw.PrivateKeyID,
		TokenURI:     raw.TokenURI,
		key:          key,
	}, nil
}

// LoadFile reads and parses a service-account key file.
func LoadFile(path string) (*ServiceCredential, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, Authf(err, "read service account file %s", path)
	}
	return Load(b)
}

// AccessToken is a short-lived bearer token derived from the service identity.
type AccessToken struct {
	Value  string
	Expiry time.Time
}

// TokenSource yields an access token valid for the given scope.
type TokenSource interface {
	Token(ctx context.Context, scope string) (AccessToken, error)
}

// Credentials derives and caches access tokens from a ServiceCredential.
// Tokens are cached per scope; refresh is single-flight so N concurrent
// dispatches hitting an expired token produce exactly one exchange call.
type Credentials struct {
	cred   *ServiceCredential
	client *http.Client
	logger *slog.Logger
	now    func() time.Time

	mu       sync.Mutex
	cache    map[string]AccessToken
	inflight map[string]*refresh
}

// refresh is the in-flight-request marker for a scope. Waiters block on done
// and share the outcome, success or auth error.
type refresh struct {
	done chan struct{}
	tok  AccessToken
	err  error
}

// NewCredentials creates a token provider for the given identity.
func NewCredentials(cred *ServiceCredential) *Credentials {
	return &Credentials{
		cred:     cred,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   slog.Default(),
		now:      time.Now,
		cache:    make(map[string]AccessToken),
		inflight: make(map[string]*refresh),
	}
}

// Token returns a cached token when it has more than the safety margin of
// life left, otherwise refreshes. Concurrent callers for the same scope
// share one refresh.
func (c *Credentials) Token(ctx context.Context, scope string) (AccessToken, error) {
	c.mu.Lock()
	if tok, ok := c.cache[scope]; ok && tok.Expiry.After(c.now().Add(expiryMargin)) {
		c.mu.Unlock()
		return tok, nil
	}
	if r, ok := c.inflight[scope]; ok {
		c.mu.Unlock()
		select {
		case <-r.done:
			return r.tok, r.err
		case <-ctx.Done():
			return AccessToken{}, Authf(ctx.Err(), "token refresh interrupted")
		}
	}
	r := &refresh{done: make(chan struct{})}
	c.inflight[scope] = r
	c.mu.Unlock()

	tok, err := c.exchange(ctx, scope)

	c.mu.Lock()
	if err == nil {
		c.cache[scope] = tok
	}
	delete(c.inflight, scope)
	c.mu.Unlock()

	r.tok, r.err = tok, err
	close(r.done)
	return tok, err
}

// exchange performs the OAuth2 JWT-bearer grant against the token endpoint.
func (c *Credentials) exchange(ctx context.Context, scope string) (AccessToken, error) {
	now := c.now()
	claims := jwt.MapClaims{
		"iss":   c.cred.ClientEmail,
		"scope": scope,
		"aud":   c.cred.TokenURI,
		"iat":   jwt.NewNumericDate(now),
		"exp":   jwt.NewNumericDate(now.Add(time.Hour)),
	}
	assertion := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if c.cred.PrivateKeyID != "" {
		assertion.Header["kid"] = c.cred.PrivateKeyID
	}
	signed, err := assertion.SignedString(c.cred.key)
	if err != nil {
		return AccessToken{}, Authf(err, "sign token assertion")
	}

	form := url.Values{
		"grant_type": {jwtBearerGrant},
		"assertion":  {signed},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cred.TokenURI, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, Authf(err, "create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return AccessToken{}, Authf(err, "token exchange request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return AccessToken{}, Authf(err, "read token response")
	}
	if resp.StatusCode != http.StatusOK {
		return AccessToken{}, Authf(nil, "token exchange rejected (%d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	var tr struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tr); err != nil {
		return AccessToken{}, Authf(err, "parse token response")
	}
	if tr.AccessToken == "" {
		return AccessToken{}, Authf(nil, "token response missing access_token")
	}

	tok := AccessToken{
		Value:  tr.AccessToken,
		Expiry: now.Add(time.Duration(tr.ExpiresIn) * time.Second),
	}
	c.logger.Info("access token refreshed", "scope", scope, "expires_in", tr.ExpiresIn)
	return tok, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

var _ TokenSource = (*Credentials)(nil)

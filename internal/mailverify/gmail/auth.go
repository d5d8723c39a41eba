package gmail

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	json "github.com/json-iterator/go"
)

// ReadonlyScope is the only scope the searcher needs.
const ReadonlyScope = "https://www.googleapis.com/auth/gmail.readonly"

// DefaultTokenURL is Google's OAuth token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// expiryMargin renews tokens shortly before they lapse.
const expiryMargin = time.Minute

// TokenSource yields a bearer token for the Gmail API.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	// Invalidate drops a cached token after the API rejected it.
	Invalidate()
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// cachedToken shares the caching and exchange logic of both grants.
type cachedToken struct {
	mu       sync.Mutex
	token    string
	expiry   time.Time
	tokenURL string
	client   *http.Client
	now      func() time.Time
}

func (c *cachedToken) get(ctx context.Context, form func() (url.Values, error)) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && c.now().Add(expiryMargin).Before(c.expiry) {
		return c.token, nil
	}

	values, err := form()
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token exchange failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read token response: %w", err)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("failed to decode token response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || tr.AccessToken == "" {
		return "", fmt.Errorf("token exchange rejected (status %d): %s %s", resp.StatusCode, tr.Error, tr.Description)
	}

	c.token = tr.AccessToken
	c.expiry = c.now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.token, nil
}

func (c *cachedToken) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// RefreshTokenSource exchanges a long-lived OAuth refresh token for access
// tokens.
type RefreshTokenSource struct {
	*cachedToken
	clientID     string
	clientSecret string
	refreshToken string
}

// NewRefreshTokenSource creates a source for an installed-app OAuth client.
func NewRefreshTokenSource(clientID, clientSecret, refreshToken, tokenURL string, client *http.Client) *RefreshTokenSource {
	return &RefreshTokenSource{
		cachedToken:  newCachedToken(tokenURL, client),
		clientID:     clientID,
		clientSecret: clientSecret,
		refreshToken: refreshToken,
	}
}

// Token returns a valid access token.
func (s *RefreshTokenSource) Token(ctx context.Context) (string, error) {
	return s.get(ctx, func() (url.Values, error) {
		return url.Values{
			"grant_type":    {"refresh_token"},
			"client_id":     {s.clientID},
			"client_secret": {s.clientSecret},
			"refresh_token": {s.refreshToken},
		}, nil
	})
}

// ServiceAccountSource signs JWT bearer assertions with a service account
// key. Subject names the mailbox the account impersonates through
// domain-wide delegation.
type ServiceAccountSource struct {
	*cachedToken
	email   string
	subject string
	keyID   string
	key     *rsa.PrivateKey
}

// NewServiceAccountSource creates a source from a parsed key.
func NewServiceAccountSource(email, subject, keyID string, key *rsa.PrivateKey, tokenURL string, client *http.Client) *ServiceAccountSource {
	return &ServiceAccountSource{
		cachedToken: newCachedToken(tokenURL, client),
		email:       email,
		subject:     subject,
		keyID:       keyID,
		key:         key,
	}
}

// Token returns a valid access token.
func (s *ServiceAccountSource) Token(ctx context.Context) (string, error) {
	return s.get(ctx, func() (url.Values, error) {
		assertion, err := s.assertion()
		if err != nil {
			return nil, err
		}
		return url.Values{
			"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
			"assertion":  {assertion},
		}, nil
	})
}

func (s *ServiceAccountSource) assertion() (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"iss":   s.email,
		"scope": ReadonlyScope,
		"aud":   s.tokenURL,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}
	if s.subject != "" && s.subject != "me" {
		claims["sub"] = s.subject
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if s.keyID != "" {
		token.Header["kid"] = s.keyID
	}
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign service account assertion: %w", err)
	}
	return signed, nil
}

func newCachedToken(tokenURL string, client *http.Client) *cachedToken {
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &cachedToken{tokenURL: tokenURL, client: client, now: time.Now}
}

// credentialsFile covers the two JSON layouts Google issues: service
// account keys and OAuth client secrets.
type credentialsFile struct {
	Type         string `json:"type"`
	ClientEmail  string `json:"client_email"`
	PrivateKey   string `json:"private_key"`
	PrivateKeyID string `json:"private_key_id"`
	TokenURI     string `json:"token_uri"`

	Installed *oauthClient `json:"installed"`
	Web       *oauthClient `json:"web"`
}

type oauthClient struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	TokenURI     string `json:"token_uri"`
}

// Credentials are the resolved authentication settings.
type Credentials struct {
	File         string
	ClientID     string
	ClientSecret string
	RefreshToken string
	User         string
	TokenURL     string
}

// NewTokenSource picks the grant that the credentials describe. A service
// account key file wins; otherwise a refresh token is required, with the
// client id and secret taken from the credentials or from an OAuth client
// file.
func NewTokenSource(creds Credentials, client *http.Client) (TokenSource, error) {
	clientID, clientSecret, tokenURL := creds.ClientID, creds.ClientSecret, creds.TokenURL

	if creds.File != "" {
		data, err := os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read gmail credentials file: %w", err)
		}
		var cf credentialsFile
		if err := json.Unmarshal(data, &cf); err != nil {
			return nil, fmt.Errorf("failed to parse gmail credentials file: %w", err)
		}

		if cf.Type == "service_account" {
			key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(cf.PrivateKey))
			if err != nil {
				return nil, fmt.Errorf("invalid service account private key: %w", err)
			}
			if tokenURL == "" {
				tokenURL = cf.TokenURI
			}
			return NewServiceAccountSource(cf.ClientEmail, creds.User, cf.PrivateKeyID, key, tokenURL, client), nil
		}

		oc := cf.Installed
		if oc == nil {
			oc = cf.Web
		}
		if oc != nil {
			if clientID == "" {
				clientID = oc.ClientID
			}
			if clientSecret == "" {
				clientSecret = oc.ClientSecret
			}
			if tokenURL == "" {
				tokenURL = oc.TokenURI
			}
		}
	}

	if clientID == "" || clientSecret == "" || creds.RefreshToken == "" {
		return nil, fmt.Errorf("gmail refresh token authentication requires client id, client secret and refresh token")
	}
	return NewRefreshTokenSource(clientID, clientSecret, creds.RefreshToken, tokenURL, client), nil
}

// Package ghl talks to the GoHighLevel OAuth and REST endpoints.
package ghl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"crm-backend/pkg/apperror"

	"golang.org/x/oauth2"
)

// Provider is the canonical provider key used for integration connections.
const Provider = "ghl"

// Options configures a Client.
type Options struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	APIBaseURL   string
	APIVersion   string
	RedirectURI  string
	Scopes       []string
	Timeout      time.Duration
}

// Client wraps the provider's OAuth endpoints and the subset of the REST API
// the CRM uses.
type Client struct {
	oauth      *oauth2.Config
	httpClient *http.Client
	apiBaseURL string
	apiVersion string
}

// TokenResponse is a validated token endpoint response.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64
	TokenType    string
	Scope        string
	LocationID   string
	CompanyID    string
	UserType     string
}

func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		oauth: &oauth2.Config{
			ClientID:     opts.ClientID,
			ClientSecret: opts.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:   opts.AuthURL,
				TokenURL:  opts.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
			RedirectURL: opts.RedirectURI,
			Scopes:      opts.Scopes,
		},
		httpClient: &http.Client{Timeout: timeout},
		apiBaseURL: strings.TrimRight(opts.APIBaseURL, "/"),
		apiVersion: opts.APIVersion,
	}
}

// Configured reports whether client credentials are present.
func (c *Client) Configured() bool {
	return c.oauth.ClientID != "" && c.oauth.ClientSecret != ""
}

// AuthCodeURL builds the provider's consent URL carrying state.
func (c *Client) AuthCodeURL(state string) string {
	return c.oauth.AuthCodeURL(state)
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenResponse, error) {
	ctx, cancel := context.WithTimeout(c.oauthContext(ctx), c.httpClient.Timeout)
	defer cancel()

	tok, err := c.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %w", apperror.ErrProviderRequestFailed, err)
	}
	return parseToken(tok)
}

// Refresh trades a refresh token for a new access/refresh pair.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: missing refresh token", apperror.ErrMalformedPayload)
	}
	ctx, cancel := context.WithTimeout(c.oauthContext(ctx), c.httpClient.Timeout)
	defer cancel()

	tok, err := c.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("%w: refresh: %w", apperror.ErrProviderRequestFailed, err)
	}
	return parseToken(tok)
}

func (c *Client) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// parseToken validates the raw response shape rather than trusting the
// library's fallbacks (oauth2 keeps the old refresh token when none is returned).
func parseToken(tok *oauth2.Token) (*TokenResponse, error) {
	resp := &TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: extraString(tok, "refresh_token"),
		TokenType:    extraString(tok, "token_type"),
		Scope:        extraString(tok, "scope"),
		LocationID:   extraString(tok, "locationId"),
		CompanyID:    extraString(tok, "companyId"),
		UserType:     extraString(tok, "userType"),
	}

	expiresIn, ok := extraInt(tok, "expires_in")
	switch {
	case resp.AccessToken == "":
		return nil, fmt.Errorf("%w: token response missing access_token", apperror.ErrMalformedPayload)
	case resp.RefreshToken == "":
		return nil, fmt.Errorf("%w: token response missing refresh_token", apperror.ErrMalformedPayload)
	case !ok:
		return nil, fmt.Errorf("%w: token response missing expires_in", apperror.ErrMalformedPayload)
	case resp.TokenType == "":
		return nil, fmt.Errorf("%w: token response missing token_type", apperror.ErrMalformedPayload)
	}
	resp.ExpiresIn = expiresIn
	return resp, nil
}

func extraString(tok *oauth2.Token, key string) string {
	if v, ok := tok.Extra(key).(string); ok {
		return v
	}
	return ""
}

func extraInt(tok *oauth2.Token, key string) (int64, bool) {
	switch v := tok.Extra(key).(type) {
	case float64:
		return int64(v), true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		return n, err == nil
	}
	return 0, false
}

// Contact is the provider's contact shape, shared by webhook payloads and the
// contacts API.
type Contact struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Name         string          `json:"name"`
	ContactName  string          `json:"contactName"`
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	CustomFields json.RawMessage `json:"customFields"`
	CreatedAt    string          `json:"createdAt"`
	DateAdded    string          `json:"dateAdded"`
	LocationID   string          `json:"locationId"`
}

// ListContacts fetches up to limit contacts for a location.
func (c *Client) ListContacts(ctx context.Context, accessToken, locationID string, limit int) ([]Contact, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	q := url.Values{}
	q.Set("locationId", locationID)
	q.Set("limit", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBaseURL+"/contacts/?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Version", c.apiVersion)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: list contacts: %w", apperror.ErrProviderRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: list contacts: status %d, body: %s", apperror.ErrProviderRequestFailed, resp.StatusCode, string(body))
	}

	var data struct {
		Contacts []Contact `json:"contacts"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: decode contacts: %w", apperror.ErrMalformedPayload, err)
	}
	return data.Contacts, nil
}

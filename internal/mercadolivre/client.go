package mercadolivre

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/imroc/req/v3"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/julienbonastre/fullstock/internal/logger"
)

const (
	DefaultAuthURL = "https://auth.mercadolivre.com.br/authorization"
	DefaultAPIURL  = "https://api.mercadolibre.com"

	callbackPath = "/api/oauth/callback"
)

// Config holds Mercado Livre app configuration.
type Config struct {
	ClientID        string
	ClientSecret    string
	RedirectURI     string // optional; derived from the request origin when empty
	AuthURL         string
	APIURL          string
	HTTPTimeout     time.Duration
	MultigetBatch   int
	SalesWindowDays int
}

// Client is the Mercado Livre API client. It covers the PKCE authorization
// flow, token refresh and the stock/order read endpoints.
type Client struct {
	config     Config
	httpClient *http.Client
	api        *req.Client
	now        func() time.Time
	log        *zap.Logger
}

// NewClient creates a new Mercado Livre API client.
func NewClient(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = DefaultAuthURL
	}
	if cfg.APIURL == "" {
		cfg.APIURL = DefaultAPIURL
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 30 * time.Second
	}
	if cfg.MultigetBatch <= 0 {
		cfg.MultigetBatch = 20
	}
	if cfg.SalesWindowDays <= 0 {
		cfg.SalesWindowDays = 30
	}

	api := req.C().
		SetBaseURL(cfg.APIURL).
		SetTimeout(cfg.HTTPTimeout).
		SetCommonHeader("Accept", "application/json")

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.HTTPTimeout},
		api:        api,
		now:        time.Now,
		log:        logger.L().With(zap.String("component", "mercadolivre.client")),
	}
}

// IsConfigured returns true if a client id is set. Without it the app runs in demo mode.
func (c *Client) IsConfigured() bool {
	return c.config.ClientID != ""
}

// RedirectURI returns the callback URI used for the given origin.
func (c *Client) RedirectURI(origin string) string {
	if c.config.RedirectURI != "" {
		return c.config.RedirectURI
	}
	return strings.TrimRight(origin, "/") + callbackPath
}

func (c *Client) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.config.AuthURL,
			TokenURL:  c.config.APIURL + "/oauth/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// tokenContext makes the oauth2 package use our timeout-bound HTTP client.
func (c *Client) tokenContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// BuildAuthorizationURL starts a PKCE authorization attempt. The returned
// verifier must be kept by the caller and handed back to ExchangeCode.
func (c *Client) BuildAuthorizationURL(origin string) (*AuthRequest, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	// 32 random bytes, base64url: 256 bits of entropy
	verifier := oauth2.GenerateVerifier()
	state := rand.Text()
	redirectURI := c.RedirectURI(origin)

	authURL := c.oauthConfig(redirectURI).AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))

	return &AuthRequest{
		URL:         authURL,
		Verifier:    verifier,
		State:       state,
		RedirectURI: redirectURI,
	}, nil
}

// ExchangeCode exchanges an authorization code and its PKCE verifier for
// tokens. It makes exactly one request.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*TokenSet, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	if verifier == "" {
		return nil, ErrVerifierNotFound
	}
	if redirectURI == "" {
		redirectURI = c.RedirectURI("")
	}

	tok, err := c.oauthConfig(redirectURI).Exchange(c.tokenContext(ctx), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, translateExchangeError(err, redirectURI)
	}
	return toTokenSet(tok), nil
}

// Refresh exchanges a refresh token for a new token pair. ok is false when
// the provider rejects the refresh token or the app is not configured; an
// error is returned only for transport failures.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, bool, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		c.log.Warn("refresh skipped: app credentials not configured")
		return nil, false, nil
	}
	if refreshToken == "" {
		return nil, false, nil
	}

	src := c.oauthConfig("").TokenSource(c.tokenContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && refreshRejected(re) {
			c.log.Info("refresh token rejected", zap.String("error_code", re.ErrorCode))
			return nil, false, nil
		}
		return nil, false, &TransportError{Op: "token refresh", Err: err}
	}
	return toTokenSet(tok), true, nil
}

// refreshRejected reports whether the token endpoint refused the refresh
// token itself. Server errors and rate limiting are transient.
func refreshRejected(re *oauth2.RetrieveError) bool {
	if re.Response == nil {
		return true
	}
	status := re.Response.StatusCode
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func toTokenSet(tok *oauth2.Token) *TokenSet {
	return &TokenSet{
		AccessToken:       tok.AccessToken,
		RefreshToken:      tok.RefreshToken,
		MarketplaceUserID: extraString(tok, "user_id"),
		Expiry:            tok.Expiry,
	}
}

// extraString reads a token response field that may be a JSON number or string.
func extraString(tok *oauth2.Token, key string) string {
	switch v := tok.Extra(key).(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

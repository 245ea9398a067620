package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/cache"
	"github.com/julienbonastre/fullstock/internal/logger"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

// ErrStateMismatch means the callback state does not belong to the pending
// authorization of the session
var ErrStateMismatch = errors.New("authorization state does not match, please start the connection again")

// DemoSellerID is the marketplace user id stored for demo connections
const DemoSellerID = "demo-seller"

// Authorizer runs the PKCE authorization code flow
type Authorizer interface {
	BuildAuthorizationURL(origin string) (*mercadolivre.AuthRequest, error)
	ExchangeCode(ctx context.Context, code, verifier, redirectURI string) (*mercadolivre.TokenSet, error)
}

// pendingAuth is the server-side half of an authorization attempt
type pendingAuth struct {
	Verifier    string `json:"verifier"`
	State       string `json:"state"`
	RedirectURI string `json:"redirect_uri"`
}

// Connector links application users to their Mercado Livre account. Each
// browser session holds at most one pending verifier; starting again
// replaces it.
type Connector struct {
	auth    Authorizer
	pending cache.Cache
	creds   CredentialStore
	ttl     time.Duration
	log     *zap.Logger
}

// NewConnector creates a connector. ttl bounds how long a started
// authorization can be completed.
func NewConnector(auth Authorizer, pending cache.Cache, creds CredentialStore, ttl time.Duration) *Connector {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Connector{
		auth:    auth,
		pending: pending,
		creds:   creds,
		ttl:     ttl,
		log:     logger.L().With(zap.String("component", "syncer.connect")),
	}
}

func pendingKey(sessionID string) string {
	return "pkce:" + sessionID
}

// Begin starts an authorization for the browser session and returns the URL
// to send the user to
func (c *Connector) Begin(ctx context.Context, sessionID, origin string) (string, error) {
	req, err := c.auth.BuildAuthorizationURL(origin)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(pendingAuth{Verifier: req.Verifier, State: req.State, RedirectURI: req.RedirectURI})
	if err != nil {
		return "", err
	}
	if err := c.pending.Set(ctx, pendingKey(sessionID), data, c.ttl); err != nil {
		return "", fmt.Errorf("store pending authorization: %w", err)
	}
	return req.URL, nil
}

// Complete exchanges the callback code using the session's pending verifier
// and stores the tokens for userID. The verifier is consumed on success.
func (c *Connector) Complete(ctx context.Context, sessionID, userID, code, state string) (*mercadolivre.TokenSet, error) {
	key := pendingKey(sessionID)
	data, err := c.pending.Get(ctx, key)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, mercadolivre.ErrVerifierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load pending authorization: %w", err)
	}

	var p pendingAuth
	if err := json.Unmarshal(data, &p); err != nil || p.Verifier == "" {
		return nil, mercadolivre.ErrVerifierNotFound
	}
	if state == "" || state != p.State {
		return nil, ErrStateMismatch
	}

	tok, err := c.auth.ExchangeCode(ctx, code, p.Verifier, p.RedirectURI)
	if err != nil {
		return nil, err
	}

	if err := c.pending.Delete(ctx, key); err != nil {
		c.log.Warn("failed to delete consumed verifier", zap.Error(err))
	}
	if err := c.creds.SetTokens(ctx, userID, tok.MarketplaceUserID, tok.AccessToken, tok.RefreshToken); err != nil {
		return nil, fmt.Errorf("store tokens: %w", err)
	}

	c.log.Info("mercado livre account connected", zap.String("user_id", userID), zap.String("ml_user_id", tok.MarketplaceUserID))
	return tok, nil
}

// ConnectDemo marks userID as connected with the demo token
func (c *Connector) ConnectDemo(ctx context.Context, userID string) error {
	return c.creds.SetTokens(ctx, userID, DemoSellerID, mercadolivre.MockToken, "")
}

// Disconnect clears the user's stored connection
func (c *Connector) Disconnect(ctx context.Context, userID string) error {
	return c.creds.ClearConnection(ctx, userID)
}

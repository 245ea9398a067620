package syncer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/logger"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

var (
	// ErrDisconnected means the user has no usable marketplace connection.
	// It is raised before any network call.
	ErrDisconnected = errors.New("mercado livre account is not connected")

	// ErrSessionExpired means the marketplace rejected the session and it
	// could not be refreshed. Stored credentials have been cleared and the
	// user must connect again.
	ErrSessionExpired = errors.New("your Mercado Livre session has expired, please connect your account again")
)

// Marketplace reads seller data from Mercado Livre
type Marketplace interface {
	FetchFulfillmentStock(ctx context.Context, accessToken, userID string) ([]mercadolivre.StockItem, error)
	FetchActiveListings(ctx context.Context, accessToken, userID string) ([]mercadolivre.StockItem, error)
	FetchSalesHistory(ctx context.Context, accessToken, sellerID string) (mercadolivre.SalesHistory, error)
}

// TokenRefresher exchanges a refresh token for a new token pair. ok is false
// when the refresh was rejected.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*mercadolivre.TokenSet, bool, error)
}

// CredentialStore holds per-user marketplace connections
type CredentialStore interface {
	GetCredential(ctx context.Context, userID string) (database.Credential, error)
	SetTokens(ctx context.Context, userID, marketplaceUserID, accessToken, refreshToken string) error
	ClearConnection(ctx context.Context, userID string) error
	ConnectedUsers(ctx context.Context) ([]string, error)
}

// InventoryStore persists products and sync results
type InventoryStore interface {
	ListProducts(ctx context.Context, userID string, today time.Time, windowDays int) ([]inventory.Product, error)
	CreateProducts(ctx context.Context, products []inventory.Product) error
	SaveSyncResult(ctx context.Context, userID string, changes []inventory.StockChange, sales map[string]map[string]int, syncedAt time.Time) (int, error)
	RecordSyncRun(ctx context.Context, run *database.SyncRun) error
}

// Options tunes a Service
type Options struct {
	SalesWindowDays int
	UserTimeout     time.Duration // per-user bound for SyncAll
	DemoMode        bool          // simulate syncs for users holding the mock token
}

// Service runs the sync and import flows against Mercado Livre
type Service struct {
	market    Marketplace
	refresher TokenRefresher
	creds     CredentialStore
	store     InventoryStore
	opts      Options

	refreshes singleflight.Group
	now       func() time.Time
	randFloat func() float64
	randIntN  func(int) int
	log       *zap.Logger
}

// NewService creates a new sync service
func NewService(market Marketplace, refresher TokenRefresher, creds CredentialStore, store InventoryStore, opts Options) *Service {
	if opts.SalesWindowDays <= 0 {
		opts.SalesWindowDays = 30
	}
	if opts.UserTimeout <= 0 {
		opts.UserTimeout = 2 * time.Minute
	}
	return &Service{
		market:    market,
		refresher: refresher,
		creds:     creds,
		store:     store,
		opts:      opts,
		now:       time.Now,
		randFloat: rand.Float64,
		randIntN:  rand.IntN,
		log:       logger.L().With(zap.String("component", "syncer")),
	}
}

// precondition rejects credentials that cannot reach the provider
func precondition(cred database.Credential) error {
	if cred.AccessToken == "" || cred.MarketplaceUserID == "" || cred.AccessToken == mercadolivre.MockToken {
		return ErrDisconnected
	}
	return nil
}

// withAuth runs call with the user's access token. When the provider
// rejects the token, the refresh token is exchanged once and call runs once
// more. Any terminal auth failure clears the stored credential.
//
// The stored credential is read again before refreshing and before clearing
// it. Refresh tokens are single use, so a pair stored by another sync in the
// meantime is retried instead of refreshed again.
func (s *Service) withAuth(ctx context.Context, cred database.Credential, call func(accessToken string) error) error {
	err := call(cred.AccessToken)
	if !errors.Is(err, mercadolivre.ErrUnauthorized) {
		return err
	}

	log := s.log.With(zap.String("user_id", cred.UserID))
	latest, err := s.creds.GetCredential(ctx, cred.UserID)
	if err != nil {
		return fmt.Errorf("reload credential: %w", err)
	}
	if replacedBy(cred, latest) {
		log.Info("access token replaced by another sync, retrying")
		return s.retry(ctx, log, latest.UserID, latest.AccessToken, call)
	}
	if latest.RefreshToken == "" {
		log.Info("access token rejected and no refresh token stored")
		return s.expire(ctx, cred.UserID)
	}

	tok, err := s.refresh(ctx, latest)
	if err != nil {
		return err
	}
	if tok == nil {
		current, err := s.creds.GetCredential(ctx, cred.UserID)
		if err == nil && replacedBy(latest, current) {
			log.Info("refresh lost to another sync, retrying with its token")
			return s.retry(ctx, log, current.UserID, current.AccessToken, call)
		}
		log.Info("refresh token rejected")
		return s.expire(ctx, cred.UserID)
	}

	log.Info("access token refreshed, retrying")
	return s.retry(ctx, log, cred.UserID, tok.AccessToken, call)
}

// replacedBy reports whether current holds a different usable access token
// than prev
func replacedBy(prev, current database.Credential) bool {
	return current.AccessToken != "" && current.AccessToken != prev.AccessToken
}

// retry runs call a second and last time
func (s *Service) retry(ctx context.Context, log *zap.Logger, userID, accessToken string, call func(accessToken string) error) error {
	err := call(accessToken)
	if errors.Is(err, mercadolivre.ErrUnauthorized) {
		log.Warn("refreshed access token rejected")
		return s.expire(ctx, userID)
	}
	return err
}

// refresh exchanges the refresh token and stores the new pair. Concurrent
// calls for one user share a single exchange. A nil token with a nil error
// means the provider rejected the refresh.
func (s *Service) refresh(ctx context.Context, cred database.Credential) (*mercadolivre.TokenSet, error) {
	v, err, _ := s.refreshes.Do(cred.UserID, func() (any, error) {
		tok, ok, err := s.refresher.Refresh(ctx, cred.RefreshToken)
		if err != nil {
			return nil, fmt.Errorf("refresh access token: %w", err)
		}
		if !ok {
			return (*mercadolivre.TokenSet)(nil), nil
		}

		mlUserID := tok.MarketplaceUserID
		if mlUserID == "" {
			mlUserID = cred.MarketplaceUserID
		}
		if err := s.creds.SetTokens(ctx, cred.UserID, mlUserID, tok.AccessToken, tok.RefreshToken); err != nil {
			return nil, fmt.Errorf("store refreshed tokens: %w", err)
		}
		return tok, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mercadolivre.TokenSet), nil
}

// expire clears the stored credential and returns ErrSessionExpired
func (s *Service) expire(ctx context.Context, userID string) error {
	if err := s.creds.ClearConnection(ctx, userID); err != nil {
		s.log.Error("failed to clear expired connection", zap.String("user_id", userID), zap.Error(err))
	}
	return ErrSessionExpired
}

// recordRun stores the outcome of a sync or import run
func (s *Service) recordRun(ctx context.Context, userID, syncType string, started time.Time, items int, warnings []string, runErr error) {
	done := s.now()
	run := &database.SyncRun{
		UserID:      userID,
		SyncType:    syncType,
		Status:      "success",
		ItemsSynced: items,
		StartedAt:   started,
		CompletedAt: &done,
	}
	switch {
	case runErr != nil:
		run.Status = "failed"
		run.ErrorMessage = runErr.Error()
	case len(warnings) > 0:
		run.Status = "partial"
		run.ErrorMessage = warnings[0]
	}
	if err := s.store.RecordSyncRun(context.WithoutCancel(ctx), run); err != nil {
		s.log.Warn("failed to record sync run", zap.String("user_id", userID), zap.Error(err))
	}
}

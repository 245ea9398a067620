package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

// Result is a complete sync outcome. Products is a full replacement of the
// input list.
type Result struct {
	Products  []inventory.Product       `json:"products"`
	Sales     mercadolivre.SalesHistory `json:"-"`
	Warnings  []string                  `json:"warnings,omitempty"`
	Simulated bool                      `json:"simulated,omitempty"`
}

// Sync fetches the seller's Full stock and recent sales and merges the stock
// into local. It returns either a complete Result or an error, in which case
// local should be kept as is.
func (s *Service) Sync(ctx context.Context, cred database.Credential, local []inventory.Product) (*Result, error) {
	if err := precondition(cred); err != nil {
		return nil, err
	}

	var (
		stock    []mercadolivre.StockItem
		sales    mercadolivre.SalesHistory
		warnings []string
	)
	err := s.withAuth(ctx, cred, func(accessToken string) error {
		stock, sales, warnings = nil, nil, nil
		var mu sync.Mutex
		degrade := func(what string, err error) error {
			if errors.Is(err, mercadolivre.ErrUnauthorized) || ctx.Err() != nil {
				return err
			}
			s.log.Warn("marketplace read failed, continuing without it",
				zap.String("user_id", cred.UserID), zap.String("read", what), zap.Error(err))
			mu.Lock()
			warnings = append(warnings, fmt.Sprintf("could not fetch %s: %v", what, err))
			mu.Unlock()
			return nil
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			items, err := s.market.FetchFulfillmentStock(gctx, accessToken, cred.MarketplaceUserID)
			if err != nil {
				return degrade("fulfillment stock", err)
			}
			stock = items
			return nil
		})
		g.Go(func() error {
			history, err := s.market.FetchSalesHistory(gctx, accessToken, cred.MarketplaceUserID)
			if err != nil {
				return degrade("sales history", err)
			}
			sales = history
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	if sales == nil {
		sales = make(mercadolivre.SalesHistory)
	}
	s.log.Info("sync fetched marketplace data",
		zap.String("user_id", cred.UserID),
		zap.Int("stock_items", len(stock)),
		zap.Int("skus_with_sales", len(sales)),
		zap.Int("warnings", len(warnings)))

	return &Result{
		Products: inventory.MergeStock(local, stock),
		Sales:    sales,
		Warnings: warnings,
	}, nil
}

// SyncUser loads the user's products, syncs them and persists the result.
// Demo connections are simulated when demo mode is on.
func (s *Service) SyncUser(ctx context.Context, userID string) (*Result, error) {
	started := s.now()
	result, err := s.syncUser(ctx, userID)

	items := 0
	var warnings []string
	if result != nil {
		items = len(result.Products)
		warnings = result.Warnings
	}
	if !errors.Is(err, ErrDisconnected) {
		s.recordRun(ctx, userID, "sync", started, items, warnings, err)
	}
	return result, err
}

func (s *Service) syncUser(ctx context.Context, userID string) (*Result, error) {
	cred, err := s.creds.GetCredential(ctx, userID)
	if err != nil {
		return nil, err
	}

	today := s.now()
	local, err := s.store.ListProducts(ctx, userID, today, s.opts.SalesWindowDays)
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	var result *Result
	if s.opts.DemoMode && cred.AccessToken == mercadolivre.MockToken {
		result = s.Simulate(local, today)
	} else {
		result, err = s.Sync(ctx, cred, local)
		if err != nil {
			return nil, err
		}
	}

	changes := inventory.StockChanges(local, result.Products)
	applied, err := s.store.SaveSyncResult(ctx, userID, changes, result.Sales, today)
	if err != nil {
		return nil, fmt.Errorf("save sync result: %w", err)
	}
	if applied < len(changes) {
		s.log.Info("stock changed during sync, kept local values",
			zap.String("user_id", userID), zap.Int("skipped", len(changes)-applied))
	}
	return result, nil
}

// SyncAll syncs every connected user in turn. Failures are logged per user
// and do not stop the run.
func (s *Service) SyncAll(ctx context.Context) error {
	users, err := s.creds.ConnectedUsers(ctx)
	if err != nil {
		return fmt.Errorf("list connected users: %w", err)
	}

	synced := 0
	for _, userID := range users {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		uctx, cancel := context.WithTimeout(ctx, s.opts.UserTimeout)
		_, err := s.SyncUser(uctx, userID)
		cancel()

		switch {
		case err == nil:
			synced++
		case errors.Is(err, ErrDisconnected):
			s.log.Debug("skipping user without usable connection", zap.String("user_id", userID))
		default:
			s.log.Warn("background sync failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	s.log.Info("background sync complete", zap.Int("users", len(users)), zap.Int("synced", synced))
	return nil
}

package syncer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

// Import creates a local product for every active listing not yet known by
// SKU or item id and returns how many were created
func (s *Service) Import(ctx context.Context, cred database.Credential, local []inventory.Product) (int, error) {
	if err := precondition(cred); err != nil {
		return 0, err
	}

	var listings []mercadolivre.StockItem
	err := s.withAuth(ctx, cred, func(accessToken string) error {
		var err error
		listings, err = s.market.FetchActiveListings(ctx, accessToken, cred.MarketplaceUserID)
		return err
	})
	if err != nil {
		return 0, err
	}

	fresh := inventory.FilterNewListings(local, listings)
	if len(fresh) == 0 {
		s.log.Info("import found no new listings", zap.String("user_id", cred.UserID), zap.Int("listings", len(listings)))
		return 0, nil
	}

	products := make([]inventory.Product, 0, len(fresh))
	for _, item := range fresh {
		products = append(products, inventory.FromListing(cred.UserID, item))
	}
	if err := s.store.CreateProducts(ctx, products); err != nil {
		return 0, fmt.Errorf("create imported products: %w", err)
	}

	s.log.Info("imported listings", zap.String("user_id", cred.UserID), zap.Int("created", len(products)))
	return len(products), nil
}

// ImportUser loads the user's credential and products and runs Import
func (s *Service) ImportUser(ctx context.Context, userID string) (int, error) {
	started := s.now()
	n, err := s.importUser(ctx, userID)
	if !errors.Is(err, ErrDisconnected) {
		s.recordRun(ctx, userID, "import", started, n, nil, err)
	}
	return n, err
}

func (s *Service) importUser(ctx context.Context, userID string) (int, error) {
	cred, err := s.creds.GetCredential(ctx, userID)
	if err != nil {
		return 0, err
	}
	local, err := s.store.ListProducts(ctx, userID, s.now(), s.opts.SalesWindowDays)
	if err != nil {
		return 0, fmt.Errorf("load products: %w", err)
	}
	return s.Import(ctx, cred, local)
}

package inventory

import "github.com/julienbonastre/fullstock/internal/mercadolivre"

// MergeStock returns a copy of local with stock_full replaced from the remote
// snapshot. A product linked to a listing is matched by item id, otherwise by
// SKU. Unmatched products are returned unchanged and nothing is dropped.
func MergeStock(local []Product, remote []mercadolivre.StockItem) []Product {
	byItemID := make(map[string]int, len(remote))
	bySKU := make(map[string]int, len(remote))
	for _, item := range remote {
		// first occurrence wins, matching a linear find
		if _, ok := byItemID[item.MarketplaceItemID]; !ok && item.MarketplaceItemID != "" {
			byItemID[item.MarketplaceItemID] = item.StockFull
		}
		if _, ok := bySKU[item.SKU]; !ok && item.SKU != "" {
			bySKU[item.SKU] = item.StockFull
		}
	}

	merged := make([]Product, len(local))
	for i, p := range local {
		var (
			stock int
			found bool
		)
		if p.MarketplaceItemID != "" {
			stock, found = byItemID[p.MarketplaceItemID]
		} else {
			stock, found = bySKU[p.SKU]
		}
		if found {
			p.StockFull = stock
		}
		merged[i] = p
	}
	return merged
}

// FilterNewListings returns the listings not yet represented locally. A listing
// is known when its SKU or its item id matches any local product. Repeated
// listings in the input are returned once.
func FilterNewListings(local []Product, listings []mercadolivre.StockItem) []mercadolivre.StockItem {
	skus := make(map[string]struct{}, len(local))
	itemIDs := make(map[string]struct{}, len(local))
	for _, p := range local {
		skus[p.SKU] = struct{}{}
		if p.MarketplaceItemID != "" {
			itemIDs[p.MarketplaceItemID] = struct{}{}
		}
	}

	var fresh []mercadolivre.StockItem
	for _, item := range listings {
		if _, ok := skus[item.SKU]; ok {
			continue
		}
		if _, ok := itemIDs[item.MarketplaceItemID]; ok {
			continue
		}
		fresh = append(fresh, item)
		skus[item.SKU] = struct{}{}
		if item.MarketplaceItemID != "" {
			itemIDs[item.MarketplaceItemID] = struct{}{}
		}
	}
	return fresh
}

// StockChange is a stock_full update for one product. From is the value the
// update was computed against.
type StockChange struct {
	ProductID string
	From      int
	To        int
}

// StockChanges lists the products whose stock_full differs between snapshot
// and merged, which must be in the same order as returned by MergeStock.
func StockChanges(snapshot, merged []Product) []StockChange {
	var changes []StockChange
	for i, p := range merged {
		if i >= len(snapshot) || snapshot[i].ID != p.ID {
			continue
		}
		if from := snapshot[i].StockFull; from != p.StockFull {
			changes = append(changes, StockChange{ProductID: p.ID, From: from, To: p.StockFull})
		}
	}
	return changes
}

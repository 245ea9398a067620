package syncer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/julienbonastre/fullstock/internal/database"
	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

type stubMarket struct {
	stockCalls    atomic.Int32
	salesCalls    atomic.Int32
	listingsCalls atomic.Int32

	mu     sync.Mutex
	tokens []string

	stock    func(token string) ([]mercadolivre.StockItem, error)
	sales    func(token string) (mercadolivre.SalesHistory, error)
	listings func(token string) ([]mercadolivre.StockItem, error)
}

func (m *stubMarket) seen(token string) {
	m.mu.Lock()
	m.tokens = append(m.tokens, token)
	m.mu.Unlock()
}

func (m *stubMarket) FetchFulfillmentStock(_ context.Context, token, _ string) ([]mercadolivre.StockItem, error) {
	m.stockCalls.Add(1)
	m.seen(token)
	if m.stock == nil {
		return nil, nil
	}
	return m.stock(token)
}

func (m *stubMarket) FetchSalesHistory(_ context.Context, token, _ string) (mercadolivre.SalesHistory, error) {
	m.salesCalls.Add(1)
	if m.sales == nil {
		return mercadolivre.SalesHistory{}, nil
	}
	return m.sales(token)
}

func (m *stubMarket) FetchActiveListings(_ context.Context, token, _ string) ([]mercadolivre.StockItem, error) {
	m.listingsCalls.Add(1)
	m.seen(token)
	if m.listings == nil {
		return nil, nil
	}
	return m.listings(token)
}

func (m *stubMarket) calls() int32 {
	return m.stockCalls.Load() + m.salesCalls.Load() + m.listingsCalls.Load()
}

type stubRefresher struct {
	calls  atomic.Int32
	result *mercadolivre.TokenSet
	ok     bool
	err    error
	wait   chan struct{}
	during func()
}

func (r *stubRefresher) Refresh(context.Context, string) (*mercadolivre.TokenSet, bool, error) {
	r.calls.Add(1)
	if r.wait != nil {
		<-r.wait
	}
	if r.during != nil {
		r.during()
	}
	return r.result, r.ok, r.err
}

// memStore is an in-memory CredentialStore and InventoryStore
type memStore struct {
	mu       sync.Mutex
	creds    map[string]database.Credential
	products map[string][]inventory.Product
	created  []inventory.Product
	saved    map[string][]inventory.Product
	sales    map[string]map[string]map[string]int
	runs     []database.SyncRun
	setCalls int
}

func newMemStore() *memStore {
	return &memStore{
		creds:    make(map[string]database.Credential),
		products: make(map[string][]inventory.Product),
		saved:    make(map[string][]inventory.Product),
		sales:    make(map[string]map[string]map[string]int),
	}
}

func (s *memStore) GetCredential(_ context.Context, userID string) (database.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.creds[userID]
	if !ok {
		return database.Credential{UserID: userID}, nil
	}
	return c, nil
}

func (s *memStore) SetTokens(_ context.Context, userID, mlUserID, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	s.creds[userID] = database.Credential{UserID: userID, MarketplaceUserID: mlUserID, AccessToken: access, RefreshToken: refresh}
	return nil
}

func (s *memStore) ClearConnection(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds[userID] = database.Credential{UserID: userID}
	return nil
}

func (s *memStore) ConnectedUsers(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, c := range s.creds {
		if c.AccessToken != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *memStore) ListProducts(_ context.Context, userID string, _ time.Time, _ int) ([]inventory.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]inventory.Product(nil), s.products[userID]...), nil
}

func (s *memStore) CreateProducts(_ context.Context, products []inventory.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, products...)
	for _, p := range products {
		s.products[p.UserID] = append(s.products[p.UserID], p)
	}
	return nil
}

func (s *memStore) SaveSyncResult(_ context.Context, userID string, changes []inventory.StockChange, sales map[string]map[string]int, _ time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	products := append([]inventory.Product(nil), s.products[userID]...)
	applied := 0
	for _, c := range changes {
		for i := range products {
			if products[i].ID == c.ProductID && products[i].StockFull == c.From {
				products[i].StockFull = c.To
				applied++
			}
		}
	}
	s.saved[userID] = products
	s.products[userID] = products
	s.sales[userID] = sales
	return applied, nil
}

func (s *memStore) RecordSyncRun(_ context.Context, run *database.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

func (s *memStore) credential(userID string) database.Credential {
	c, _ := s.GetCredential(context.Background(), userID)
	return c
}

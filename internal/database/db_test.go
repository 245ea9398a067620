package database

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/julienbonastre/fullstock/internal/inventory"
	"github.com/julienbonastre/fullstock/internal/mercadolivre"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func openTestDB(t *testing.T, key []byte) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "data", "test.db"), key)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_RejectsShortKey(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "test.db"), []byte("short"))
	assert.Error(t, err)
}

func TestCredentials(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, testKey)

	cred, err := db.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, cred.Connected())

	require.NoError(t, db.SetTokens(ctx, "u1", "99", "APP_USR-access", "TG-refresh"))
	cred, err = db.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Credential{UserID: "u1", MarketplaceUserID: "99", AccessToken: "APP_USR-access", RefreshToken: "TG-refresh"}, cred)

	var raw string
	require.NoError(t, db.QueryRow("SELECT ml_access_token FROM users WHERE id = 'u1'").Scan(&raw))
	assert.True(t, strings.HasPrefix(raw, encryptedPrefix), "tokens are encrypted at rest")
	assert.NotContains(t, raw, "APP_USR-access")

	// a refresh response without user_id keeps the stored identity
	require.NoError(t, db.SetTokens(ctx, "u1", "", "APP_USR-new", "TG-new"))
	cred, err = db.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "99", cred.MarketplaceUserID)
	assert.Equal(t, "APP_USR-new", cred.AccessToken)

	users, err := db.ConnectedUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, users)

	require.NoError(t, db.ClearConnection(ctx, "u1"))
	cred, err = db.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, Credential{UserID: "u1"}, cred)

	users, err = db.ConnectedUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, users)
}

func TestCredentials_Plaintext(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)

	require.NoError(t, db.SetTokens(ctx, "u1", "99", "mock_token", ""))
	cred, err := db.GetCredential(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "mock_token", cred.AccessToken)
	assert.Empty(t, cred.RefreshToken)
}

func TestSealer_RoundTrip(t *testing.T) {
	s, err := newSealer(testKey)
	require.NoError(t, err)

	sealed, err := s.Seal("secret")
	require.NoError(t, err)
	again, err := s.Seal("secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again, "fresh nonce per seal")

	opened, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret", opened)

	other, err := newSealer([]byte("ffffffffffffffffffffffffffffffff"))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.Error(t, err)

	var none *sealer
	_, err = none.Open(sealed)
	assert.Error(t, err)
}

func TestSettings(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)

	s, err := db.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, &UserSettings{AlertThresholdDays: DefaultAlertThresholdDays}, s)

	require.NoError(t, db.UpdateSettings(ctx, "u1", 8))
	require.NoError(t, db.SetTokens(ctx, "u1", "99", "tok", "ref"))

	s, err = db.GetSettings(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, s.IsConnected)
	assert.Equal(t, "99", s.MarketplaceUserID)
	assert.Equal(t, 8, s.AlertThresholdDays)
	assert.Nil(t, s.LastSync)
}

func newProduct(userID, sku string, full int) inventory.Product {
	p := inventory.NewProduct{
		SKU:          sku,
		Title:        "Product " + sku,
		CostPerUnit:  decimal.RequireFromString("12.34"),
		StockFactory: 10,
	}.Build(userID)
	p.StockFull = full
	return p
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)
	today := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	a := newProduct("u1", "A", 5)
	b := newProduct("u1", "B", 0)
	require.NoError(t, db.CreateProducts(ctx, []inventory.Product{a, b}))
	require.NoError(t, db.CreateProduct(ctx, newProduct("u2", "A", 1)))

	err := db.CreateProduct(ctx, newProduct("u1", "A", 1))
	assert.ErrorIs(t, err, ErrDuplicateSKU)

	require.NoError(t, db.UpsertDailySales(ctx, "u1", map[string]map[string]int{
		"A": {"2026-03-31": 3, "2026-03-30": 3, "2026-01-01": 100},
	}))

	products, err := db.ListProducts(ctx, "u1", today, 30)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "A", products[0].SKU)
	assert.True(t, decimal.RequireFromString("12.34").Equal(products[0].CostPerUnit))
	assert.Len(t, products[0].SalesHistory, 30)
	assert.InDelta(t, 0.2, products[0].AvgDailySales, 1e-9)
	assert.Zero(t, products[1].AvgDailySales)

	factory := 42
	require.NoError(t, db.UpdateProductStock(ctx, "u1", a.ID, StockUpdate{Factory: &factory}))
	got, err := db.GetProduct(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 42, got.StockFactory)
	assert.Equal(t, 5, got.StockFull)

	assert.ErrorIs(t, db.UpdateProductStock(ctx, "u2", a.ID, StockUpdate{Factory: &factory}), ErrNotFound)
	_, err = db.GetProduct(ctx, "u1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	negative := -1
	assert.Error(t, db.UpdateProductStock(ctx, "u1", a.ID, StockUpdate{Factory: &negative}))
}

func TestCreateProducts_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)

	err := db.CreateProducts(ctx, []inventory.Product{newProduct("u1", "A", 0), newProduct("u1", "A", 0)})
	require.ErrorIs(t, err, ErrDuplicateSKU)

	products, err := db.ListProducts(ctx, "u1", time.Now(), 30)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestSaveSyncResult(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	a := newProduct("u1", "A", 5)
	require.NoError(t, db.CreateProduct(ctx, a))

	snapshot, err := db.ListProducts(ctx, "u1", now, 30)
	require.NoError(t, err)
	merged := inventory.MergeStock(snapshot, []mercadolivre.StockItem{{SKU: "A", StockFull: 9}})

	applied, err := db.SaveSyncResult(ctx, "u1", inventory.StockChanges(snapshot, merged), map[string]map[string]int{
		"A": {"2026-03-31": 4},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	products, err := db.ListProducts(ctx, "u1", now, 30)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 9, products[0].StockFull)
	assert.Equal(t, 10, products[0].StockFactory)
	assert.Equal(t, 4, products[0].SalesHistory[29].Quantity)

	s, err := db.GetSettings(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, s.LastSync)
	assert.True(t, now.Equal(*s.LastSync))
}

func TestSaveSyncResult_KeepsConcurrentStockUpdate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	a := newProduct("u1", "A", 10)
	b := newProduct("u1", "B", 10)
	require.NoError(t, db.CreateProducts(ctx, []inventory.Product{a, b}))

	snapshot, err := db.ListProducts(ctx, "u1", now, 30)
	require.NoError(t, err)

	// both products change while the marketplace is being read
	full := 15
	require.NoError(t, db.UpdateProductStock(ctx, "u1", a.ID, StockUpdate{Full: &full}))
	require.NoError(t, db.UpdateProductStock(ctx, "u1", b.ID, StockUpdate{Full: &full}))

	// only B has a remote match
	merged := inventory.MergeStock(snapshot, []mercadolivre.StockItem{{SKU: "B", StockFull: 3}})
	applied, err := db.SaveSyncResult(ctx, "u1", inventory.StockChanges(snapshot, merged), nil, now)
	require.NoError(t, err)
	assert.Zero(t, applied)

	got, err := db.GetProduct(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.StockFull)
	got, err = db.GetProduct(ctx, "u1", b.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.StockFull)
}

func TestShipments(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)
	day := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

	a := newProduct("u1", "A", 2)
	require.NoError(t, db.CreateProduct(ctx, a))

	plan, err := inventory.PlanShipment("u1", []inventory.Product{a}, []inventory.BatchItem{{ProductID: a.ID, Quantity: 4}}, day)
	require.NoError(t, err)
	require.NoError(t, db.ApplyShipment(ctx, plan))

	batches, err := db.ListBatches(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, inventory.BatchInTransit, batches[0].Status)
	assert.Equal(t, plan.Batch.Items, batches[0].Items)

	got, err := db.GetProduct(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, got.StockFactory)
	assert.Equal(t, 4, got.StockScheduled)

	batch, err := db.GetBatch(ctx, "u1", plan.Batch.ID)
	require.NoError(t, err)
	received, updated, err := inventory.ReceiveShipment(*batch, []inventory.Product{*got}, day)
	require.NoError(t, err)
	require.NoError(t, db.UpdateShipment(ctx, received, updated))

	got, err = db.GetProduct(ctx, "u1", a.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StockScheduled)
	assert.Equal(t, 6, got.StockFull)

	batch, err = db.GetBatch(ctx, "u1", plan.Batch.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.BatchReceived, batch.Status)
	assert.Equal(t, "2026-03-31", batch.ReceivedDate)

	foreign := *batch
	foreign.UserID = "u2"
	assert.ErrorIs(t, db.UpdateShipment(ctx, foreign, nil), ErrNotFound)
	_, err = db.GetBatch(ctx, "u2", batch.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSyncHistory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)
	start := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	done := start.Add(time.Second)

	require.NoError(t, db.RecordSyncRun(ctx, &SyncRun{UserID: "u1", SyncType: "sync", Status: "success", ItemsSynced: 3, StartedAt: start, CompletedAt: &done}))
	run := &SyncRun{UserID: "u1", SyncType: "import", Status: "failed", ErrorMessage: "boom", StartedAt: start.Add(time.Minute)}
	require.NoError(t, db.RecordSyncRun(ctx, run))
	assert.NotZero(t, run.ID)

	history, err := db.GetSyncHistory(ctx, "u1", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "import", history[0].SyncType)
	assert.Nil(t, history[0].CompletedAt)
	assert.Equal(t, 3, history[1].ItemsSynced)
}

func TestSeedDemoProducts(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t, nil)
	today := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	rng := rand.New(rand.NewPCG(1, 2))

	n, err := db.SeedDemoProducts(ctx, "demo", today, rng)
	require.NoError(t, err)
	assert.Equal(t, len(demoCatalog), n)

	n, err = db.SeedDemoProducts(ctx, "demo", today, rng)
	require.NoError(t, err)
	assert.Zero(t, n)

	products, err := db.ListProducts(ctx, "demo", today, 30)
	require.NoError(t, err)
	assert.Len(t, products, len(demoCatalog))
}

func TestSessionStore(t *testing.T) {
	db := openTestDB(t, nil)
	store := NewSessionStore(db, 10*time.Minute, false, []byte("0123456789abcdef0123456789abcdef"))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	sess, err := store.New(r, "fullstock")
	require.NoError(t, err)
	assert.True(t, sess.IsNew)

	sess.Values["k"] = "v"
	w := httptest.NewRecorder()
	require.NoError(t, store.Save(r, w, sess))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	r2 := httptest.NewRequest(http.MethodGet, "/", nil)
	r2.AddCookie(cookies[0])
	loaded, err := store.New(r2, "fullstock")
	require.NoError(t, err)
	assert.False(t, loaded.IsNew)
	assert.Equal(t, sess.ID, loaded.ID)
	assert.Equal(t, "v", loaded.Values["k"])

	_, err = db.Exec("UPDATE sessions SET expires_at = ?", time.Now().Add(-time.Hour).UTC())
	require.NoError(t, err)
	n, err := store.CleanupExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	r3 := httptest.NewRequest(http.MethodGet, "/", nil)
	r3.AddCookie(cookies[0])
	expired, err := store.New(r3, "fullstock")
	require.NoError(t, err)
	assert.True(t, expired.IsNew)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

var observedAt = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func newStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.db")
	store, err := New(Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(context.Background()))
	t.Cleanup(func() { _ = store.Close() })
	return store, path
}

func rawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file:"+path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func product(id, price string) catalog.Product {
	return catalog.Product{
		ProductID: id,
		URL:       "https://www.cardrush-pokemon.jp/product/" + id,
		Name:      "card " + id,
		PriceText: price,
		StockText: "在庫数 1枚",
	}
}

func productBatch(at time.Time, records ...catalog.Product) catalog.Batch[catalog.Product] {
	return catalog.Batch[catalog.Product]{
		Source:     catalog.SourceCardrush,
		Segment:    "267",
		Index:      1,
		ObservedAt: at,
		Records:    records,
	}
}

func card(id, rarity string) catalog.Card {
	return catalog.Card{
		CardID:   id,
		DataID:   "sv8-" + id,
		URL:      "https://limitlesstcg.com/cards/en/SSP/" + id,
		Name:     "card " + id,
		Lang:     "en",
		SetCode:  "SSP",
		CardCode: id,
		Rarity:   rarity,
	}
}

func cardBatch(at time.Time, records ...catalog.Card) catalog.Batch[catalog.Card] {
	return catalog.Batch[catalog.Card]{
		Source:     catalog.SourceLimitless,
		Segment:    "en/SSP",
		Index:      1,
		ObservedAt: at,
		Records:    records,
	}
}

func TestNewRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := New(Config{Path: "  "}, nil)
	require.Error(t, err)
}

// TestEnsureSchemaIsIdempotent allows initdb to run repeatedly.
func TestEnsureSchemaIsIdempotent(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	require.NoError(t, store.EnsureSchema(context.Background()))
}

// TestEnsureSchemaUpgradesProductsTable adds the current price columns to a
// table created before they existed.
func TestEnsureSchemaUpgradesProductsTable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	db := rawDB(t, path)
	_, err := db.Exec(`CREATE TABLE cardrush_products (
		product_id TEXT PRIMARY KEY, segment_id TEXT NOT NULL, url TEXT NOT NULL, name TEXT NOT NULL,
		name_full TEXT, card_condition TEXT, model_number TEXT, set_size TEXT, model_code TEXT,
		image_url TEXT, image_alt TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	store, err := New(Config{Path: path}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.EnsureSchema(ctx))
	require.NoError(t, store.EnsureSchema(ctx))

	n, err := store.PersistProducts(ctx, productBatch(observedAt, product("1", "79,800円")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var price float64
	require.NoError(t, rawDB(t, path).QueryRow(
		`SELECT price FROM cardrush_products WHERE product_id = '1'`,
	).Scan(&price))
	assert.InDelta(t, 79800.0, price, 0.001)
}

// TestPersistProductsIdempotent writes the same batch twice and expects one row per table.
func TestPersistProductsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newStore(t)

	n, err := store.PersistProducts(ctx, productBatch(observedAt, product("1", "1,000円")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	restocked := product("1", "1,200円")
	restocked.StockText = "在庫数 3枚"
	n, err = store.PersistProducts(ctx, productBatch(observedAt.Add(time.Hour), restocked))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	db := rawDB(t, path)
	assert.Equal(t, 1, count(t, db, "cardrush_products"))
	assert.Equal(t, 1, count(t, db, "cardrush_price_history"))

	var (
		current      float64
		currentStock sql.NullString
	)
	require.NoError(t, db.QueryRow(
		`SELECT price, stock_status FROM cardrush_products WHERE product_id = '1'`,
	).Scan(&current, &currentStock))
	assert.InDelta(t, 1200.0, current, 0.001)
	assert.Equal(t, "在庫数 3枚", currentStock.String)

	var (
		price    float64
		currency string
		stock    sql.NullString
		day      string
	)
	require.NoError(t, db.QueryRow(
		`SELECT price, currency, stock_status, observed_date FROM cardrush_price_history WHERE product_id = '1'`,
	).Scan(&price, &currency, &stock, &day))
	assert.InDelta(t, 1200.0, price, 0.001)
	assert.Equal(t, "JPY", currency)
	assert.Equal(t, "在庫数 3枚", stock.String)
	assert.Equal(t, "2025-03-14", day)

	var created, updated string
	require.NoError(t, db.QueryRow(
		`SELECT created_at, updated_at FROM cardrush_products WHERE product_id = '1'`,
	).Scan(&created, &updated))
	assert.Equal(t, observedAt.Format(time.RFC3339Nano), created)
	assert.Equal(t, observedAt.Add(time.Hour).Format(time.RFC3339Nano), updated)
}

// TestPersistProductsKeepsEarlierDays leaves a closed day's history untouched.
func TestPersistProductsKeepsEarlierDays(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newStore(t)

	_, err := store.PersistProducts(ctx, productBatch(observedAt, product("1", "1,000円")))
	require.NoError(t, err)
	_, err = store.PersistProducts(ctx, productBatch(observedAt.AddDate(0, 0, 1), product("1", "900円")))
	require.NoError(t, err)

	db := rawDB(t, path)
	assert.Equal(t, 2, count(t, db, "cardrush_price_history"))

	var price float64
	require.NoError(t, db.QueryRow(
		`SELECT price FROM cardrush_price_history WHERE product_id = '1' AND observed_date = '2025-03-14'`,
	).Scan(&price))
	assert.InDelta(t, 1000.0, price, 0.001)
}

// TestPersistProductsSkipsInvalid drops incomplete and priceless records without failing the batch.
func TestPersistProductsSkipsInvalid(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newStore(t)

	noID := product("", "100円")
	noName := product("3", "100円")
	noName.Name = ""

	n, err := store.PersistProducts(ctx, productBatch(observedAt,
		product("1", "100円"),
		noID,
		product("2", "売り切れ"),
		noName,
		product("4", "2,500円"),
	))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	db := rawDB(t, path)
	assert.Equal(t, 2, count(t, db, "cardrush_products"))
	assert.Equal(t, 2, count(t, db, "cardrush_price_history"))
}

// TestPersistCardsDoesNotClobberNulls keeps a known rarity when a later pass lacks it.
func TestPersistCardsDoesNotClobberNulls(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newStore(t)

	n, err := store.PersistCards(ctx, cardBatch(observedAt, card("57", "Rare")))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	later := card("57", "")
	later.DataID = ""
	later.Name = "Pikachu ex"
	n, err = store.PersistCards(ctx, cardBatch(observedAt.Add(time.Minute), later))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	db := rawDB(t, path)
	var (
		name   string
		rarity sql.NullString
		dataID sql.NullString
	)
	require.NoError(t, db.QueryRow(
		`SELECT name, rarity, data_id FROM limitless_cards WHERE card_id = '57'`,
	).Scan(&name, &rarity, &dataID))
	assert.Equal(t, "Pikachu ex", name)
	assert.Equal(t, "Rare", rarity.String)
	assert.Equal(t, "sv8-57", dataID.String)
	assert.Equal(t, 1, count(t, db, "limitless_cards"))
	assert.Equal(t, 1, count(t, db, "limitless_card_observations"))
}

// TestPersistCardsAllowsMissingRarity accepts cards without the auxiliary field.
func TestPersistCardsAllowsMissingRarity(t *testing.T) {
	t.Parallel()

	store, path := newStore(t)
	noName := card("2", "")
	noName.Name = ""

	n, err := store.PersistCards(context.Background(), cardBatch(observedAt, card("1", ""), noName))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	db := rawDB(t, path)
	var rarity sql.NullString
	require.NoError(t, db.QueryRow(`SELECT rarity FROM limitless_cards WHERE card_id = '1'`).Scan(&rarity))
	assert.False(t, rarity.Valid)
}

// TestPersistWithoutSchemaReturnsStorageError rolls back and reports the batch location.
func TestPersistWithoutSchemaReturnsStorageError(t *testing.T) {
	t.Parallel()

	store, err := New(Config{Path: filepath.Join(t.TempDir(), "empty.db")}, nil)
	require.NoError(t, err)

	batch := productBatch(observedAt, product("1", "100円"))
	batch.Index = 7
	n, err := store.PersistProducts(context.Background(), batch)
	require.Error(t, err)
	assert.Zero(t, n)

	var storageErr *catalog.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.Equal(t, "267", storageErr.Segment)
	assert.Equal(t, 7, storageErr.Index)
}

// TestSegmentsRoundTrip filters by source, ignores blank addresses, and orders by id.
func TestSegmentsRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, path := newStore(t)

	require.NoError(t, store.UpsertSegment(ctx, catalog.Segment{
		Source: catalog.SourceCardrush, ID: "267", BaseAddress: "https://www.cardrush-pokemon.jp/product-group/267",
	}))
	require.NoError(t, store.UpsertSegment(ctx, catalog.Segment{
		Source: catalog.SourceCardrush, ID: "120", BaseAddress: "https://www.cardrush-pokemon.jp/product-group/120", MaxPages: 3,
	}))
	require.NoError(t, store.UpsertSegment(ctx, catalog.Segment{
		Source: catalog.SourceLimitless, ID: "en/SSP", BaseAddress: "en/SSP",
	}))
	require.NoError(t, store.UpsertSegment(ctx, catalog.Segment{
		Source: catalog.SourceCardrush, ID: "120", BaseAddress: "https://www.cardrush-pokemon.jp/product-group/120", MaxPages: 5,
	}))

	_, err := rawDB(t, path).Exec(`INSERT INTO series_urls (source, segment_id, list_url) VALUES ('CardRush', '999', '  ')`)
	require.NoError(t, err)

	segs, err := store.LoadSegments(ctx, catalog.SourceCardrush)
	require.NoError(t, err)
	require.Len(t, segs, 2)
	assert.Equal(t, "120", segs[0].ID)
	assert.Equal(t, 5, segs[0].MaxPages)
	assert.Equal(t, catalog.SourceCardrush, segs[0].Source)
	assert.Equal(t, "267", segs[1].ID)

	segs, err = store.LoadSegments(ctx, catalog.SourceLimitless)
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, "en/SSP", segs[0].BaseAddress)
}

func TestUpsertSegmentValidates(t *testing.T) {
	t.Parallel()

	store, _ := newStore(t)
	ctx := context.Background()
	require.Error(t, store.UpsertSegment(ctx, catalog.Segment{Source: "ebay", ID: "1", BaseAddress: "x"}))
	require.Error(t, store.UpsertSegment(ctx, catalog.Segment{Source: catalog.SourceCardrush, BaseAddress: "x"}))
	require.Error(t, store.UpsertSegment(ctx, catalog.Segment{Source: catalog.SourceCardrush, ID: "1"}))
}

// Package postgres provides the Postgres-backed catalog store.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

const currencyJPY = "JPY"

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store implements catalog.Store on Postgres.
type Store struct {
	pool   pool
	logger *zap.Logger
}

var _ catalog.Store = (*Store)(nil)

// New connects a pool using cfg.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return NewWithPool(p, logger)
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool, logger *zap.Logger) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{pool: p, logger: logger}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS cardrush_products (
	product_id     TEXT PRIMARY KEY,
	segment_id     TEXT NOT NULL,
	url            TEXT NOT NULL,
	name           TEXT NOT NULL,
	name_full      TEXT,
	card_condition TEXT,
	model_number   TEXT,
	set_size       TEXT,
	model_code     TEXT,
	image_url      TEXT,
	image_alt      TEXT,
	price          NUMERIC(12, 2) NOT NULL,
	stock_status   TEXT,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
)`,
	// Tables created before the current price moved onto the product row.
	`ALTER TABLE cardrush_products ADD COLUMN IF NOT EXISTS price NUMERIC(12, 2)`,
	`ALTER TABLE cardrush_products ADD COLUMN IF NOT EXISTS stock_status TEXT`,
	`CREATE INDEX IF NOT EXISTS idx_cardrush_products_segment ON cardrush_products (segment_id)`,
	`CREATE TABLE IF NOT EXISTS cardrush_price_history (
	product_id    TEXT NOT NULL REFERENCES cardrush_products (product_id),
	observed_date DATE NOT NULL,
	observed_at   TIMESTAMPTZ NOT NULL,
	price         NUMERIC(12, 2) NOT NULL,
	currency      TEXT NOT NULL DEFAULT 'JPY',
	stock_status  TEXT,
	PRIMARY KEY (product_id, observed_date)
)`,
	`CREATE TABLE IF NOT EXISTS limitless_cards (
	card_id    TEXT PRIMARY KEY,
	segment_id TEXT NOT NULL,
	data_id    TEXT,
	url        TEXT NOT NULL,
	name       TEXT NOT NULL,
	lang       TEXT,
	set_code   TEXT,
	card_code  TEXT,
	rarity     TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_limitless_cards_segment ON limitless_cards (segment_id)`,
	`CREATE TABLE IF NOT EXISTS limitless_card_observations (
	card_id       TEXT NOT NULL REFERENCES limitless_cards (card_id),
	observed_date DATE NOT NULL,
	observed_at   TIMESTAMPTZ NOT NULL,
	name          TEXT NOT NULL,
	rarity        TEXT,
	PRIMARY KEY (card_id, observed_date)
)`,
	`CREATE TABLE IF NOT EXISTS series_urls (
	source     TEXT NOT NULL,
	segment_id TEXT NOT NULL,
	list_url   TEXT NOT NULL,
	max_pages  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (source, segment_id)
)`,
}

// EnsureSchema creates every table that does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

const upsertProduct = `
INSERT INTO cardrush_products (
	product_id, segment_id, url, name, name_full, card_condition, model_number,
	set_size, model_code, image_url, image_alt, price, stock_status,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
ON CONFLICT (product_id) DO UPDATE SET
	segment_id = EXCLUDED.segment_id,
	url = EXCLUDED.url,
	name = EXCLUDED.name,
	name_full = EXCLUDED.name_full,
	card_condition = EXCLUDED.card_condition,
	model_number = EXCLUDED.model_number,
	set_size = EXCLUDED.set_size,
	model_code = EXCLUDED.model_code,
	image_url = EXCLUDED.image_url,
	image_alt = EXCLUDED.image_alt,
	price = EXCLUDED.price,
	stock_status = EXCLUDED.stock_status,
	updated_at = EXCLUDED.updated_at`

const upsertPriceHistory = `
INSERT INTO cardrush_price_history (
	product_id, observed_date, observed_at, price, currency, stock_status
) VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (product_id, observed_date) DO UPDATE SET
	observed_at = EXCLUDED.observed_at,
	price = EXCLUDED.price,
	currency = EXCLUDED.currency,
	stock_status = EXCLUDED.stock_status`

// PersistProducts writes the batch in one transaction.
func (s *Store) PersistProducts(ctx context.Context, batch catalog.Batch[catalog.Product]) (int, error) {
	at := batch.ObservedAt.UTC()
	day := observationDay(batch.ObservedAt)
	return s.inTx(ctx, batch.Segment, batch.Index, func(tx pgx.Tx) (int, error) {
		written := 0
		for _, p := range batch.Records {
			if reason := catalog.ValidateProduct(p); reason != catalog.SkipNone {
				s.logSkip(batch.Segment, batch.Index, p.ProductID, reason)
				continue
			}
			price := *p.Price()
			if _, err := tx.Exec(ctx, upsertProduct,
				p.ProductID, batch.Segment, p.URL, p.Name,
				nullable(p.NameFull), nullable(p.Condition), nullable(p.ModelNumber),
				nullable(p.SetSize), nullable(p.ModelCode), nullable(p.ImageURL), nullable(p.ImageAlt),
				price, nullable(p.StockText), at,
			); err != nil {
				return 0, fmt.Errorf("upsert product %s: %w", p.ProductID, err)
			}
			if _, err := tx.Exec(ctx, upsertPriceHistory,
				p.ProductID, day, at, price, currencyJPY, nullable(p.StockText),
			); err != nil {
				return 0, fmt.Errorf("upsert price history %s: %w", p.ProductID, err)
			}
			written++
		}
		return written, nil
	})
}

// Optional card attributes are filled in by separate passes, so an incoming
// NULL keeps whatever is stored.
const upsertCard = `
INSERT INTO limitless_cards (
	card_id, segment_id, data_id, url, name, lang, set_code, card_code, rarity,
	created_at, updated_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
ON CONFLICT (card_id) DO UPDATE SET
	segment_id = EXCLUDED.segment_id,
	data_id = COALESCE(EXCLUDED.data_id, limitless_cards.data_id),
	url = EXCLUDED.url,
	name = EXCLUDED.name,
	lang = COALESCE(EXCLUDED.lang, limitless_cards.lang),
	set_code = COALESCE(EXCLUDED.set_code, limitless_cards.set_code),
	card_code = COALESCE(EXCLUDED.card_code, limitless_cards.card_code),
	rarity = COALESCE(EXCLUDED.rarity, limitless_cards.rarity),
	updated_at = EXCLUDED.updated_at`

const upsertCardObservation = `
INSERT INTO limitless_card_observations (
	card_id, observed_date, observed_at, name, rarity
) VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (card_id, observed_date) DO UPDATE SET
	observed_at = EXCLUDED.observed_at,
	name = EXCLUDED.name,
	rarity = EXCLUDED.rarity`

// PersistCards writes the batch in one transaction.
func (s *Store) PersistCards(ctx context.Context, batch catalog.Batch[catalog.Card]) (int, error) {
	at := batch.ObservedAt.UTC()
	day := observationDay(batch.ObservedAt)
	return s.inTx(ctx, batch.Segment, batch.Index, func(tx pgx.Tx) (int, error) {
		written := 0
		for _, c := range batch.Records {
			if reason := catalog.ValidateCard(c); reason != catalog.SkipNone {
				s.logSkip(batch.Segment, batch.Index, c.CardID, reason)
				continue
			}
			if _, err := tx.Exec(ctx, upsertCard,
				c.CardID, batch.Segment, nullable(c.DataID), c.URL, c.Name,
				nullable(c.Lang), nullable(c.SetCode), nullable(c.CardCode), nullable(c.Rarity),
				at,
			); err != nil {
				return 0, fmt.Errorf("upsert card %s: %w", c.CardID, err)
			}
			if _, err := tx.Exec(ctx, upsertCardObservation,
				c.CardID, day, at, c.Name, nullable(c.Rarity),
			); err != nil {
				return 0, fmt.Errorf("upsert card observation %s: %w", c.CardID, err)
			}
			written++
		}
		return written, nil
	})
}

const selectSegments = `
SELECT source, segment_id, list_url, max_pages
FROM series_urls
WHERE lower(source) = lower($1) AND btrim(list_url) <> ''
ORDER BY segment_id`

// LoadSegments returns the registered segments of source ordered by id.
// Rows with a blank list URL are ignored.
func (s *Store) LoadSegments(ctx context.Context, source catalog.Source) ([]catalog.Segment, error) {
	rows, err := s.pool.Query(ctx, selectSegments, string(source))
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var out []catalog.Segment
	for rows.Next() {
		var (
			src string
			seg catalog.Segment
		)
		if err := rows.Scan(&src, &seg.ID, &seg.BaseAddress, &seg.MaxPages); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		seg.Source = catalog.Source(strings.ToLower(src))
		seg.BaseAddress = strings.TrimSpace(seg.BaseAddress)
		out = append(out, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}
	return out, nil
}

const upsertSegment = `
INSERT INTO series_urls (source, segment_id, list_url, max_pages)
VALUES ($1, $2, $3, $4)
ON CONFLICT (source, segment_id) DO UPDATE SET
	list_url = EXCLUDED.list_url,
	max_pages = EXCLUDED.max_pages`

// UpsertSegment registers or updates a segment.
func (s *Store) UpsertSegment(ctx context.Context, seg catalog.Segment) error {
	if _, err := catalog.ParseSource(string(seg.Source)); err != nil {
		return err
	}
	if strings.TrimSpace(seg.ID) == "" {
		return fmt.Errorf("segment id is required")
	}
	if strings.TrimSpace(seg.BaseAddress) == "" {
		return fmt.Errorf("segment %s: base address is required", seg.ID)
	}
	if _, err := s.pool.Exec(ctx, upsertSegment,
		strings.ToLower(string(seg.Source)), seg.ID, strings.TrimSpace(seg.BaseAddress), seg.MaxPages,
	); err != nil {
		return fmt.Errorf("upsert segment %s: %w", seg.ID, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, segment string, index int, fn func(pgx.Tx) (int, error)) (int, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, &catalog.StorageError{Segment: segment, Index: index, Err: fmt.Errorf("begin: %w", err)}
	}
	written, err := fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Warn("rollback failed", zap.String("segment", segment), zap.Int("index", index), zap.Error(rbErr))
		}
		return 0, &catalog.StorageError{Segment: segment, Index: index, Err: err}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, &catalog.StorageError{Segment: segment, Index: index, Err: fmt.Errorf("commit: %w", err)}
	}
	return written, nil
}

func (s *Store) logSkip(segment string, index int, id string, reason catalog.SkipReason) {
	s.logger.Debug("record skipped",
		zap.String("segment", segment),
		zap.Int("index", index),
		zap.String("entity_id", id),
		zap.String("reason", string(reason)),
	)
}

// observationDay maps t onto the DATE column of its history bucket.
func observationDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// Package sqlite persists catalog batches into a single SQLite file.
//
// The database is opened and closed around every batch so that the file is
// never held between pages and other tools can read it mid-run.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/tcg-catalog-crawler/internal/catalog"
)

//go:embed schema.sql
var schema string

const (
	defaultBusyTimeout = 5 * time.Second
	currencyJPY        = "JPY"
	timestampLayout    = time.RFC3339Nano
)

// Config controls where the database lives.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Store implements catalog.Store on SQLite.
type Store struct {
	dsn    string
	logger *zap.Logger
}

var _ catalog.Store = (*Store)(nil)

// New validates cfg. No connection is opened until the first call.
func New(cfg Config, logger *zap.Logger) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}
	return &Store{dsn: buildDSN(path, busy), logger: logger}, nil
}

func buildDSN(path string, busy time.Duration) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(1)")
	q.Set("_txlock", "immediate")
	return "file:" + path + "?" + q.Encode()
}

func (s *Store) open(ctx context.Context) (*sql.DB, error) {
	db, err := sql.Open("sqlite", s.dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// EnsureSchema creates every table that does not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, s.logger)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return addMissingColumns(ctx, db)
}

// Columns added after the first release. ALTER TABLE cannot add a NOT NULL
// column without a default, so upgraded tables hold them as nullable.
var addedColumns = []struct{ table, column, decl string }{
	{"cardrush_products", "price", "REAL"},
	{"cardrush_products", "stock_status", "TEXT"},
}

func addMissingColumns(ctx context.Context, db *sql.DB) error {
	for _, c := range addedColumns {
		var n int
		if err := db.QueryRowContext(ctx,
			`SELECT count(*) FROM pragma_table_info(?) WHERE name = ?`, c.table, c.column,
		).Scan(&n); err != nil {
			return fmt.Errorf("inspect %s: %w", c.table, err)
		}
		if n > 0 {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.column, c.decl)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

// Close is a no-op; connections never outlive a call.
func (s *Store) Close() error {
	return nil
}

const upsertProduct = `
INSERT INTO cardrush_products (
	product_id, segment_id, url, name, name_full, card_condition, model_number,
	set_size, model_code, image_url, image_alt, price, stock_status,
	created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (product_id) DO UPDATE SET
	segment_id = excluded.segment_id,
	url = excluded.url,
	name = excluded.name,
	name_full = excluded.name_full,
	card_condition = excluded.card_condition,
	model_number = excluded.model_number,
	set_size = excluded.set_size,
	model_code = excluded.model_code,
	image_url = excluded.image_url,
	image_alt = excluded.image_alt,
	price = excluded.price,
	stock_status = excluded.stock_status,
	updated_at = excluded.updated_at`

const upsertPriceHistory = `
INSERT INTO cardrush_price_history (
	product_id, observed_date, observed_at, price, currency, stock_status
) VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (product_id, observed_date) DO UPDATE SET
	observed_at = excluded.observed_at,
	price = excluded.price,
	currency = excluded.currency,
	stock_status = excluded.stock_status`

// PersistProducts writes the batch in one transaction.
func (s *Store) PersistProducts(ctx context.Context, batch catalog.Batch[catalog.Product]) (int, error) {
	stamp := batch.ObservedAt.UTC().Format(timestampLayout)
	day := catalog.ObservationDate(batch.ObservedAt)
	return s.inTx(ctx, batch.Segment, batch.Index, func(tx *sql.Tx) (int, error) {
		written := 0
		for _, p := range batch.Records {
			if reason := catalog.ValidateProduct(p); reason != catalog.SkipNone {
				s.logSkip(batch.Segment, batch.Index, p.ProductID, reason)
				continue
			}
			price := *p.Price()
			if _, err := tx.ExecContext(ctx, upsertProduct,
				p.ProductID, batch.Segment, p.URL, p.Name,
				nullable(p.NameFull), nullable(p.Condition), nullable(p.ModelNumber),
				nullable(p.SetSize), nullable(p.ModelCode), nullable(p.ImageURL), nullable(p.ImageAlt),
				price, nullable(p.StockText), stamp, stamp,
			); err != nil {
				return 0, fmt.Errorf("upsert product %s: %w", p.ProductID, err)
			}
			if _, err := tx.ExecContext(ctx, upsertPriceHistory,
				p.ProductID, day, stamp, price, currencyJPY, nullable(p.StockText),
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
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (card_id) DO UPDATE SET
	segment_id = excluded.segment_id,
	data_id = COALESCE(excluded.data_id, limitless_cards.data_id),
	url = excluded.url,
	name = excluded.name,
	lang = COALESCE(excluded.lang, limitless_cards.lang),
	set_code = COALESCE(excluded.set_code, limitless_cards.set_code),
	card_code = COALESCE(excluded.card_code, limitless_cards.card_code),
	rarity = COALESCE(excluded.rarity, limitless_cards.rarity),
	updated_at = excluded.updated_at`

const upsertCardObservation = `
INSERT INTO limitless_card_observations (
	card_id, observed_date, observed_at, name, rarity
) VALUES (?, ?, ?, ?, ?)
ON CONFLICT (card_id, observed_date) DO UPDATE SET
	observed_at = excluded.observed_at,
	name = excluded.name,
	rarity = excluded.rarity`

// PersistCards writes the batch in one transaction.
func (s *Store) PersistCards(ctx context.Context, batch catalog.Batch[catalog.Card]) (int, error) {
	stamp := batch.ObservedAt.UTC().Format(timestampLayout)
	day := catalog.ObservationDate(batch.ObservedAt)
	return s.inTx(ctx, batch.Segment, batch.Index, func(tx *sql.Tx) (int, error) {
		written := 0
		for _, c := range batch.Records {
			if reason := catalog.ValidateCard(c); reason != catalog.SkipNone {
				s.logSkip(batch.Segment, batch.Index, c.CardID, reason)
				continue
			}
			if _, err := tx.ExecContext(ctx, upsertCard,
				c.CardID, batch.Segment, nullable(c.DataID), c.URL, c.Name,
				nullable(c.Lang), nullable(c.SetCode), nullable(c.CardCode), nullable(c.Rarity),
				stamp, stamp,
			); err != nil {
				return 0, fmt.Errorf("upsert card %s: %w", c.CardID, err)
			}
			if _, err := tx.ExecContext(ctx, upsertCardObservation,
				c.CardID, day, stamp, c.Name, nullable(c.Rarity),
			); err != nil {
				return 0, fmt.Errorf("upsert card observation %s: %w", c.CardID, err)
			}
			written++
		}
		return written, nil
	})
}

// LoadSegments returns the registered segments of source ordered by id.
// Rows with a blank list URL are ignored.
func (s *Store) LoadSegments(ctx context.Context, source catalog.Source) ([]catalog.Segment, error) {
	db, err := s.open(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB(db, s.logger)

	rows, err := db.QueryContext(ctx, `
SELECT source, segment_id, list_url, max_pages
FROM series_urls
WHERE lower(source) = lower(?) AND trim(list_url) <> ''
ORDER BY segment_id`, string(source))
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

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

// UpsertSegment registers or updates a segment.
func (s *Store) UpsertSegment(ctx context.Context, seg catalog.Segment) error {
	if err := checkSegment(seg); err != nil {
		return err
	}
	db, err := s.open(ctx)
	if err != nil {
		return err
	}
	defer closeDB(db, s.logger)

	_, err = db.ExecContext(ctx, `
INSERT INTO series_urls (source, segment_id, list_url, max_pages)
VALUES (?, ?, ?, ?)
ON CONFLICT (source, segment_id) DO UPDATE SET
	list_url = excluded.list_url,
	max_pages = excluded.max_pages`,
		strings.ToLower(string(seg.Source)), seg.ID, strings.TrimSpace(seg.BaseAddress), seg.MaxPages)
	if err != nil {
		return fmt.Errorf("upsert segment %s: %w", seg.ID, err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, segment string, index int, fn func(*sql.Tx) (int, error)) (written int, err error) {
	wrap := func(err error) error {
		return &catalog.StorageError{Segment: segment, Index: index, Err: err}
	}
	db, err := s.open(ctx)
	if err != nil {
		return 0, wrap(err)
	}
	defer closeDB(db, s.logger)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, wrap(fmt.Errorf("begin: %w", err))
	}
	written, err = fn(tx)
	if err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.String("segment", segment), zap.Int("index", index), zap.Error(rbErr))
		}
		return 0, wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return 0, wrap(fmt.Errorf("commit: %w", err))
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

func checkSegment(seg catalog.Segment) error {
	if _, err := catalog.ParseSource(string(seg.Source)); err != nil {
		return err
	}
	if strings.TrimSpace(seg.ID) == "" {
		return fmt.Errorf("segment id is required")
	}
	if strings.TrimSpace(seg.BaseAddress) == "" {
		return fmt.Errorf("segment %s: base address is required", seg.ID)
	}
	return nil
}

func closeDB(db *sql.DB, logger *zap.Logger) {
	if err := db.Close(); err != nil {
		logger.Warn("close sqlite", zap.Error(err))
	}
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/toko-pricing/internal/pricing"
)

const (
	queryCategories = `SELECT id, name FROM categories ORDER BY id`
	queryProducts   = `SELECT id, COALESCE(category_id, ''), price, active FROM products ORDER BY id`
	queryBundles    = `SELECT id, name, fixed_price FROM bundles ORDER BY id`
	querySlots      = `SELECT bundle_id, position, COALESCE(default_product_id, ''), min_qty, max_qty, fixed_price FROM bundle_slots ORDER BY bundle_id, position`
	querySlotItems  = `SELECT bundle_id, position, product_id FROM bundle_slot_products ORDER BY bundle_id, position, product_id`
)

// OpenPostgres connects a pgx pool. A nil tracer leaves queries untraced.
func OpenPostgres(ctx context.Context, url string, tracer pgx.QueryTracer) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse database url: %w", err)
	}
	if tracer != nil {
		poolConfig.ConnConfig.Tracer = tracer
	}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "toko-pricing"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("catalog: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("catalog: ping postgres: %w", err)
	}
	return pool, nil
}

// TxBeginner is the part of *pgxpool.Pool the loader needs.
type TxBeginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// PostgresLoader reads a catalog snapshot from the storefront database. All
// queries run inside one read-only transaction so the snapshot is consistent.
type PostgresLoader struct {
	DB TxBeginner
}

// Load implements Loader.
func (l PostgresLoader) Load(ctx context.Context) (Data, error) {
	if l.DB == nil {
		return Data{}, fmt.Errorf("catalog: postgres loader not configured")
	}
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return Data{}, fmt.Errorf("catalog: begin snapshot tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var data Data
	if data.Categories, err = loadCategories(ctx, tx); err != nil {
		return Data{}, err
	}
	if data.Products, err = loadProducts(ctx, tx); err != nil {
		return Data{}, err
	}
	if data.Bundles, err = loadBundles(ctx, tx); err != nil {
		return Data{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Data{}, fmt.Errorf("catalog: commit snapshot tx: %w", err)
	}
	committed = true
	return data, nil
}

func loadCategories(ctx context.Context, tx pgx.Tx) ([]Category, error) {
	rows, err := tx.Query(ctx, queryCategories)
	if err != nil {
		return nil, fmt.Errorf("catalog: query categories: %w", err)
	}
	defer rows.Close()
	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("catalog: scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func loadProducts(ctx context.Context, tx pgx.Tx) ([]Product, error) {
	rows, err := tx.Query(ctx, queryProducts)
	if err != nil {
		return nil, fmt.Errorf("catalog: query products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.CategoryID, &p.Price, &p.Active); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type slotKey struct {
	bundleID string
	position int
}

func loadBundles(ctx context.Context, tx pgx.Tx) ([]CuratedBundle, error) {
	rows, err := tx.Query(ctx, queryBundles)
	if err != nil {
		return nil, fmt.Errorf("catalog: query bundles: %w", err)
	}
	var bundles []CuratedBundle
	index := map[string]int{}
	for rows.Next() {
		var (
			b     CuratedBundle
			fixed pgtype.Int8
		)
		if err := rows.Scan(&b.ID, &b.Name, &fixed); err != nil {
			rows.Close()
			return nil, fmt.Errorf("catalog: scan bundle: %w", err)
		}
		b.FixedPrice = nullMoney(fixed)
		index[b.ID] = len(bundles)
		bundles = append(bundles, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	allowed, err := loadSlotItems(ctx, tx)
	if err != nil {
		return nil, err
	}

	slotRows, err := tx.Query(ctx, querySlots)
	if err != nil {
		return nil, fmt.Errorf("catalog: query bundle slots: %w", err)
	}
	defer slotRows.Close()
	for slotRows.Next() {
		var (
			key   slotKey
			slot  Slot
			fixed pgtype.Int8
		)
		if err := slotRows.Scan(&key.bundleID, &key.position, &slot.Default, &slot.MinQty, &slot.MaxQty, &fixed); err != nil {
			return nil, fmt.Errorf("catalog: scan bundle slot: %w", err)
		}
		idx, ok := index[key.bundleID]
		if !ok {
			return nil, fmt.Errorf("%w: slot for unknown bundle %q", ErrInvalidSnapshot, key.bundleID)
		}
		if key.position != len(bundles[idx].Slots) {
			return nil, fmt.Errorf("%w: bundle %q slot positions not contiguous at %d", ErrInvalidSnapshot, key.bundleID, key.position)
		}
		slot.FixedPrice = nullMoney(fixed)
		slot.Allowed = allowed[key]
		bundles[idx].Slots = append(bundles[idx].Slots, slot)
	}
	return bundles, slotRows.Err()
}

func loadSlotItems(ctx context.Context, tx pgx.Tx) (map[slotKey][]string, error) {
	rows, err := tx.Query(ctx, querySlotItems)
	if err != nil {
		return nil, fmt.Errorf("catalog: query bundle slot products: %w", err)
	}
	defer rows.Close()
	out := map[slotKey][]string{}
	for rows.Next() {
		var (
			key       slotKey
			productID string
		)
		if err := rows.Scan(&key.bundleID, &key.position, &productID); err != nil {
			return nil, fmt.Errorf("catalog: scan bundle slot product: %w", err)
		}
		out[key] = append(out[key], productID)
	}
	return out, rows.Err()
}

func nullMoney(v pgtype.Int8) *pricing.Money {
	if !v.Valid {
		return nil
	}
	m := pricing.Money(v.Int64)
	return &m
}

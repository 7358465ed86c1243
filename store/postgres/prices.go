/*
Package postgres provides a shared, Postgres-backed price list.

PURPOSE:
  Several costing servers can read one tenant-scoped price list. Templates
  and variants stay in the local store (SQLite); this package implements
  only generic.PriceStore and generic.PriceWriter.

POOLING:
  Uses a pgxpool.Pool. Migrations run through a database/sql handle opened
  on the same pool (pgx stdlib) so goose can drive them.

USAGE:
  prices, err := postgres.New(ctx, os.Getenv("COSTING_PRICES_DATABASE_URL"))
  if err != nil {
      return err
  }
  defer prices.Close()

  engine := construction.NewEngine(sqliteStore, prices)
*/
package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
	"github.com/warp/recipe-costing/generic"
	"github.com/warp/recipe-costing/store/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

const uniqueViolation = "23505"

// Store implements generic.PriceStore and generic.PriceWriter.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ generic.PriceStore  = (*Store)(nil)
	_ generic.PriceWriter = (*Store)(nil)
)

// New connects, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, &generic.ValidationError{Field: "database_url", Message: "required"}
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping: %v", generic.ErrStoreUnavailable, err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Migrate applies the embedded migrations.
func (s *Store) Migrate() error {
	db := stdlib.OpenDBFromPool(s.pool)
	defer db.Close()

	if err := migrate.Up(db, migrate.DialectPostgres, migrations, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate price list: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// =============================================================================
// READS
// =============================================================================

const priceColumns = `seq, id, tenant, ref_key, price::text, unit, valid_from, valid_to, note`

// FindPrices answers all keys with one query.
func (s *Store) FindPrices(ctx context.Context, tenant generic.TenantID, refKeys []string, at time.Time) ([]generic.PriceRecord, error) {
	if len(refKeys) == 0 {
		return nil, nil
	}
	return s.query(ctx, `
		SELECT `+priceColumns+` FROM price_records
		WHERE tenant = $1 AND ref_key = ANY($2) AND valid_from <= $3
		ORDER BY ref_key, valid_from, seq
	`, string(tenant), refKeys, at.UTC())
}

func (s *Store) ListPrices(ctx context.Context, tenant generic.TenantID, refKey string) ([]generic.PriceRecord, error) {
	if refKey == "" {
		return s.query(ctx, `
			SELECT `+priceColumns+` FROM price_records
			WHERE tenant = $1
			ORDER BY ref_key, valid_from, seq
		`, string(tenant))
	}
	return s.query(ctx, `
		SELECT `+priceColumns+` FROM price_records
		WHERE tenant = $1 AND ref_key = $2
		ORDER BY valid_from, seq
	`, string(tenant), refKey)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]generic.PriceRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []generic.PriceRecord
	for rows.Next() {
		rec, err := scanPrice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanPrice(row pgx.Row) (generic.PriceRecord, error) {
	var rec generic.PriceRecord
	var tenant, price string
	var validTo *time.Time
	if err := row.Scan(&rec.Seq, &rec.ID, &tenant, &rec.RefKey, &price, &rec.Unit, &rec.ValidFrom, &validTo, &rec.Note); err != nil {
		return rec, fmt.Errorf("failed to scan price: %w", err)
	}
	amount, err := decimal.NewFromString(price)
	if err != nil {
		return rec, fmt.Errorf("price %s: bad amount %q: %w", rec.ID, price, err)
	}
	rec.Tenant = generic.TenantID(tenant)
	rec.Price = amount
	rec.ValidFrom = rec.ValidFrom.UTC()
	if validTo != nil {
		t := validTo.UTC()
		rec.ValidTo = &t
	}
	return rec, nil
}

// =============================================================================
// WRITES
// =============================================================================

func (s *Store) AppendPrice(ctx context.Context, rec generic.PriceRecord) (generic.PriceRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var validTo *time.Time
	if rec.ValidTo != nil {
		t := rec.ValidTo.UTC()
		validTo = &t
	}

	err := s.pool.QueryRow(ctx, `
		INSERT INTO price_records (id, tenant, ref_key, price, unit, valid_from, valid_to, note)
		VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8)
		RETURNING seq
	`, rec.ID, string(rec.Tenant), rec.RefKey, rec.Price.String(), rec.Unit,
		rec.ValidFrom.UTC(), validTo, rec.Note).Scan(&rec.Seq)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return generic.PriceRecord{}, fmt.Errorf("%w: price id %s", generic.ErrDuplicateKey, rec.ID)
		}
		return generic.PriceRecord{}, fmt.Errorf("failed to append price: %w", err)
	}
	return rec, nil
}

// Truncate removes every price record. Tests only.
func (s *Store) Truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE price_records RESTART IDENTITY`)
	return err
}

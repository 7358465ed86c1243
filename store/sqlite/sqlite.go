/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements generic.CatalogStore (templates, variants, price records)
  using SQLite. It is the default store of the server and the CLI.

INTERFACES IMPLEMENTED:
  generic.TemplateStore: template and variant lookup
  generic.PriceStore:    batched price lookup
  generic.PriceWriter:   append-only price list
  generic.CatalogStore:  all of the above plus administrative writes

APPEND-ONLY PRICES:
  price_records is never updated. A new quotation is a new row; its
  AUTOINCREMENT seq is the tie-breaker for equal valid_from.

KEY TABLES:
  templates:     recipe header, default params as JSON
  components:    cost lines, position = definition order
  variants:      parameter overrides as JSON, unique per (template, key)
  price_records: temporally scoped unit prices per tenant

TIMESTAMPS:
  Stored as fixed-width UTC text (timeLayout) so that string comparison
  in SQL matches chronological order.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single connection, which also
  keeps ":memory:" databases alive across calls.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency.

MIGRATION:
  Versioned goose migrations embedded from migrations/*.sql run on New().

USAGE:
  store, err := sqlite.New("./data/costing.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := construction.NewEngine(store, store)

SEE ALSO:
  - generic/store.go:        Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
  - store/postgres:          Shared price list
*/
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/recipe-costing/generic"
	"github.com/warp/recipe-costing/store/migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements generic.CatalogStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ generic.CatalogStore = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migrate.Up(db, migrate.DialectSQLite, migrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SchemaVersion reports the applied migration version.
func (s *Store) SchemaVersion() (int64, error) {
	return migrate.Version(s.db, migrate.DialectSQLite)
}

// =============================================================================
// TEMPLATES (generic.TemplateStore)
// =============================================================================

const templateColumns = `id, key, title, category, unit, description, default_params_json, tags_json`

func (s *Store) GetTemplate(ctx context.Context, key string) (*generic.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE key = ?`, key)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", generic.ErrTemplateNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	comps, err := s.loadComponents(ctx, `WHERE template_key = ?`, key)
	if err != nil {
		return nil, err
	}
	t.Components = comps[key]
	return &t, nil
}

func (s *Store) ListTemplates(ctx context.Context) ([]generic.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}
	defer rows.Close()

	var out []generic.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	comps, err := s.loadComponents(ctx, ``)
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Components = comps[out[i].Key]
	}
	return out, nil
}

// SaveTemplate upserts by key and replaces the component list. Stored
// variants survive a template update.
func (s *Store) SaveTemplate(ctx context.Context, t generic.Template) error {
	if t.Key == "" {
		return &generic.ValidationError{Field: "key", Message: "required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	params, err := json.Marshal(nonNilParams(t.DefaultParams))
	if err != nil {
		return fmt.Errorf("failed to encode default params: %w", err)
	}
	tags, _ := json.Marshal(nonNilStrings(t.Tags))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO templates (id, key, title, category, unit, description, default_params_json, tags_json, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title = excluded.title,
			category = excluded.category,
			unit = excluded.unit,
			description = excluded.description,
			default_params_json = excluded.default_params_json,
			tags_json = excluded.tags_json,
			updated_at = excluded.updated_at
	`, t.ID, t.Key, t.Title, t.Category, t.Unit, t.Description, string(params), string(tags), formatTime(time.Now()))
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: template id %s", generic.ErrDuplicateKey, t.ID)
		}
		return fmt.Errorf("failed to save template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM components WHERE template_key = ?`, t.Key); err != nil {
		return fmt.Errorf("failed to replace components: %w", err)
	}
	for i, c := range t.Components {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO components (template_key, position, type, ref_key, qty_formula, mandatory, risk_factor, sort, note)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.Key, i, string(c.Type), c.RefKey, c.QtyFormula, c.Mandatory, c.RiskFactor, c.Sort, c.Note)
		if err != nil {
			return fmt.Errorf("failed to save component %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *Store) loadComponents(ctx context.Context, where string, args ...any) (map[string][]generic.Component, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT template_key, type, ref_key, qty_formula, mandatory, risk_factor, sort, note
		FROM components `+where+`
		ORDER BY template_key, position
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load components: %w", err)
	}
	defer rows.Close()

	out := map[string][]generic.Component{}
	for rows.Next() {
		var key, typ string
		var c generic.Component
		if err := rows.Scan(&key, &typ, &c.RefKey, &c.QtyFormula, &c.Mandatory, &c.RiskFactor, &c.Sort, &c.Note); err != nil {
			return nil, err
		}
		c.Type = generic.ComponentType(typ)
		out[key] = append(out[key], c)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row scanner) (generic.Template, error) {
	var t generic.Template
	var params, tags string
	if err := row.Scan(&t.ID, &t.Key, &t.Title, &t.Category, &t.Unit, &t.Description, &params, &tags); err != nil {
		return t, err
	}
	if err := json.Unmarshal([]byte(params), &t.DefaultParams); err != nil {
		return t, fmt.Errorf("template %s: bad default params: %w", t.Key, err)
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return t, fmt.Errorf("template %s: bad tags: %w", t.Key, err)
	}
	if len(t.Tags) == 0 {
		t.Tags = nil
	}
	return t, nil
}

// =============================================================================
// VARIANTS
// =============================================================================

func (s *Store) ListVariants(ctx context.Context, templateKey string) ([]generic.Variant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, template_key, key, unit, enabled, params_json
		FROM variants WHERE template_key = ?
		ORDER BY key
	`, templateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()

	var out []generic.Variant
	for rows.Next() {
		var v generic.Variant
		var params string
		if err := rows.Scan(&v.ID, &v.TemplateKey, &v.Key, &v.Unit, &v.Enabled, &params); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(params), &v.Params); err != nil {
			return nil, fmt.Errorf("variant %s: bad params: %w", v.Key, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// SaveVariant upserts by (template, key). An id already used by another
// variant is a conflict.
func (s *Store) SaveVariant(ctx context.Context, v generic.Variant) error {
	if v.Key == "" {
		return &generic.ValidationError{Field: "key", Message: "required"}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if v.ID == "" {
		err := s.db.QueryRowContext(ctx, `SELECT id FROM variants WHERE template_key = ? AND key = ?`, v.TemplateKey, v.Key).Scan(&v.ID)
		if errors.Is(err, sql.ErrNoRows) {
			v.ID = uuid.NewString()
		} else if err != nil {
			return fmt.Errorf("failed to look up variant: %w", err)
		}
	}
	params, err := json.Marshal(nonNilParams(v.Params))
	if err != nil {
		return fmt.Errorf("failed to encode variant params: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO variants (id, template_key, key, unit, enabled, params_json)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(template_key, key) DO UPDATE SET
			id = excluded.id,
			unit = excluded.unit,
			enabled = excluded.enabled,
			params_json = excluded.params_json
	`, v.ID, v.TemplateKey, v.Key, v.Unit, v.Enabled, string(params))
	switch {
	case err == nil:
		return nil
	case isForeignKeyError(err):
		return fmt.Errorf("%w: %s", generic.ErrTemplateNotFound, v.TemplateKey)
	case isUniqueConstraintError(err):
		return fmt.Errorf("%w: variant id %s", generic.ErrDuplicateKey, v.ID)
	default:
		return fmt.Errorf("failed to save variant: %w", err)
	}
}

// =============================================================================
// PRICES (generic.PriceStore, generic.PriceWriter)
// =============================================================================

const priceColumns = `seq, id, tenant, ref_key, price, unit, valid_from, valid_to, note`

// FindPrices answers all keys with one query.
func (s *Store) FindPrices(ctx context.Context, tenant generic.TenantID, refKeys []string, at time.Time) ([]generic.PriceRecord, error) {
	if len(refKeys) == 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(refKeys)), ",")
	args := make([]any, 0, len(refKeys)+2)
	args = append(args, string(tenant), formatTime(at))
	for _, k := range refKeys {
		args = append(args, k)
	}

	return s.queryPrices(ctx, `
		SELECT `+priceColumns+` FROM price_records
		WHERE tenant = ? AND valid_from <= ? AND ref_key IN (`+placeholders+`)
		ORDER BY ref_key, valid_from, seq
	`, args...)
}

func (s *Store) AppendPrice(ctx context.Context, rec generic.PriceRecord) (generic.PriceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	var validTo sql.NullString
	if rec.ValidTo != nil {
		validTo = sql.NullString{String: formatTime(*rec.ValidTo), Valid: true}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_records (id, tenant, ref_key, price, unit, valid_from, valid_to, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, string(rec.Tenant), rec.RefKey, rec.Price.String(), rec.Unit,
		formatTime(rec.ValidFrom), validTo, rec.Note, formatTime(time.Now()))
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.PriceRecord{}, fmt.Errorf("%w: price id %s", generic.ErrDuplicateKey, rec.ID)
		}
		return generic.PriceRecord{}, fmt.Errorf("failed to append price: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return generic.PriceRecord{}, fmt.Errorf("failed to read price sequence: %w", err)
	}
	rec.Seq = seq
	return rec, nil
}

func (s *Store) ListPrices(ctx context.Context, tenant generic.TenantID, refKey string) ([]generic.PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT ` + priceColumns + ` FROM price_records WHERE tenant = ?`
	args := []any{string(tenant)}
	if refKey != "" {
		query += ` AND ref_key = ?`
		args = append(args, refKey)
	}
	return s.queryPrices(ctx, query+` ORDER BY ref_key, valid_from, seq`, args...)
}

func (s *Store) queryPrices(ctx context.Context, query string, args ...any) ([]generic.PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var out []generic.PriceRecord
	for rows.Next() {
		var rec generic.PriceRecord
		var tenant, price, from string
		var to sql.NullString
		if err := rows.Scan(&rec.Seq, &rec.ID, &tenant, &rec.RefKey, &price, &rec.Unit, &from, &to, &rec.Note); err != nil {
			return nil, err
		}
		rec.Tenant = generic.TenantID(tenant)
		if rec.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("price %s: bad amount %q: %w", rec.ID, price, err)
		}
		if rec.ValidFrom, err = parseTime(from); err != nil {
			return nil, err
		}
		if to.Valid {
			t, err := parseTime(to.String)
			if err != nil {
				return nil, err
			}
			rec.ValidTo = &t
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"price_records", "variants", "components", "templates"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func nonNilParams(p generic.Params) generic.Params {
	if p == nil {
		return generic.Params{}
	}
	return p
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

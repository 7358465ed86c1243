/*
store.go - Collaborator interfaces for templates and prices

PURPOSE:
  Defines the boundary between the engine and persistence. The engine only
  ever reads through these interfaces; writes belong to administrative
  operations and live on CatalogStore.

KEY INTERFACES:
  TemplateStore: read-only template and variant lookup
  PriceStore:    batched price record lookup per tenant
  CatalogStore:  both of the above plus administrative writes

BATCHED PRICE READS:
  FindPrices receives every distinct reference key of a template at once.
  Implementations must answer with a single query; the engine never asks
  per component. The reference date is a hint that lets a store skip
  records that only become effective later. The engine re-applies the
  full interval filter and latest-wins selection itself, so a store may
  ignore the hint.

IMPLEMENTATIONS:
  - generic/store/memory.go: In-memory for tests and development
  - store/sqlite/sqlite.go:   Embedded SQLite (default)
  - store/postgres/prices.go: Shared Postgres price list

SEE ALSO:
  - resolver.go: latest-wins selection over FindPrices output
  - engine.go:   the only consumer of these interfaces
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// READ INTERFACES - What the engine consumes
// =============================================================================

// TemplateStore fetches templates and their stored variants.
type TemplateStore interface {
	// GetTemplate returns ErrTemplateNotFound (possibly wrapped) for unknown keys.
	GetTemplate(ctx context.Context, key string) (*Template, error)

	// ListTemplates returns every template ordered by key.
	ListTemplates(ctx context.Context) ([]Template, error)

	// ListVariants returns all stored variants of a template, enabled or not,
	// ordered by key.
	ListVariants(ctx context.Context, templateKey string) ([]Variant, error)
}

// PriceStore fetches candidate price records for a tenant.
type PriceStore interface {
	// FindPrices returns all records of tenant whose RefKey is in refKeys.
	// Records with ValidFrom after at may be omitted.
	FindPrices(ctx context.Context, tenant TenantID, refKeys []string, at time.Time) ([]PriceRecord, error)
}

// =============================================================================
// CATALOG STORE - Administrative writes
// =============================================================================

// PriceWriter appends and lists price records. Records are never updated in
// place; a new quotation is a new record.
type PriceWriter interface {
	// AppendPrice assigns Seq (and ID when empty) and returns the stored record.
	AppendPrice(ctx context.Context, rec PriceRecord) (PriceRecord, error)

	// ListPrices returns a tenant's records, optionally for one refKey,
	// ordered by RefKey then ValidFrom then Seq.
	ListPrices(ctx context.Context, tenant TenantID, refKey string) ([]PriceRecord, error)
}

// CatalogStore is everything the API layer needs.
type CatalogStore interface {
	TemplateStore
	PriceStore
	PriceWriter

	// SaveTemplate inserts or replaces a template (components included).
	SaveTemplate(ctx context.Context, t Template) error

	// SaveVariant inserts or replaces a variant of an existing template.
	SaveVariant(ctx context.Context, v Variant) error

	// Reset deletes all data. Development only.
	Reset(ctx context.Context) error
}

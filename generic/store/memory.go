// Package store provides Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/warp/recipe-costing/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	templates map[string]generic.Template
	variants  map[string]map[string]generic.Variant // template key -> variant key
	prices    []generic.PriceRecord
	priceIDs  map[string]bool
	seq       int64
}

var _ generic.CatalogStore = (*Memory)(nil)

func NewMemory() *Memory {
	m := &Memory{}
	m.resetLocked()
	return m
}

func (m *Memory) resetLocked() {
	m.templates = make(map[string]generic.Template)
	m.variants = make(map[string]map[string]generic.Variant)
	m.prices = nil
	m.priceIDs = make(map[string]bool)
	m.seq = 0
}

// Reset drops everything, including the price sequence.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
	return nil
}

// =============================================================================
// TEMPLATES & VARIANTS
// =============================================================================

func (m *Memory) GetTemplate(_ context.Context, key string) (*generic.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", generic.ErrTemplateNotFound, key)
	}
	c := cloneTemplate(t)
	return &c, nil
}

func (m *Memory) ListTemplates(_ context.Context) ([]generic.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]generic.Template, 0, len(m.templates))
	for _, t := range m.templates {
		out = append(out, cloneTemplate(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) ListVariants(_ context.Context, templateKey string) ([]generic.Variant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byKey := m.variants[templateKey]
	out := make([]generic.Variant, 0, len(byKey))
	for _, v := range byKey {
		v.Params = v.Params.Clone()
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *Memory) SaveTemplate(_ context.Context, t generic.Template) error {
	if t.Key == "" {
		return &generic.ValidationError{Field: "key", Message: "required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		if old, ok := m.templates[t.Key]; ok {
			t.ID = old.ID
		} else {
			t.ID = uuid.NewString()
		}
	}
	m.templates[t.Key] = cloneTemplate(t)
	return nil
}

// SaveVariant replaces a variant with the same key. An id already used by
// another variant of the template is a conflict.
func (m *Memory) SaveVariant(_ context.Context, v generic.Variant) error {
	if v.Key == "" {
		return &generic.ValidationError{Field: "key", Message: "required"}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.templates[v.TemplateKey]; !ok {
		return fmt.Errorf("%w: %s", generic.ErrTemplateNotFound, v.TemplateKey)
	}
	byKey := m.variants[v.TemplateKey]
	if byKey == nil {
		byKey = make(map[string]generic.Variant)
		m.variants[v.TemplateKey] = byKey
	}
	if v.ID == "" {
		if old, ok := byKey[v.Key]; ok {
			v.ID = old.ID
		} else {
			v.ID = uuid.NewString()
		}
	}
	for k, other := range byKey {
		if k != v.Key && other.ID == v.ID {
			return fmt.Errorf("%w: variant id %s", generic.ErrDuplicateKey, v.ID)
		}
	}
	v.Virtual = false
	v.Params = v.Params.Clone()
	byKey[v.Key] = v
	return nil
}

// =============================================================================
// PRICES
// =============================================================================

// FindPrices answers the whole key set in one pass. Records that only
// become effective after at are skipped.
func (m *Memory) FindPrices(_ context.Context, tenant generic.TenantID, refKeys []string, at time.Time) ([]generic.PriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wanted := make(map[string]bool, len(refKeys))
	for _, k := range refKeys {
		wanted[k] = true
	}
	var out []generic.PriceRecord
	for _, p := range m.prices {
		if p.Tenant != tenant || !wanted[p.RefKey] || p.ValidFrom.After(at) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) AppendPrice(_ context.Context, rec generic.PriceRecord) (generic.PriceRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if m.priceIDs[rec.ID] {
		return generic.PriceRecord{}, fmt.Errorf("%w: price id %s", generic.ErrDuplicateKey, rec.ID)
	}
	m.seq++
	rec.Seq = m.seq
	m.prices = append(m.prices, rec)
	m.priceIDs[rec.ID] = true
	return rec, nil
}

func (m *Memory) ListPrices(_ context.Context, tenant generic.TenantID, refKey string) ([]generic.PriceRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.PriceRecord
	for _, p := range m.prices {
		if p.Tenant != tenant || (refKey != "" && p.RefKey != refKey) {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.RefKey != b.RefKey {
			return a.RefKey < b.RefKey
		}
		if !a.ValidFrom.Equal(b.ValidFrom) {
			return a.ValidFrom.Before(b.ValidFrom)
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

func cloneTemplate(t generic.Template) generic.Template {
	t.DefaultParams = t.DefaultParams.Clone()
	t.Tags = append([]string(nil), t.Tags...)
	t.Components = append([]generic.Component(nil), t.Components...)
	return t
}

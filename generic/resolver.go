package generic

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// =============================================================================
// PRICE RESOLVER - At most one price per key for a reference date
// =============================================================================

// PriceResolver turns a batched store read into one effective record per
// reference key.
type PriceResolver struct {
	Store PriceStore
}

// Resolve loads candidates for the distinct refKeys in a single store call
// and selects the effective record per key. Keys without an effective
// record are absent from the result.
func (r *PriceResolver) Resolve(ctx context.Context, tenant TenantID, refKeys []string, at time.Time) (map[string]PriceRecord, error) {
	keys := distinctSorted(refKeys)
	if len(keys) == 0 {
		return map[string]PriceRecord{}, nil
	}

	records, err := r.Store.FindPrices(ctx, tenant, keys, at)
	if err != nil {
		return nil, fmt.Errorf("load prices for %d keys: %w", len(keys), err)
	}

	wanted := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}
	filtered := records[:0:0]
	for _, rec := range records {
		if rec.Tenant != tenant {
			continue
		}
		if _, ok := wanted[rec.RefKey]; !ok {
			continue
		}
		filtered = append(filtered, rec)
	}
	return SelectEffective(filtered, at), nil
}

// SelectEffective picks, per RefKey, the record valid at `at` with the
// latest ValidFrom. Equal ValidFrom is broken by the highest Seq, then by
// the greatest ID.
func SelectEffective(records []PriceRecord, at time.Time) map[string]PriceRecord {
	out := make(map[string]PriceRecord)
	for _, rec := range records {
		if !rec.Window().Contains(at) {
			continue
		}
		cur, ok := out[rec.RefKey]
		if !ok || supersedes(rec, cur) {
			out[rec.RefKey] = rec
		}
	}
	return out
}

func supersedes(a, b PriceRecord) bool {
	if !a.ValidFrom.Equal(b.ValidFrom) {
		return a.ValidFrom.After(b.ValidFrom)
	}
	if a.Seq != b.Seq {
		return a.Seq > b.Seq
	}
	return a.ID > b.ID
}

func distinctSorted(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

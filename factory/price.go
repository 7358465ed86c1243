package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/recipe-costing/generic"
)

// =============================================================================
// PRICE LIST
// =============================================================================

// PriceJSON is one quotation. Dates accept "2006-01-02" (start of the UTC
// day) or RFC 3339. Price accepts a JSON number or a decimal string.
type PriceJSON struct {
	ID        string          `json:"id,omitempty"`
	RefKey    string          `json:"ref_key"`
	Price     decimal.Decimal `json:"price"`
	Unit      string          `json:"unit"`
	ValidFrom string          `json:"valid_from"`
	ValidTo   string          `json:"valid_to,omitempty"`
	Note      string          `json:"note,omitempty"`
}

// ParsePriceList parses a JSON array of quotations for tenant.
func ParsePriceList(tenant generic.TenantID, jsonStr string) ([]generic.PriceRecord, error) {
	var pjs []PriceJSON
	if err := json.Unmarshal([]byte(jsonStr), &pjs); err != nil {
		return nil, &generic.ValidationError{Field: "prices", Message: fmt.Sprintf("failed to parse JSON: %v", err)}
	}
	out := make([]generic.PriceRecord, 0, len(pjs))
	for i, pj := range pjs {
		rec, err := PriceFromJSON(tenant, pj)
		if err != nil {
			var ve *generic.ValidationError
			if asValidation(err, &ve) {
				ve.Field = fmt.Sprintf("prices[%d].%s", i, ve.Field)
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// PriceFromJSON validates a quotation and converts it.
func PriceFromJSON(tenant generic.TenantID, pj PriceJSON) (generic.PriceRecord, error) {
	if strings.TrimSpace(string(tenant)) == "" {
		return generic.PriceRecord{}, &generic.ValidationError{Field: "tenant", Message: "required"}
	}
	refKey := strings.TrimSpace(pj.RefKey)
	if refKey == "" {
		return generic.PriceRecord{}, &generic.ValidationError{Field: "ref_key", Message: "required"}
	}
	if pj.Price.IsNegative() {
		return generic.PriceRecord{}, &generic.ValidationError{Field: "price", Message: "must not be negative"}
	}
	if strings.TrimSpace(pj.ValidFrom) == "" {
		return generic.PriceRecord{}, &generic.ValidationError{Field: "valid_from", Message: "required"}
	}
	from, err := ParseBoundary(pj.ValidFrom)
	if err != nil {
		return generic.PriceRecord{}, &generic.ValidationError{Field: "valid_from", Message: err.Error()}
	}

	rec := generic.PriceRecord{
		ID:        pj.ID,
		Tenant:    tenant,
		RefKey:    refKey,
		Price:     pj.Price,
		Unit:      pj.Unit,
		ValidFrom: from,
		Note:      pj.Note,
	}
	if strings.TrimSpace(pj.ValidTo) != "" {
		to, err := ParseBoundary(pj.ValidTo)
		if err != nil {
			return generic.PriceRecord{}, &generic.ValidationError{Field: "valid_to", Message: err.Error()}
		}
		if !to.After(from) {
			return generic.PriceRecord{}, &generic.ValidationError{Field: "valid_to", Message: "must be after valid_from"}
		}
		rec.ValidTo = &to
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	return rec, nil
}

// PriceToJSON is the inverse of PriceFromJSON, with RFC 3339 boundaries.
func PriceToJSON(rec generic.PriceRecord) PriceJSON {
	pj := PriceJSON{
		ID:        rec.ID,
		RefKey:    rec.RefKey,
		Price:     rec.Price,
		Unit:      rec.Unit,
		ValidFrom: rec.ValidFrom.UTC().Format(time.RFC3339),
		Note:      rec.Note,
	}
	if rec.ValidTo != nil {
		pj.ValidTo = rec.ValidTo.UTC().Format(time.RFC3339)
	}
	return pj
}

// ParseBoundary reads a validity boundary. A bare date means the start of
// that UTC day.
func ParseBoundary(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(generic.DateLayout, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q (use YYYY-MM-DD or RFC 3339)", s)
}

func asValidation(err error, target **generic.ValidationError) bool {
	return errors.As(err, target)
}

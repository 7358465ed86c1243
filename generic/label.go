package generic

import (
	"strings"
)

// =============================================================================
// LABEL BUILDER - Deterministic human-readable names for parameter sets
// =============================================================================

// LabelSeparator joins label fragments.
const LabelSeparator = " / "

// LabelRule renders one known parameter. Format returns ok=false when the
// value should not produce a fragment (e.g. a false flag).
type LabelRule struct {
	Key    string
	Format func(v Value) (string, bool)
}

// LabelBuilder walks its rules in order. Domain packages supply the rules
// (see construction.LabelRules).
type LabelBuilder struct {
	Rules []LabelRule
}

// Label renders the fragments of every rule whose key is present in merged,
// or failing that in base. It falls back to fallback when nothing renders,
// so the result is never empty for a non-empty fallback.
func (lb *LabelBuilder) Label(merged, base Params, fallback string) string {
	var parts []string
	for _, rule := range lb.Rules {
		if IsMetaKey(rule.Key) || rule.Format == nil {
			continue
		}
		v := merged.Get(rule.Key)
		if v.IsMissing() {
			v = base.Get(rule.Key)
		}
		if v.IsMissing() || v.Kind() == KindNull {
			continue
		}
		if frag, ok := rule.Format(v); ok && frag != "" {
			parts = append(parts, frag)
		}
	}
	if len(parts) == 0 {
		return fallback
	}
	return strings.Join(parts, LabelSeparator)
}

package construction

import (
	"strconv"
	"strings"

	"github.com/warp/recipe-costing/generic"
)

// =============================================================================
// LABEL RULES - Site-report shorthand, e.g. "DN200 / T 1.5 m / GW"
// =============================================================================

// LabelRules returns the fragments in display order.
func LabelRules() []generic.LabelRule {
	return []generic.LabelRule{
		{Key: ParamDN, Format: prefixed("DN", "")},
		{Key: ParamPN, Format: prefixed("PN", "")},
		{Key: ParamDepth, Format: prefixed("T ", " m")},
		{Key: ParamWidth, Format: prefixed("B ", " m")},
		{Key: ParamLength, Format: prefixed("L ", " m")},
		{Key: ParamSoilClass, Format: prefixed("BK ", "")},
		{Key: ParamGroundwater, Format: groundwater},
		{Key: ParamRestrictedAccess, Format: flag("restricted")},
		{Key: ParamDisposalClass, Format: verbatim},
		{Key: ParamDistance, Format: prefixed("", " km")},
		{Key: ParamAsphaltThickness, Format: prefixed("asphalt ", " cm")},
		{Key: ParamBaseThickness, Format: prefixed("base ", " cm")},
		{Key: ParamMaterial, Format: verbatim},
	}
}

func Labels() *generic.LabelBuilder {
	return &generic.LabelBuilder{Rules: LabelRules()}
}

// prefixed renders numbers (or numeric strings) with a prefix and suffix;
// other strings are shown as given.
func prefixed(prefix, suffix string) func(generic.Value) (string, bool) {
	return func(v generic.Value) (string, bool) {
		if v.Kind() == generic.KindNumber || v.Kind() == generic.KindString {
			if n, ok := v.Number(); ok {
				return prefix + formatNumber(n) + suffix, true
			}
		}
		if v.Kind() == generic.KindString && strings.TrimSpace(v.Text()) != "" {
			return prefix + strings.TrimSpace(v.Text()) + suffix, true
		}
		return "", false
	}
}

func groundwater(v generic.Value) (string, bool) {
	on, ok := truthy(v)
	if !ok {
		return "", false
	}
	if on {
		return "GW", true
	}
	return "no GW", true
}

// flag renders only when the value is true.
func flag(text string) func(generic.Value) (string, bool) {
	return func(v generic.Value) (string, bool) {
		on, ok := truthy(v)
		return text, ok && on
	}
}

func verbatim(v generic.Value) (string, bool) {
	switch v.Kind() {
	case generic.KindString:
		s := strings.TrimSpace(v.Text())
		return s, s != ""
	case generic.KindNumber:
		return formatNumber(v.Float()), true
	default:
		return "", false
	}
}

func truthy(v generic.Value) (bool, bool) {
	switch v.Kind() {
	case generic.KindBool:
		return v.Boolean(), true
	case generic.KindNumber:
		return v.Float() != 0, true
	case generic.KindString:
		switch strings.ToLower(strings.TrimSpace(v.Text())) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	}
	return false, false
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

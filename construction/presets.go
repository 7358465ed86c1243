/*
presets.go - Ready-made recipe templates for common civil works

PURPOSE:
  JSON definitions for the three templates most site estimates start
  from, plus a demo price list. They are plain JSON strings so that the
  factory package can parse them without importing this package.

AVAILABLE TEMPLATES (quantity = the unit in brackets):
  TrenchExcavationJSON:   trench excavation and haul-off      [m trench]
  PipeLayingJSON:         pipe laying incl. bedding and test  [m pipe]
  SurfaceRestorationJSON: asphalt surface restoration         [m² surface]

FORMULAS:
  Every formula sees the merged parameters plus the requested quantity as
  qty. Booleans are 1/0 so "groundwater ? a : b" selects a branch.

EXAMPLE:
  tpl, variants, err := factory.NewTemplateFactory().ParseTemplate(construction.PipeLayingJSON())

SEE ALSO:
  - factory/template.go: JSON to generic.Template
  - api/scenarios.go:    loads these into a store
*/
package construction

import "encoding/json"

const (
	TemplateTrenchExcavation   = "trench-excavation"
	TemplatePipeLaying         = "pipe-laying"
	TemplateSurfaceRestoration = "surface-restoration"
)

// DemoTenant owns the demo price list.
const DemoTenant = "demo"

// TrenchExcavationJSON returns the trench excavation template.
func TrenchExcavationJSON() string {
	tj := map[string]interface{}{
		"key":         TemplateTrenchExcavation,
		"title":       "Trench excavation",
		"category":    "earthworks",
		"unit":        "m",
		"description": "Machine excavation of a pipe trench with shoring, dewatering and haul-off",
		"tags":        []string{"earthworks", "trench"},
		"default_params": map[string]interface{}{
			ParamWidth:            0.8,
			ParamDepth:            1.5,
			ParamSoilClass:        3,
			ParamGroundwater:      false,
			ParamRestrictedAccess: false,
			ParamDisposalClass:    "Z1.1",
			ParamDistance:         12,
		},
		"components": []map[string]interface{}{
			{"type": "MACHINE", "ref_key": "MACH_EXCAVATOR_14T", "sort": 10, "mandatory": true,
				"qty_formula": "qty * width * depth / (restrictedAccess ? 8 : 15)", "note": "h, productivity m³/h"},
			{"type": "LABOR", "ref_key": "LAB_EARTHWORKS_CREW", "sort": 20, "mandatory": true,
				"qty_formula": "qty * width * depth * (soilClass >= 5 ? 0.9 : 0.6) * (restrictedAccess ? 1.5 : 1)", "note": "h"},
			{"type": "MATERIAL", "ref_key": "MAT_TRENCH_SHORING", "sort": 30,
				"qty_formula": "depth > 1.25 ? qty * depth * 2 : 0", "note": "m² both walls"},
			{"type": "MACHINE", "ref_key": "MACH_DEWATERING_PUMP", "sort": 40, "risk_factor": 1.2,
				"qty_formula": "groundwater ? ceil(qty / 20) * 8 : 0", "note": "h"},
			{"type": "DISPOSAL", "ref_key": "DISP_SOIL_Z11", "sort": 50, "mandatory": true,
				"qty_formula": "round(qty * width * depth * 1.8, 2)", "note": "t at 1.8 t/m³"},
			{"type": "MACHINE", "ref_key": "TRANSPORT_TRUCK_KM", "sort": 60,
				"qty_formula": "ceil(qty * width * depth * 1.8 / 14) * distance * 2", "note": "km round trip, 14 t loads"},
		},
		"variants": []map[string]interface{}{
			{"key": "deep-groundwater", "params": map[string]interface{}{
				ParamDepth: 2.5, ParamWidth: 1.0, ParamGroundwater: true,
			}},
			{"key": "rocky", "params": map[string]interface{}{
				ParamSoilClass: 6, ParamDisposalClass: "Z2",
			}},
			{"key": "hand-dig", "params": map[string]interface{}{
				ParamRestrictedAccess: true, ParamDepth: 1.0, ParamWidth: 0.6,
			}},
		},
	}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}

// PipeLayingJSON returns the pipe laying template.
func PipeLayingJSON() string {
	tj := map[string]interface{}{
		"key":         TemplatePipeLaying,
		"title":       "Pipe laying",
		"category":    "pipework",
		"unit":        "m",
		"description": "Laying of pressure pipe in a prepared trench incl. sand bedding and pressure test",
		"tags":        []string{"pipework", "water"},
		"default_params": map[string]interface{}{
			ParamDN:           200,
			ParamPN:           10,
			ParamMaterial:     "PVC-U",
			ParamDepth:        1.5,
			ParamFittingCount: 0,
		},
		"components": []map[string]interface{}{
			{"type": "MATERIAL", "ref_key": "PIPE_DN200", "sort": 10, "mandatory": true,
				"qty_formula": "qty * 1.02", "note": "m incl. 2% offcut"},
			{"type": "MATERIAL", "ref_key": "MAT_BEDDING_SAND", "sort": 20,
				"qty_formula": "round(qty * (dn / 1000 + 0.4) * 0.3, 3)", "note": "m³"},
			{"type": "LABOR", "ref_key": "LAB_PIPE_CREW", "sort": 30, "mandatory": true,
				"qty_formula": "qty * (dn <= 200 ? 0.25 : 0.4) + fittingCount * 0.5", "note": "h"},
			{"type": "MATERIAL", "ref_key": "MAT_FITTING", "sort": 40,
				"qty_formula": "fittingCount", "note": "pcs"},
			{"type": "OTHER", "ref_key": "PRESSURE_TEST", "sort": 90, "mandatory": true, "risk_factor": 1.1,
				"qty_formula": "qty > 0 ? ceil(qty / 500) : 0", "note": "per started 500 m section"},
		},
		"variants": []map[string]interface{}{
			{"key": "dn300-pe", "params": map[string]interface{}{
				ParamDN: 300, ParamPN: 16, ParamMaterial: "PE 100",
			}},
			{"key": "dn150", "params": map[string]interface{}{
				ParamDN: 150,
			}},
			{"key": "fitting-heavy", "params": map[string]interface{}{
				ParamFittingCount: 6,
			}},
		},
	}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}

// SurfaceRestorationJSON returns the asphalt surface restoration template.
func SurfaceRestorationJSON() string {
	tj := map[string]interface{}{
		"key":         TemplateSurfaceRestoration,
		"title":       "Surface restoration",
		"category":    "surfaces",
		"unit":        "m²",
		"description": "Reinstatement of an asphalt road surface over a backfilled trench",
		"tags":        []string{"surfaces", "asphalt"},
		"default_params": map[string]interface{}{
			ParamAsphaltThickness: 12,
			ParamBaseThickness:    30,
			ParamRestrictedAccess: false,
		},
		"components": []map[string]interface{}{
			{"type": "MATERIAL", "ref_key": "MAT_BASE_GRAVEL", "sort": 10, "mandatory": true,
				"qty_formula": "round(qty * baseThickness / 100 * 2.0, 2)", "note": "t at 2.0 t/m³"},
			{"type": "MATERIAL", "ref_key": "MAT_ASPHALT", "sort": 20, "mandatory": true,
				"qty_formula": "round(qty * asphaltThickness / 100 * 2.4, 2)", "note": "t at 2.4 t/m³"},
			{"type": "SURFACE", "ref_key": "SURF_PAVING", "sort": 30, "mandatory": true,
				"qty_formula": "qty", "note": "m²"},
			{"type": "MACHINE", "ref_key": "MACH_ROLLER", "sort": 40,
				"qty_formula": "max(2, qty / 150 * 8) * (restrictedAccess ? 1.3 : 1)", "note": "h, min. 2 h"},
			{"type": "LABOR", "ref_key": "LAB_SURFACE_CREW", "sort": 50,
				"qty_formula": "qty * 0.12", "note": "h"},
		},
		"variants": []map[string]interface{}{
			{"key": "heavy-traffic", "params": map[string]interface{}{
				ParamAsphaltThickness: 18, ParamBaseThickness: 45,
			}},
			{"key": "footpath", "params": map[string]interface{}{
				ParamAsphaltThickness: 6, ParamBaseThickness: 20,
			}},
		},
	}
	b, _ := json.MarshalIndent(tj, "", "  ")
	return string(b)
}

// TemplatePresets lists every preset in load order.
func TemplatePresets() []string {
	return []string{TrenchExcavationJSON(), PipeLayingJSON(), SurfaceRestorationJSON()}
}

// DemoPriceListJSON returns unit prices for every preset reference key.
// PIPE_DN200 and LAB_PIPE_CREW change on 2024-06-01 to exercise temporal
// resolution. MAT_FITTING is deliberately unpriced.
func DemoPriceListJSON() string {
	prices := []map[string]interface{}{
		{"ref_key": "MACH_EXCAVATOR_14T", "price": "78.00", "unit": "h", "valid_from": "2024-01-01"},
		{"ref_key": "LAB_EARTHWORKS_CREW", "price": "58.50", "unit": "h", "valid_from": "2024-01-01"},
		{"ref_key": "MAT_TRENCH_SHORING", "price": "6.40", "unit": "m²", "valid_from": "2024-01-01"},
		{"ref_key": "MACH_DEWATERING_PUMP", "price": "14.20", "unit": "h", "valid_from": "2024-01-01"},
		{"ref_key": "DISP_SOIL_Z11", "price": "18.90", "unit": "t", "valid_from": "2024-01-01"},
		{"ref_key": "TRANSPORT_TRUCK_KM", "price": "2.35", "unit": "km", "valid_from": "2024-01-01"},
		{"ref_key": "PIPE_DN200", "price": "8.50", "unit": "m", "valid_from": "2024-01-01", "valid_to": "2024-06-01"},
		{"ref_key": "PIPE_DN200", "price": "9.20", "unit": "m", "valid_from": "2024-06-01", "note": "supplier increase"},
		{"ref_key": "MAT_BEDDING_SAND", "price": "32.00", "unit": "m³", "valid_from": "2024-01-01"},
		{"ref_key": "LAB_PIPE_CREW", "price": "62.40", "unit": "h", "valid_from": "2024-01-01"},
		{"ref_key": "LAB_PIPE_CREW", "price": "64.10", "unit": "h", "valid_from": "2024-06-01", "note": "wage agreement"},
		{"ref_key": "PRESSURE_TEST", "price": "420.00", "unit": "pcs", "valid_from": "2024-01-01"},
		{"ref_key": "MAT_BASE_GRAVEL", "price": "21.30", "unit": "t", "valid_from": "2024-01-01"},
		{"ref_key": "MAT_ASPHALT", "price": "96.00", "unit": "t", "valid_from": "2024-01-01"},
		{"ref_key": "SURF_PAVING", "price": "11.80", "unit": "m²", "valid_from": "2024-01-01"},
		{"ref_key": "MACH_ROLLER", "price": "45.00", "unit": "h", "valid_from": "2024-01-01"},
		{"ref_key": "LAB_SURFACE_CREW", "price": "55.00", "unit": "h", "valid_from": "2024-01-01"},
	}
	b, _ := json.MarshalIndent(prices, "", "  ")
	return string(b)
}

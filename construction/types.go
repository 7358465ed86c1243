// Package construction implements the civil-works vocabulary of the costing
// engine: parameter names, similarity weights, label formats and ready-made
// recipe templates for trench, pipe and surface work.
package construction

import (
	"github.com/warp/recipe-costing/generic"
)

// =============================================================================
// PARAMETER NAMES
// =============================================================================

const (
	ParamDN               = "dn"               // nominal diameter, mm
	ParamPN               = "pn"               // nominal pressure, bar
	ParamDepth            = "depth"            // trench depth, m
	ParamWidth            = "width"            // trench width, m
	ParamLength           = "length"           // run length, m
	ParamSoilClass        = "soilClass"        // excavation class 1-7
	ParamGroundwater      = "groundwater"      // bool
	ParamRestrictedAccess = "restrictedAccess" // bool, hand digging near utilities
	ParamDisposalClass    = "disposalClass"    // e.g. "Z1.1"
	ParamDistance         = "distance"         // haul distance, km
	ParamAsphaltThickness = "asphaltThickness" // cm
	ParamBaseThickness    = "baseThickness"    // cm
	ParamMaterial         = "material"         // pipe material
	ParamFittingCount     = "fittingCount"
)

// NewEngine returns an engine that scores and labels with the construction
// vocabulary.
func NewEngine(templates generic.TemplateStore, prices generic.PriceStore) *generic.Engine {
	e := generic.NewEngine(templates, prices)
	e.Scorer = generic.NewScorer(Weights())
	e.Labels = Labels()
	return e
}

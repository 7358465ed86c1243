package construction

import "github.com/warp/recipe-costing/generic"

// Weights ranks how much a parameter matters when matching a site to a
// variant. Diameter and depth drive cost the most; a fitting count barely
// moves it.
func Weights() generic.WeightTable {
	return generic.WeightTable{
		ParamDN:               3,
		ParamDepth:            3,
		ParamWidth:            2,
		ParamPN:               2,
		ParamSoilClass:        2,
		ParamLength:           1.5,
		ParamGroundwater:      1.5,
		ParamDisposalClass:    1.5,
		ParamAsphaltThickness: 1.5,
		ParamRestrictedAccess: 1,
		ParamDistance:         1,
		ParamBaseThickness:    1,
		ParamMaterial:         1,
		ParamFittingCount:     0.5,
	}
}

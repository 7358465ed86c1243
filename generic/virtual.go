package generic

// =============================================================================
// VIRTUAL DEFAULT VARIANT
// =============================================================================

const (
	// VirtualDefaultKey is the key of the synthesized default variant.
	VirtualDefaultKey = "default"

	// VirtualMetaKey tags the synthesized variant's params.
	VirtualMetaKey = "_virtual"

	virtualIDPrefix = "virtual:"
)

// VirtualDefaultID derives the synthesized variant's id from the template key.
func VirtualDefaultID(templateKey string) string { return virtualIDPrefix + templateKey }

// VirtualDefault builds the in-memory variant that stands for "the template
// exactly as defined". It is never persisted.
func VirtualDefault(t Template) Variant {
	params := t.DefaultParams.Clone()
	if params == nil {
		params = Params{}
	}
	params[VirtualMetaKey] = Bool(true)
	return Variant{
		ID:          VirtualDefaultID(t.Key),
		Key:         VirtualDefaultKey,
		TemplateKey: t.Key,
		Unit:        t.Unit,
		Enabled:     true,
		Virtual:     true,
		Params:      params,
	}
}

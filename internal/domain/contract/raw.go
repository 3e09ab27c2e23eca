package contract

// rawTreezPayload is the decode target for the Treez source's
// RawPayloadContract (spec §6), the only concrete raw schema the spec
// names. Another source's shape would be built through the same
// newStructContract helper with a different struct.
type rawTreezPayload struct {
	ExternalID string   `mapstructure:"external_id" validate:"required"`
	Name       string   `mapstructure:"name" validate:"required"`
	Brand      *string  `mapstructure:"brand" validate:"omitempty"`
	Strain     *string  `mapstructure:"strain" validate:"omitempty"`
	Tags       []string `mapstructure:"tags" validate:"omitempty,dive"`
	PriceCents *int64   `mapstructure:"price_cents" validate:"omitempty"`
	Status     string   `mapstructure:"status" validate:"omitempty,oneof=active inactive"`
}

// NewTreezRawPayloadContract builds the raw payload contract for the
// Treez source schema named in spec §6.
func NewTreezRawPayloadContract() Contract {
	return newStructContract("raw_payload.treez", func() any { return &rawTreezPayload{} })
}

// Registry maps a source_id to the RawPayloadContract it must satisfy.
// Sources without an entry fall back to the fallback contract, chosen by the
// caller (typically an all-optional-but-external_id/name contract).
type Registry struct {
	bySource map[string]Contract
	fallback Contract
}

// NewRegistry builds a Registry with the given source->contract map and
// fallback contract, mirroring the teacher's config-driven registry
// pattern (e.g. policy id -> PolicyConfig lookups in internal/config).
func NewRegistry(bySource map[string]Contract, fallback Contract) *Registry {
	clone := make(map[string]Contract, len(bySource))
	for k, v := range bySource {
		clone[k] = v
	}
	return &Registry{bySource: clone, fallback: fallback}
}

// For returns the contract registered for sourceID, or the fallback.
func (r *Registry) For(sourceID string) Contract {
	if c, ok := r.bySource[sourceID]; ok {
		return c
	}
	return r.fallback
}

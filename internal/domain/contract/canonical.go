package contract

// canonicalMenuItem is the decode target for CanonicalMenuItemContract
// (spec §6): the shape a changeset must satisfy, merged over the prior
// payload projection, before persistence.
type canonicalMenuItem struct {
	ExternalID string `mapstructure:"external_id" validate:"required"`
	Name       string `mapstructure:"name" validate:"required"`
	BrandID    *int64 `mapstructure:"brand_id" validate:"omitempty"`
	StrainID   *int64 `mapstructure:"strain_id" validate:"omitempty"`
	TagIDs     []int  `mapstructure:"tag_ids" validate:"omitempty,dive"`
	PriceCents *int64 `mapstructure:"price_cents" validate:"omitempty,gt=0"`
	Status     string `mapstructure:"status" validate:"required,oneof=active inactive"`
}

// NewCanonicalMenuItemContract builds the single canonical-schema
// contract every ruleset output is checked against before persistence.
func NewCanonicalMenuItemContract() Contract {
	return newStructContract("canonical_menu_item", func() any { return &canonicalMenuItem{} })
}

// Package replay defines the ReplayPack: the immutable, self-contained
// JSON artifact recorded for every terminal item (spec §6), sufficient
// on its own to re-run that item's canonical transform and compare the
// result against what actually happened.
package replay

// PackVersion is bumped on any incompatible shape change to Pack; object
// keys encode it nowhere, but loaders branch on Pack.PackVersion.
const PackVersion = 1

// RuleOrderEntry records one rule's position in the compiled order the
// pack was produced under, letting a replay verify the ruleset it is
// replaying against still orders rules identically.
type RuleOrderEntry struct {
	Name     string `json:"name"`
	Priority int    `json:"priority"`
}

// ResolverSnapshot is a copy of the batch's entire LookupMaps (not only
// the entries this item consulted), frozen into the pack so a replay
// never needs live access to the original lookup backend.
type ResolverSnapshot struct {
	Brands  map[string]int64          `json:"brands"`
	Strains map[string]int64          `json:"strains"`
	Tags    map[string]TagSnapshot    `json:"tags"`
}

// TagSnapshot mirrors rule.TagRecord for JSON embedding without this
// package depending on the rule package.
type TagSnapshot struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Pack is the exact JSON document shape spec §6 defines. Field order
// here doesn't matter to encoding/json, but is kept in the same order
// as the schema for readability against it.
type Pack struct {
	PackVersion int `json:"pack_version"`
	ProducedAt  int64 `json:"produced_at"`

	Env                  string `json:"env"`
	AppVersion           string `json:"app_version"`
	GitSHA               string `json:"git_sha"`
	RulesetVersion       string `json:"ruleset_version"`
	FlagsVersion         string `json:"flags_version"`
	PayloadSchemaVersion string `json:"payload_schema_version"`

	SourceID   string `json:"source_id"`
	ExternalID string `json:"external_id"`
	IngestID   string `json:"ingest_id"`

	Status string `json:"status"`

	FiredRules []string `json:"fired_rules"`

	RawPayloadNormalized map[string]any `json:"raw_payload_normalized"`
	MappedPayload        map[string]any `json:"mapped_payload"`

	ChangedKeys []string       `json:"changed_keys"`
	Changes     map[string]any `json:"changes"`

	Violations map[string][]string `json:"violations"`

	ResolverSnapshot ResolverSnapshot `json:"resolver_snapshot"`
	RulesOrder       []RuleOrderEntry `json:"rules_order"`
	FlagsSnapshot    map[string]bool  `json:"flags_snapshot"`
}

// ObjectKey computes the object-store layout key spec §6 mandates:
// env=<env>/date=<YYYY-MM-DD>/status=<status>/ruleset=<ver>/<source_id>/<external_id>/<ingest_id>.json.gz
func (p Pack) ObjectKey(date string) string {
	return "env=" + p.Env +
		"/date=" + date +
		"/status=" + p.Status +
		"/ruleset=" + p.RulesetVersion +
		"/" + p.SourceID +
		"/" + p.ExternalID +
		"/" + p.IngestID + ".json.gz"
}

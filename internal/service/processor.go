package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/contract"
	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
	"github.com/catalogforge/ingestpipe/internal/port/outbound"
)

// DestroyPointer reports whether a normalized payload marks its record
// for destruction (spec §4.6 step 3).
type DestroyPointer func(mappedPayload map[string]any) bool

// ProcessorConfig wires the per-source and per-action collaborators the
// Item Processor dispatches to. One ProcessorConfig is built per Pipeline
// from the compiled rulesets and the source registry, and each
// Pipeline.Run builds a fresh Processor from it.
type ProcessorConfig struct {
	RawContracts         *contract.Registry
	CanonicalContract    contract.Contract
	ExternalTransformers map[string]*ruleset.RuleSet // keyed by source_id
	DestroyPointers      map[string]DestroyPointer   // keyed by source_id
	CreateRuleSet        *ruleset.RuleSet
	UpdateRuleSet        *ruleset.RuleSet
	Store                outbound.MenuItemStore
}

// Processor implements C6: the eight-stage per-item state machine,
// driven once per item against the batch's frozen BatchContext.
//
// Grounded on the teacher's policy_service.go Evaluate method: a single
// exported entry point that threads one input through a fixed sequence
// of pure decision steps, returning early the moment a terminal
// condition is reached.
type Processor struct {
	cfg    ProcessorConfig
	logger *slog.Logger
	cache  *evalCache
}

// evalCacheSize bounds the per-batch canonical-evaluation cache. 512
// covers a generously large bulk sync's distinct (action, changed-key,
// payload) shapes without holding onto more than one batch's memory.
const evalCacheSize = 512

// NewProcessor constructs a Processor for one batch.
func NewProcessor(cfg ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{cfg: cfg, logger: logger, cache: newEvalCache(evalCacheSize)}
}

// Process runs one filtered item through every stage, returning the
// terminal itemctx.Context. It never returns a Go error for per-item
// failures — those become a rejected status with violations populated,
// exactly as spec §4.6/§7 requires; an error return is reserved for
// programmer bugs (a source with no registered transformer).
func (p *Processor) Process(ctx context.Context, batch batchctx.Context, item itemctx.Context) (itemctx.Context, error) {
	item, terminal := p.rawValidate(item)
	if terminal {
		return item, nil
	}

	item, transformer, terminal := p.transformAndClassify(ctx, batch, item)
	if terminal {
		return item, nil
	}
	if transformer == nil {
		return item, fmt.Errorf("processor: no external transformer registered for source %q", item.SourceID())
	}

	item = p.computeChangeset(item)

	item, terminal, err := p.canonicalTransform(batch, item)
	if err != nil {
		return itemctx.Context{}, err
	}
	if terminal {
		return item, nil
	}

	item, terminal = p.canonicalValidate(item)
	if terminal {
		return item, nil
	}

	item = p.persist(ctx, item)
	return item, nil
}

// rawValidate is stage 2.
func (p *Processor) rawValidate(item itemctx.Context) (itemctx.Context, bool) {
	c := p.cfg.RawContracts.For(item.SourceID())
	result := c.Validate(item.Payload())
	if result.OK {
		return item, false
	}
	item = item.
		WithStatus(itemctx.StatusRejected).
		WithViolations(toViolations(result.Violations)).
		AppendFired("raw_validation")
	return item, true
}

// transformAndClassify is stage 3: normalize the payload via the
// source's external transformer RuleSet, resolve the existing record,
// and classify the action.
func (p *Processor) transformAndClassify(ctx context.Context, batch batchctx.Context, item itemctx.Context) (itemctx.Context, *ruleset.RuleSet, bool) {
	transformer, ok := p.cfg.ExternalTransformers[item.SourceID()]
	if !ok {
		return item, nil, false
	}

	result, err := transformer.Evaluate(batch, item)
	if err != nil {
		item = item.WithStatus(itemctx.StatusRejected).WithViolation("external_transform", err.Error())
		return item, transformer, true
	}

	mapped := mergeMaps(item.Payload(), result.Changes)
	item = item.WithPayload(mapped).AppendFiredMany(result.Fired)

	action, menuItem, found, err := p.classify(ctx, item.SourceID(), item.ExternalID(), mapped)
	if err != nil {
		item = item.WithStatus(itemctx.StatusRejected).WithViolation("action", err.Error())
		return item, transformer, true
	}
	if action == itemctx.ActionUnset {
		item = item.WithStatus(itemctx.StatusRejected).WithViolation("action", "unclassifiable")
		return item, transformer, true
	}

	item = item.WithAction(action).WithMenuItem(menuItem, found)
	return item, transformer, false
}

func (p *Processor) classify(ctx context.Context, sourceID, externalID string, mappedPayload map[string]any) (itemctx.Action, map[string]any, bool, error) {
	rec, found, err := p.cfg.Store.Find(ctx, sourceID, externalID)
	if err != nil {
		return itemctx.ActionUnset, nil, false, err
	}

	destroyFlag := false
	if dp, ok := p.cfg.DestroyPointers[sourceID]; ok {
		destroyFlag = dp(mappedPayload)
	}

	switch {
	case !found && !destroyFlag:
		return itemctx.ActionCreate, nil, false, nil
	case found && destroyFlag:
		return itemctx.ActionDestroy, rec.Fields, true, nil
	case found && !destroyFlag:
		return itemctx.ActionUpdate, rec.Fields, true, nil
	default: // !found && destroyFlag
		return itemctx.ActionUnset, nil, false, nil
	}
}

// computeChangeset is stage 4.
func (p *Processor) computeChangeset(item itemctx.Context) itemctx.Context {
	switch item.Action() {
	case itemctx.ActionCreate:
		return item.WithAllKeys()
	case itemctx.ActionDestroy:
		return item.WithChangedKeys(fieldset.New())
	case itemctx.ActionUpdate:
		menuItem, _ := item.MenuItem()
		return item.WithChangedKeys(diffKeys(menuItem, item.Payload()))
	default:
		return item
	}
}

// canonicalTransform is stage 5.
func (p *Processor) canonicalTransform(batch batchctx.Context, item itemctx.Context) (itemctx.Context, bool, error) {
	var rs *ruleset.RuleSet
	switch item.Action() {
	case itemctx.ActionCreate:
		rs = p.cfg.CreateRuleSet
	case itemctx.ActionUpdate:
		rs = p.cfg.UpdateRuleSet
	case itemctx.ActionDestroy:
		return item, false, nil // DestroyProcessor has no canonical rules.
	}
	if rs == nil {
		return item, false, fmt.Errorf("processor: no canonical ruleset configured for action %q", item.Action())
	}

	menuItem, present := item.MenuItem()
	cacheKey, cacheable := computeEvalCacheKey(rs.Version(), item.Action(), item.IsAllKeys(), item.ChangedKeys(), item.Payload(), menuItem, present)

	result, hit := ruleset.EvalResult{}, false
	if cacheable {
		result, hit = p.cache.Get(cacheKey)
	}
	var err error
	if !hit {
		result, err = rs.Evaluate(batch, item)
		if err == nil && cacheable {
			p.cache.Put(cacheKey, cloneResult(result))
		}
	}
	if err != nil {
		var applyErr *ruleset.RuleApplyError
		key := "rule_conflict"
		if errors.As(err, &applyErr) {
			key = "rule_error." + applyErr.Rule
		}
		item = item.WithStatus(itemctx.StatusRejected).WithViolation(key, err.Error())
		return item, true, nil
	}

	// The changeset to persist is the mapped payload restricted to the
	// changed-key set (the whole payload on create), with any
	// canonical-rule writes (resolved brand/strain/tag ids, derived
	// defaults) layered on top.
	merged := mergeMaps(passthroughChanges(item), result.Changes)
	item = item.WithChanges(merged).AppendFiredMany(result.Fired)
	if !result.AllKeys {
		item = item.WithChangedKeys(result.ChangedKeys)
	}
	return item, false, nil
}

// passthroughChanges projects the item's normalized payload onto its
// changed-key set, giving fields the canonical ruleset never touches
// (e.g. name, external_id) a path into the persisted changeset.
func passthroughChanges(item itemctx.Context) map[string]any {
	payload := item.Payload()
	if item.IsAllKeys() {
		return payload
	}
	out := map[string]any{}
	for _, k := range item.ChangedKeys().Sorted() {
		if v, ok := payload[k]; ok {
			out[k] = v
		}
	}
	return out
}

// canonicalValidate is stage 6. It validates the record as it would
// exist after persistence: the existing record (for an update), topped
// with the normalized payload and then the canonical changeset, so a
// partial update payload doesn't spuriously fail on fields it never
// touched.
func (p *Processor) canonicalValidate(item itemctx.Context) (itemctx.Context, bool) {
	if item.Action() == itemctx.ActionDestroy {
		return item, false
	}
	base := map[string]any{}
	if existing, found := item.MenuItem(); found {
		base = existing
	}
	merged := mergeMaps(mergeMaps(base, item.Payload()), item.Changes())
	result := p.cfg.CanonicalContract.Validate(merged)
	if result.OK {
		return item, false
	}
	item = item.WithStatus(itemctx.StatusRejected).WithViolations(toViolations(result.Violations))
	return item, true
}

// persist is stage 7.
func (p *Processor) persist(ctx context.Context, item itemctx.Context) itemctx.Context {
	switch item.Action() {
	case itemctx.ActionCreate:
		if err := p.cfg.Store.Create(ctx, item.SourceID(), item.ExternalID(), item.Changes()); err != nil {
			return item.WithStatus(itemctx.StatusRejected).WithViolation("persistence", err.Error())
		}
		return item.WithStatus(itemctx.StatusCreated)

	case itemctx.ActionUpdate:
		changes := item.Changes()
		if len(changes) == 0 {
			return item.WithStatus(itemctx.StatusNoop)
		}
		rec, found, err := p.cfg.Store.Find(ctx, item.SourceID(), item.ExternalID())
		if err != nil {
			return item.WithStatus(itemctx.StatusRejected).WithViolation("persistence", err.Error())
		}
		silent := found && fieldset.New(mapKeys(changes)...).SubsetOf(fieldset.New(rec.SilentColumns...))
		if err := p.cfg.Store.Update(ctx, item.SourceID(), item.ExternalID(), changes, silent); err != nil {
			return item.WithStatus(itemctx.StatusRejected).WithViolation("persistence", err.Error())
		}
		return item.WithStatus(itemctx.StatusUpdated)

	case itemctx.ActionDestroy:
		if err := p.cfg.Store.Destroy(ctx, item.SourceID(), item.ExternalID(), "ingest_destroy"); err != nil {
			return item.WithStatus(itemctx.StatusRejected).WithViolation("persistence", err.Error())
		}
		return item.WithStatus(itemctx.StatusDestroyed)

	default:
		return item.WithStatus(itemctx.StatusRejected).WithViolation("action", "unclassifiable")
	}
}

func toViolations(v contract.Violations) map[string][]string {
	return map[string][]string(v)
}

func mapKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func mergeMaps(base, overlay map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// diffKeys implements spec §4.6 step 4's semantic-equality diff over the
// fields the source actually sent: a key in incoming is "changed" if its
// value differs from the existing record, with nil treated as equal to
// an empty slice for optional array fields. A field the source omits
// entirely is left untouched, not treated as cleared.
func diffKeys(existing, incoming map[string]any) fieldset.Set {
	changed := fieldset.New()
	for k, v := range incoming {
		if !semanticEqual(existing[k], v) {
			changed = changed.With(k)
		}
	}
	return changed
}

func semanticEqual(a, b any) bool {
	if isBlankArray(a) && isBlankArray(b) {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func isBlankArray(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return rv.Len() == 0
	default:
		return false
	}
}

// Package itemctx defines the immutable per-item value threaded through
// the processor's stages. Every stage takes a Context and returns a new
// one; the original is never mutated (spec §3, §4.6).
package itemctx

import (
	"github.com/catalogforge/ingestpipe/internal/domain/fieldset"
	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// Action classifies what the pipeline should do with a record.
type Action string

const (
	ActionUnset   Action = ""
	ActionCreate  Action = "create"
	ActionUpdate  Action = "update"
	ActionDestroy Action = "destroy"
)

// Status is the item's position in the processor state machine.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRejected   Status = "rejected"
	StatusNoop       Status = "noop"
	StatusCreated    Status = "created"
	StatusUpdated    Status = "updated"
	StatusDestroyed  Status = "destroyed"
)

// Terminal reports whether s is one of the state machine's terminal states.
func (s Status) Terminal() bool {
	switch s {
	case StatusRejected, StatusNoop, StatusCreated, StatusUpdated, StatusDestroyed:
		return true
	default:
		return false
	}
}

// Context is the frozen, per-item carrier. All fields are copy-on-write:
// a stage builds its successor with With* and never edits in place.
type Context struct {
	payload     map[string]any
	menuItem    map[string]any // nil when absent (create)
	hasMenuItem bool

	changedKeys fieldset.Set
	allKeys     bool // sentinel: changedKeys represents "all" (create)

	action Action
	status Status

	fired      []string
	violations map[string][]string
	changes    rule.Patch

	externalID string
	ingestID   string
	sourceID   string
}

// New constructs the initial Context for a filtered raw item.
func New(externalID, sourceID string, payload map[string]any) Context {
	return Context{
		payload:    cloneMap(payload),
		status:     StatusQueued,
		violations: map[string][]string{},
		changes:    rule.Patch{},
		externalID: externalID,
		sourceID:   sourceID,
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneStrings(ss []string) []string {
	out := make([]string, len(ss))
	copy(out, ss)
	return out
}

func cloneViolations(v map[string][]string) map[string][]string {
	out := make(map[string][]string, len(v))
	for k, msgs := range v {
		out[k] = cloneStrings(msgs)
	}
	return out
}

// Payload returns the normalized raw payload mapping.
func (c Context) Payload() map[string]any { return cloneMap(c.payload) }

// MenuItem returns the existing canonical record, if any.
func (c Context) MenuItem() (map[string]any, bool) {
	if !c.hasMenuItem {
		return nil, false
	}
	return cloneMap(c.menuItem), true
}

// ChangedKeys returns the set of changed field names (empty, never the
// "all" sentinel — check IsAllKeys first).
func (c Context) ChangedKeys() fieldset.Set { return c.changedKeys.Clone() }

// IsAllKeys reports whether ChangedKeys should be read as "every field".
func (c Context) IsAllKeys() bool { return c.allKeys }

// Action returns the classified action.
func (c Context) Action() Action { return c.action }

// Status returns the current state-machine status.
func (c Context) Status() Status { return c.status }

// Fired returns the ordered list of rule names that have fired so far.
func (c Context) Fired() []string { return cloneStrings(c.fired) }

// Violations returns the accumulated field->messages map.
func (c Context) Violations() map[string][]string { return cloneViolations(c.violations) }

// Valid reports whether Violations is empty.
func (c Context) Valid() bool { return len(c.violations) == 0 }

// Invalid is the negation of Valid.
func (c Context) Invalid() bool { return !c.Valid() }

// Changes returns the accumulated patch produced by rule evaluation.
func (c Context) Changes() rule.Patch { return c.changes.Clone() }

// ExternalID returns the upstream item identifier.
func (c Context) ExternalID() string { return c.externalID }

// IngestID returns the per-attempt ingest identifier, set once assigned.
func (c Context) IngestID() string { return c.ingestID }

// SourceID returns the originating source identifier.
func (c Context) SourceID() string { return c.sourceID }

// WithPayload returns a successor with a replaced (normalized) payload.
func (c Context) WithPayload(payload map[string]any) Context {
	next := c
	next.payload = cloneMap(payload)
	return next
}

// WithMenuItem returns a successor carrying the resolved existing record.
func (c Context) WithMenuItem(menuItem map[string]any, present bool) Context {
	next := c
	if present {
		next.menuItem = cloneMap(menuItem)
	} else {
		next.menuItem = nil
	}
	next.hasMenuItem = present
	return next
}

// WithAction returns a successor with the classified action.
func (c Context) WithAction(a Action) Context {
	next := c
	next.action = a
	return next
}

// WithStatus returns a successor in a new status.
func (c Context) WithStatus(s Status) Context {
	next := c
	next.status = s
	return next
}

// WithChangedKeys returns a successor carrying a concrete changed-key set.
func (c Context) WithChangedKeys(keys fieldset.Set) Context {
	next := c
	next.changedKeys = keys.Clone()
	next.allKeys = false
	return next
}

// WithAllKeys returns a successor whose ChangedKeys represents "every field".
func (c Context) WithAllKeys() Context {
	next := c
	next.changedKeys = fieldset.Set{}
	next.allKeys = true
	return next
}

// WithIngestID returns a successor with the ingest id assigned.
func (c Context) WithIngestID(id string) Context {
	next := c
	next.ingestID = id
	return next
}

// AppendFired returns a successor with name appended to the fired list.
func (c Context) AppendFired(name string) Context {
	next := c
	next.fired = append(cloneStrings(c.fired), name)
	return next
}

// AppendFiredMany returns a successor with names appended to the fired list.
func (c Context) AppendFiredMany(names []string) Context {
	next := c
	next.fired = append(cloneStrings(c.fired), names...)
	return next
}

// WithViolation returns a successor with a message appended under field.
func (c Context) WithViolation(field, message string) Context {
	next := c
	next.violations = cloneViolations(c.violations)
	next.violations[field] = append(next.violations[field], message)
	return next
}

// WithViolations returns a successor with an entire violations map merged in.
func (c Context) WithViolations(v map[string][]string) Context {
	next := c
	next.violations = cloneViolations(c.violations)
	for field, msgs := range v {
		next.violations[field] = append(next.violations[field], msgs...)
	}
	return next
}

// WithChanges returns a successor carrying the rule engine's output patch.
func (c Context) WithChanges(changes rule.Patch) Context {
	next := c
	next.changes = changes.Clone()
	return next
}

// MergeChangedKeysFromWrites folds a fired rule's writes into the running
// changed-key set, per spec §4.2 "update the running ctx".
func (c Context) MergeChangedKeysFromWrites(writes fieldset.Set) Context {
	if c.allKeys {
		return c
	}
	next := c
	next.changedKeys = c.changedKeys.Union(writes)
	return next
}

package rules

import (
	"sort"

	"github.com/catalogforge/ingestpipe/internal/domain/rule"
)

// TagsRule resolves a payload's free-text "tags" list to catalog
// tag_ids, dropping any tag name the preloaded lookup map didn't
// resolve rather than failing the item (the same spirit as P5, applied
// to a list-valued reference instead of a scalar one). IDs are emitted
// sorted so the resulting changeset is stable across otherwise-equal
// inputs with differently ordered tag lists.
type TagsRule struct {
	meta rule.Meta
}

// NewTagsRule builds a TagsRule with the given priority and ordering
// constraints.
func NewTagsRule(priority int, before, after []string) *TagsRule {
	return &TagsRule{
		meta: rule.NewMeta("tags_rule", priority,
			[]string{"tags"}, []string{"tag_ids"}, before, after, nil),
	}
}

func (r *TagsRule) Meta() rule.Meta { return r.meta }

func (r *TagsRule) Applies(ctx rule.EvalContext) bool {
	if !ctx.IsAllKeys() && !ctx.ChangedKeys().Contains("tags") {
		return false
	}
	_, ok := ctx.Payload()["tags"]
	return ok
}

func (r *TagsRule) Apply(ctx rule.EvalContext) (rule.Patch, error) {
	names := tagNames(ctx.Payload())
	if len(names) == 0 {
		return rule.Patch{"tag_ids": []int64{}}, nil
	}

	ids := make([]int64, 0, len(names))
	for _, name := range names {
		tag, ok := ctx.LookupTag(name)
		if !ok {
			continue
		}
		ids = append(ids, tag.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return rule.Patch{"tag_ids": ids}, nil
}

// tagNames extracts the payload's "tags" field as a slice of trimmed,
// non-empty strings, tolerating []string, []any, or a missing/wrong-typed field.
func tagNames(payload map[string]any) []string {
	raw, ok := payload["tags"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return filterNonEmpty(v)
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return filterNonEmpty(out)
	default:
		return nil
	}
}

func filterNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

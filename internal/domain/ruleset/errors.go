package ruleset

import "errors"

// errCycleDuringOrder guards kahnOrder's own invariant: it should never
// fire because Compile always runs stronglyConnectedComponents first and
// rejects any cycle before reaching kahnOrder.
var errCycleDuringOrder = errors.New("ruleset: topological order incomplete, cycle slipped past scc check")

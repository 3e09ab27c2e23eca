package service

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/obs"
	"github.com/catalogforge/ingestpipe/internal/domain/batchctx"
	"github.com/catalogforge/ingestpipe/internal/domain/ingesterr"
	"github.com/catalogforge/ingestpipe/internal/domain/itemctx"
	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/port/outbound"
)

// RawItem is one unit of inbound work handed to the Pipeline, before any
// filtering, validation, or transformation has run.
type RawItem struct {
	ExternalID string         `json:"external_id"`
	Payload    map[string]any `json:"payload"`
}

// PipelineConfig wires everything one Pipeline.Run call needs beyond the
// raw items themselves: the batch-scoped collaborators (C4/C5), the
// per-item collaborators (C6's ProcessorConfig), and the replay sink.
type PipelineConfig struct {
	Env             string
	SourceID        string
	RulesetVersion  string
	Concurrency     int
	Preloader       *Preloader
	FlagSnapshotter *FlagSnapshotter
	FlagActorKey    string
	FlagNamespace   string
	Processor       ProcessorConfig
	Build           replay.BuildInfo
	Artifacts       outbound.ArtifactStore
	// Obs records per-item spans/latency and batch counters. Nil is a
	// valid, fully functional no-op recorder (see obs.Recorder).
	Obs *obs.Recorder
}

// BatchResult is what Pipeline.Run returns once every item has reached a
// terminal status: the per-item outcomes in original input order, plus
// batch-level tallies spec §7 requires for the caller's summary.
type BatchResult struct {
	Outcomes  []replay.Outcome
	Created   int
	Updated   int
	Destroyed int
	Noop      int
	Rejected  int
}

// Pipeline implements C7: batch assembly (preload + flag snapshot),
// deduplication by external_id, concurrent per-item dispatch to a
// Processor, and the Observe stage (replay-pack emission) the processor
// itself defers.
//
// Grounded on the teacher's UpstreamManager.StartAll: a bounded
// sync.WaitGroup-based fan-out over a slice, each goroutine writing into
// its own pre-assigned result slot so no result-collection channel or
// extra ordering step is needed.
type Pipeline struct {
	cfg                PipelineConfig
	ruleOrderForAction func(itemctx.Action) []replay.RuleOrderEntry
	logger             *slog.Logger
}

// NewPipeline constructs a Pipeline. ruleOrderForAction resolves, for a
// terminal item's action, the RuleOrderEntry slice its canonical
// RuleSet compiled to (nil for destroy, which has none).
func NewPipeline(cfg PipelineConfig, ruleOrderForAction func(itemctx.Action) []replay.RuleOrderEntry, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Pipeline{cfg: cfg, ruleOrderForAction: ruleOrderForAction, logger: logger}
}

// Run processes one batch of raw items end to end.
func (p *Pipeline) Run(ctx context.Context, items []RawItem) (BatchResult, error) {
	filtered, rejectedDupes := p.filterDuplicates(items)

	payloads := make([]map[string]any, len(filtered))
	for i, it := range filtered {
		payloads[i] = it.Payload
	}

	lookups, err := p.cfg.Preloader.Preload(ctx, payloads)
	if err != nil {
		return BatchResult{}, fmt.Errorf("pipeline: preload failed: %w", err)
	}

	flags, err := p.cfg.FlagSnapshotter.Snapshot(ctx, p.cfg.FlagActorKey, p.cfg.FlagNamespace)
	if err != nil {
		return BatchResult{}, fmt.Errorf("%w: flag snapshot failed: %v", ingesterr.ErrBatchFatal, err)
	}

	batch := batchctx.NewBuilder().
		WithNow(time.Now().UTC()).
		WithEnv(p.cfg.Env).
		WithSourceID(p.cfg.SourceID).
		WithRulesetVersion(p.cfg.RulesetVersion).
		WithFlags(flags).
		WithLookups(lookups).
		Freeze()

	processor := NewProcessor(p.cfg.Processor, p.logger)

	terminals := make([]itemctx.Context, len(filtered))
	p.runWorkers(ctx, batch, processor, filtered, terminals)

	outcomes := make([]replay.Outcome, 0, len(filtered)+len(rejectedDupes))
	var result BatchResult

	producedAt := time.Now().UTC().Unix()
	var replayErr error
	for _, item := range terminals {
		if err := p.observe(ctx, batch, item, producedAt); err != nil {
			replayErr = err
		}
		outcomes = append(outcomes, outcomeFromItem(item))
		tally(&result, item.Status())
	}
	for _, item := range rejectedDupes {
		outcomes = append(outcomes, outcomeFromItem(item))
		tally(&result, item.Status())
	}

	p.cfg.Obs.ObserveBatch(replayErr)

	result.Outcomes = outcomes
	return result, nil
}

// filterDuplicates implements stage 1 (batch-level, spec §4.6): the
// first occurrence of an external_id proceeds, later occurrences are
// rejected outright without ever reaching the processor.
func (p *Pipeline) filterDuplicates(items []RawItem) ([]itemctx.Context, []itemctx.Context) {
	seen := make(map[string]bool, len(items))
	filtered := make([]itemctx.Context, 0, len(items))
	var rejected []itemctx.Context

	for _, raw := range items {
		item := itemctx.New(raw.ExternalID, p.cfg.SourceID, raw.Payload).WithIngestID(uuid.NewString())
		if seen[raw.ExternalID] {
			item = item.WithStatus(itemctx.StatusRejected).WithViolation("external_id", "duplicate within batch")
			rejected = append(rejected, item)
			continue
		}
		seen[raw.ExternalID] = true
		filtered = append(filtered, item)
	}
	return filtered, rejected
}

// runWorkers fans Process calls out over cfg.Concurrency goroutines,
// each item writing its own terminal result into its pre-assigned slot.
func (p *Pipeline) runWorkers(ctx context.Context, batch batchctx.Context, processor *Processor, items []itemctx.Context, terminals []itemctx.Context) {
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for i := range items {
		i := i
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			itemCtx, endSpan := p.cfg.Obs.StartItem(ctx, items[i].ExternalID())
			start := time.Now()

			out, err := processor.Process(itemCtx, batch, items[i])
			if err != nil {
				p.logger.Error("item processing failed", "external_id", items[i].ExternalID(), "error", err)
				out = items[i].WithStatus(itemctx.StatusRejected).WithViolation("processor", err.Error())
			}

			endSpan(string(out.Status()))
			p.cfg.Obs.ObserveItem(ctx, string(out.Status()), time.Since(start).Seconds())
			terminals[i] = out
		}()
	}

	wg.Wait()
}

// observe implements stage 8: build a replay.Pack for the terminal item
// and write it through ArtifactStore.PutIfAbsent, keyed by the object
// layout spec §6 mandates. A write failure is logged, not fatal — the
// item's own outcome has already been decided and must not regress to
// rejected just because the replay sink is unavailable.
func (p *Pipeline) observe(ctx context.Context, batch batchctx.Context, item itemctx.Context, producedAt int64) error {
	rulesOrder := p.ruleOrderForAction(item.Action())
	pack := replay.Build(p.cfg.Build, batch, item, producedAt, item.Payload(), rulesOrder)

	body, err := encodePack(pack)
	if err != nil {
		p.logger.Error("replay pack encode failed", "external_id", item.ExternalID(), "error", err)
		return err
	}

	date := time.Unix(producedAt, 0).UTC().Format("2006-01-02")
	key := pack.ObjectKey(date)
	if err := p.cfg.Artifacts.PutIfAbsent(ctx, key, body); err != nil {
		p.logger.Error("replay pack write failed", "key", key, "error", err)
		return err
	}
	return nil
}

func encodePack(pack replay.Pack) ([]byte, error) {
	raw, err := json.Marshal(pack)
	if err != nil {
		return nil, fmt.Errorf("marshal replay pack: %w", err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("gzip replay pack: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("gzip replay pack: %w", err)
	}
	return buf.Bytes(), nil
}

func outcomeFromItem(item itemctx.Context) replay.Outcome {
	var violations map[string][]string
	if item.Invalid() {
		violations = item.Violations()
	}
	return replay.Outcome{
		ExternalID: item.ExternalID(),
		Status:     string(item.Status()),
		FiredRules: item.Fired(),
		Violations: violations,
	}
}

func tally(result *BatchResult, status itemctx.Status) {
	switch status {
	case itemctx.StatusCreated:
		result.Created++
	case itemctx.StatusUpdated:
		result.Updated++
	case itemctx.StatusDestroyed:
		result.Destroyed++
	case itemctx.StatusNoop:
		result.Noop++
	case itemctx.StatusRejected:
		result.Rejected++
	}
}

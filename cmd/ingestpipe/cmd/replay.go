package cmd

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/objectstore"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/yamlconfig"
	"github.com/catalogforge/ingestpipe/internal/domain/replay"
	"github.com/catalogforge/ingestpipe/internal/domain/ruleset"
	"github.com/catalogforge/ingestpipe/internal/rules"
	"github.com/catalogforge/ingestpipe/internal/service"
)

var (
	replayDir           string
	replayKey           string
	replayFile          string
	replayCreateRuleset string
	replayUpdateRuleset string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Re-run a recorded replay pack and compare the outcome",
	Long: `replay loads a gzip-encoded ReplayPack, either by object-store
key (--dir/--key) or directly from a file path (--file), recompiles the
create or update ruleset the pack names, and re-evaluates the pack's
frozen inputs against it. A mismatch between the pack's recorded fired
rules/changes and the recomputed ones means the ruleset has drifted
since the pack was produced.`,
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayDir, "dir", "", "object store root (used with --key)")
	replayCmd.Flags().StringVar(&replayKey, "key", "", "object store key of the pack to replay")
	replayCmd.Flags().StringVar(&replayFile, "file", "", "path to a gzip-encoded pack file (alternative to --dir/--key)")
	replayCmd.Flags().StringVar(&replayCreateRuleset, "create-ruleset", "", "YAML ruleset document compiled as the create-action RuleSet (required)")
	replayCmd.Flags().StringVar(&replayUpdateRuleset, "update-ruleset", "", "YAML ruleset document compiled as the update-action RuleSet (required)")
	_ = replayCmd.MarkFlagRequired("create-ruleset")
	_ = replayCmd.MarkFlagRequired("update-ruleset")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	body, err := readPackBody()
	if err != nil {
		return err
	}

	pack, err := decodePack(body)
	if err != nil {
		return err
	}

	evaluator, err := ingestcel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("build CEL evaluator: %w", err)
	}
	registry := rules.NewRegistry()

	createRS, err := compileRulesetDoc(replayCreateRuleset, registry, evaluator)
	if err != nil {
		return fmt.Errorf("compile create ruleset: %w", err)
	}
	updateRS, err := compileRulesetDoc(replayUpdateRuleset, registry, evaluator)
	if err != nil {
		return fmt.Errorf("compile update ruleset: %w", err)
	}

	runner := service.NewReplayRunner(createRS, updateRS)
	result, err := runner.Run(pack)
	if err != nil {
		return err
	}

	if result.Match {
		fmt.Printf("replay OK: %s/%s reproduced identically\n", pack.SourceID, pack.ExternalID)
		return nil
	}
	fmt.Printf("replay MISMATCH: %s/%s\n  %s\n", pack.SourceID, pack.ExternalID, result.Diff)
	return fmt.Errorf("replay: pack did not reproduce")
}

func readPackBody() ([]byte, error) {
	if replayFile != "" {
		return os.ReadFile(replayFile)
	}
	if replayDir == "" || replayKey == "" {
		return nil, fmt.Errorf("replay: either --file or both --dir and --key are required")
	}
	store := objectstore.NewFileStore(replayDir)
	return store.Get(replayKey)
}

func decodePack(body []byte) (replay.Pack, error) {
	gz, err := gzip.NewReader(bytes.NewReader(body))
	if err != nil {
		return replay.Pack{}, fmt.Errorf("replay: ungzip pack: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return replay.Pack{}, fmt.Errorf("replay: read pack: %w", err)
	}

	var pack replay.Pack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return replay.Pack{}, fmt.Errorf("replay: decode pack: %w", err)
	}
	return pack, nil
}

func compileRulesetDoc(path string, registry *rules.Registry, evaluator *ingestcel.Evaluator) (*ruleset.RuleSet, error) {
	doc, err := yamlconfig.Load(path)
	if err != nil {
		return nil, err
	}
	return doc.Compile(registry, evaluator)
}

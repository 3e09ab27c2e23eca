package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	ingestcel "github.com/catalogforge/ingestpipe/internal/adapter/outbound/cel"
	"github.com/catalogforge/ingestpipe/internal/adapter/outbound/yamlconfig"
	"github.com/catalogforge/ingestpipe/internal/rules"
)

var validateRulesetPath string

var validateCmd = &cobra.Command{
	Use:   "validate-rules",
	Short: "Compile a ruleset configuration document and report any errors",
	Long: `validate-rules loads a YAML ruleset document, resolves every
enabled rule entry through the built-in class registry, and compiles
the result with ruleset.Compile — surfacing any undeclared class,
malformed condition_rule expression, dependency cycle, or
write-conflict the document would otherwise only fail on at process
start.`,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().StringVar(&validateRulesetPath, "ruleset", "", "path to a YAML ruleset document (required)")
	_ = validateCmd.MarkFlagRequired("ruleset")
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	doc, err := yamlconfig.Load(validateRulesetPath)
	if err != nil {
		return err
	}

	evaluator, err := ingestcel.NewEvaluator()
	if err != nil {
		return fmt.Errorf("build CEL evaluator: %w", err)
	}
	registry := rules.NewRegistry()

	rs, err := doc.Compile(registry, evaluator)
	if err != nil {
		return fmt.Errorf("ruleset %q is invalid: %w", validateRulesetPath, err)
	}

	fmt.Printf("ruleset %q OK: %d rule(s), policy=%s\n", rs.Version(), len(rs.OrderedNames()), rs.Policy())
	for _, name := range rs.OrderedNames() {
		fmt.Printf("  %2d  %s\n", rs.Priority(name), name)
	}
	return nil
}

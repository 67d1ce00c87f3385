package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dawnsearch/dawnsearch/internal/config"
	"github.com/dawnsearch/dawnsearch/internal/embed"
	"github.com/dawnsearch/dawnsearch/internal/preflight"
	"github.com/dawnsearch/dawnsearch/internal/search"
)

// newVerifyCmd builds the `verify` subcommand: it runs the preflight
// checks and search.Provider.Verify() against a node's data directory
// without starting any service, and prints a PASS/WARN/FAIL report in the
// same shape as internal/preflight.CheckResult — per spec section 7,
// "unrecoverable index corruption detected by verify" is one of the three
// FatalStartup conditions, so this is the operator's tool for finding out
// before the node refuses to start.
func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify [config_file]",
		Short: "Check a data directory's integrity without starting the node",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var configPath string
			if len(args) == 1 {
				configPath = args[0]
			}
			return runVerify(cmd, configPath)
		},
	}
	return cmd
}

func runVerify(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	checker := preflight.New(preflight.WithOutput(out), preflight.WithVerbose(true))
	results := checker.RunAll(ctx, cfg.DataDir)
	checker.PrintResults(results)

	embedder := embed.NewStaticEmbedder()
	provider, err := search.Open(ctx, cfg.DataDir, embedder)
	if err != nil {
		fmt.Fprintf(out, "[FAIL] page_store: %v\n", err)
		return err
	}
	defer provider.Shutdown()

	report, err := provider.Verify(ctx)
	if err != nil {
		fmt.Fprintf(out, "[FAIL] page_store_integrity: %v (scanned=%d wrong_length=%d not_normalized=%d)\n",
			err, report.Scanned, report.WrongLength, report.NotNormalized)
		return err
	}

	fmt.Fprintf(out, "[PASS] page_store_integrity: scanned %d pages, 0 violations\n", report.Scanned)
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sawpanic/ruleforge/internal/application/extract"
	"github.com/sawpanic/ruleforge/internal/data/matrix"
	"github.com/sawpanic/ruleforge/internal/domain/rules"
)

type matchOptions struct {
	modelPath string
	dataPath  string
	row       int
	limit     int
}

func newMatchCmd(global *globalOptions) *cobra.Command {
	opts := &matchOptions{}

	cmd := &cobra.Command{
		Use:   "match",
		Short: "Show which ranked rules fire for one row of the data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMatch(cmd, global, opts)
		},
	}

	cmd.Flags().StringVar(&opts.modelPath, "model", "", "LightGBM JSON model dump")
	cmd.Flags().StringVar(&opts.dataPath, "data", "", "CSV feature matrix with a header row")
	cmd.Flags().IntVar(&opts.row, "row", 0, "Zero-based row of the data to explain")
	cmd.Flags().IntVar(&opts.limit, "limit", 5, "Maximum matching rules to print (0 = all)")
	_ = cmd.MarkFlagRequired("model")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runMatch(cmd *cobra.Command, global *globalOptions, opts *matchOptions) error {
	cfg, err := loadConfig(global.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := extract.NewService(extract.ConfigFrom(cfg))
	if err != nil {
		return err
	}
	in, err := svc.LoadInput(opts.modelPath, opts.dataPath)
	if err != nil {
		return err
	}

	m, ok := in.Matrix.(*matrix.Matrix)
	if !ok {
		return fmt.Errorf("unexpected feature matrix type %T", in.Matrix)
	}
	sample, err := m.Row(opts.row)
	if err != nil {
		return err
	}

	result, err := svc.Run(context.Background(), *in)
	if err != nil {
		return err
	}

	matched := rules.MatchSample(result.Rules, sample, opts.limit)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Row %d matches %d of %d ranked rules\n", opts.row, len(matched), len(result.Rules))
	for i, r := range matched {
		fmt.Fprintf(out, "\n#%d (Importance Score: %.2f)\n%s\n", i+1, r.Importance, r.Text(cfg.Extraction.TargetName, svc.Config().Classification()))
	}
	return nil
}

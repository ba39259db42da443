package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/policyscore/internal/diagnostics"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
)

// #region inspect-cmd

func newInspectCmd() *cobra.Command {
	var (
		last    int
		weakest int
		level   string
	)
	cmd := &cobra.Command{
		Use:   "inspect [run-id]",
		Short: "List stored runs or show one run in detail",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 {
				runs, err := s.ListRuns(ctx, last)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd.OutOrStdout(), runs)
				}
				renderRunList(cmd.OutOrStdout(), runs)
				return nil
			}

			id := args[0]
			if id == "baseline" {
				rec, err := s.Baseline(ctx)
				if err != nil {
					return err
				}
				id = rec.RunID
			}
			run, err := s.LoadRun(ctx, id)
			if err != nil {
				return err
			}

			if level != "" {
				scores := run.Scores(hierarchy.Level(level))
				if scores == nil {
					return fmt.Errorf("run %s has no %s scores", run.ID, level)
				}
				return writeJSON(cmd.OutOrStdout(), scores)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schema, err := cfg.Schema()
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"run":        run,
					"coverage":   diagnostics.Coverage(run, schema),
					"violations": diagnostics.ViolationSummary(run),
					"weakest":    diagnostics.WeakestDimensions(run, weakest),
				})
			}
			renderDetail(cmd.OutOrStdout(), run, schema, weakest)
			return nil
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent runs")
	cmd.Flags().IntVar(&weakest, "weakest", 5, "show the N lowest-scoring dimensions")
	cmd.Flags().StringVar(&level, "level", "", "dump the scores of one level as JSON")
	return cmd
}

// #endregion inspect-cmd

// #region baseline-cmd

func newBaselineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "baseline <run-id>",
		Short: "Mark a stored run as the comparison baseline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.SetBaseline(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "baseline set to %s\n", args[0])
			return nil
		},
	}
}

// #endregion baseline-cmd

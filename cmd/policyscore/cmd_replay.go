package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/policyscore/internal/replay"
	"github.com/danielpatrickdp/policyscore/internal/store"
)

// #region replay-cmd

func newReplayCmd() *cobra.Command {
	var (
		fixturePath string
		logResult   bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a fixture of evidence streams and check the recorded outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			schema, err := cfg.Schema()
			if err != nil {
				return err
			}
			f, err := replay.LoadFixture(fixturePath)
			if err != nil {
				return err
			}

			results := replay.Replay(ctx, schema, cfg.Hierarchy(), f.Cases)
			summary := replay.Summarize(results)

			if logResult {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				detail := fmt.Sprintf("%s: %d/%d passed", fixturePath, summary.Passed, summary.Total)
				if err := s.LogEvent(ctx, store.Event{Kind: "replay", Detail: detail}); err != nil {
					return err
				}
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), summary); err != nil {
					return err
				}
			} else {
				w := cmd.OutOrStdout()
				if f.Description != "" {
					fmt.Fprintf(w, "%s\n\n", f.Description)
				}
				table := newTable(w, "Case", "Outcome", "Macro", "Violations", "Result")
				for _, r := range results {
					status := "PASS"
					if !r.Passed {
						status = "FAIL: " + r.Reason
					}
					_ = table.Append([]string{r.Name, r.Outcome, optFloat(r.Macro), fmt.Sprint(r.Violations), status})
				}
				_ = table.Render()
				fmt.Fprintf(w, "\n%d cases: %d passed, %d failed, %d aborted, %d nondeterministic\n",
					summary.Total, summary.Passed, summary.Failed, summary.Aborted, summary.Nondeterministic)
			}

			if summary.Failed > 0 {
				return fmt.Errorf("replay %s: %d of %d cases failed", fixturePath, summary.Failed, summary.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&fixturePath, "fixture", "", "path to the fixture YAML or JSON")
	cmd.Flags().BoolVar(&logResult, "log", false, "record the replay outcome in the database")
	_ = cmd.MarkFlagRequired("fixture")
	return cmd
}

// #endregion replay-cmd

package main

import (
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/policyscore/internal/calibration"
	"github.com/danielpatrickdp/policyscore/internal/choquet"
	"github.com/danielpatrickdp/policyscore/internal/layer"
	"github.com/danielpatrickdp/policyscore/internal/store"
)

// #region requests-file
type requestsFile struct {
	Requests []calibration.Request `yaml:"requests"`
}

func loadRequests(path string) ([]calibration.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	var f requestsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse requests %s: %w", path, err)
	}
	return f.Requests, nil
}

// #endregion requests-file

// #region calibrate-cmd

func newCalibrateCmd() *cobra.Command {
	var (
		requestsPath string
		trustOut     string
		logResult    bool
	)
	cmd := &cobra.Command{
		Use:   "calibrate",
		Short: "Compute Cal(I) for a batch of method invocations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			reg, err := cfg.Registry()
			if err != nil {
				return err
			}
			measure, err := cfg.Measure()
			if err != nil {
				return err
			}
			cal, err := calibration.New(reg, measure, cfg.CalibrationConfig())
			if err != nil {
				return err
			}
			reqs, err := loadRequests(requestsPath)
			if err != nil {
				return err
			}

			results, err := cal.CalibrateBatch(ctx, reqs)
			if err != nil {
				return err
			}

			if trustOut != "" {
				data, err := yaml.Marshal(calibration.TrustWeights(results))
				if err != nil {
					return fmt.Errorf("encode trust: %w", err)
				}
				if err := os.WriteFile(trustOut, data, 0o644); err != nil {
					return fmt.Errorf("write trust: %w", err)
				}
				clog.FromContext(ctx).With("path", trustOut).Info("trust weights written")
			}
			if logResult {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				detail := fmt.Sprintf("%s: %d requests, measure %s, registry %s",
					requestsPath, len(results), cal.MeasureVersion(), reg.Version())
				if err := s.LogEvent(ctx, store.Event{Kind: "calibrate", Detail: detail}); err != nil {
					return err
				}
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), results)
			}
			table := newTable(cmd.OutOrStdout(), "Method", "Role", "Question", "Value", "Linear", "Interaction", "Layers")
			for _, r := range results {
				_ = table.Append([]string{
					r.MethodID, string(r.Role), r.Context.QuestionID,
					fmt.Sprintf("%.4f", r.Value), fmt.Sprintf("%.4f", r.Breakdown.Linear),
					fmt.Sprintf("%.4f", r.Breakdown.Interaction), layerSummary(r.Role, r.Layers),
				})
			}
			_ = table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&requestsPath, "requests", "", "path to the calibration requests YAML or JSON")
	cmd.Flags().StringVar(&trustOut, "trust-out", "", "write per-question trust weights for the run command")
	cmd.Flags().BoolVar(&logResult, "log", false, "record the calibration in the database")
	_ = cmd.MarkFlagRequired("requests")
	return cmd
}

// layerSummary lists the role's layer scores in canonical order.
func layerSummary(role choquet.Role, scores map[layer.ID]layer.Score) string {
	ids, err := choquet.RequiredLayers(role)
	if err != nil {
		return "-"
	}
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%.2f", id, scores[id].Value)
	}
	return out
}

// #endregion calibrate-cmd

package main

import (
	"fmt"
	"os"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
	"github.com/danielpatrickdp/policyscore/internal/store"
)

// #region evidence-file
// evidenceFile is the input document of the run command. JSON parses too.
type evidenceFile struct {
	Evidence []hierarchy.EvidenceScore `yaml:"evidence"`
	Trust    map[string]float64        `yaml:"trust,omitempty"`
}

func loadEvidence(path string) (evidenceFile, error) {
	var f evidenceFile
	data, err := os.ReadFile(path)
	if err != nil {
		return f, fmt.Errorf("read evidence: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("parse evidence %s: %w", path, err)
	}
	return f, nil
}

func loadTrust(path string) (map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trust: %w", err)
	}
	var trust map[string]float64
	if err := yaml.Unmarshal(data, &trust); err != nil {
		return nil, fmt.Errorf("parse trust %s: %w", path, err)
	}
	return trust, nil
}

// #endregion evidence-file

// #region run-cmd

func newRunCmd() *cobra.Command {
	var (
		evidencePath string
		trustPath    string
		record       bool
		strict       bool
		noSave       bool
		baseline     bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Roll up one evidence stream into MICRO to MACRO scores",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := clog.FromContext(ctx)

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if record {
				cfg.Pipeline.AbortOnViolation = false
			}
			if strict {
				cfg.Pipeline.AbortOnInsufficient = true
			}
			schema, err := cfg.Schema()
			if err != nil {
				return err
			}
			measure, err := cfg.Measure()
			if err != nil {
				return err
			}
			hash, err := cfg.Hash()
			if err != nil {
				return err
			}

			in, err := loadEvidence(evidencePath)
			if err != nil {
				return err
			}
			trust := in.Trust
			if trustPath != "" {
				if trust, err = loadTrust(trustPath); err != nil {
					return err
				}
			}

			agg := hierarchy.NewAggregator(schema, cfg.Hierarchy(), hierarchy.WithMeasureVersion(measure.Version))
			run, runErr := agg.Run(ctx, in.Evidence, trust)

			if !noSave {
				s, err := openStore()
				if err != nil {
					return err
				}
				defer s.Close()
				meta := store.RunMeta{
					SchemaVersion:  schema.Version,
					MeasureVersion: measure.Version,
					ConfigHash:     hash,
					Failed:         runErr != nil,
				}
				if err := s.SaveRun(ctx, run, meta); err != nil {
					return err
				}
				detail := evidencePath
				if runErr != nil {
					detail = runErr.Error()
				}
				if err := s.LogEvent(ctx, store.Event{RunID: run.ID, Kind: "run", Detail: detail}); err != nil {
					return err
				}
				if baseline && runErr == nil {
					if err := s.SetBaseline(ctx, run.ID); err != nil {
						return err
					}
				}
				log.With("run_id", run.ID, "db", settings.DB).Info("run stored")
			}

			if jsonOut {
				if err := writeJSON(cmd.OutOrStdout(), run); err != nil {
					return err
				}
			} else {
				renderRun(cmd.OutOrStdout(), run)
			}
			return runErr
		},
	}
	cmd.Flags().StringVar(&evidencePath, "evidence", "", "path to the evidence YAML or JSON")
	cmd.Flags().StringVar(&trustPath, "trust", "", "path to a question trust map; overrides the one in the evidence file")
	cmd.Flags().BoolVar(&record, "record", false, "record violations instead of aborting")
	cmd.Flags().BoolVar(&strict, "abort-on-insufficient", false, "fail on any incomplete group, even with --record")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not write the run to the database")
	cmd.Flags().BoolVar(&baseline, "baseline", false, "mark a successful run as the baseline")
	_ = cmd.MarkFlagRequired("evidence")
	return cmd
}

// #endregion run-cmd

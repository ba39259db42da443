package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/danielpatrickdp/policyscore/internal/diagnostics"
	"github.com/danielpatrickdp/policyscore/internal/hierarchy"
	"github.com/danielpatrickdp/policyscore/internal/store"
)

// #region table
// newTable builds a markdown-style table with left-aligned cells.
func newTable(w io.Writer, headers ...string) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader(headers),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func optFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

// #endregion table

// #region run-output

// renderRun prints the top of the hierarchy and a violation summary.
func renderRun(w io.Writer, run *hierarchy.Run) {
	fmt.Fprintf(w, "run %s\n", run.ID)
	if run.Macro != nil {
		fmt.Fprintf(w, "macro %.4f (normalized %.4f)\n\n", run.Macro.Value, run.Macro.Normalized)
	} else {
		fmt.Fprintln(w, "macro -")
		fmt.Fprintln(w)
	}

	table := newTable(w, "Level", "Group", "Value", "Normalized", "Coherence", "Penalty", "Interval")
	for _, level := range []hierarchy.Level{hierarchy.LevelArea, hierarchy.LevelCluster, hierarchy.LevelMacro} {
		for _, s := range run.Scores(level) {
			interval := "-"
			if ci := s.ConfidenceInterval; ci != nil {
				interval = fmt.Sprintf("[%.3f, %.3f]", ci.Lower, ci.Upper)
			}
			_ = table.Append([]string{
				string(level), s.GroupID,
				fmt.Sprintf("%.4f", s.Value), fmt.Sprintf("%.4f", s.Normalized),
				optFloat(s.Coherence), fmt.Sprintf("%.4f", s.PenaltyApplied), interval,
			})
		}
	}
	_ = table.Render()

	renderViolations(w, run)
}

func renderViolations(w io.Writer, run *hierarchy.Run) {
	summary := diagnostics.ViolationSummary(run)
	if len(summary) == 0 {
		fmt.Fprintln(w, "\nno violations")
		return
	}
	fmt.Fprintln(w)
	table := newTable(w, "Invariant", "Severity", "Count", "Groups")
	for _, v := range summary {
		groups := v.Groups
		if len(groups) > 5 {
			groups = append(groups[:5:5], fmt.Sprintf("+%d", len(v.Groups)-5))
		}
		_ = table.Append([]string{string(v.InvariantID), string(v.Severity), fmt.Sprint(v.Count), strings.Join(groups, ", ")})
	}
	_ = table.Render()
}

// #endregion run-output

// #region inspect-output

func renderRunList(w io.Writer, runs []store.RunRecord) {
	table := newTable(w, "Run", "Started", "Status", "Macro", "Violations", "Schema", "Measure")
	for _, r := range runs {
		_ = table.Append([]string{
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Status,
			optFloat(r.MacroValue), fmt.Sprint(r.Violations), r.SchemaVersion, r.MeasureVersion,
		})
	}
	_ = table.Render()
}

func renderDetail(w io.Writer, run *hierarchy.Run, schema *hierarchy.Schema, weakest int) {
	renderRun(w, run)

	fmt.Fprintln(w)
	cov := newTable(w, "Level", "Expected", "Groups", "Complete", "Inputs", "Coverage")
	for _, c := range diagnostics.Coverage(run, schema) {
		_ = cov.Append([]string{
			string(c.Level), fmt.Sprint(c.Expected), fmt.Sprint(c.Groups),
			fmt.Sprint(c.CompleteGroups), fmt.Sprint(c.Inputs), fmt.Sprintf("%.1f%%", c.Ratio()*100),
		})
	}
	_ = cov.Render()

	if weakest <= 0 {
		return
	}
	fmt.Fprintln(w)
	table := newTable(w, "Dimension", "Area", "Value", "Missing")
	for _, s := range diagnostics.WeakestDimensions(run, weakest) {
		missing := "-"
		if s.Diagnosis != nil && len(s.Diagnosis.MissingIDs) > 0 {
			missing = strings.Join(s.Diagnosis.MissingIDs, ", ")
		}
		_ = table.Append([]string{s.GroupID, s.ParentID, fmt.Sprintf("%.4f", s.Value), missing})
	}
	_ = table.Render()
}

// #endregion inspect-output

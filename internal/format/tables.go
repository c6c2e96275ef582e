package format

import (
	"path/filepath"
	"strconv"
	"strings"

	"hcletter/internal/ledger"
	"hcletter/internal/runner"
)

const errWidth = 60

// Summary lists every group of a run with its status, one row per group.
// A case whose report failed gets a single row.
func Summary(s *runner.Summary, m Mode) string {
	tb := NewTable(m)
	tb.Header("Case", "Group", "Matches", "Missing", "Letter", "Compiled", "Status", "Error")
	groups, missing := 0, 0
	for _, c := range s.Cases {
		if c.Err != nil {
			tb.Row(c.Name, "-", "-", "-", "-", "-", ledger.StatusFailed, Truncate(c.Err.Error(), errWidth))
			continue
		}
		for _, g := range c.Groups {
			n := 0
			if g.Evidence != nil {
				n = len(g.Evidence.Failures)
			}
			errText := ""
			if g.Err != nil {
				errText = Truncate(g.Err.Error(), errWidth)
			}
			tb.Row(c.Name, filepath.Base(g.Dir), len(g.Matches), n,
				BoolMark(g.Letter != ""), BoolMark(g.Compiled), g.Status(), errText)
			groups++
			missing += n
		}
	}
	tb.Footer("TOTAL", groups, "", missing, "", "", s.Status(), "")
	tb.Columns(
		ColumnConfig{Number: 3, Right: true},
		ColumnConfig{Number: 4, Right: true},
	)
	return tb.String()
}

// Missing names every evidence artifact that could not be retrieved.
// It returns "" when nothing is missing.
func Missing(s *runner.Summary, m Mode) string {
	tb := NewTable(m)
	tb.Header("Group", "Match", "Artifact", "Attempts", "URL", "Cause")
	rows := 0
	for _, c := range s.Cases {
		for _, g := range c.Groups {
			if g.Evidence == nil {
				continue
			}
			for _, f := range g.Evidence.Failures {
				tb.Row(filepath.Base(g.Dir), f.Artifact.Seq, f.Artifact.Kind.String(), f.Attempts,
					f.Artifact.URL, Truncate(f.Err.Error(), errWidth))
				rows++
			}
		}
	}
	if rows == 0 {
		return ""
	}
	tb.Columns(ColumnConfig{Number: 4, Right: true})
	return tb.String()
}

// Resolution previews which pairs each group would cite.
func Resolution(cases []runner.CaseResult, m Mode) string {
	tb := NewTable(m)
	tb.Header("Case", "Group", "Pairs", "Not in report", "Report")
	for _, c := range cases {
		if c.Err != nil {
			tb.Row(c.Name, "-", "error: "+Truncate(c.Err.Error(), errWidth), "", c.Report)
			continue
		}
		for _, g := range c.Groups {
			tb.Row(c.Name, filepath.Base(g.Dir), Pairs(g.Matches), strings.Join(g.Absent, ", "), c.Report)
		}
	}
	tb.Columns(ColumnConfig{Number: 3, MaxWidth: 80})
	return tb.String()
}

// Runs lists ledger runs, newest first as returned by the ledger.
func Runs(runs []ledger.Run, m Mode) string {
	tb := NewTable(m)
	tb.Header("Run", "Started", "Finished", "Input", "Policy", "Groups", "Missing", "Status")
	for _, r := range runs {
		tb.Row(r.ID, r.StartedAt, r.FinishedAt, r.Input, r.Policy, r.Groups, r.Missing, r.Status)
	}
	tb.Columns(
		ColumnConfig{Number: 6, Right: true},
		ColumnConfig{Number: 7, Right: true},
	)
	return tb.String()
}

// Groups lists the recorded groups of one run with their missing artifacts.
func Groups(groups []ledger.Group, m Mode) string {
	tb := NewTable(m)
	tb.Header("Case", "Group", "Matches", "Status", "Missing", "Error")
	for _, g := range groups {
		missing := ""
		for i, a := range g.Missing {
			if i > 0 {
				missing += ", "
			}
			missing += a.Kind + "#" + strconv.Itoa(a.Seq)
		}
		tb.Row(g.Case, filepath.Base(g.Dir), g.Matches, g.Status, missing, Truncate(g.Err, errWidth))
	}
	return tb.String()
}

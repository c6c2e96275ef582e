package runner

import (
	"errors"
	"fmt"
	"strings"

	"hcletter/internal/evidence"
	"hcletter/internal/ledger"
	"hcletter/internal/match"
)

// FailurePolicy decides what happens to a group whose evidence is incomplete.
type FailurePolicy int

const (
	// BestEffort renders and compiles anyway and reports the missing artifacts as a warning.
	BestEffort FailurePolicy = iota
	// Strict skips rendering and compiling for that group and marks it failed.
	Strict
)

func (p FailurePolicy) String() string {
	if p == Strict {
		return "strict"
	}
	return "best-effort"
}

// ParseFailurePolicy reads the --on-evidence-failure flag.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "best-effort", "besteffort":
		return BestEffort, nil
	case "strict":
		return Strict, nil
	}
	return BestEffort, fmt.Errorf("unknown evidence failure policy %q (best-effort, strict)", s)
}

// OutputConflictError means a group directory could not be reset.
type OutputConflictError struct {
	Path string
	Err  error
}

func (e *OutputConflictError) Error() string {
	return fmt.Sprintf("output %s cannot be reset: %v", e.Path, e.Err)
}

func (e *OutputConflictError) Unwrap() error { return e.Err }

// GroupResult is the outcome of one group.
type GroupResult struct {
	Case       string
	CaseIndex  int // position of the case in the case file
	Index      int
	Dir        string
	Matches    []*match.Match
	Absent     []string        // group ids that appear nowhere in the report
	Evidence   *evidence.Error // missing artifacts, nil when complete
	Err        error           // hard failure: directory, fetch setup, strict policy, render
	Letter     string
	Compiled   bool
	CompileErr error // logged only; never fails the group
}

// Status is ledger.StatusOK, StatusWarnings or StatusFailed.
func (g GroupResult) Status() string {
	switch {
	case g.Err != nil:
		return ledger.StatusFailed
	case g.Evidence != nil:
		return ledger.StatusWarnings
	}
	return ledger.StatusOK
}

// CaseResult is the outcome of one case. Groups keep declared order.
type CaseResult struct {
	Name   string
	Report string
	Err    error // report fetch or format failure; Groups is empty then
	Groups []GroupResult
}

// Summary is the outcome of a whole run.
type Summary struct {
	RunID string
	Cases []CaseResult
}

// Failed reports whether any case or group failed hard.
func (s *Summary) Failed() bool {
	for _, c := range s.Cases {
		if c.Err != nil {
			return true
		}
		for _, g := range c.Groups {
			if g.Err != nil {
				return true
			}
		}
	}
	return false
}

// Missing counts evidence artifacts that could not be retrieved.
func (s *Summary) Missing() int {
	n := 0
	for _, c := range s.Cases {
		for _, g := range c.Groups {
			if g.Evidence != nil {
				n += len(g.Evidence.Failures)
			}
		}
	}
	return n
}

// Status folds the run into one ledger status.
func (s *Summary) Status() string {
	switch {
	case s.Failed():
		return ledger.StatusFailed
	case s.Missing() > 0:
		return ledger.StatusWarnings
	}
	return ledger.StatusOK
}

// Err joins every hard failure of the run, or returns nil.
func (s *Summary) Err() error {
	var errs []error
	for _, c := range s.Cases {
		if c.Err != nil {
			errs = append(errs, fmt.Errorf("case %s: %w", c.Name, c.Err))
		}
		for _, g := range c.Groups {
			if g.Err != nil {
				errs = append(errs, fmt.Errorf("group %s: %w", g.Dir, g.Err))
			}
		}
	}
	return errors.Join(errs...)
}

func toLedger(g GroupResult) ledger.Group {
	rec := ledger.Group{
		Case:      g.Case,
		CaseIndex: g.CaseIndex,
		Index:     g.Index,
		Dir:       g.Dir,
		Matches:   len(g.Matches),
		Status:    g.Status(),
	}
	if g.Err != nil {
		rec.Err = g.Err.Error()
	}
	if g.Evidence != nil {
		for _, f := range g.Evidence.Failures {
			rec.Missing = append(rec.Missing, ledger.MissingArtifact{
				Seq:      f.Artifact.Seq,
				Kind:     f.Artifact.Kind.String(),
				URL:      f.Artifact.URL,
				Attempts: f.Attempts,
				Cause:    f.Err.Error(),
			})
		}
	}
	return rec
}

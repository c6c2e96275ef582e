// Package runner drives cases end to end: report, groups, evidence, letter, compiler.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"hcletter/internal/casefile"
	"hcletter/internal/compile"
	"hcletter/internal/evidence"
	"hcletter/internal/ledger"
	"hcletter/internal/logging"
	"hcletter/internal/match"
	"hcletter/internal/render"
	"hcletter/internal/report"
)

// Config controls one run.
type Config struct {
	Output            string
	Input             string // recorded in the ledger only
	Policy            evidence.Policy
	Evidence          evidence.Config
	OnEvidenceFailure FailurePolicy
	Compile           bool
	Snapshot          bool
	Version           string
}

// ReportSource fetches and parses a report locator.
type ReportSource interface {
	Fetch(ctx context.Context, locator string) (*match.Index, error)
}

// Compiler runs the typesetter inside a group directory.
type Compiler interface {
	Run(ctx context.Context, dir, file string) compile.Result
}

// Snapshotter prints the evidence pages of a directory to PDF.
type Snapshotter interface {
	PrintDir(dir string) (int, error)
}

// Ledger records runs. *ledger.Ledger satisfies it.
type Ledger interface {
	StartRun(input, policy string) (string, error)
	RecordGroup(runID string, g ledger.Group) (int64, error)
	FinishRun(runID, status string) error
}

// Option customizes a Runner.
type Option func(*Runner)

func WithReportSource(s ReportSource) Option { return func(r *Runner) { r.reports = s } }
func WithRenderer(rd *render.Renderer) Option { return func(r *Runner) { r.renderer = rd } }
func WithCompiler(c Compiler) Option { return func(r *Runner) { r.compiler = c } }
func WithSnapshotter(s Snapshotter) Option { return func(r *Runner) { r.snapshots = s } }
func WithLedger(l Ledger) Option { return func(r *Runner) { r.ledger = l } }
func WithHTTPClient(c *http.Client) Option { return func(r *Runner) { r.client = c } }

// Runner processes case files.
type Runner struct {
	cfg       Config
	reports   ReportSource
	renderer  *render.Renderer
	compiler  Compiler
	snapshots Snapshotter
	ledger    Ledger
	client    *http.Client
	logger    *slog.Logger
}

// New builds a Runner. Without options it parses MOSS reports over a fresh
// HTTP client, renders the built-in template and compiles nothing.
func New(cfg Config, opts ...Option) (*Runner, error) {
	if cfg.Output == "" {
		cfg.Output = "output"
	}
	cfg.Evidence.Policy = cfg.Policy
	r := &Runner{cfg: cfg, logger: logging.New("runner")}
	for _, o := range opts {
		o(r)
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if r.reports == nil {
		c := report.NewClient(report.Config{})
		c.HTTPClient = r.client
		r.reports = c
	}
	if r.renderer == nil {
		rd, err := render.Load("")
		if err != nil {
			return nil, err
		}
		r.renderer = rd
	}
	return r, nil
}

// Run processes every case in declared order. The returned error is only
// for failures that stop the whole run; per-case and per-group failures
// are reported in the Summary.
func (r *Runner) Run(ctx context.Context, cf *casefile.File) (*Summary, error) {
	if err := os.MkdirAll(r.cfg.Output, 0755); err != nil {
		return nil, fmt.Errorf("output dir: %w", err)
	}
	sum := &Summary{}
	if r.ledger != nil {
		id, err := r.ledger.StartRun(r.cfg.Input, r.cfg.Policy.String())
		if err != nil {
			return nil, fmt.Errorf("ledger: %w", err)
		}
		sum.RunID = id
	}

	start := time.Now()
	var err error
	for ci, c := range cf.Cases {
		if err = ctx.Err(); err != nil {
			break
		}
		sum.Cases = append(sum.Cases, r.runCase(ctx, cf, ci, c, sum.RunID))
	}

	if r.ledger != nil {
		status := sum.Status()
		if err != nil {
			status = ledger.StatusFailed
		}
		if err := r.ledger.FinishRun(sum.RunID, status); err != nil {
			r.logger.Warn("ledger finish failed", "run", sum.RunID, "error", err)
		}
	}
	r.logger.Info("run finished",
		"cases", len(sum.Cases), "missing", sum.Missing(), "status", sum.Status(),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return sum, err
}

func (r *Runner) runCase(ctx context.Context, cf *casefile.File, ci int, c casefile.Case, runID string) CaseResult {
	res := CaseResult{Name: c.Name, Report: c.Report}
	log := r.logger.With("case", c.Name)

	idx, err := r.reports.Fetch(ctx, c.Report)
	if err != nil {
		log.Error("report failed, skipping case", "report", c.Report, "error", err)
		res.Err = err
		return res
	}
	log.Info("report loaded", "matches", idx.Len(), "groups", len(c.Groups))

	var fetched, missing atomic.Int64
	fetcher := evidence.New(r.client, r.cfg.Evidence, evidence.WithObserver(func(_ evidence.Artifact, err error) {
		if err != nil {
			missing.Add(1)
			return
		}
		fetched.Add(1)
	}))
	fc := fetcher.Config()
	log.Debug("evidence fetcher", "policy", fc.Policy.String(), "concurrency", fc.Concurrency,
		"per_host", fc.PerHost, "rate", fc.RatePerSecond, "attempts", fc.Attempts)

	res.Groups = make([]GroupResult, len(c.Groups))
	if r.cfg.Policy == evidence.Serial {
		for i := range c.Groups {
			res.Groups[i] = r.runGroup(ctx, cf, ci, c, i, idx, fetcher)
			r.record(runID, res.Groups[i])
		}
	} else {
		var g errgroup.Group
		for i := range c.Groups {
			g.Go(func() error {
				res.Groups[i] = r.runGroup(ctx, cf, ci, c, i, idx, fetcher)
				r.record(runID, res.Groups[i])
				return nil
			})
		}
		_ = g.Wait() // outcomes live in res.Groups
	}
	log.Info("case done", "fetched", fetched.Load(), "missing", missing.Load())
	return res
}

func (r *Runner) runGroup(ctx context.Context, cf *casefile.File, ci int, c casefile.Case, i int, idx *match.Index, fetcher *evidence.Fetcher) GroupResult {
	grp := c.Groups[i]
	dir := filepath.Join(r.cfg.Output, GroupDirName(cf.Info, c.Name, i))
	res := GroupResult{Case: c.Name, CaseIndex: ci, Index: i, Dir: dir}
	log := r.logger.With("group", dir)
	log.Debug("started")

	res.Matches = match.Resolve(idx, grp.IDs())
	if res.Absent = absent(idx, grp.IDs()); len(res.Absent) > 0 {
		log.Warn("students not in report", "ids", res.Absent)
	}
	if err := r.prepare(dir); err != nil {
		log.Error("group skipped", "error", err)
		res.Err = err
		return res
	}

	if err := fetcher.Fetch(ctx, res.Matches, dir); err != nil {
		var ee *evidence.Error
		if !errors.As(err, &ee) {
			res.Err = err
			return res
		}
		res.Evidence = ee
	}
	if res.Evidence != nil && r.cfg.OnEvidenceFailure == Strict {
		res.Err = fmt.Errorf("%d artifacts missing, letter not rendered: %w", len(res.Evidence.Failures), res.Evidence)
		log.Error("group failed", "error", res.Err)
		return res
	}

	if r.cfg.Snapshot && r.snapshots != nil && len(res.Matches) > 0 {
		n, err := r.snapshots.PrintDir(filepath.Join(dir, evidence.MatchesDir))
		if err != nil {
			log.Warn("snapshot incomplete", "printed", n, "error", err)
		}
	}

	letter, err := r.renderer.RenderFile(dir, r.data(cf, c, grp, res.Matches))
	if err != nil {
		res.Err = err
		log.Error("render failed", "error", err)
		return res
	}
	res.Letter = letter

	if r.cfg.Compile && r.compiler != nil {
		out := r.compiler.Run(ctx, dir, render.OutputName)
		res.Compiled = out.Err == nil
		res.CompileErr = out.Err
	}
	log.Info("group done", "matches", len(res.Matches), "status", res.Status())
	return res
}

// prepare resets dir: the old tree is removed, the template assets are
// copied in and an empty matches/ is created.
func (r *Runner) prepare(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return &OutputConflictError{Path: dir, Err: err}
	}
	if err := r.renderer.CopyAssets(dir); err != nil {
		return &OutputConflictError{Path: dir, Err: err}
	}
	if err := os.MkdirAll(filepath.Join(dir, evidence.MatchesDir), 0755); err != nil {
		return &OutputConflictError{Path: dir, Err: err}
	}
	return nil
}

func (r *Runner) record(runID string, g GroupResult) {
	if r.ledger == nil {
		return
	}
	if _, err := r.ledger.RecordGroup(runID, toLedger(g)); err != nil {
		r.logger.Warn("ledger record failed", "group", g.Dir, "error", err)
	}
}

func (r *Runner) data(cf *casefile.File, c casefile.Case, g casefile.Group, matches []*match.Match) render.Data {
	d := render.Data{
		Info:     cf.Info,
		Reporter: cf.Reporter,
		Case:     render.CaseInfo{Name: c.Name, Report: c.Report},
		Source:   g.Source,
		Matches:  matches,
		Version:  r.cfg.Version,
	}
	for _, id := range g.Members() {
		d.Students = append(d.Students, render.Student{ID: id, Name: cf.Name(id)})
	}
	return d
}

// Resolve fetches every report and resolves its groups without touching
// the filesystem.
func (r *Runner) Resolve(ctx context.Context, cf *casefile.File) []CaseResult {
	var out []CaseResult
	for ci, c := range cf.Cases {
		res := CaseResult{Name: c.Name, Report: c.Report}
		idx, err := r.reports.Fetch(ctx, c.Report)
		if err != nil {
			res.Err = err
			out = append(out, res)
			continue
		}
		for i, g := range c.Groups {
			res.Groups = append(res.Groups, GroupResult{
				Case:      c.Name,
				CaseIndex: ci,
				Index:     i,
				Dir:       filepath.Join(r.cfg.Output, GroupDirName(cf.Info, c.Name, i)),
				Matches:   match.Resolve(idx, g.IDs()),
				Absent:    absent(idx, g.IDs()),
			})
		}
		out = append(out, res)
	}
	return out
}

// absent lists the ids that appear in no match of the report, in group order.
// These are usually typos in the case file.
func absent(idx *match.Index, ids []string) []string {
	known := make(map[string]bool)
	for _, p := range idx.Participants() {
		known[p] = true
	}
	var out []string
	for _, id := range ids {
		if !known[id] {
			out = append(out, id)
		}
	}
	return out
}

// GroupDirName is "<course>-<semester>-<shortname>-<i>" in lower case,
// skipping empty parts.
func GroupDirName(info casefile.Info, shortname string, i int) string {
	var parts []string
	for _, p := range []string{info.Course(), info.Semester(), shortname} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	parts = append(parts, strconv.Itoa(i))
	name := strings.ToLower(strings.Join(parts, "-"))
	return strings.NewReplacer("/", "_", `\`, "_", " ", "_").Replace(name)
}

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"hcletter/internal/compile"
	"hcletter/internal/evidence"
	"hcletter/internal/format"
	"hcletter/internal/ledger"
	"hcletter/internal/render"
	"hcletter/internal/report"
	"hcletter/internal/runner"
	"hcletter/internal/snapshot"
)

var runFlags struct {
	input             string
	output            string
	template          string
	students          string
	verbose           bool
	serial            bool
	concurrency       int
	perHost           int
	rate              float64
	attempts          uint
	timeout           time.Duration
	onEvidenceFailure string
	compiler          string
	noCompile         bool
	pdfEvidence       bool
	ledger            string
	failOnMissing     bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch evidence and render a letter for every group",
	RunE:  runRun,
}

func init() {
	d := evidence.DefaultConfig()
	f := runCmd.Flags()
	f.StringVarP(&runFlags.input, "input", "i", "", "Case file, YAML or JSON (required)")
	f.StringVarP(&runFlags.output, "output", "o", "output", "Output directory ($HCLETTER_OUTPUT)")
	f.StringVarP(&runFlags.template, "template", "t", "", "Template directory containing template.tex (default: built-in)")
	f.StringVarP(&runFlags.students, "students", "s", "", "Roster file, CSV or XLSX, rows of name,id")
	f.BoolVarP(&runFlags.verbose, "verbose", "v", false, "Log every download and compiler start")
	f.BoolVar(&runFlags.serial, "serial", false, "Process groups and artifacts one at a time, in order")
	f.IntVar(&runFlags.concurrency, "concurrency", d.Concurrency, "Max in-flight evidence requests per case ($HCLETTER_CONCURRENCY)")
	f.IntVar(&runFlags.perHost, "per-host", d.PerHost, "Max in-flight requests per host, 0 for no limit")
	f.Float64Var(&runFlags.rate, "rate", 0, "Max evidence requests per second, 0 for no limit")
	f.UintVar(&runFlags.attempts, "attempts", d.Attempts, "Tries per artifact and per report")
	f.DurationVar(&runFlags.timeout, "timeout", d.AttemptTimeout, "Timeout of a single request")
	f.StringVar(&runFlags.onEvidenceFailure, "on-evidence-failure", "best-effort", "best-effort renders anyway, strict skips the group")
	f.StringVar(&runFlags.compiler, "compiler", "", "Compiler command line ($HCLETTER_COMPILER, default: xelatex)")
	f.BoolVar(&runFlags.noCompile, "no-compile", false, "Render letters without compiling them")
	f.BoolVar(&runFlags.pdfEvidence, "pdf-evidence", false, "Also print evidence pages to PDF with headless Chrome")
	f.StringVar(&runFlags.ledger, "ledger", ledger.DefaultPath, "Run ledger database, empty to disable ($HCLETTER_LEDGER)")
	f.BoolVar(&runFlags.failOnMissing, "fail-on-missing-evidence", false, "Exit non-zero when any evidence artifact is missing")

	_ = runCmd.MarkFlagRequired("input")
}

func runRun(cmd *cobra.Command, _ []string) error {
	envString(cmd, "output", "HCLETTER_OUTPUT", &runFlags.output)
	envString(cmd, "compiler", "HCLETTER_COMPILER", &runFlags.compiler)
	envString(cmd, "ledger", "HCLETTER_LEDGER", &runFlags.ledger)
	if err := envInt(cmd, "concurrency", "HCLETTER_CONCURRENCY", &runFlags.concurrency); err != nil {
		return err
	}

	onFailure, err := runner.ParseFailurePolicy(runFlags.onEvidenceFailure)
	if err != nil {
		return err
	}
	cf, err := loadCases(runFlags.input, runFlags.students)
	if err != nil {
		return err
	}
	renderer, err := render.Load(runFlags.template)
	if err != nil {
		return fmt.Errorf("load template: %w", err)
	}

	ctx := cmd.Context()
	client := &http.Client{}
	reports := report.NewClient(report.Config{Attempts: runFlags.attempts, Timeout: runFlags.timeout})
	reports.HTTPClient = client

	ev := evidence.DefaultConfig()
	ev.Concurrency = runFlags.concurrency
	ev.PerHost = runFlags.perHost
	ev.RatePerSecond = runFlags.rate
	ev.Attempts = runFlags.attempts
	ev.AttemptTimeout = runFlags.timeout

	cfg := runner.Config{
		Output:            runFlags.output,
		Input:             runFlags.input,
		Policy:            evidence.Concurrent,
		Evidence:          ev,
		OnEvidenceFailure: onFailure,
		Compile:           !runFlags.noCompile,
		Snapshot:          runFlags.pdfEvidence,
		Version:           version,
	}
	if runFlags.serial {
		cfg.Policy = evidence.Serial
	}
	opts := []runner.Option{
		runner.WithHTTPClient(client),
		runner.WithReportSource(reports),
		runner.WithRenderer(renderer),
	}
	if cfg.Compile {
		opts = append(opts, runner.WithCompiler(compile.NewRunner(runFlags.compiler, 0)))
	}
	if cfg.Snapshot {
		printer, err := snapshot.NewPrinter(ctx, runFlags.timeout)
		if err != nil {
			return fmt.Errorf("pdf evidence: %w", err)
		}
		defer printer.Close()
		opts = append(opts, runner.WithSnapshotter(printer))
	}
	if runFlags.ledger != "" {
		led, err := ledger.Open(runFlags.ledger)
		if err != nil {
			return err
		}
		defer led.Close()
		opts = append(opts, runner.WithLedger(led))
	}

	r, err := runner.New(cfg, opts...)
	if err != nil {
		return err
	}
	sum, err := r.Run(ctx, cf)
	if sum != nil {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, format.Summary(sum, tableMode()))
		if missing := format.Missing(sum, tableMode()); missing != "" {
			fmt.Fprintf(out, "\nMissing evidence:\n%s\n", missing)
		}
		if sum.RunID != "" {
			fmt.Fprintf(out, "Run: %s\n", sum.RunID)
		}
	}
	if err != nil {
		return err
	}
	if sum.Failed() {
		return fmt.Errorf("run failed: %w", sum.Err())
	}
	if runFlags.failOnMissing && sum.Missing() > 0 {
		return fmt.Errorf("%d evidence artifacts missing", sum.Missing())
	}
	return nil
}

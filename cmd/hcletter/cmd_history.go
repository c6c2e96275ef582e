package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hcletter/internal/format"
	"hcletter/internal/ledger"
)

var historyFlags struct {
	ledger string
	limit  int
	run    string
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past runs, or the groups of one run",
	RunE:  runHistory,
}

func init() {
	f := historyCmd.Flags()
	f.StringVar(&historyFlags.ledger, "ledger", ledger.DefaultPath, "Run ledger database ($HCLETTER_LEDGER)")
	f.IntVar(&historyFlags.limit, "limit", 20, "Number of runs to list, 0 for all")
	f.StringVar(&historyFlags.run, "run", "", "Show the groups and missing artifacts of this run")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	envString(cmd, "ledger", "HCLETTER_LEDGER", &historyFlags.ledger)
	if historyFlags.ledger == "" {
		return fmt.Errorf("no ledger configured")
	}
	led, err := ledger.Open(historyFlags.ledger)
	if err != nil {
		return err
	}
	defer led.Close()

	out := cmd.OutOrStdout()
	if historyFlags.run != "" {
		groups, err := led.Groups(historyFlags.run)
		if err != nil {
			return err
		}
		if len(groups) == 0 {
			fmt.Fprintf(out, "No groups recorded for run %s\n", historyFlags.run)
			return nil
		}
		fmt.Fprintln(out, format.Groups(groups, tableMode()))
		return nil
	}
	runs, err := led.Runs(historyFlags.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
		return nil
	}
	fmt.Fprintln(out, format.Runs(runs, tableMode()))
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hcletter/internal/format"
	"hcletter/internal/runner"
)

var resolveFlags struct {
	input    string
	output   string
	students string
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Show which report pairs each group would cite, without writing anything",
	RunE:  runResolve,
}

func init() {
	f := resolveCmd.Flags()
	f.StringVarP(&resolveFlags.input, "input", "i", "", "Case file, YAML or JSON (required)")
	f.StringVarP(&resolveFlags.output, "output", "o", "output", "Output directory used to name groups ($HCLETTER_OUTPUT)")
	f.StringVarP(&resolveFlags.students, "students", "s", "", "Roster file, CSV or XLSX")

	_ = resolveCmd.MarkFlagRequired("input")
}

func runResolve(cmd *cobra.Command, _ []string) error {
	envString(cmd, "output", "HCLETTER_OUTPUT", &resolveFlags.output)
	cf, err := loadCases(resolveFlags.input, resolveFlags.students)
	if err != nil {
		return err
	}
	r, err := runner.New(runner.Config{Output: resolveFlags.output})
	if err != nil {
		return err
	}
	cases := r.Resolve(cmd.Context(), cf)
	fmt.Fprintln(cmd.OutOrStdout(), format.Resolution(cases, tableMode()))
	for _, c := range cases {
		if c.Err != nil {
			return fmt.Errorf("case %s: %w", c.Name, c.Err)
		}
	}
	return nil
}

package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"hcletter/internal/casefile"
)

// envString fills *dst from $env when the flag was not given on the command line.
func envString(cmd *cobra.Command, flag, env string, dst *string) {
	if cmd.Flags().Changed(flag) {
		return
	}
	if v, ok := os.LookupEnv(env); ok {
		*dst = v
	}
}

func envInt(cmd *cobra.Command, flag, env string, dst *int) error {
	if cmd.Flags().Changed(flag) {
		return nil
	}
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("$%s: %w", env, err)
	}
	*dst = n
	return nil
}

// loadCases reads the case file and merges an optional roster over its
// inline students.
func loadCases(input, roster string) (*casefile.File, error) {
	cf, err := casefile.LoadFromPath(input)
	if err != nil {
		return nil, fmt.Errorf("load cases: %w", err)
	}
	if roster != "" {
		names, err := casefile.LoadRoster(roster)
		if err != nil {
			return nil, fmt.Errorf("load roster: %w", err)
		}
		cf.AddRoster(names)
	}
	return cf, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/evaluate"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <activations.tsv>",
	Short: "Report the share of integer-valued coordinates in an activations export",
	Long: `Evaluate reads a file written by "ace export activations" and prints,
for each of x, y and z, the proportion of coordinates that are whole
numbers. A high proportion hints at coordinates extracted from the wrong
column or rounded by the publisher.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		p, err := evaluate.ProportionIntegerValues(f)
		if err != nil {
			return fmt.Errorf("%s: %w", args[0], err)
		}
		fmt.Println(p)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
}

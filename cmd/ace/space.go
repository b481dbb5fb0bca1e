// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/dom"
	"github.com/pdiddy/ace/internal/extract"
)

var spaceCmd = &cobra.Command{
	Use:   "space <file>...",
	Short: "Guess the stereotactic space of articles from their text",
	Long: `Space counts mentions of analysis packages and space names in each
file and prints the guessed coordinate space (MNI, TAL or UNKNOWN).
HTML and XML files are reduced to their text first.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		showEvidence, _ := cmd.Flags().GetBool("evidence")
		for _, path := range args {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			text := string(data)
			if strings.HasPrefix(strings.TrimSpace(text), "<") {
				text = dom.ParseString(text).Text()
			}

			ev := extract.CountSpaceTargets(text)
			fmt.Printf("%-7s %s\n", ev.Space(), path)
			if showEvidence {
				for _, target := range extract.SpaceTargets {
					fmt.Printf("        %-12s %d\n", target, ev[target])
				}
			}
		}
		return nil
	},
}

func init() {
	spaceCmd.Flags().Bool("evidence", false, "print the count of each term")
	rootCmd.AddCommand(spaceCmd)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/database"
)

var (
	statsTitle = lipgloss.NewStyle().Bold(true)
	statsCount = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Width(10).Align(lipgloss.Right)
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the number of articles, tables and activations in the database",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		st, err := store.Stats(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput, _ := cmd.Flags().GetBool("json"); jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(st)
		}
		fmt.Println(renderStats(cfg.Database.Path, st))
		return nil
	},
}

func renderStats(path string, st database.Stats) string {
	out := statsTitle.Render(path) + "\n"
	for _, row := range []struct {
		label string
		n     int
	}{
		{"articles", st.Articles},
		{"tables", st.Tables},
		{"activations", st.Activations},
		{"NeuroVault links", st.NeurovaultLinks},
	} {
		out += statsCount.Render(fmt.Sprint(row.n)) + "  " + row.label + "\n"
	}
	return out
}

func init() {
	statsCmd.Flags().Bool("json", false, "output as JSON")
	rootCmd.AddCommand(statsCmd)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the database (activations, database, yaml)",
	Long: `Export writes the article database to flat files. Use a subcommand to
choose the format.`,
}

// --- activations subcommand ---

var exportActivationsCmd = &cobra.Command{
	Use:   "activations [file]",
	Short: "Write every activation as a tab-delimited row",
	Long: `Activations writes one row per activation of every article that has at
least one table. With --screen, articles that do not look like fMRI
studies are left out. Output goes to stdout when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runExportActivations,
}

func runExportActivations(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	var opts export.ActivationOptions
	opts.Metadata, _ = f.GetBool("metadata")
	opts.Groups, _ = f.GetBool("groups")
	opts.Screen, _ = f.GetBool("screen")

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	w, closeOut, err := outputFile(firstArg(args))
	if err != nil {
		return err
	}
	screened, err := export.Activations(cmd.Context(), store, w, opts)
	if cerr := closeOut(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if opts.Screen {
		fmt.Fprintf(os.Stderr, "%d article(s) screened out\n", screened)
	}
	return nil
}

// --- database subcommand ---

var exportDatabaseCmd = &cobra.Command{
	Use:   "database <dir>",
	Short: "Write coordinates, metadata and text CSV files into a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		if err := export.Database(cmd.Context(), store, args[0]); err != nil {
			return err
		}
		fmt.Printf("Exported to %s\n", args[0])
		return nil
	},
}

// --- yaml subcommand ---

var exportYAMLCmd = &cobra.Command{
	Use:   "yaml [file]",
	Short: "Write the whole database as one YAML document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		w, closeOut, err := outputFile(firstArg(args))
		if err != nil {
			return err
		}
		err = export.YAML(cmd.Context(), store, w)
		if cerr := closeOut(); err == nil {
			err = cerr
		}
		return err
	},
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func init() {
	exportActivationsCmd.Flags().Bool("metadata", false, "add title, authors, year and journal columns")
	exportActivationsCmd.Flags().Bool("groups", false, "add the groups column")
	exportActivationsCmd.Flags().Bool("screen", false, "leave out articles that do not look like fMRI studies")

	exportCmd.AddCommand(exportActivationsCmd)
	exportCmd.AddCommand(exportDatabaseCmd)
	exportCmd.AddCommand(exportYAMLCmd)

	rootCmd.AddCommand(exportCmd)
}

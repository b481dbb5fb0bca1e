// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/pdiddy/ace/internal/database"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <pmid>...",
	Short: "Remove articles and everything extracted from them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		missing := 0
		for _, arg := range args {
			pmid, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid PMID %q", arg)
			}
			err = store.DeleteArticle(cmd.Context(), pmid)
			switch {
			case errors.Is(err, database.ErrArticleNotFound):
				fmt.Printf("not found %d\n", pmid)
				missing++
			case err != nil:
				return err
			default:
				fmt.Printf("deleted   %d\n", pmid)
			}
		}
		if missing > 0 {
			return fmt.Errorf("%d article(s) not found", missing)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

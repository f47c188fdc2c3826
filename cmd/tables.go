package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/counselling-resolver/internal/tables"
)

var tablesCmd = &cobra.Command{
	Use:   "tables",
	Short: "Inspect domain tables",
}

var tablesValidateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a tables file and its merge with the built-in tables",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := tables.Load(args[0])
		if err != nil {
			return err
		}
		merged := tables.Default().Merge(t)
		if err := merged.Validate(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %d corrections, %d abbreviations, %d synonym groups, %d regions, %d stopwords\n",
			args[0], len(t.Corrections), len(t.Abbreviations), len(t.Synonyms), len(t.Regions), len(t.Stopwords))
		return nil
	},
}

func init() {
	tablesCmd.AddCommand(tablesValidateCmd)
	rootCmd.AddCommand(tablesCmd)
}

package main

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

var (
	searchType    string
	searchLimit   int
	searchPattern bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search canonical entities by name, wildcard, or regex",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		typ, err := refstore.ParseEntityType(searchType)
		if err != nil {
			return err
		}

		env, err := initResolver(ctx, "search")
		if err != nil {
			return err
		}
		defer env.Close()

		query := strings.Join(args, " ")
		var results []fusion.Result
		if searchPattern {
			results, err = env.Engine.SearchPattern(ctx, query, typ, searchLimit)
		} else {
			results, err = env.Engine.Search(ctx, query, typ, searchLimit)
		}
		if err != nil {
			return eris.Wrap(err, "search")
		}
		return printResults(cmd.OutOrStdout(), results)
	},
}

func init() {
	searchCmd.Flags().StringVar(&searchType, "type", "college", "entity type to search")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 0, "max results (default from config)")
	searchCmd.Flags().BoolVar(&searchPattern, "pattern", false, "treat the query as a regular expression")
	rootCmd.AddCommand(searchCmd)
}

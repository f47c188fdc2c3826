package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/counselling-resolver/internal/fusion"
	"github.com/sells-group/counselling-resolver/internal/refstore"
)

var (
	resolveType  string
	resolveState string
	resolveCity  string
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <text>",
	Short: "Resolve one free-text value to canonical entities",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		typ, err := refstore.ParseEntityType(resolveType)
		if err != nil {
			return err
		}

		env, err := initResolver(ctx, "resolve")
		if err != nil {
			return err
		}
		defer env.Close()

		var hint *refstore.Location
		if resolveState != "" || resolveCity != "" {
			hint = &refstore.Location{State: resolveState, City: resolveCity}
		}

		results, err := env.Engine.ResolveEntity(ctx, strings.Join(args, " "), typ, hint)
		if err != nil {
			return eris.Wrap(err, "resolve")
		}
		return printResults(cmd.OutOrStdout(), results)
	},
}

// resultView is the printed form of a fused result.
type resultView struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Score      float64            `json:"score"`
	Strategies []string           `json:"strategies"`
	MatchKinds []string           `json:"match_kinds"`
	Location   *refstore.Location `json:"location,omitempty"`
}

func printResults(w io.Writer, results []fusion.Result) error {
	views := make([]resultView, 0, len(results))
	for _, r := range results {
		views = append(views, resultView{
			ID:         r.Entity.ID,
			Name:       r.Entity.CanonicalName,
			Score:      r.FinalScore,
			Strategies: r.Strategies(),
			MatchKinds: r.MatchKinds,
			Location:   r.Entity.Location,
		})
	}
	return printJSON(w, views)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	resolveCmd.Flags().StringVar(&resolveType, "type", "college", "entity type: college, program, quota, category, state")
	resolveCmd.Flags().StringVar(&resolveState, "state", "", "state hint for college resolution")
	resolveCmd.Flags().StringVar(&resolveCity, "city", "", "city hint for college resolution")
	rootCmd.AddCommand(resolveCmd)
}

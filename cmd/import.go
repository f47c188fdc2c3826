package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/counselling-resolver/internal/importer"
)

var (
	importJSON bool
	importAll  bool
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Classify counselling records from a CSV or XLSX file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initResolver(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		im := importer.New(env.Engine, importer.Options{
			Concurrency:     cfg.Importer.Concurrency,
			AcceptThreshold: cfg.Importer.AcceptThreshold,
			ReviewThreshold: cfg.Importer.ReviewThreshold,
		})

		report, err := im.ImportFile(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "import")
		}

		zap.L().Info("import complete",
			zap.String("file", args[0]),
			zap.Int("accepted", report.Accepted),
			zap.Int("pending_validation", report.Pending),
			zap.Int("rejected", report.Rejected),
		)

		out := cmd.OutOrStdout()
		if importJSON {
			return printJSON(out, report)
		}
		fmt.Fprintf(out, "accepted: %d  pending_validation: %d  rejected: %d  (%s)\n",
			report.Accepted, report.Pending, report.Rejected, report.Elapsed.Round(time.Millisecond))
		for _, r := range report.Rows {
			if r.Status == importer.StatusAccepted && !importAll {
				continue
			}
			fmt.Fprintf(out, "line %d: %s", r.Row.Line, r.Status)
			if r.Reason != "" {
				fmt.Fprintf(out, " (%s)", r.Reason)
			}
			fmt.Fprintln(out)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().BoolVar(&importJSON, "json", false, "print the full report as JSON")
	importCmd.Flags().BoolVar(&importAll, "all", false, "list accepted rows too")
	rootCmd.AddCommand(importCmd)
}

package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/Jihanvall/rfm-app/internal/config"
	"github.com/Jihanvall/rfm-app/internal/report"
)

var summaryCmd = &cobra.Command{
	Use:   "summary <results.csv>",
	Short: "Print dashboard metrics per segment for an exported results file",
	Long:  "Total customers and revenue, then per segment: customer count, revenue, revenue share and mean recency, frequency and monetary value.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeReport); err != nil {
			return err
		}

		customers, err := report.LoadResults(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		segments, _ := cmd.Flags().GetString("segments")
		format, _ := cmd.Flags().GetString("format")

		filtered := report.FilterSegments(customers, report.ParseSegments(segments))
		return report.Summarize(filtered).Render(os.Stdout, format)
	},
}

func init() {
	summaryCmd.Flags().String("format", "yaml", "output format: yaml or json")
	summaryCmd.Flags().String("segments", "", "comma-separated segments to include (default all)")
	rootCmd.AddCommand(summaryCmd)
}

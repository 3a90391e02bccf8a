package main

import (
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Jihanvall/rfm-app/internal/config"
	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/pipeline"
	"github.com/Jihanvall/rfm-app/internal/report"
	"github.com/Jihanvall/rfm-app/internal/rfm"
)

var segmentCmd = &cobra.Command{
	Use:   "segment [input]",
	Short: "Train a model on a sales export and write segmented customers",
	Long: "Batch run: cleans the input, fits the scaler and k-means model, stores both artifacts, " +
		"writes every customer with its segment to CSV and prints the top whales.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		tbl, source, err := loadInput(cmd, args)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		opts := runOptions(cmd, model.ModeFit)
		opts.Source = source
		if noProgress, _ := cmd.Flags().GetBool("no-progress"); !noProgress {
			bar := progressbar.NewOptions(opts.Restarts,
				progressbar.OptionSetDescription("k-means restarts"),
				progressbar.OptionSetWriter(os.Stderr),
				progressbar.OptionClearOnFinish(),
			)
			opts.OnRestart = func(int) { _ = bar.Add(1) }
			defer bar.Finish() //nolint:errcheck
		}

		res, err := pipeline.New(st, runStoreOf(st)).Run(ctx, tbl, opts)
		if err != nil {
			return err
		}

		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = cfg.Report.Output
		}
		if err := report.ExportCSV(output, res.Customers); err != nil {
			return err
		}
		if xlsxPath, _ := cmd.Flags().GetString("xlsx"); xlsxPath != "" {
			if err := report.ExportXLSX(xlsxPath, res.Customers); err != nil {
				return err
			}
		}

		zap.L().Info("segment: complete",
			zap.String("run_id", res.RunID),
			zap.String("model", res.ModelName),
			zap.Int("customers", len(res.Customers)),
			zap.Float64("inertia", res.Inertia),
			zap.String("output", output),
		)

		whales := rfm.Whales(res.Customers, cfg.Report.WhaleThreshold)
		fmt.Fprintf(os.Stdout, "%d customers segmented into %d clusters, written to %s\n",
			len(res.Customers), res.Clusters, output)
		fmt.Fprintf(os.Stdout, "Whales (monetary > %.2f): %d\n", cfg.Report.WhaleThreshold, len(whales))
		formatCustomers(os.Stdout, head(whales, cfg.Report.WhaleTop))
		return nil
	},
}

func init() {
	addInputFlags(segmentCmd)
	segmentCmd.Flags().StringP("output", "o", "", "results CSV path (default from config report.output)")
	segmentCmd.Flags().String("xlsx", "", "also write results to this XLSX file")
	segmentCmd.Flags().Bool("no-progress", false, "hide the restart progress bar")
	rootCmd.AddCommand(segmentCmd)
}

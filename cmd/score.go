package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Jihanvall/rfm-app/internal/config"
	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/pipeline"
	"github.com/Jihanvall/rfm-app/internal/report"
)

// scoreOutput is the structured (json, yaml) form of a scoring run.
type scoreOutput struct {
	RunID        string           `json:"run_id" yaml:"run_id"`
	ModelName    string           `json:"model_name" yaml:"model_name"`
	SnapshotDate string           `json:"snapshot_date" yaml:"snapshot_date"`
	Clusters     int              `json:"clusters" yaml:"clusters"`
	Customers    []model.Customer `json:"customers" yaml:"customers"`
	Summary      report.Summary   `json:"summary" yaml:"summary"`
}

var scoreCmd = &cobra.Command{
	Use:   "score [input]",
	Short: "Segment customers with a previously trained model",
	Long: "Interactive run without the server: loads the stored scaler and k-means model, " +
		"assigns every customer in the input to a segment and prints the result.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModePipeline); err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format != "csv" && format != "json" && format != "yaml" {
			return eris.Errorf("unknown format %q (want csv, json or yaml)", format)
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

		opts := runOptions(cmd, model.ModeInfer)
		opts.Source = source
		res, err := pipeline.New(st, runStoreOf(st)).Run(ctx, tbl, opts)
		if err != nil {
			return err
		}

		segments, _ := cmd.Flags().GetString("segments")
		customers := report.FilterSegments(res.Customers, report.ParseSegments(segments))

		out := io.Writer(os.Stdout)
		if path, _ := cmd.Flags().GetString("output"); path != "" && path != "-" {
			f, err := os.Create(path)
			if err != nil {
				return eris.Wrapf(err, "score: create %s", path)
			}
			defer f.Close() //nolint:errcheck
			out = f
		}
		return writeScore(out, res, customers, format)
	},
}

func init() {
	addInputFlags(scoreCmd)
	scoreCmd.Flags().String("format", "csv", "output format: csv, json or yaml")
	scoreCmd.Flags().String("segments", "", "comma-separated segments to keep (default all)")
	scoreCmd.Flags().StringP("output", "o", "-", "output file (- for stdout)")
	rootCmd.AddCommand(scoreCmd)
}

// writeScore renders customers in format. The summary in structured output
// always covers every scored customer.
func writeScore(w io.Writer, res *pipeline.Result, customers []model.Customer, format string) error {
	if format == "csv" {
		return report.WriteCSV(w, customers)
	}

	if customers == nil {
		customers = []model.Customer{}
	}
	out := scoreOutput{
		RunID:        res.RunID,
		ModelName:    res.ModelName,
		SnapshotDate: res.Snapshot.Format("2006-01-02"),
		Clusters:     res.Clusters,
		Customers:    customers,
		Summary:      report.Summarize(res.Customers),
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(out), "score: encode json")
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return eris.Wrap(err, "score: encode yaml")
		}
		return eris.Wrap(enc.Close(), "score: close yaml encoder")
	default:
		return eris.Errorf("unknown format %q (want csv, json or yaml)", format)
	}
}

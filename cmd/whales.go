package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Jihanvall/rfm-app/internal/config"
	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/report"
	"github.com/Jihanvall/rfm-app/internal/rfm"
)

var whalesCmd = &cobra.Command{
	Use:   "whales <results.csv>",
	Short: "List high-value customers from an exported results file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate(config.ModeReport); err != nil {
			return err
		}

		customers, err := report.LoadResults(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		threshold := cfg.Report.WhaleThreshold
		if cmd.Flags().Changed("threshold") {
			threshold, _ = cmd.Flags().GetFloat64("threshold")
		}
		if threshold < 0 {
			return eris.New("--threshold must be >= 0")
		}
		top, _ := cmd.Flags().GetInt("top")
		format, _ := cmd.Flags().GetString("format")

		return writeCustomers(os.Stdout, head(rfm.Whales(customers, threshold), top), format)
	},
}

func init() {
	whalesCmd.Flags().Float64("threshold", rfm.DefaultWhaleThreshold, "monetary value a whale must exceed (default from config)")
	whalesCmd.Flags().Int("top", 0, "show at most this many whales (0 = all)")
	whalesCmd.Flags().String("format", "table", "output format: table, csv or json")
	rootCmd.AddCommand(whalesCmd)
}

// head returns the first n customers, or all of them when n <= 0.
func head(customers []model.Customer, n int) []model.Customer {
	if n > 0 && len(customers) > n {
		return customers[:n]
	}
	return customers
}

func writeCustomers(w io.Writer, customers []model.Customer, format string) error {
	switch format {
	case "table":
		formatCustomers(w, customers)
		return nil
	case "csv":
		return report.WriteCSV(w, customers)
	case "json":
		if customers == nil {
			customers = []model.Customer{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(customers), "encode customers")
	default:
		return eris.Errorf("unknown format %q (want table, csv or json)", format)
	}
}

// formatCustomers writes a tabular list of customers to out.
func formatCustomers(out io.Writer, customers []model.Customer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "CUSTOMER\tRECENCY\tFREQUENCY\tMONETARY\tCLUSTER\tSEGMENT")
	_, _ = fmt.Fprintln(w, "--------\t-------\t---------\t--------\t-------\t-------")

	for _, c := range customers {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t%s\n",
			c.CustomerID,
			c.Recency,
			c.Frequency,
			strconv.FormatFloat(c.Monetary, 'f', 2, 64),
			c.Cluster,
			c.Segment,
		)
	}
	_ = w.Flush()
}

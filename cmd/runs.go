package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/Jihanvall/rfm-app/internal/config"
	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded pipeline runs",
	Long:  "Lists fit and infer runs, newest first. Only the sqlite, postgres and memory stores keep run history.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate(config.ModeRuns); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rs := runStoreOf(st)
		if rs == nil {
			return eris.Errorf("store driver %q does not record runs", cfg.Store.Driver)
		}

		mode, _ := cmd.Flags().GetString("mode")
		modelName, _ := cmd.Flags().GetString("model")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		runs, err := rs.ListRuns(ctx, store.RunFilter{
			Mode:      model.Mode(mode),
			ModelName: modelName,
			Status:    model.RunStatus(status),
			Limit:     limit,
			Offset:    offset,
		})
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if asJSON {
			if runs == nil {
				runs = []model.Run{}
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(runs)
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}
		formatRunsList(os.Stdout, runs)
		return nil
	},
}

func init() {
	runsCmd.Flags().String("mode", "", "filter by mode (fit, infer)")
	runsCmd.Flags().String("model", "", "filter by model name")
	runsCmd.Flags().String("status", "", "filter by run status (complete, failed)")
	runsCmd.Flags().Int("limit", 50, "max number of runs to display")
	runsCmd.Flags().Int("offset", 0, "skip this many runs")
	runsCmd.Flags().Bool("json", false, "print runs as JSON")
	rootCmd.AddCommand(runsCmd)
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODE\tMODEL\tSTATUS\tROWS\tCUSTOMERS\tSNAPSHOT\tCREATED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t----\t---------\t--------\t-------\t-----")

	for _, r := range runs {
		snapshot := "-"
		if !r.SnapshotDate.IsZero() {
			snapshot = r.SnapshotDate.Format("2006-01-02")
		}

		errMsg := r.Error
		if len(errMsg) > 40 {
			errMsg = errMsg[:37] + "..."
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			truncateID(r.ID),
			r.Mode,
			r.ModelName,
			r.Status,
			r.RowsRead,
			r.Customers,
			snapshot,
			r.CreatedAt.Format("2006-01-02 15:04"),
			errMsg,
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

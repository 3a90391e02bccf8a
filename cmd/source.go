package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Jihanvall/rfm-app/internal/fetcher"
	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/pipeline"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

// addInputFlags registers the flags shared by commands that read sales data.
func addInputFlags(cmd *cobra.Command) {
	cmd.Flags().String("query", "", "read transactions from MySQL (ingest.mysql_dsn) instead of a file")
	cmd.Flags().Bool("strict", false, "require the exact CustomerID/InvoiceDate/Quantity/UnitPrice/InvoiceNo schema")
	cmd.Flags().String("model", "", "model name (default from config)")
}

// loadInput reads the sales table named by args[0] (path or URL) or by the
// --query flag. It returns the table and a source label for run history.
func loadInput(cmd *cobra.Command, args []string) (*tabular.Table, string, error) {
	ctx := cmd.Context()
	query, _ := cmd.Flags().GetString("query")

	switch {
	case query != "" && len(args) > 0:
		return nil, "", eris.New("give either an input file or --query, not both")
	case query != "":
		tbl, err := queryMySQL(ctx, query)
		return tbl, "mysql", err
	case len(args) == 0:
		return nil, "", eris.New("an input file or URL is required")
	}

	name, data, err := fetcher.Fetch(ctx, args[0], fetcher.Options{
		Timeout:    time.Duration(cfg.Ingest.TimeoutSecs) * time.Second,
		MaxRetries: cfg.Ingest.MaxRetries,
	})
	if err != nil {
		return nil, "", err
	}
	tbl, err := tabular.Parse(ctx, name, data, ingestOptions())
	if err != nil {
		return nil, "", err
	}
	zap.L().Info("input loaded",
		zap.String("source", args[0]),
		zap.Int("rows", tbl.Len()),
		zap.Int("columns", len(tbl.Columns)),
	)
	return tbl, args[0], nil
}

func queryMySQL(ctx context.Context, query string) (*tabular.Table, error) {
	if cfg.Ingest.MySQLDSN == "" {
		return nil, eris.New("ingest.mysql_dsn is required with --query (RFM_INGEST_MYSQL_DSN)")
	}
	db, err := tabular.OpenMySQL(cfg.Ingest.MySQLDSN)
	if err != nil {
		return nil, err
	}
	defer db.Close() //nolint:errcheck

	tbl, err := tabular.Query(ctx, db, query)
	if err != nil {
		return nil, err
	}
	zap.L().Info("input loaded", zap.String("source", "mysql"), zap.Int("rows", tbl.Len()))
	return tbl, nil
}

func ingestOptions() tabular.Options {
	return tabular.Options{
		FallbackEncoding: cfg.Ingest.FallbackEncoding,
		Delimiter:        cfg.Ingest.DelimiterRune(),
		Comment:          cfg.Ingest.CommentRune(),
		LazyQuotes:       cfg.Ingest.LazyQuotes,
		TrimSpace:        cfg.Ingest.TrimSpace,
		SheetIndex:       cfg.Ingest.SheetIndex,
		SheetName:        cfg.Ingest.SheetName,
	}
}

// runOptions builds pipeline options from config, applying the --model and
// --strict overrides when cmd defines them.
func runOptions(cmd *cobra.Command, mode model.Mode) pipeline.Options {
	opts := pipeline.Options{
		Mode:      mode,
		ModelName: cfg.Model.Name,
		Strict:    cfg.Ingest.Strict,
		Clusters:  cfg.Model.Clusters,
		Seed:      cfg.Model.Seed,
		Restarts:  cfg.Model.Restarts,
		MaxIter:   cfg.Model.MaxIter,
		Tolerance: cfg.Model.Tolerance,
	}
	if cmd == nil {
		return opts
	}
	if name, _ := cmd.Flags().GetString("model"); name != "" {
		opts.ModelName = name
	}
	if strict, _ := cmd.Flags().GetBool("strict"); strict {
		opts.Strict = true
	}
	return opts
}

// Package pipeline runs the RFM segmentation stages end to end in either
// fit or infer mode.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/Jihanvall/rfm-app/internal/cluster"
	"github.com/Jihanvall/rfm-app/internal/features"
	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/rfm"
	"github.com/Jihanvall/rfm-app/internal/segment"
	"github.com/Jihanvall/rfm-app/internal/store"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

// DefaultModelName is the artifact name used when Options.ModelName is empty.
const DefaultModelName = "rfm"

// Options configures a single run.
type Options struct {
	Mode      model.Mode
	ModelName string
	Source    string // recorded with the run; informational only
	Strict    bool   // require the fixed batch schema

	// Fit mode only. Infer mode takes k from the stored model.
	Clusters  int
	Seed      uint64
	Restarts  int
	MaxIter   int
	Tolerance float64
	OnRestart func(done int)

	// NoWait makes a fit fail with ErrFitInProgress instead of waiting
	// for a concurrent fit to finish.
	NoWait bool
}

func (o Options) withDefaults() Options {
	if o.ModelName == "" {
		o.ModelName = DefaultModelName
	}
	if o.Clusters <= 0 {
		o.Clusters = cluster.DefaultK
	}
	return o
}

// Result is the outcome of a successful run.
type Result struct {
	RunID     string           `json:"run_id"`
	Mode      model.Mode       `json:"mode"`
	ModelName string           `json:"model_name"`
	Snapshot  time.Time        `json:"snapshot_date"`
	Clusters  int              `json:"clusters"`
	Inertia   float64          `json:"inertia,omitempty"`
	Columns   rfm.Columns      `json:"-"`
	Stats     rfm.CleanStats   `json:"stats"`
	Customers []model.Customer `json:"customers"`
	Ranks     []segment.Rank   `json:"ranks"`
}

// Pipeline holds the injected stores. It keeps no state between runs
// other than the fit gate.
type Pipeline struct {
	artifacts store.ArtifactStore
	runs      store.RunStore
	fitSem    *semaphore.Weighted
}

// New creates a Pipeline. runs may be nil to skip run bookkeeping.
func New(artifacts store.ArtifactStore, runs store.RunStore) *Pipeline {
	return &Pipeline{
		artifacts: artifacts,
		runs:      runs,
		fitSem:    semaphore.NewWeighted(1),
	}
}

// Run executes every stage on tbl. Fit runs are serialized: at most one
// fit is in flight per Pipeline. Infer runs only read artifacts and never
// wait. On failure no partial result is returned and the error is a
// *StageError wrapping the cause.
func (p *Pipeline) Run(ctx context.Context, tbl *tabular.Table, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	if !opts.Mode.Valid() {
		return nil, eris.Errorf("pipeline: unknown mode %q", opts.Mode)
	}

	if opts.Mode == model.ModeFit {
		if opts.NoWait {
			if !p.fitSem.TryAcquire(1) {
				return nil, ErrFitInProgress
			}
		} else if err := p.fitSem.Acquire(ctx, 1); err != nil {
			return nil, eris.Wrap(err, "pipeline: wait for fit slot")
		}
		defer p.fitSem.Release(1)
	}

	run := &model.Run{
		ID:        uuid.New().String(),
		Mode:      opts.Mode,
		ModelName: opts.ModelName,
		Source:    opts.Source,
		RowsRead:  tbl.Len(),
		CreatedAt: time.Now().UTC(),
	}
	log := zap.L().With(
		zap.String("run_id", run.ID),
		zap.String("mode", string(opts.Mode)),
		zap.String("model", opts.ModelName),
	)
	log.Info("pipeline: starting run", zap.Int("rows", tbl.Len()), zap.String("source", opts.Source))

	res, err := p.execute(ctx, run.ID, tbl, opts, log)
	p.record(ctx, run, res, err, log)
	if err != nil {
		return nil, err
	}

	res.RunID = run.ID
	log.Info("pipeline: run complete",
		zap.Int("customers", len(res.Customers)),
		zap.Int("clusters", res.Clusters),
		zap.Time("snapshot", res.Snapshot),
	)
	return res, nil
}

// execute threads immutable stage outputs through the chain. The returned
// result is partially filled when err is non-nil so the run record can
// report how far the data got.
func (p *Pipeline) execute(ctx context.Context, runID string, tbl *tabular.Table, opts Options, log *zap.Logger) (*Result, error) {
	res := &Result{Mode: opts.Mode, ModelName: opts.ModelName, Clusters: opts.Clusters}

	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return &StageError{Stage: name, Err: eris.Wrap(err, "pipeline: cancelled")}
		}
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()
		if err != nil {
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(err),
			)
			return &StageError{Stage: name, Err: err}
		}
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Int64("duration_ms", duration),
		)
		return nil
	}

	fit := opts.Mode == model.ModeFit

	var bundle *Bundle
	if !fit {
		err := stage(StageLoadModel, func() error {
			var err error
			bundle, err = LoadBundle(ctx, p.artifacts, opts.ModelName)
			return err
		})
		if err != nil {
			return res, err
		}
		res.Clusters = bundle.Model.K
	}

	err := stage(StageResolve, func() error {
		resolve := rfm.Resolve
		if opts.Strict {
			resolve = rfm.ResolveStrict
		}
		var err error
		res.Columns, err = resolve(tbl.Columns)
		return err
	})
	if err != nil {
		return res, err
	}

	var txns []model.Transaction
	err = stage(StageClean, func() error {
		txns, res.Stats = rfm.Clean(tbl, res.Columns)
		log.Debug("pipeline: cleaning dropped rows",
			zap.Int("rows_read", res.Stats.RowsRead),
			zap.Int("kept", res.Stats.Kept),
			zap.Int("missing_identity", res.Stats.MissingIdentity),
			zap.Int("missing_date", res.Stats.MissingDate),
			zap.Int("missing_invoice", res.Stats.MissingInvoice),
			zap.Int("non_numeric_amount", res.Stats.NonNumericAmount),
			zap.Int("non_positive_amount", res.Stats.NonPositiveAmount),
			zap.Int("unparseable_date", res.Stats.UnparseableDate),
		)
		if len(txns) == 0 {
			return &rfm.DataQualityError{Reason: "no valid transactions after cleaning", Rows: 0}
		}
		return nil
	})
	if err != nil {
		return res, err
	}

	var customers []model.Customer
	err = stage(StageAggregate, func() error {
		var err error
		res.Snapshot, customers, err = rfm.Aggregate(txns)
		return err
	})
	if err != nil {
		return res, err
	}

	var (
		scaler *features.Scaler
		x      [][]float64
	)
	err = stage(StageTransform, func() error {
		raw := features.Matrix(customers)
		if fit {
			s, err := features.Fit(raw)
			if err != nil {
				return err
			}
			scaler = s
		} else {
			scaler = bundle.Scaler
		}
		var err error
		x, err = scaler.Transform(raw)
		return err
	})
	if err != nil {
		return res, err
	}

	var km *cluster.Model
	err = stage(StageCluster, func() error {
		var (
			labels []int
			err    error
		)
		if fit {
			km, labels, err = cluster.Fit(ctx, x, cluster.Config{
				K:         opts.Clusters,
				Seed:      opts.Seed,
				Restarts:  opts.Restarts,
				MaxIter:   opts.MaxIter,
				Tolerance: opts.Tolerance,
				OnRestart: opts.OnRestart,
			})
			if errors.Is(err, cluster.ErrTooFewSamples) {
				return &rfm.DataQualityError{
					Reason: fmt.Sprintf("%d customers cannot form %d clusters", len(customers), opts.Clusters),
					Rows:   len(customers),
				}
			}
		} else {
			km = bundle.Model
			labels, err = km.Predict(x)
		}
		if err != nil {
			return err
		}

		assigned := make([]model.Customer, len(customers))
		for i, c := range customers {
			c.Cluster = labels[i]
			assigned[i] = c
		}
		customers = assigned
		return nil
	})
	if err != nil {
		return res, err
	}
	if fit {
		res.Inertia = km.Inertia
	}

	err = stage(StageLabel, func() error {
		res.Customers, res.Ranks = segment.Label(customers)
		return nil
	})
	if err != nil {
		return res, err
	}

	if fit {
		err = stage(StagePersist, func() error {
			scaler.FitID = runID
			km.FitID = runID
			return SaveBundle(ctx, p.artifacts, opts.ModelName, &Bundle{Scaler: scaler, Model: km})
		})
		if err != nil {
			return res, err
		}
	}

	return res, nil
}

// record stores the run outcome. Bookkeeping failures are logged and never
// fail the run.
func (p *Pipeline) record(ctx context.Context, run *model.Run, res *Result, runErr error, log *zap.Logger) {
	if res != nil {
		run.Transactions = res.Stats.Kept
		run.Customers = len(res.Customers)
		run.Clusters = res.Clusters
		run.SnapshotDate = res.Snapshot
	}
	run.Status = model.RunStatusComplete
	if runErr != nil {
		run.Status = model.RunStatusFailed
		run.Error = runErr.Error()
	}

	if p.runs == nil {
		return
	}
	if err := p.runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("pipeline: failed to record run", zap.Error(err))
	}
}


// Package cluster implements seeded k-means with k-means++ initialisation
// and concurrent restarts.
package cluster

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"math/rand/v2"
	"runtime"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Defaults used when Config fields are zero.
const (
	DefaultK         = 3
	DefaultSeed      = 42
	DefaultRestarts  = 10
	DefaultMaxIter   = 300
	DefaultTolerance = 1e-4
)

// ErrTooFewSamples is returned when there are fewer points than clusters.
var ErrTooFewSamples = errors.New("cluster: fewer samples than clusters")

// Config controls a k-means fit.
type Config struct {
	K         int
	Seed      uint64
	Restarts  int
	MaxIter   int
	Tolerance float64 // relative to the mean feature variance

	// OnRestart, if set, is called after each restart finishes with the
	// number finished so far. It may be called from several goroutines.
	OnRestart func(done int)
}

func (c Config) withDefaults() Config {
	if c.K <= 0 {
		c.K = DefaultK
	}
	if c.Restarts <= 0 {
		c.Restarts = DefaultRestarts
	}
	if c.MaxIter <= 0 {
		c.MaxIter = DefaultMaxIter
	}
	if c.Tolerance <= 0 {
		c.Tolerance = DefaultTolerance
	}
	return c
}

// Model is a fitted k-means model and the persisted cluster artifact.
type Model struct {
	K           int         `json:"k"`
	Centroids   [][]float64 `json:"centroids"`
	Inertia     float64     `json:"inertia"`
	Iterations  int         `json:"iterations"`
	Seed        uint64      `json:"seed"`
	Restarts    int         `json:"restarts"`
	BestRestart int         `json:"best_restart"`
	FitID       string      `json:"fit_id,omitempty"`
}

type restartResult struct {
	centroids  [][]float64
	labels     []int
	inertia    float64
	iterations int
}

// Fit runs cfg.Restarts independent k-means fits and keeps the one with the
// lowest inertia (ties go to the lower restart index). Restart i draws from
// a PCG source seeded with (cfg.Seed, i), so the result does not depend on
// scheduling. It returns the model and the label of each row of x.
func Fit(ctx context.Context, x [][]float64, cfg Config) (*Model, []int, error) {
	cfg = cfg.withDefaults()
	if len(x) == 0 {
		return nil, nil, eris.New("cluster: fit on empty matrix")
	}
	if len(x) < cfg.K {
		return nil, nil, ErrTooFewSamples
	}
	dims := len(x[0])
	for i, row := range x {
		if len(row) != dims {
			return nil, nil, eris.Errorf("cluster: row %d has %d columns, want %d", i, len(row), dims)
		}
	}

	threshold := cfg.Tolerance * meanVariance(x)

	results := make([]restartResult, cfg.Restarts)
	var done atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range cfg.Restarts {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(i)))
			res, err := lloyd(gctx, x, initPlusPlus(x, cfg.K, rng), cfg.MaxIter, threshold)
			if err != nil {
				return err
			}
			results[i] = res
			if cfg.OnRestart != nil {
				cfg.OnRestart(int(done.Add(1)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	best := 0
	for i := 1; i < len(results); i++ {
		if results[i].inertia < results[best].inertia {
			best = i
		}
	}
	r := results[best]

	return &Model{
		K:           cfg.K,
		Centroids:   r.centroids,
		Inertia:     r.inertia,
		Iterations:  r.iterations,
		Seed:        cfg.Seed,
		Restarts:    cfg.Restarts,
		BestRestart: best,
	}, r.labels, nil
}

// initPlusPlus picks k starting centroids: the first uniformly, each next
// one with probability proportional to its squared distance from the
// nearest centroid already chosen.
func initPlusPlus(x [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(x)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, clone(x[rng.IntN(n)]))

	minDist := make([]float64, n)
	for i := range x {
		minDist[i] = sqDist(x[i], centroids[0])
	}

	for len(centroids) < k {
		total := floats.Sum(minDist)
		pick := n - 1
		if total > 0 {
			r := rng.Float64() * total
			cumulative := 0.0
			for i, d := range minDist {
				cumulative += d
				if cumulative > r {
					pick = i
					break
				}
			}
		} else {
			// Every point coincides with a centroid.
			pick = rng.IntN(n)
		}

		c := clone(x[pick])
		centroids = append(centroids, c)
		for i := range x {
			if d := sqDist(x[i], c); d < minDist[i] {
				minDist[i] = d
			}
		}
	}
	return centroids
}

// lloyd iterates assignment and update steps until the total squared
// centroid shift drops to threshold, assignments stop changing, or maxIter
// is reached. An empty cluster keeps its previous centroid.
func lloyd(ctx context.Context, x [][]float64, centroids [][]float64, maxIter int, threshold float64) (restartResult, error) {
	k, dims := len(centroids), len(x[0])
	labels := make([]int, len(x))
	for i := range labels {
		labels[i] = -1
	}

	sums := make([][]float64, k)
	for c := range sums {
		sums[c] = make([]float64, dims)
	}
	counts := make([]int, k)

	iter := 0
	for iter < maxIter {
		if err := ctx.Err(); err != nil {
			return restartResult{}, eris.Wrap(err, "cluster: fit cancelled")
		}
		iter++

		changed := false
		for i, row := range x {
			c, _ := nearest(row, centroids)
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		for c := range k {
			floats.Scale(0, sums[c])
			counts[c] = 0
		}
		for i, row := range x {
			floats.Add(sums[labels[i]], row)
			counts[labels[i]]++
		}

		shift := 0.0
		for c := range k {
			if counts[c] == 0 {
				continue
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			shift += sqDist(sums[c], centroids[c])
			copy(centroids[c], sums[c])
		}
		if shift <= threshold {
			break
		}
	}

	// Final labels and inertia against the final centroids.
	inertia := 0.0
	for i, row := range x {
		c, d := nearest(row, centroids)
		labels[i] = c
		inertia += d
	}

	return restartResult{centroids: centroids, labels: labels, inertia: inertia, iterations: iter}, nil
}

// Predict assigns each row to its nearest centroid; ties go to the lower
// cluster id.
func (m *Model) Predict(x [][]float64) ([]int, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	dims := len(m.Centroids[0])
	labels := make([]int, len(x))
	for i, row := range x {
		if len(row) != dims {
			return nil, eris.Errorf("cluster: row %d has %d columns, model expects %d", i, len(row), dims)
		}
		labels[i], _ = nearest(row, m.Centroids)
	}
	return labels, nil
}

// Validate checks that a decoded model is usable.
func (m *Model) Validate() error {
	if m.K <= 0 || len(m.Centroids) != m.K {
		return eris.Errorf("cluster: model has k=%d but %d centroids", m.K, len(m.Centroids))
	}
	dims := len(m.Centroids[0])
	if dims == 0 {
		return eris.New("cluster: model centroids have no dimensions")
	}
	for c, centroid := range m.Centroids {
		if len(centroid) != dims {
			return eris.Errorf("cluster: centroid %d has %d dimensions, want %d", c, len(centroid), dims)
		}
		if floats.HasNaN(centroid) {
			return eris.Errorf("cluster: centroid %d contains NaN", c)
		}
	}
	return nil
}

// Marshal encodes the model artifact.
func (m *Model) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, eris.Wrap(err, "cluster: marshal model")
	}
	return data, nil
}

// Unmarshal decodes and validates a model artifact.
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "cluster: unmarshal model")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

func nearest(row []float64, centroids [][]float64) (int, float64) {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := sqDist(row, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best, bestDist
}

func sqDist(a, b []float64) float64 {
	d := 0.0
	for j := range a {
		diff := a[j] - b[j]
		d += diff * diff
	}
	return d
}

// meanVariance is the mean of the per-column population variances.
func meanVariance(x [][]float64) float64 {
	dims := len(x[0])
	col := make([]float64, len(x))
	total := 0.0
	for j := range dims {
		for i, row := range x {
			col[i] = row[j]
		}
		_, v := stat.PopMeanVariance(col, nil)
		total += v
	}
	return total / float64(dims)
}

func clone(v []float64) []float64 {
	out := make([]float64, len(v))
	copy(out, v)
	return out
}

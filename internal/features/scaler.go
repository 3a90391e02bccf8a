// Package features prepares RFM triples for clustering: log1p followed by
// per-feature standardization.
package features

import (
	"encoding/json"
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/stat"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// Scaler holds standardization parameters learned on a training set. It is
// the persisted scaler artifact and is never refitted at inference time.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"` // population variance
	Scale    []float64 `json:"scale"`    // sqrt(variance), 1 where variance is 0
	Samples  int       `json:"samples"`
	FitID    string    `json:"fit_id,omitempty"` // run that produced the scaler
}

// Log1p returns log(1+x) applied element-wise to a copy of rows.
func Log1p(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			out[i][j] = math.Log1p(v)
		}
	}
	return out
}

// Matrix returns the log1p-transformed R, F, M rows of customers.
func Matrix(customers []model.Customer) [][]float64 {
	rows := make([][]float64, len(customers))
	for i, c := range customers {
		rows[i] = c.Features()
	}
	return Log1p(rows)
}

// Fit learns the mean and population variance of each column.
func Fit(rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, eris.New("features: fit on empty matrix")
	}
	dims := len(rows[0])
	if dims == 0 {
		return nil, eris.New("features: fit on zero-width matrix")
	}

	s := &Scaler{
		Mean:     make([]float64, dims),
		Variance: make([]float64, dims),
		Scale:    make([]float64, dims),
		Samples:  len(rows),
	}
	if dims == len(model.FeatureNames) {
		s.Features = model.FeatureNames
	}

	col := make([]float64, len(rows))
	for j := range dims {
		for i, row := range rows {
			if len(row) != dims {
				return nil, eris.Errorf("features: row %d has %d columns, want %d", i, len(row), dims)
			}
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Variance[j] = variance
		s.Scale[j] = 1
		if variance > 0 {
			s.Scale[j] = math.Sqrt(variance)
		}
	}
	return s, nil
}

// Transform standardizes rows with the learned parameters.
func (s *Scaler) Transform(rows [][]float64) ([][]float64, error) {
	dims := len(s.Mean)
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != dims {
			return nil, eris.Errorf("features: row %d has %d columns, scaler expects %d", i, len(row), dims)
		}
		out[i] = make([]float64, dims)
		for j, v := range row {
			out[i][j] = (v - s.Mean[j]) / s.Scale[j]
		}
	}
	return out, nil
}

// Validate checks that a decoded scaler is internally consistent.
func (s *Scaler) Validate() error {
	dims := len(s.Mean)
	if dims == 0 {
		return eris.New("features: scaler has no dimensions")
	}
	if len(s.Variance) != dims || len(s.Scale) != dims {
		return eris.Errorf("features: scaler dimensions disagree (mean %d, variance %d, scale %d)",
			dims, len(s.Variance), len(s.Scale))
	}
	for j, sc := range s.Scale {
		if sc <= 0 || math.IsNaN(sc) || math.IsInf(sc, 0) {
			return eris.Errorf("features: invalid scale %v for feature %d", sc, j)
		}
	}
	return nil
}

// Marshal encodes the scaler artifact.
func (s *Scaler) Marshal() ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "features: marshal scaler")
	}
	return data, nil
}

// Unmarshal decodes and validates a scaler artifact.
func Unmarshal(data []byte) (*Scaler, error) {
	var s Scaler
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "features: unmarshal scaler")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

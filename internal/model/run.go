package model

import "time"

// Mode selects whether a pipeline run trains a new model or applies a stored one.
type Mode string

const (
	ModeFit   Mode = "fit"   // batch: train scaler + k-means, persist artifacts
	ModeInfer Mode = "infer" // interactive: load persisted artifacts and predict
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeFit || m == ModeInfer
}

// RunStatus represents the final state of a pipeline run.
type RunStatus string

const (
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is the bookkeeping record kept for each pipeline run.
type Run struct {
	ID           string    `json:"id"`
	Mode         Mode      `json:"mode"`
	ModelName    string    `json:"model_name"`
	Source       string    `json:"source,omitempty"`
	Status       RunStatus `json:"status"`
	RowsRead     int       `json:"rows_read"`
	Transactions int       `json:"transactions"`
	Customers    int       `json:"customers"`
	Clusters     int       `json:"clusters"`
	SnapshotDate time.Time `json:"snapshot_date,omitzero"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

package model

import (
	"fmt"
	"time"
)

// Transaction is one valid, priced sale derived from a raw input row.
type Transaction struct {
	CustomerID string    `json:"customer_id"`
	Timestamp  time.Time `json:"timestamp"`
	Amount     float64   `json:"amount"`
}

// Customer is the per-customer RFM record produced by a pipeline run.
// Cluster and Segment are only set once the record has been clustered.
type Customer struct {
	CustomerID string  `json:"customer_id" yaml:"customer_id"`
	Recency    int     `json:"recency" yaml:"recency"`     // days since last purchase, relative to the snapshot date
	Frequency  int     `json:"frequency" yaml:"frequency"` // number of valid transactions
	Monetary   float64 `json:"monetary" yaml:"monetary"`   // sum of transaction amounts
	Cluster    int     `json:"cluster" yaml:"cluster"`
	Segment    Segment `json:"segment,omitempty" yaml:"segment,omitempty"`
}

// Features returns the raw R, F, M triple in feature order.
func (c Customer) Features() []float64 {
	return []float64{float64(c.Recency), float64(c.Frequency), c.Monetary}
}

// FeatureNames is the column order used by Customer.Features.
var FeatureNames = []string{"Recency", "Frequency", "Monetary"}

// Segment is a business label derived from a cluster's monetary rank.
type Segment string

const (
	SegmentChampions       Segment = "Champions"
	SegmentPotentialAtRisk Segment = "Potential_At_Risk"
	SegmentLostLowValue    Segment = "Lost_Low_Value"
)

// SegmentForRank returns the label for the given monetary rank (0 = highest).
// Ranks past the named labels fall back to "Segment_<rank>".
func SegmentForRank(rank int) Segment {
	switch rank {
	case 0:
		return SegmentChampions
	case 1:
		return SegmentPotentialAtRisk
	case 2:
		return SegmentLostLowValue
	default:
		return Segment(fmt.Sprintf("Segment_%d", rank))
	}
}

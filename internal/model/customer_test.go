package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSegmentForRank(t *testing.T) {
	tests := []struct {
		rank int
		want Segment
	}{
		{0, SegmentChampions},
		{1, SegmentPotentialAtRisk},
		{2, SegmentLostLowValue},
		{3, Segment("Segment_3")},
		{7, Segment("Segment_7")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SegmentForRank(tt.rank))
	}
}

func TestCustomer_Features(t *testing.T) {
	c := Customer{CustomerID: "C1", Recency: 4, Frequency: 2, Monetary: 150.5}
	assert.Equal(t, []float64{4, 2, 150.5}, c.Features())
	assert.Len(t, FeatureNames, 3)
}

func TestMode_Valid(t *testing.T) {
	assert.True(t, ModeFit.Valid())
	assert.True(t, ModeInfer.Valid())
	assert.False(t, Mode("train").Valid())
}

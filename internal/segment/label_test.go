package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jihanvall/rfm-app/internal/model"
)

func TestRankMeans_ScenarioD(t *testing.T) {
	mapping := Mapping(RankMeans(map[int]float64{0: 50, 1: 500, 2: 5000}))
	assert.Equal(t, map[int]model.Segment{
		2: model.SegmentChampions,
		1: model.SegmentPotentialAtRisk,
		0: model.SegmentLostLowValue,
	}, mapping)
}

func TestRankMeans_IndependentOfNumbering(t *testing.T) {
	a := Mapping(RankMeans(map[int]float64{0: 50, 1: 500, 2: 5000}))
	b := Mapping(RankMeans(map[int]float64{7: 5000, 3: 50, 5: 500}))
	assert.Equal(t, a[2], b[7])
	assert.Equal(t, a[1], b[5])
	assert.Equal(t, a[0], b[3])
}

func TestRankMeans_TiesByClusterID(t *testing.T) {
	for range 20 {
		ranks := RankMeans(map[int]float64{4: 10, 1: 10, 2: 99})
		require.Len(t, ranks, 3)
		assert.Equal(t, 2, ranks[0].Cluster)
		assert.Equal(t, 1, ranks[1].Cluster)
		assert.Equal(t, 4, ranks[2].Cluster)
	}
}

func TestRankMeans_FewerThanThreeClusters(t *testing.T) {
	assert.Empty(t, RankMeans(nil))

	one := RankMeans(map[int]float64{0: 1})
	require.Len(t, one, 1)
	assert.Equal(t, model.SegmentChampions, one[0].Segment)

	two := Mapping(RankMeans(map[int]float64{0: 1, 1: 2}))
	assert.Equal(t, map[int]model.Segment{1: model.SegmentChampions, 0: model.SegmentPotentialAtRisk}, two)
}

func TestRankMeans_MoreThanThreeClusters(t *testing.T) {
	ranks := RankMeans(map[int]float64{0: 1, 1: 2, 2: 3, 3: 4, 4: 5})
	segments := make([]model.Segment, len(ranks))
	for i, r := range ranks {
		segments[i] = r.Segment
	}
	assert.Equal(t, []model.Segment{
		"Champions", "Potential_At_Risk", "Lost_Low_Value", "Segment_3", "Segment_4",
	}, segments)
}

func TestLabel(t *testing.T) {
	customers := []model.Customer{
		{CustomerID: "A", Monetary: 40, Cluster: 0},
		{CustomerID: "B", Monetary: 60, Cluster: 0},
		{CustomerID: "C", Monetary: 900, Cluster: 1},
		{CustomerID: "D", Monetary: 300, Cluster: 2},
		{CustomerID: "E", Monetary: 500, Cluster: 2},
	}

	labeled, ranks := Label(customers)
	require.Len(t, labeled, 5)
	assert.Equal(t, model.SegmentLostLowValue, labeled[0].Segment)
	assert.Equal(t, model.SegmentChampions, labeled[2].Segment)
	assert.Equal(t, model.SegmentPotentialAtRisk, labeled[4].Segment)
	assert.Empty(t, customers[0].Segment, "input must not be modified")

	require.Len(t, ranks, 3)
	assert.Equal(t, Rank{Cluster: 2, Rank: 1, MeanMonetary: 400, Customers: 2, Segment: model.SegmentPotentialAtRisk}, ranks[1])
}

func TestClusterMeans(t *testing.T) {
	means, counts := ClusterMeans([]model.Customer{
		{Monetary: 10, Cluster: 3},
		{Monetary: 30, Cluster: 3},
	})
	assert.Equal(t, map[int]float64{3: 20}, means)
	assert.Equal(t, map[int]int{3: 2}, counts)
}

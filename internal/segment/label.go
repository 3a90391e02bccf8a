// Package segment maps opaque cluster ids to business labels by ranking
// clusters on mean Monetary value.
package segment

import (
	"cmp"
	"slices"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// Rank is one cluster's position in the monetary ranking.
type Rank struct {
	Cluster      int           `json:"cluster"`
	Rank         int           `json:"rank"`
	MeanMonetary float64       `json:"mean_monetary"`
	Customers    int           `json:"customers"`
	Segment      model.Segment `json:"segment"`
}

// ClusterMeans returns mean Monetary and member count per cluster present
// in customers.
func ClusterMeans(customers []model.Customer) (map[int]float64, map[int]int) {
	sums := make(map[int]float64)
	counts := make(map[int]int)
	for _, c := range customers {
		sums[c.Cluster] += c.Monetary
		counts[c.Cluster]++
	}
	means := make(map[int]float64, len(sums))
	for id, s := range sums {
		means[id] = s / float64(counts[id])
	}
	return means, counts
}

// RankMeans orders clusters by descending mean, breaking ties by ascending
// cluster id, and labels each rank. Only clusters present in means are
// labeled, so fewer than three clusters never index past the named labels.
func RankMeans(means map[int]float64) []Rank {
	ranks := make([]Rank, 0, len(means))
	for id, m := range means {
		ranks = append(ranks, Rank{Cluster: id, MeanMonetary: m})
	}
	slices.SortFunc(ranks, func(a, b Rank) int {
		if c := cmp.Compare(b.MeanMonetary, a.MeanMonetary); c != 0 {
			return c
		}
		return cmp.Compare(a.Cluster, b.Cluster)
	})
	for i := range ranks {
		ranks[i].Rank = i
		ranks[i].Segment = model.SegmentForRank(i)
	}
	return ranks
}

// Mapping converts a ranking to a cluster → segment lookup.
func Mapping(ranks []Rank) map[int]model.Segment {
	out := make(map[int]model.Segment, len(ranks))
	for _, r := range ranks {
		out[r.Cluster] = r.Segment
	}
	return out
}

// Label ranks the clusters of customers and returns a copy of customers
// with Segment set, together with the ranking.
func Label(customers []model.Customer) ([]model.Customer, []Rank) {
	means, counts := ClusterMeans(customers)
	ranks := RankMeans(means)
	for i := range ranks {
		ranks[i].Customers = counts[ranks[i].Cluster]
	}

	mapping := Mapping(ranks)
	out := make([]model.Customer, len(customers))
	for i, c := range customers {
		c.Segment = mapping[c.Cluster]
		out[i] = c
	}
	return out, ranks
}

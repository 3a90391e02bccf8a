package report

import (
	"encoding/json"
	"io"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gopkg.in/yaml.v3"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// SegmentSummary holds dashboard metrics for one segment.
type SegmentSummary struct {
	Segment       model.Segment `json:"segment" yaml:"segment"`
	Customers     int           `json:"customers" yaml:"customers"`
	Revenue       float64       `json:"revenue" yaml:"revenue"`
	RevenueShare  float64       `json:"revenue_share" yaml:"revenue_share"` // 0..1 of total revenue
	MeanRecency   float64       `json:"mean_recency" yaml:"mean_recency"`
	MeanFrequency float64       `json:"mean_frequency" yaml:"mean_frequency"`
	MeanMonetary  float64       `json:"mean_monetary" yaml:"mean_monetary"`
}

// Summary is the dashboard view of a segmented customer table.
type Summary struct {
	TotalCustomers int              `json:"total_customers" yaml:"total_customers"`
	TotalRevenue   float64          `json:"total_revenue" yaml:"total_revenue"`
	Segments       []SegmentSummary `json:"segments" yaml:"segments"`
}

// Summarize computes per-segment metrics. Segments are ordered by mean
// monetary value, highest first, ties by name.
func Summarize(customers []model.Customer) Summary {
	type columns struct{ r, f, m []float64 }
	groups := make(map[model.Segment]*columns)
	all := make([]float64, len(customers))

	for i, c := range customers {
		all[i] = c.Monetary
		g, ok := groups[c.Segment]
		if !ok {
			g = &columns{}
			groups[c.Segment] = g
		}
		g.r = append(g.r, float64(c.Recency))
		g.f = append(g.f, float64(c.Frequency))
		g.m = append(g.m, c.Monetary)
	}

	s := Summary{TotalCustomers: len(customers), TotalRevenue: floats.Sum(all)}
	for seg, g := range groups {
		revenue := floats.Sum(g.m)
		share := 0.0
		if s.TotalRevenue > 0 {
			share = revenue / s.TotalRevenue
		}
		s.Segments = append(s.Segments, SegmentSummary{
			Segment:       seg,
			Customers:     len(g.m),
			Revenue:       revenue,
			RevenueShare:  share,
			MeanRecency:   stat.Mean(g.r, nil),
			MeanFrequency: stat.Mean(g.f, nil),
			MeanMonetary:  stat.Mean(g.m, nil),
		})
	}
	slices.SortFunc(s.Segments, func(a, b SegmentSummary) int {
		switch {
		case a.MeanMonetary > b.MeanMonetary:
			return -1
		case a.MeanMonetary < b.MeanMonetary:
			return 1
		}
		return strings.Compare(string(a.Segment), string(b.Segment))
	})
	return s
}

// Render writes the summary as "yaml" or "json".
func (s Summary) Render(w io.Writer, format string) error {
	switch format {
	case "yaml", "yml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return eris.Wrap(err, "report: encode yaml")
		}
		return eris.Wrap(enc.Close(), "report: close yaml encoder")
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(s), "report: encode json")
	default:
		return eris.Errorf("report: unknown summary format %q", format)
	}
}

// ParseSegments splits a comma separated segment list, dropping blanks.
func ParseSegments(s string) []model.Segment {
	var out []model.Segment
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, model.Segment(part))
		}
	}
	return out
}

// FilterSegments keeps customers in any of the given segments, preserving
// order. An empty filter keeps everyone.
func FilterSegments(customers []model.Customer, segments []model.Segment) []model.Customer {
	if len(segments) == 0 {
		return customers
	}
	out := make([]model.Customer, 0, len(customers))
	for _, c := range customers {
		if slices.Contains(segments, c.Segment) {
			out = append(out, c)
		}
	}
	return out
}

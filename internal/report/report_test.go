package report

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/Jihanvall/rfm-app/internal/model"
	"github.com/Jihanvall/rfm-app/internal/tabular"
)

func sampleCustomers() []model.Customer {
	return []model.Customer{
		{CustomerID: "12346", Recency: 326, Frequency: 1, Monetary: 77183.6, Cluster: 2, Segment: model.SegmentChampions},
		{CustomerID: "12347", Recency: 2, Frequency: 7, Monetary: 4310, Cluster: 0, Segment: model.SegmentPotentialAtRisk},
		{CustomerID: "12348", Recency: 75, Frequency: 4, Monetary: 1797.24, Cluster: 0, Segment: model.SegmentPotentialAtRisk},
		{CustomerID: "12350", Recency: 310, Frequency: 1, Monetary: 334.4, Cluster: 1, Segment: model.SegmentLostLowValue},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleCustomers()[:2]))

	assert.Equal(t, "CustomerID,Recency,Frequency,Monetary,Cluster,Segment\n"+
		"12346,326,1,77183.6,2,Champions\n"+
		"12347,2,7,4310,0,Potential_At_Risk\n", buf.String())
}

func TestCSVRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleCustomers()))

	got, err := ReadCSV(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, sampleCustomers(), got)
}

func TestExportCSV_LoadResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultOutput)
	require.NoError(t, ExportCSV(path, sampleCustomers()))

	got, err := LoadResults(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, sampleCustomers(), got)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"missing column", "CustomerID,Recency\nA,1\n", "no Frequency column"},
		{"bad recency", "CustomerID,Recency,Frequency,Monetary,Cluster,Segment\nA,x,1,1,0,Champions\n", "line 2: recency"},
		{"bad monetary", "CustomerID,Recency,Frequency,Monetary,Cluster,Segment\nA,1,1,lots,0,Champions\n", "line 2: monetary"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(context.Background(), strings.NewReader(tt.input))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sampleCustomers()))

	tbl, err := tabular.Parse(context.Background(), "out.xlsx", buf.Bytes(), tabular.Options{})
	require.NoError(t, err)
	assert.Equal(t, Columns, tbl.Columns)
	require.Equal(t, 4, tbl.Len())
	assert.Equal(t, "12346", tbl.Value(0, 0))
	assert.Equal(t, "Lost_Low_Value", tbl.Value(3, 5))
}

func TestExportXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, ExportXLSX(path, sampleCustomers()))

	tbl, err := tabular.Load(context.Background(), path, tabular.Options{})
	require.NoError(t, err)
	assert.Equal(t, 4, tbl.Len())
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleCustomers())

	assert.Equal(t, 4, s.TotalCustomers)
	assert.InDelta(t, 83625.24, s.TotalRevenue, 1e-6)
	require.Len(t, s.Segments, 3)

	champions := s.Segments[0]
	assert.Equal(t, model.SegmentChampions, champions.Segment)
	assert.Equal(t, 1, champions.Customers)
	assert.InDelta(t, 77183.6/83625.24, champions.RevenueShare, 1e-9)

	potential := s.Segments[1]
	assert.Equal(t, model.SegmentPotentialAtRisk, potential.Segment)
	assert.Equal(t, 2, potential.Customers)
	assert.InDelta(t, 6107.24, potential.Revenue, 1e-6)
	assert.InDelta(t, 38.5, potential.MeanRecency, 1e-9)
	assert.InDelta(t, 5.5, potential.MeanFrequency, 1e-9)
	assert.InDelta(t, 3053.62, potential.MeanMonetary, 1e-6)

	assert.Equal(t, model.SegmentLostLowValue, s.Segments[2].Segment)

	var share float64
	for _, seg := range s.Segments {
		share += seg.RevenueShare
	}
	assert.InDelta(t, 1, share, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Zero(t, s.TotalCustomers)
	assert.Zero(t, s.TotalRevenue)
	assert.Empty(t, s.Segments)
}

func TestSummary_Render(t *testing.T) {
	s := Summarize(sampleCustomers())

	var y bytes.Buffer
	require.NoError(t, s.Render(&y, "yaml"))
	var fromYAML Summary
	require.NoError(t, yaml.Unmarshal(y.Bytes(), &fromYAML))
	assert.Equal(t, s.TotalCustomers, fromYAML.TotalCustomers)
	assert.Contains(t, y.String(), "segment: Champions")

	var j bytes.Buffer
	require.NoError(t, s.Render(&j, "json"))
	var fromJSON Summary
	require.NoError(t, json.Unmarshal(j.Bytes(), &fromJSON))
	assert.Len(t, fromJSON.Segments, 3)

	assert.Error(t, s.Render(&j, "toml"))
}

func TestParseSegments(t *testing.T) {
	assert.Equal(t, []model.Segment{"Champions", "Lost_Low_Value"}, ParseSegments(" Champions, ,Lost_Low_Value "))
	assert.Nil(t, ParseSegments(""))
}

func TestFilterSegments(t *testing.T) {
	all := sampleCustomers()
	assert.Equal(t, all, FilterSegments(all, nil))

	got := FilterSegments(all, []model.Segment{model.SegmentPotentialAtRisk})
	require.Len(t, got, 2)
	assert.Equal(t, "12347", got[0].CustomerID)
	assert.Equal(t, "12348", got[1].CustomerID)

	assert.Empty(t, FilterSegments(all, []model.Segment{"Segment_9"}))
}

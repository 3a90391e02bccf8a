package rfm

import (
	"slices"
	"strings"
	"time"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// SnapshotOffset is added to the latest transaction to fix the reference
// point for recency, so every customer has Recency >= 0.
const SnapshotOffset = 24 * time.Hour

// Snapshot returns max(timestamp) + SnapshotOffset. ok is false for an
// empty slice.
func Snapshot(txns []model.Transaction) (time.Time, bool) {
	if len(txns) == 0 {
		return time.Time{}, false
	}
	latest := txns[0].Timestamp
	for _, t := range txns[1:] {
		if t.Timestamp.After(latest) {
			latest = t.Timestamp
		}
	}
	return latest.Add(SnapshotOffset), true
}

// Aggregate reduces transactions to one record per customer, ordered by
// customer id. Recency is the number of whole days between the customer's
// latest transaction and the snapshot date. An empty input yields a
// *DataQualityError.
func Aggregate(txns []model.Transaction) (time.Time, []model.Customer, error) {
	snapshot, ok := Snapshot(txns)
	if !ok {
		return time.Time{}, nil, &DataQualityError{Reason: "no valid transactions after cleaning"}
	}

	type acc struct {
		last  time.Time
		count int
		sum   float64
	}
	groups := make(map[string]*acc)
	for _, t := range txns {
		g, ok := groups[t.CustomerID]
		if !ok {
			g = &acc{last: t.Timestamp}
			groups[t.CustomerID] = g
		}
		if t.Timestamp.After(g.last) {
			g.last = t.Timestamp
		}
		g.count++
		g.sum += t.Amount
	}

	customers := make([]model.Customer, 0, len(groups))
	for id, g := range groups {
		customers = append(customers, model.Customer{
			CustomerID: id,
			Recency:    int(snapshot.Sub(g.last) / (24 * time.Hour)),
			Frequency:  g.count,
			Monetary:   g.sum,
		})
	}
	slices.SortFunc(customers, func(a, b model.Customer) int {
		return strings.Compare(a.CustomerID, b.CustomerID)
	})

	return snapshot, customers, nil
}

package rfm

import (
	"cmp"
	"slices"
	"strings"

	"github.com/Jihanvall/rfm-app/internal/model"
)

// DefaultWhaleThreshold is the Monetary value a customer must exceed to be
// reported as a whale.
const DefaultWhaleThreshold = 10000.0

// Whales returns customers whose Monetary is strictly above threshold,
// highest first. Equal values are ordered by customer id. The input is not
// modified.
func Whales(customers []model.Customer, threshold float64) []model.Customer {
	var out []model.Customer
	for _, c := range customers {
		if c.Monetary > threshold {
			out = append(out, c)
		}
	}
	slices.SortStableFunc(out, func(a, b model.Customer) int {
		if c := cmp.Compare(b.Monetary, a.Monetary); c != 0 {
			return c
		}
		return strings.Compare(a.CustomerID, b.CustomerID)
	})
	return out
}

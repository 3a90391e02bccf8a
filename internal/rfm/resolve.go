// Package rfm turns a raw sales table into per-customer Recency, Frequency
// and Monetary records.
package rfm

import (
	"strings"
)

// Role is the meaning a resolved input column plays in the pipeline.
type Role string

const (
	RoleIdentity  Role = "identity"
	RoleDate      Role = "date"
	RoleAmount    Role = "amount"
	RoleQuantity  Role = "quantity"
	RoleUnitPrice Role = "unit_price"
	RoleInvoice   Role = "invoice"
)

// Match is the outcome of resolving one role: a column index and its
// original name, or Index -1 when nothing matched.
type Match struct {
	Index int
	Name  string
}

// Unresolved is the zero-information match.
var Unresolved = Match{Index: -1}

// Resolved reports whether the role found a column.
func (m Match) Resolved() bool {
	return m.Index >= 0
}

// Matcher resolves a role by case-insensitive substring match. The first
// column (in header order) containing any of the substrings wins.
type Matcher struct {
	Role       Role
	Substrings []string
}

// Match scans normalized column names and returns the first hit.
func (m Matcher) Match(columns []string) Match {
	for i, col := range columns {
		name := normalize(col)
		for _, sub := range m.Substrings {
			if strings.Contains(name, sub) {
				return Match{Index: i, Name: col}
			}
		}
	}
	return Unresolved
}

// DefaultMatchers is the heuristic column vocabulary for arbitrary exports.
var DefaultMatchers = []Matcher{
	{Role: RoleIdentity, Substrings: []string{"id", "cust"}},
	{Role: RoleDate, Substrings: []string{"date", "time"}},
	{Role: RoleAmount, Substrings: []string{"amount", "total", "sales"}},
	{Role: RoleQuantity, Substrings: []string{"qty", "quantity"}},
	{Role: RoleUnitPrice, Substrings: []string{"price", "unit"}},
}

// StrictColumns maps each role to the exact header required in strict mode.
var StrictColumns = []struct {
	Role Role
	Name string
}{
	{RoleIdentity, "CustomerID"},
	{RoleDate, "InvoiceDate"},
	{RoleQuantity, "Quantity"},
	{RoleUnitPrice, "UnitPrice"},
	{RoleInvoice, "InvoiceNo"},
}

// Columns is the resolved column layout of a table.
type Columns struct {
	Identity  Match
	Date      Match
	Amount    Match
	Quantity  Match
	UnitPrice Match
	Invoice   Match
	Strict    bool
}

// UsesAmount reports whether monetary value is read directly from an
// amount column rather than computed from quantity and unit price.
func (c Columns) UsesAmount() bool {
	return c.Amount.Resolved()
}

func (c *Columns) set(role Role, m Match) {
	switch role {
	case RoleIdentity:
		c.Identity = m
	case RoleDate:
		c.Date = m
	case RoleAmount:
		c.Amount = m
	case RoleQuantity:
		c.Quantity = m
	case RoleUnitPrice:
		c.UnitPrice = m
	case RoleInvoice:
		c.Invoice = m
	}
}

func unresolvedColumns() Columns {
	return Columns{
		Identity:  Unresolved,
		Date:      Unresolved,
		Amount:    Unresolved,
		Quantity:  Unresolved,
		UnitPrice: Unresolved,
		Invoice:   Unresolved,
	}
}

// Resolve maps a header onto the RFM roles using DefaultMatchers. It fails
// with *SchemaError when identity or date cannot be found, or when neither
// an amount column nor a quantity and unit price pair is present.
func Resolve(columns []string) (Columns, error) {
	cols := unresolvedColumns()
	for _, m := range DefaultMatchers {
		cols.set(m.Role, m.Match(columns))
	}

	var missing []string
	if !cols.Identity.Resolved() {
		missing = append(missing, string(RoleIdentity))
	}
	if !cols.Date.Resolved() {
		missing = append(missing, string(RoleDate))
	}
	if !cols.Amount.Resolved() && (!cols.Quantity.Resolved() || !cols.UnitPrice.Resolved()) {
		missing = append(missing, "amount or quantity+unit_price")
	}
	if len(missing) > 0 {
		return Columns{}, &SchemaError{Missing: missing, Columns: columns}
	}
	return cols, nil
}

// ResolveStrict requires the fixed batch schema, matched exactly after
// trimming surrounding whitespace.
func ResolveStrict(columns []string) (Columns, error) {
	cols := unresolvedColumns()
	cols.Strict = true

	var missing []string
	for _, sc := range StrictColumns {
		m := Unresolved
		for i, col := range columns {
			if strings.TrimSpace(col) == sc.Name {
				m = Match{Index: i, Name: col}
				break
			}
		}
		if !m.Resolved() {
			missing = append(missing, sc.Name)
		}
		cols.set(sc.Role, m)
	}
	if len(missing) > 0 {
		return Columns{}, &SchemaError{Missing: missing, Columns: columns}
	}
	return cols, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

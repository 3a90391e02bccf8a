package rfm

import (
	"fmt"
	"strings"
)

// SchemaError reports input columns that cannot be mapped onto the RFM roles.
type SchemaError struct {
	Missing []string // roles (or strict column names) that did not resolve
	Columns []string // header as read, for the error message
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: cannot resolve %s column(s); input has [%s]",
		strings.Join(e.Missing, ", "), strings.Join(e.Columns, ", "))
}

// DataQualityError reports a batch that is structurally valid but holds too
// little usable data to continue.
type DataQualityError struct {
	Reason string
	Rows   int // rows that survived up to the failing check
}

func (e *DataQualityError) Error() string {
	return fmt.Sprintf("data quality: %s (%d usable rows)", e.Reason, e.Rows)
}

package datanorm

// Diagnostics collects soft problems found while parsing a file.
type Diagnostics struct {
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// ParsedTable is the result of ingesting one file. It is not modified
// after Ingest returns.
type ParsedTable struct {
	Headers     []string            `json:"headers"`
	Rows        []map[string]string `json:"rows"`
	RowCount    int                 `json:"row_count"`
	Diagnostics Diagnostics         `json:"diagnostics"`
}

// Demographics holds the optional demographic attributes of a customer.
type Demographics struct {
	Age      string `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Location string `json:"location,omitempty"`
	Income   string `json:"income,omitempty"`
}

// CustomerRecord is one normalized customer built from a source row.
type CustomerRecord struct {
	Identifier             string       `json:"identifier"`
	Name                   string       `json:"name,omitempty"`
	Demographics           Demographics `json:"demographics"`
	Interests              []string     `json:"interests"`
	Behaviors              []string     `json:"behaviors"`
	PurchaseHistorySummary string       `json:"purchase_history_summary,omitempty"`
}

// IsSynthetic reports whether the identifier was generated because the
// row carried no usable email.
func (c CustomerRecord) IsSynthetic() bool {
	return IsSyntheticID(c.Identifier)
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	IsValid     bool     `json:"is_valid"`
	Warnings    []string `json:"warnings"`
	Suggestions []string `json:"suggestions"`
}

// MapResult is the full outcome of mapping a table, including the rows
// that were skipped. InputRows always equals
// len(Customers) + DuplicatesSkipped + RowsFailed.
type MapResult struct {
	Customers         []CustomerRecord `json:"customers"`
	InputRows         int              `json:"input_rows"`
	DuplicatesSkipped int              `json:"duplicates_skipped"`
	RowsFailed        int              `json:"rows_failed"`
	Diagnostics       []string         `json:"diagnostics"`
}

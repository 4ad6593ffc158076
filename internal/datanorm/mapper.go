package datanorm

import (
	"fmt"

	"github.com/ignite/audience-builder/internal/pkg/logger"
)

// Mapper turns parsed rows into deduplicated customer records.
type Mapper struct {
	ids IDFactory
	log *logger.Logger
}

// MapperOption configures a Mapper.
type MapperOption func(*Mapper)

// WithIDFactory sets where synthetic identifiers come from.
func WithIDFactory(f IDFactory) MapperOption {
	return func(m *Mapper) {
		if f != nil {
			m.ids = f
		}
	}
}

// WithLogger sets the logger used for per-row failures.
func WithLogger(l *logger.Logger) MapperOption {
	return func(m *Mapper) {
		if l != nil {
			m.log = l
		}
	}
}

// NewMapper returns a Mapper issuing random synthetic identifiers.
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{ids: defaultIDFactory, log: logger.Default()}
	for _, opt := range opts {
		opt(m)
	}
	m.log = m.log.With("component", "datanorm.mapper")
	return m
}

// MapRowsToCustomers applies mapping to every row of table and returns the
// resulting records in source order. See MapRows for the skip accounting.
func (m *Mapper) MapRowsToCustomers(table *ParsedTable, mapping ColumnMapping) ([]CustomerRecord, error) {
	res, err := m.MapRows(table, mapping)
	if err != nil {
		return nil, err
	}
	return res.Customers, nil
}

// MapRows applies mapping to every row of table. Rows whose identifier was
// already seen are skipped (first occurrence wins) and rows that fail are
// skipped and logged; neither aborts the batch. Only a nil table or one
// without headers is an error.
func (m *Mapper) MapRows(table *ParsedTable, mapping ColumnMapping) (*MapResult, error) {
	if table == nil {
		return nil, &ContractViolation{Op: "map rows", Reason: "table is nil"}
	}
	if len(table.Headers) == 0 {
		return nil, &ContractViolation{Op: "map rows", Reason: "table has no headers"}
	}

	cols := mapping.Resolve(table.Headers)
	ids := m.ids()
	res := &MapResult{
		Customers:   make([]CustomerRecord, 0, len(table.Rows)),
		InputRows:   len(table.Rows),
		Diagnostics: []string{},
	}
	seen := make(map[string]struct{}, len(table.Rows))

	for i, row := range table.Rows {
		var (
			rec CustomerRecord
			dup bool
		)
		err := guardRow(func() {
			rec.Identifier = resolveIdentifier(row, cols, ids)
			if _, dup = seen[rec.Identifier]; dup {
				return
			}
			fillRecord(&rec, row, cols)
		})
		if err != nil {
			res.RowsFailed++
			res.Diagnostics = append(res.Diagnostics, fmt.Sprintf("row %d skipped: %v", i+1, err))
			m.log.Warn("row skipped", "row", i+1, "identifier", rec.Identifier, "error", err)
			continue
		}
		if dup {
			res.DuplicatesSkipped++
			continue
		}
		seen[rec.Identifier] = struct{}{}
		res.Customers = append(res.Customers, rec)
	}

	if res.DuplicatesSkipped > 0 {
		res.Diagnostics = append(res.Diagnostics,
			fmt.Sprintf("%d duplicate row(s) skipped", res.DuplicatesSkipped))
	}
	m.log.Debug("rows mapped",
		"input", res.InputRows,
		"customers", len(res.Customers),
		"duplicates", res.DuplicatesSkipped,
		"failed", res.RowsFailed)
	return res, nil
}

// guardRow runs fn and converts a panic into an error so one bad row
// cannot stop the batch.
func guardRow(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()
	fn()
	return nil
}

func resolveIdentifier(row map[string]string, cols ColumnMapping, ids IDSource) string {
	if h, ok := cols.Column(FieldEmail); ok {
		if email, ok := normalizeEmail(row[h]); ok {
			return email
		}
	}
	return ids.NewID()
}

func fillRecord(rec *CustomerRecord, row map[string]string, cols ColumnMapping) {
	cell := func(f FieldKey) string {
		h, ok := cols.Column(f)
		if !ok {
			return ""
		}
		return row[h]
	}

	rec.Name = collapse(cell(FieldName))
	if age, ok := normalizeAge(cell(FieldAge)); ok {
		rec.Demographics.Age = age
	}
	rec.Demographics.Gender = normalizeGender(cell(FieldGender))
	rec.Demographics.Location = collapse(cell(FieldLocation))
	if income, ok := normalizeIncome(cell(FieldIncome)); ok {
		rec.Demographics.Income = income
	}
	rec.Interests = splitList(cell(FieldInterests))
	rec.Behaviors = splitList(cell(FieldBehaviors))
	rec.PurchaseHistorySummary = collapse(cell(FieldPurchaseHistory))
}

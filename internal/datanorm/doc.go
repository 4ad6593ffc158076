// Package datanorm turns uploaded customer CSV files into normalized
// customer records.
//
// The pipeline runs in three steps. Ingest parses the raw file into a
// ParsedTable and records soft diagnostics. Validate and AutoDetectMapping
// inspect the table and propose a ColumnMapping. A Mapper then applies a
// (possibly caller-edited) mapping and returns deduplicated CustomerRecords.
//
// Nothing in this package performs network I/O or persists data. Fatal
// problems with the file surface as *FormatError; misuse by a caller
// surfaces as *ContractViolation. Everything else is reported as a
// warning and never aborts a batch.
package datanorm

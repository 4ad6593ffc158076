package datanorm

import (
	"fmt"
	"strings"
)

const (
	identifierSampleRows = 5
	densitySampleRows    = 10
	lowDensity           = 0.30
	highDensity          = 0.80
	largeDataset         = 10000
)

// Validate assesses whether table is usable for building customer records.
// Structural validity only depends on row and header counts; quality
// problems are reported as warnings and suggestions.
func Validate(table *ParsedTable) ValidationResult {
	res := ValidationResult{Warnings: []string{}, Suggestions: []string{}}
	if table == nil {
		res.Warnings = append(res.Warnings, "no table to validate")
		return res
	}
	res.IsValid = table.RowCount >= 1 && len(table.Headers) >= 1

	emailHeader := false
	for _, h := range table.Headers {
		if f, ok := MatchField(h); ok && f == FieldEmail {
			emailHeader = true
			break
		}
	}
	emailColumns := sampleEmailColumns(table)
	switch {
	case !emailHeader && len(emailColumns) == 0:
		res.Warnings = append(res.Warnings, "no identifier column detected")
	case !emailHeader:
		res.Suggestions = append(res.Suggestions,
			fmt.Sprintf("column %q appears to contain email addresses; map it to the email field manually", emailColumns[0]))
	}

	if rate, ok := fillRate(table); ok {
		switch {
		case rate < lowDensity:
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("low data density: %.0f%% of sampled cells are filled", rate*100))
		case rate > highDensity:
			res.Suggestions = append(res.Suggestions,
				fmt.Sprintf("good data density: %.0f%% of sampled cells are filled", rate*100))
		}
	}

	if table.RowCount > largeDataset {
		res.Suggestions = append(res.Suggestions, "large dataset, processing may take a moment")
	}

	for _, h := range table.Headers {
		if strings.Contains(h, " ") && !strings.Contains(h, "_") {
			res.Suggestions = append(res.Suggestions,
				fmt.Sprintf("header %q contains spaces; prefer underscores", h))
		}
	}
	return res
}

// sampleEmailColumns returns, in header order, the columns whose values in
// the first rows look like email addresses.
func sampleEmailColumns(table *ParsedTable) []string {
	n := min(identifierSampleRows, len(table.Rows))
	var cols []string
	for _, h := range table.Headers {
		for _, row := range table.Rows[:n] {
			if LooksLikeEmail(row[h]) {
				cols = append(cols, h)
				break
			}
		}
	}
	return cols
}

func fillRate(table *ParsedTable) (float64, bool) {
	n := min(densitySampleRows, len(table.Rows))
	total := n * len(table.Headers)
	if total == 0 {
		return 0, false
	}
	filled := 0
	for _, row := range table.Rows[:n] {
		for _, h := range table.Headers {
			if strings.TrimSpace(row[h]) != "" {
				filled++
			}
		}
	}
	return float64(filled) / float64(total), true
}

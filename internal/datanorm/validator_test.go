package datanorm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasPrefix(items []string, prefix string) bool {
	for _, s := range items {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}

func TestValidate_DuplicateHeadersStillValid(t *testing.T) {
	table := mustIngest(t, "Email,Email,Name\na@x.com,b@x.com,Al\n")
	require.Contains(t, table.Diagnostics.Warnings, "duplicate headers: Email")

	res := Validate(table)

	assert.True(t, res.IsValid)
	assert.False(t, hasPrefix(res.Warnings, "no identifier"))
}

func TestValidate_NoIdentifierColumn(t *testing.T) {
	table := mustIngest(t, "Name,City\nAl,NYC\nBo,LA\n")

	res := Validate(table)

	assert.True(t, res.IsValid)
	assert.Contains(t, res.Warnings, "no identifier column detected")
}

func TestValidate_EmailValuesUnderOtherHeader(t *testing.T) {
	table := mustIngest(t, "Login,City\nal@x.com,NYC\nbo@x.com,LA\n")

	res := Validate(table)

	assert.NotContains(t, res.Warnings, "no identifier column detected")
	assert.True(t, hasPrefix(res.Suggestions, `column "Login" appears to contain email addresses`))
}

func TestValidate_Density(t *testing.T) {
	sparse := &ParsedTable{
		Headers: []string{"Email", "Name", "Age", "City"},
		Rows: []map[string]string{
			{"Email": "a@x.com", "Name": "", "Age": "", "City": ""},
			{"Email": "", "Name": "", "Age": "", "City": ""},
		},
		RowCount: 2,
	}
	res := Validate(sparse)
	assert.True(t, hasPrefix(res.Warnings, "low data density"))
	assert.False(t, hasPrefix(res.Suggestions, "good data density"))

	dense := mustIngest(t, roundTripCSV)
	res = Validate(dense)
	assert.True(t, hasPrefix(res.Suggestions, "good data density"))
	assert.False(t, hasPrefix(res.Warnings, "low data density"))
}

func TestValidate_LargeDataset(t *testing.T) {
	table := &ParsedTable{
		Headers:  []string{"Email"},
		Rows:     []map[string]string{{"Email": "a@x.com"}},
		RowCount: largeDataset + 1,
	}

	res := Validate(table)

	assert.Contains(t, res.Suggestions, "large dataset, processing may take a moment")
}

func TestValidate_HeaderSpacing(t *testing.T) {
	table := mustIngest(t, "Email,Full Name,first_name x\na@x.com,Al,A\n")

	res := Validate(table)

	assert.Contains(t, res.Suggestions, `header "Full Name" contains spaces; prefer underscores`)
	assert.False(t, hasPrefix(res.Suggestions, `header "first_name x"`))
}

func TestValidate_StructurallyInvalid(t *testing.T) {
	assert.False(t, Validate(nil).IsValid)

	empty := &ParsedTable{Headers: []string{"Email"}}
	res := Validate(empty)
	assert.False(t, res.IsValid)

	noHeaders := &ParsedTable{Rows: []map[string]string{{}}, RowCount: 1}
	assert.False(t, Validate(noHeaders).IsValid)
}

package datanorm

import (
	"regexp"
	"strings"
)

// FieldKey names a semantic customer field a column can be mapped to.
type FieldKey string

const (
	FieldEmail           FieldKey = "email"
	FieldName            FieldKey = "name"
	FieldAge             FieldKey = "age"
	FieldGender          FieldKey = "gender"
	FieldLocation        FieldKey = "location"
	FieldIncome          FieldKey = "income"
	FieldInterests       FieldKey = "interests"
	FieldBehaviors       FieldKey = "behaviors"
	FieldPurchaseHistory FieldKey = "purchaseHistory"
)

// NoColumn is the explicit "not mapped" value a caller may put in a
// ColumnMapping.
const NoColumn = "none"

// FieldPattern pairs a field with the header names that map to it.
type FieldPattern struct {
	Field   FieldKey
	Pattern *regexp.Regexp
}

// FieldPatterns is checked in order; the first match claims the header.
var FieldPatterns = []FieldPattern{
	{FieldEmail, regexp.MustCompile(`(?i)^(e-?mail|e-?mail[ _-]?address|emailaddress|contact|user[ _-]?email|customer[ _-]?email|mail)$`)},
	{FieldName, regexp.MustCompile(`(?i)^(name|full[ _-]?name|customer[ _-]?name|contact[ _-]?name|first[ _-]?name|display[ _-]?name|user[ _-]?name)$`)},
	{FieldAge, regexp.MustCompile(`(?i)^(age|customer[ _-]?age|age[ _-]?years|years)$`)},
	{FieldGender, regexp.MustCompile(`(?i)^(gender|sex)$`)},
	{FieldLocation, regexp.MustCompile(`(?i)^(location|city|town|state|region|country|address|geo)$`)},
	{FieldIncome, regexp.MustCompile(`(?i)^(income|salary|annual[ _-]?income|household[ _-]?income)$`)},
	{FieldInterests, regexp.MustCompile(`(?i)^(interests?|hobbies|preferences|categories)$`)},
	{FieldBehaviors, regexp.MustCompile(`(?i)^(behaviou?rs?|activit(y|ies)|actions|habits)$`)},
	{FieldPurchaseHistory, regexp.MustCompile(`(?i)^(purchase[ _-]?history|purchases|orders|order[ _-]?history|transactions)$`)},
}

// AllFields lists every FieldKey in priority order.
func AllFields() []FieldKey {
	out := make([]FieldKey, 0, len(FieldPatterns))
	for _, fp := range FieldPatterns {
		out = append(out, fp.Field)
	}
	return out
}

// ParseFieldKey returns the FieldKey named s, matched case-insensitively.
func ParseFieldKey(s string) (FieldKey, bool) {
	for _, fp := range FieldPatterns {
		if strings.EqualFold(string(fp.Field), strings.TrimSpace(s)) {
			return fp.Field, true
		}
	}
	return "", false
}

// MatchField returns the first field whose pattern matches header.
func MatchField(header string) (FieldKey, bool) {
	h := strings.Trim(strings.TrimSpace(header), "\"'")
	for _, fp := range FieldPatterns {
		if fp.Pattern.MatchString(h) {
			return fp.Field, true
		}
	}
	return "", false
}

// ColumnMapping maps a field to the header that feeds it. A missing key,
// an empty value or NoColumn all mean the field is unmapped.
type ColumnMapping map[FieldKey]string

// Column returns the header mapped to f, if any.
func (m ColumnMapping) Column(f FieldKey) (string, bool) {
	h, ok := m[f]
	if !ok || h == "" || h == NoColumn {
		return "", false
	}
	return h, true
}

// Resolve returns a copy of m without unmapped fields or headers that are
// not in headers.
func (m ColumnMapping) Resolve(headers []string) ColumnMapping {
	known := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		known[h] = struct{}{}
	}
	out := make(ColumnMapping, len(m))
	for f, h := range m {
		if _, ok := m.Column(f); !ok {
			continue
		}
		if _, ok := known[h]; ok {
			out[f] = h
		}
	}
	return out
}

// Merge returns m with every entry of overrides applied on top. An
// override of NoColumn or "" clears the field.
func (m ColumnMapping) Merge(overrides ColumnMapping) ColumnMapping {
	out := make(ColumnMapping, len(m)+len(overrides))
	for f, h := range m {
		out[f] = h
	}
	for f, h := range overrides {
		if h == "" || h == NoColumn {
			delete(out, f)
			continue
		}
		out[f] = h
	}
	return out
}

// AutoDetectMapping proposes a mapping from header names alone. Each
// header is assigned to at most one field and a field keeps the first
// header that matched it. Unmatched fields are left out.
func AutoDetectMapping(headers []string) ColumnMapping {
	m := make(ColumnMapping)
	for _, h := range headers {
		field, ok := MatchField(h)
		if !ok {
			continue
		}
		if _, taken := m[field]; taken {
			continue
		}
		m[field] = h
	}
	return m
}

// LooksLikeEmail is the loose check used when sampling cell values: the
// value contains an "@" and a ".".
func LooksLikeEmail(val string) bool {
	return strings.Contains(val, "@") && strings.Contains(val, ".")
}

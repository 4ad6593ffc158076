package datanorm

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const maxListItems = 10

var (
	emailShape     = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	listSeparators = regexp.MustCompile(`[,;|]`)
	incomeNoise    = strings.NewReplacer("$", "", "€", "", "£", "", "¥", "", "₹", "", ",", "", " ", "")
)

// normalizeEmail lower-cases and trims an email and strips the quoting
// some exports wrap it in. It returns false when the result is not shaped
// like local@domain.tld.
func normalizeEmail(raw string) (string, bool) {
	email := strings.ToLower(strings.TrimSpace(raw))
	email = strings.TrimSpace(strings.Trim(email, "\"'<>"))
	if email == "" || len(email) > 254 || !emailShape.MatchString(email) {
		return "", false
	}
	return email, true
}

// collapse trims s and squeezes inner whitespace runs to one space.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// normalizeAge accepts whole numbers strictly between 0 and 150.
func normalizeAge(raw string) (string, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 || n >= 150 {
		return "", false
	}
	return strconv.Itoa(n), true
}

// normalizeGender maps the common spellings onto Male, Female and Other.
// Anything else is returned as written. Female is checked first because
// "female" contains "male".
func normalizeGender(raw string) string {
	v := collapse(raw)
	lower := strings.ToLower(v)
	switch {
	case lower == "":
		return ""
	case lower == "f" || strings.Contains(lower, "female"):
		return "Female"
	case lower == "m" || strings.Contains(lower, "male"):
		return "Male"
	case strings.Contains(lower, "other") || strings.Contains(lower, "non-binary"):
		return "Other"
	default:
		return v
	}
}

// normalizeIncome keeps the value when, without currency symbols and
// thousands separators, it is a non-negative number.
func normalizeIncome(raw string) (string, bool) {
	v := collapse(raw)
	f, err := strconv.ParseFloat(incomeNoise.Replace(v), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return "", false
	}
	return v, true
}

// splitList splits a multi-value cell on commas, semicolons and pipes. It
// drops empty and repeated tokens and keeps at most maxListItems in
// first-seen order.
func splitList(raw string) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, tok := range listSeparators.Split(raw, -1) {
		tok = collapse(tok)
		if tok == "" {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == maxListItems {
			break
		}
	}
	return out
}

package upload

import (
	"time"

	"github.com/ignite/audience-builder/internal/audience"
	"github.com/ignite/audience-builder/internal/datanorm"
)

// Session is an analyzed upload waiting for confirmation.
type Session struct {
	ID               string                    `json:"id"`
	Filename         string                    `json:"filename"`
	Source           string                    `json:"source"`
	SizeBytes        int64                     `json:"size_bytes"`
	Table            *datanorm.ParsedTable     `json:"table"`
	Validation       datanorm.ValidationResult `json:"validation"`
	SuggestedMapping datanorm.ColumnMapping    `json:"suggested_mapping"`
	CreatedAt        time.Time                 `json:"created_at"`
	ExpiresAt        time.Time                 `json:"expires_at"`
}

// Summary is what callers see of a session: everything except the full
// row set.
type Summary struct {
	ID               string                    `json:"id"`
	Filename         string                    `json:"filename"`
	Source           string                    `json:"source"`
	SizeBytes        int64                     `json:"size_bytes"`
	Headers          []string                  `json:"headers"`
	RowCount         int                       `json:"row_count"`
	PreviewRows      []map[string]string       `json:"preview_rows"`
	Diagnostics      datanorm.Diagnostics      `json:"diagnostics"`
	Validation       datanorm.ValidationResult `json:"validation"`
	SuggestedMapping datanorm.ColumnMapping    `json:"suggested_mapping"`
	ExpiresAt        time.Time                 `json:"expires_at"`
}

// ConfirmRequest carries the caller's mapping edits. Entries override the
// suggested mapping; "none" unmaps a field.
type ConfirmRequest struct {
	Mapping          datanorm.ColumnMapping `json:"mapping"`
	AudienceName     string                 `json:"audience_name"`
	IncludeCustomers bool                   `json:"include_customers"`
}

// Result is the outcome of a confirmed upload.
type Result struct {
	SessionID         string                    `json:"session_id,omitempty"`
	Filename          string                    `json:"filename"`
	Mapping           datanorm.ColumnMapping    `json:"mapping"`
	Profile           audience.Profile          `json:"profile"`
	InputRows         int                       `json:"input_rows"`
	CustomerCount     int                       `json:"customer_count"`
	DuplicatesSkipped int                       `json:"duplicates_skipped"`
	RowsFailed        int                       `json:"rows_failed"`
	Diagnostics       []string                  `json:"diagnostics"`
	Customers         []datanorm.CustomerRecord `json:"customers,omitempty"`
}

// Limits bound uploads and sessions.
type Limits struct {
	MinBytes    int64
	MaxBytes    int64
	PreviewRows int
	SessionTTL  time.Duration
	KeyPrefix   string
}

func (l Limits) withDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = 10 << 20
	}
	if l.PreviewRows <= 0 {
		l.PreviewRows = 10
	}
	if l.SessionTTL <= 0 {
		l.SessionTTL = 30 * time.Minute
	}
	if l.KeyPrefix == "" {
		l.KeyPrefix = "audience:upload:"
	}
	return l
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Counters(t *testing.T) {
	r := New("test")

	r.Upload(OutcomeAnalyzed)
	r.Upload(OutcomeAnalyzed)
	r.Upload(OutcomeFormatError)
	r.RowsIngested(12)
	r.Mapped(9, 2, 1)
	r.Stage("ingest", time.Now().Add(-50*time.Millisecond))

	assert.Equal(t, 2.0, testutil.ToFloat64(r.uploads.WithLabelValues(OutcomeAnalyzed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.uploads.WithLabelValues(OutcomeFormatError)))
	assert.Equal(t, 12.0, testutil.ToFloat64(r.rowsIngested))
	assert.Equal(t, 9.0, testutil.ToFloat64(r.customersMapped))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.duplicatesSkipped))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.rowsFailed))
	assert.Equal(t, 1, testutil.CollectAndCount(r.stageDuration))
}

func TestRecorder_Handler(t *testing.T) {
	r := New("test")
	r.RowsIngested(3)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "test_pipeline_rows_ingested_total 3")
}

func TestRecorder_NilIsNoop(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.Upload(OutcomeRejected)
		r.RowsIngested(1)
		r.Mapped(1, 1, 1)
		r.Stage("map", time.Now())
	})
	assert.Nil(t, r.Registry())

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

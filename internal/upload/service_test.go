package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/audience-builder/internal/audience"
	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/logger"
	"github.com/ignite/audience-builder/internal/pkg/metrics"
	"github.com/ignite/audience-builder/internal/storage"
)

const customersCSV = `email,name,age,gender,city,interests
alice@example.com,Alice,29,female,NYC,"tech, travel"
BOB@example.com,Bob,41,m,LA,sports
alice@example.com,Alice Again,30,f,Boston,music
,Nobody,,,,
`

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeObjects struct {
	files   map[string]string
	openErr error
}

func (f *fakeObjects) Open(_ context.Context, key string) (io.ReadCloser, int64, error) {
	if f.openErr != nil {
		return nil, 0, f.openErr
	}
	body, ok := f.files[key]
	if !ok {
		return nil, 0, storage.ErrObjectNotFound
	}
	return io.NopCloser(strings.NewReader(body)), int64(len(body)), nil
}

func (f *fakeObjects) List(context.Context) ([]storage.Object, error) {
	out := make([]storage.Object, 0, len(f.files))
	for k, v := range f.files {
		out = append(out, storage.Object{Key: k, Size: int64(len(v))})
	}
	return out, nil
}

func setupService(t *testing.T, opts ...Option) (*Service, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	quiet := logger.New(logger.ERROR, io.Discard)
	mapper := datanorm.NewMapper(
		datanorm.WithIDFactory(datanorm.SeededIDs(7, testNow)),
		datanorm.WithLogger(quiet))
	builder, err := audience.NewBuilder(
		audience.WithRandomSource(audience.NewRandomSource(7)),
		audience.WithLogger(quiet))
	require.NoError(t, err)

	opts = append([]Option{WithLogger(quiet), WithClock(func() time.Time { return testNow })}, opts...)
	svc := NewService(rdb, mapper, builder, Limits{MinBytes: 10, MaxBytes: 4096, PreviewRows: 2}, opts...)
	return svc, mr
}

func assertUploads(t *testing.T, rec *metrics.Recorder, outcome string, n int) {
	t.Helper()
	expected := fmt.Sprintf(`
# HELP test_pipeline_uploads_total Uploads processed, by outcome.
# TYPE test_pipeline_uploads_total counter
test_pipeline_uploads_total{outcome=%q} %d
`, outcome, n)
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected), "test_pipeline_uploads_total"))
}

func analyze(t *testing.T, svc *Service, body string) *Summary {
	t.Helper()
	sum, err := svc.Analyze(context.Background(), "customers.csv", strings.NewReader(body), int64(len(body)))
	require.NoError(t, err)
	return sum
}

func TestAnalyze_StoresSession(t *testing.T) {
	svc, mr := setupService(t)

	sum := analyze(t, svc, customersCSV)

	assert.NotEmpty(t, sum.ID)
	assert.Equal(t, "customers.csv", sum.Filename)
	assert.Equal(t, "upload", sum.Source)
	assert.Equal(t, int64(len(customersCSV)), sum.SizeBytes)
	assert.Equal(t, []string{"email", "name", "age", "gender", "city", "interests"}, sum.Headers)
	assert.Equal(t, 4, sum.RowCount)
	assert.Len(t, sum.PreviewRows, 2)
	assert.True(t, sum.Validation.IsValid)
	assert.Equal(t, "city", sum.SuggestedMapping[datanorm.FieldLocation])
	assert.Equal(t, testNow.Add(30*time.Minute), sum.ExpiresAt)

	key := "audience:upload:" + sum.ID
	require.True(t, mr.Exists(key))
	assert.Equal(t, 30*time.Minute, mr.TTL(key))
}

func TestPreview(t *testing.T) {
	svc, mr := setupService(t)
	sum := analyze(t, svc, customersCSV)

	got, err := svc.Preview(context.Background(), sum.ID)
	require.NoError(t, err)
	assert.Equal(t, sum.Headers, got.Headers)
	assert.Equal(t, sum.PreviewRows, got.PreviewRows)
	assert.Equal(t, sum.SuggestedMapping, got.SuggestedMapping)

	_, err = svc.Preview(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	mr.FastForward(31 * time.Minute)
	_, err = svc.Preview(context.Background(), sum.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConfirm_BuildsProfileAndDeletesSession(t *testing.T) {
	svc, mr := setupService(t)
	sum := analyze(t, svc, customersCSV)

	res, err := svc.Confirm(context.Background(), sum.ID, ConfirmRequest{IncludeCustomers: true})
	require.NoError(t, err)

	assert.Equal(t, sum.ID, res.SessionID)
	assert.Equal(t, 4, res.InputRows)
	assert.Equal(t, 3, res.CustomerCount)
	assert.Equal(t, 1, res.DuplicatesSkipped)
	assert.Equal(t, 0, res.RowsFailed)
	assert.Equal(t, "Lookalike: customers", res.Profile.Name)
	assert.Equal(t, 3, res.Profile.CustomerCount)
	assert.Equal(t, audience.StatusDraft, res.Profile.Status)
	assert.Contains(t, res.Diagnostics, "1 duplicate row(s) skipped")

	require.Len(t, res.Customers, 3)
	assert.Equal(t, "alice@example.com", res.Customers[0].Identifier)
	assert.Equal(t, "Female", res.Customers[0].Demographics.Gender)
	assert.Equal(t, "bob@example.com", res.Customers[1].Identifier)
	assert.True(t, res.Customers[2].IsSynthetic())

	assert.False(t, mr.Exists("audience:upload:"+sum.ID))
	_, err = svc.Confirm(context.Background(), sum.ID, ConfirmRequest{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestConfirm_MappingOverrides(t *testing.T) {
	svc, _ := setupService(t)
	body := "correo,nombre,city\nana@example.com,Ana,Lima\nluis@example.com,Luis,Quito\n"
	sum := analyze(t, svc, body)
	assert.NotContains(t, sum.SuggestedMapping, datanorm.FieldEmail)

	res, err := svc.Confirm(context.Background(), sum.ID, ConfirmRequest{
		AudienceName: "  Andes  ",
		Mapping: datanorm.ColumnMapping{
			"Email":                "correo",
			datanorm.FieldName:     "nombre",
			datanorm.FieldLocation: datanorm.NoColumn,
		},
		IncludeCustomers: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Andes", res.Profile.Name)
	assert.Equal(t, datanorm.ColumnMapping{
		datanorm.FieldEmail: "correo",
		datanorm.FieldName:  "nombre",
	}, res.Mapping)
	require.Len(t, res.Customers, 2)
	assert.Equal(t, "ana@example.com", res.Customers[0].Identifier)
	assert.Equal(t, "Ana", res.Customers[0].Name)
	assert.Empty(t, res.Customers[0].Demographics.Location)
}

func TestConfirm_LockedSessionIsBusy(t *testing.T) {
	svc, mr := setupService(t)
	sum := analyze(t, svc, customersCSV)
	lockKey := "lock:audience:upload:" + sum.ID
	require.NoError(t, mr.Set(lockKey, "another-replica"))

	_, err := svc.Confirm(context.Background(), sum.ID, ConfirmRequest{})
	assert.ErrorIs(t, err, ErrSessionBusy)
	assert.True(t, mr.Exists("audience:upload:"+sum.ID))

	mr.Del(lockKey)
	_, err = svc.Confirm(context.Background(), sum.ID, ConfirmRequest{})
	require.NoError(t, err)
	assert.False(t, mr.Exists(lockKey))
}

func TestConfirm_UnknownFieldKeepsSession(t *testing.T) {
	svc, mr := setupService(t)
	sum := analyze(t, svc, customersCSV)

	_, err := svc.Confirm(context.Background(), sum.ID, ConfirmRequest{
		Mapping: datanorm.ColumnMapping{"shoe_size": "age"},
	})
	assert.ErrorIs(t, err, ErrInvalidMapping)
	assert.True(t, mr.Exists("audience:upload:"+sum.ID))
}

func TestAnalyze_Rejections(t *testing.T) {
	rec := metrics.New("test")
	svc, _ := setupService(t, WithMetrics(rec))
	ctx := context.Background()

	_, err := svc.Analyze(ctx, "customers.xlsx", strings.NewReader(customersCSV), -1)
	assert.ErrorIs(t, err, ErrUnsupportedFileType)

	_, err = svc.Analyze(ctx, "big.csv", strings.NewReader(customersCSV), 5000)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	huge := "email\n" + strings.Repeat("someone@example.com\n", 300)
	_, err = svc.Analyze(ctx, "huge.csv", strings.NewReader(huge), -1)
	assert.ErrorIs(t, err, ErrFileTooLarge)

	_, err = svc.Analyze(ctx, "tiny.csv", strings.NewReader("a\nb\n"), -1)
	assert.ErrorIs(t, err, ErrFileTooSmall)

	_, err = svc.Analyze(ctx, "tiny.csv", strings.NewReader("a\nb\n"), 4)
	assert.ErrorIs(t, err, ErrFileTooSmall)

	assertUploads(t, rec, metrics.OutcomeRejected, 5)
}

func TestAnalyze_FormatErrors(t *testing.T) {
	rec := metrics.New("test")
	svc, mr := setupService(t, WithMetrics(rec))

	body := "email;name\na@example.com;A\nb@example.com;B\n"
	_, err := svc.Analyze(context.Background(), "semi.csv", strings.NewReader(body), int64(len(body)))
	require.Error(t, err)
	assert.True(t, datanorm.IsFormatError(err))

	body = "email,name\n\n,\n"
	_, err = svc.Analyze(context.Background(), "empty.csv", strings.NewReader(body), int64(len(body)))
	assert.True(t, datanorm.IsFormatError(err))

	assertUploads(t, rec, metrics.OutcomeFormatError, 2)
	assert.Empty(t, mr.Keys())
}

func TestAnalyze_Cancelled(t *testing.T) {
	svc, _ := setupService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Analyze(ctx, "customers.csv", strings.NewReader(customersCSV), -1)
	assert.ErrorIs(t, err, datanorm.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDiscard(t *testing.T) {
	svc, mr := setupService(t)
	sum := analyze(t, svc, customersCSV)

	require.NoError(t, svc.Discard(context.Background(), sum.ID))
	assert.False(t, mr.Exists("audience:upload:"+sum.ID))
	assert.ErrorIs(t, svc.Discard(context.Background(), sum.ID), ErrSessionNotFound)
}

func TestObjectStore(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		svc, _ := setupService(t)
		_, err := svc.AnalyzeObject(context.Background(), "drops/a.csv")
		assert.ErrorIs(t, err, ErrObjectStoreDisabled)
		_, err = svc.ListObjects(context.Background())
		assert.ErrorIs(t, err, ErrObjectStoreDisabled)
	})

	t.Run("analyze object", func(t *testing.T) {
		store := &fakeObjects{files: map[string]string{"drops/spring.csv": customersCSV}}
		svc, _ := setupService(t, WithObjectStore(store))

		sum, err := svc.AnalyzeObject(context.Background(), "drops/spring.csv")
		require.NoError(t, err)
		assert.Equal(t, "spring.csv", sum.Filename)
		assert.Equal(t, "s3:drops/spring.csv", sum.Source)
		assert.Equal(t, 4, sum.RowCount)

		_, err = svc.AnalyzeObject(context.Background(), "drops/missing.csv")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)

		_, err = svc.AnalyzeObject(context.Background(), "drops/notes.txt")
		assert.ErrorIs(t, err, ErrUnsupportedFileType)

		objs, err := svc.ListObjects(context.Background())
		require.NoError(t, err)
		assert.Len(t, objs, 1)
	})

	t.Run("missing object counts as rejected", func(t *testing.T) {
		rec := metrics.New("test")
		store := &fakeObjects{files: map[string]string{}}
		svc, _ := setupService(t, WithObjectStore(store), WithMetrics(rec))

		_, err := svc.AnalyzeObject(context.Background(), "drops/gone.csv")
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
		assertUploads(t, rec, metrics.OutcomeRejected, 1)
	})

	t.Run("store failure counts as internal error", func(t *testing.T) {
		rec := metrics.New("test")
		boom := errors.New("access denied")
		store := &fakeObjects{openErr: boom}
		svc, _ := setupService(t, WithObjectStore(store), WithMetrics(rec))

		_, err := svc.AnalyzeObject(context.Background(), "drops/spring.csv")
		assert.ErrorIs(t, err, boom)
		assertUploads(t, rec, metrics.OutcomeInternalError, 1)
	})
}

func TestProfile_OneShot(t *testing.T) {
	svc, mr := setupService(t)

	res, err := svc.Profile(context.Background(), "q3.csv", strings.NewReader(customersCSV), -1,
		ConfirmRequest{AudienceName: "Q3"})
	require.NoError(t, err)

	assert.Empty(t, res.SessionID)
	assert.Equal(t, "Q3", res.Profile.Name)
	assert.Equal(t, 3, res.CustomerCount)
	assert.Nil(t, res.Customers)
	assert.Empty(t, mr.Keys())

	_, err = svc.Profile(context.Background(), "q3.csv", strings.NewReader(customersCSV), -1,
		ConfirmRequest{Mapping: datanorm.ColumnMapping{"bogus": "email"}})
	assert.ErrorIs(t, err, ErrInvalidMapping)
}

func TestLimitedReader(t *testing.T) {
	lr := &limitedReader{r: strings.NewReader("0123456789"), max: 4}
	_, err := io.ReadAll(lr)
	assert.True(t, errors.Is(err, ErrFileTooLarge))

	lr = &limitedReader{r: strings.NewReader("0123"), max: 4}
	data, err := io.ReadAll(lr)
	require.NoError(t, err)
	assert.Equal(t, "0123", string(data))
	assert.Equal(t, int64(4), lr.n)
}

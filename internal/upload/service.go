package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/audience-builder/internal/audience"
	"github.com/ignite/audience-builder/internal/datanorm"
	"github.com/ignite/audience-builder/internal/pkg/distlock"
	"github.com/ignite/audience-builder/internal/pkg/logger"
	"github.com/ignite/audience-builder/internal/pkg/metrics"
	"github.com/ignite/audience-builder/internal/storage"
)

// confirmLockTTL bounds how long a crashed confirm can block a session.
const confirmLockTTL = 2 * time.Minute

// ObjectStore is where uploads can be pulled from instead of being posted.
type ObjectStore interface {
	Open(ctx context.Context, key string) (io.ReadCloser, int64, error)
	List(ctx context.Context) ([]storage.Object, error)
}

// Service runs the analyze/confirm upload flow.
type Service struct {
	redis   *redis.Client
	mapper  *datanorm.Mapper
	builder *audience.Builder
	limits  Limits
	objects ObjectStore
	metrics *metrics.Recorder
	log     *logger.Logger
	now     func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithObjectStore enables AnalyzeObject and ListObjects.
func WithObjectStore(store ObjectStore) Option {
	return func(s *Service) { s.objects = store }
}

// WithMetrics records pipeline metrics.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides time.Now for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the upload service.
func NewService(rdb *redis.Client, mapper *datanorm.Mapper, builder *audience.Builder, limits Limits, opts ...Option) *Service {
	s := &Service{
		redis:   rdb,
		mapper:  mapper,
		builder: builder,
		limits:  limits.withDefaults(),
		log:     logger.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "upload")
	return s
}

// Analyze parses and validates a CSV and stores it as a session. size is
// the declared length in bytes, or -1 when unknown; the stream is limited
// either way.
func (s *Service) Analyze(ctx context.Context, filename string, r io.Reader, size int64) (*Summary, error) {
	return s.analyze(ctx, filename, "upload", r, size)
}

// AnalyzeObject analyzes a CSV pulled from the object store.
func (s *Service) AnalyzeObject(ctx context.Context, key string) (*Summary, error) {
	if s.objects == nil {
		return nil, ErrObjectStoreDisabled
	}
	if err := checkExtension(key); err != nil {
		s.metrics.Upload(metrics.OutcomeRejected)
		return nil, err
	}
	body, size, err := s.objects.Open(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			s.metrics.Upload(metrics.OutcomeRejected)
		} else {
			s.metrics.Upload(metrics.OutcomeInternalError)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	defer body.Close()
	return s.analyze(ctx, path.Base(key), "s3:"+key, body, size)
}

// ListObjects lists the CSV files available in the object store.
func (s *Service) ListObjects(ctx context.Context) ([]storage.Object, error) {
	if s.objects == nil {
		return nil, ErrObjectStoreDisabled
	}
	return s.objects.List(ctx)
}

func (s *Service) analyze(ctx context.Context, filename, source string, r io.Reader, size int64) (*Summary, error) {
	table, read, err := s.ingest(ctx, filename, r, size)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sess := &Session{
		ID:               uuid.NewString(),
		Filename:         filename,
		Source:           source,
		SizeBytes:        read,
		Table:            table,
		Validation:       datanorm.Validate(table),
		SuggestedMapping: datanorm.AutoDetectMapping(table.Headers),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.limits.SessionTTL),
	}
	if err := s.save(ctx, sess); err != nil {
		s.metrics.Upload(metrics.OutcomeInternalError)
		return nil, err
	}

	s.metrics.Upload(metrics.OutcomeAnalyzed)
	s.log.Info("upload analyzed",
		"session_id", sess.ID,
		"filename", filename,
		"rows", table.RowCount,
		"warnings", len(table.Diagnostics.Warnings),
		"valid", sess.Validation.IsValid)
	return s.summarize(sess), nil
}

// ingest enforces the upload limits and runs the ingestor. It returns the
// number of bytes read.
func (s *Service) ingest(ctx context.Context, filename string, r io.Reader, size int64) (*datanorm.ParsedTable, int64, error) {
	if err := checkExtension(filename); err != nil {
		s.metrics.Upload(metrics.OutcomeRejected)
		return nil, 0, err
	}
	if size > s.limits.MaxBytes {
		s.metrics.Upload(metrics.OutcomeRejected)
		return nil, 0, fmt.Errorf("%s is %d bytes: %w", filename, size, ErrFileTooLarge)
	}
	if size >= 0 && size < s.limits.MinBytes {
		s.metrics.Upload(metrics.OutcomeRejected)
		return nil, 0, fmt.Errorf("%s is %d bytes: %w", filename, size, ErrFileTooSmall)
	}

	start := time.Now()
	lr := &limitedReader{r: r, max: s.limits.MaxBytes}
	table, err := datanorm.Ingest(ctx, lr)
	s.metrics.Stage("ingest", start)
	switch {
	case errors.Is(err, ErrFileTooLarge):
		s.metrics.Upload(metrics.OutcomeRejected)
		return nil, lr.n, fmt.Errorf("%s: %w", filename, ErrFileTooLarge)
	case errors.Is(err, datanorm.ErrCancelled):
		s.metrics.Upload(metrics.OutcomeCancelled)
		return nil, lr.n, err
	case datanorm.IsFormatError(err):
		s.metrics.Upload(metrics.OutcomeFormatError)
		return nil, lr.n, err
	case err != nil:
		s.metrics.Upload(metrics.OutcomeInternalError)
		return nil, lr.n, err
	}
	if lr.n < s.limits.MinBytes {
		s.metrics.Upload(metrics.OutcomeRejected)
		return nil, lr.n, fmt.Errorf("%s is %d bytes: %w", filename, lr.n, ErrFileTooSmall)
	}
	s.metrics.RowsIngested(table.RowCount)
	return table, lr.n, nil
}

// Preview returns the summary of a pending session.
func (s *Service) Preview(ctx context.Context, id string) (*Summary, error) {
	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.summarize(sess), nil
}

// Confirm maps the session's rows with the suggested mapping plus the
// caller's overrides, builds the profile and deletes the session.
func (s *Service) Confirm(ctx context.Context, id string, req ConfirmRequest) (*Result, error) {
	lock := distlock.NewRedisLock(s.redis, s.key(id), confirmLockTTL)
	held, err := lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if !held {
		return nil, ErrSessionBusy
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("failed to release confirm lock", "session_id", id, "error", err)
		}
	}()

	sess, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	overrides, err := normalizeMapping(req.Mapping)
	if err != nil {
		return nil, err
	}

	res, err := s.process(sess.Filename, sess.Table, sess.SuggestedMapping.Merge(overrides), req)
	if err != nil {
		return nil, err
	}
	res.SessionID = sess.ID

	if err := s.redis.Del(ctx, s.key(id)).Err(); err != nil {
		s.log.Warn("failed to delete confirmed session", "session_id", id, "error", err)
	}
	s.metrics.Upload(metrics.OutcomeConfirmed)
	s.log.Info("upload confirmed",
		"session_id", id,
		"customers", res.CustomerCount,
		"duplicates", res.DuplicatesSkipped,
		"failed", res.RowsFailed,
		"estimated_size", res.Profile.EstimatedSize)
	return res, nil
}

// Profile runs the whole pipeline on r without creating a session. The
// auto-detected mapping is used, with req.Mapping applied on top.
func (s *Service) Profile(ctx context.Context, filename string, r io.Reader, size int64, req ConfirmRequest) (*Result, error) {
	overrides, err := normalizeMapping(req.Mapping)
	if err != nil {
		return nil, err
	}
	table, _, err := s.ingest(ctx, filename, r, size)
	if err != nil {
		return nil, err
	}
	mapping := datanorm.AutoDetectMapping(table.Headers).Merge(overrides)
	res, err := s.process(filename, table, mapping, req)
	if err != nil {
		return nil, err
	}
	s.metrics.Upload(metrics.OutcomeConfirmed)
	return res, nil
}

// Discard deletes a pending session.
func (s *Service) Discard(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	s.log.Info("upload discarded", "session_id", id)
	return nil
}

func (s *Service) process(filename string, table *datanorm.ParsedTable, mapping datanorm.ColumnMapping, req ConfirmRequest) (*Result, error) {
	start := time.Now()
	mapping = mapping.Resolve(table.Headers)
	mapped, err := s.mapper.MapRows(table, mapping)
	s.metrics.Stage("map", start)
	if err != nil {
		s.metrics.Upload(metrics.OutcomeInternalError)
		return nil, fmt.Errorf("map rows: %w", err)
	}
	s.metrics.Mapped(len(mapped.Customers), mapped.DuplicatesSkipped, mapped.RowsFailed)

	name := strings.TrimSpace(req.AudienceName)
	if name == "" {
		name = "Lookalike: " + strings.TrimSuffix(filename, path.Ext(filename))
	}

	start = time.Now()
	profile := s.builder.BuildProfile(mapped.Customers, name)
	s.metrics.Stage("profile", start)

	res := &Result{
		Filename:          filename,
		Mapping:           mapping,
		Profile:           profile,
		InputRows:         mapped.InputRows,
		CustomerCount:     len(mapped.Customers),
		DuplicatesSkipped: mapped.DuplicatesSkipped,
		RowsFailed:        mapped.RowsFailed,
		Diagnostics:       mapped.Diagnostics,
	}
	if req.IncludeCustomers {
		res.Customers = mapped.Customers
	}
	return res, nil
}

func (s *Service) summarize(sess *Session) *Summary {
	n := min(s.limits.PreviewRows, len(sess.Table.Rows))
	return &Summary{
		ID:               sess.ID,
		Filename:         sess.Filename,
		Source:           sess.Source,
		SizeBytes:        sess.SizeBytes,
		Headers:          sess.Table.Headers,
		RowCount:         sess.Table.RowCount,
		PreviewRows:      sess.Table.Rows[:n],
		Diagnostics:      sess.Table.Diagnostics,
		Validation:       sess.Validation,
		SuggestedMapping: sess.SuggestedMapping,
		ExpiresAt:        sess.ExpiresAt,
	}
}

func (s *Service) key(id string) string {
	return s.limits.KeyPrefix + id
}

func (s *Service) save(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, s.key(sess.ID), data, s.limits.SessionTTL).Err(); err != nil {
		return fmt.Errorf("store session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Service) load(ctx context.Context, id string) (*Session, error) {
	data, err := s.redis.Get(ctx, s.key(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Table == nil {
		return nil, fmt.Errorf("session %s has no table: %w", id, ErrSessionNotFound)
	}
	return &sess, nil
}

func checkExtension(name string) error {
	if !strings.EqualFold(path.Ext(name), ".csv") {
		return fmt.Errorf("%s: %w", name, ErrUnsupportedFileType)
	}
	return nil
}

// normalizeMapping canonicalizes the field names of a caller's mapping.
func normalizeMapping(m datanorm.ColumnMapping) (datanorm.ColumnMapping, error) {
	out := make(datanorm.ColumnMapping, len(m))
	for f, h := range m {
		key, ok := datanorm.ParseFieldKey(string(f))
		if !ok {
			return nil, fmt.Errorf("%q: %w", f, ErrInvalidMapping)
		}
		out[key] = h
	}
	return out, nil
}

// limitedReader fails with ErrFileTooLarge once more than max bytes are
// read and forwards Close so cancelled ingests release the source.
type limitedReader struct {
	r   io.Reader
	n   int64
	max int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.n > l.max {
		return n, ErrFileTooLarge
	}
	return n, err
}

func (l *limitedReader) Close() error {
	if c, ok := l.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/compactid"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/logger"
	"github.com/rl1809/versioned-store/internal/metrics"
	"github.com/rl1809/versioned-store/internal/port"
)

var ErrDuplicateRequest = fmt.Errorf("duplicate request: %w", domain.ErrConflict)

const InitialChangeLine = "Created"

var requestIDContract = brand.Contract{
	Field:      "request_id",
	MaxLength:  128,
	SingleLine: true,
	Trimmed:    true,
	Printable:  true,
}

type CreateDocumentRequest struct {
	// RequestID deduplicates retried creates when a cache is configured.
	RequestID string
	// ID is optional; an identifier is minted when empty.
	ID              string
	Title           string
	Body            string
	ModifiedBy      string
	WhatChangedLine string
}

// UpdateDocumentRequest carries the version the caller last read. Nil fields keep
// their current value.
type UpdateDocumentRequest struct {
	ID              string
	ExpectedVersion int64
	Title           *string
	Body            *string
	ModifiedBy      string
	WhatChangedLine string
}

type DeleteDocumentRequest struct {
	ID              string
	ExpectedVersion int64
	ModifiedBy      string
}

type DocumentService struct {
	repo    port.DocumentRepository
	codec   *compactid.Codec
	cache   port.CacheRepository
	log     *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	changes chan domain.ChangeEvent
}

type Option func(*DocumentService)

func WithCache(cache port.CacheRepository) Option {
	return func(s *DocumentService) { s.cache = cache }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *DocumentService) { s.log = log }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DocumentService) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *DocumentService) { s.now = now }
}

// WithChangeFeed enables a buffered change feed of the given size; see Changes.
func WithChangeFeed(size int) Option {
	return func(s *DocumentService) {
		if size > 0 {
			s.changes = make(chan domain.ChangeEvent, size)
		}
	}
}

func NewDocumentService(repo port.DocumentRepository, codec *compactid.Codec, opts ...Option) *DocumentService {
	s := &DocumentService{
		repo:  repo,
		codec: codec,
		log:   logger.Nop(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DocumentService) Create(ctx context.Context, req CreateDocumentRequest) (_ *domain.Document, err error) {
	start := time.Now()
	logID := req.ID
	defer func() { s.observe("create", logID, start, err) }()

	title, err := brand.ToTitle(req.Title, true)
	if err != nil {
		return nil, err
	}
	body, err := brand.ToBody(req.Body, true)
	if err != nil {
		return nil, err
	}
	by, err := brand.ToUserID(req.ModifiedBy, true)
	if err != nil {
		return nil, err
	}
	lineText := req.WhatChangedLine
	if lineText == "" {
		lineText = InitialChangeLine
	}
	line, err := brand.ToWhatChangedLine(lineText, true)
	if err != nil {
		return nil, err
	}

	id := brand.NewDocumentID(s.codec)
	if req.ID != "" {
		if id, err = brand.ToDocumentID(req.ID, true); err != nil {
			return nil, err
		}
	}
	logID = id.String()

	if req.RequestID != "" && s.cache != nil {
		if err := requestIDContract.Check(req.RequestID, true); err != nil {
			return nil, err
		}
		ok, claimErr := s.cache.ClaimRequest(ctx, req.RequestID)
		if claimErr != nil {
			return nil, fmt.Errorf("idempotency check failed: %w", claimErr)
		}
		if !ok {
			return nil, ErrDuplicateRequest
		}
		defer func() {
			if err != nil {
				s.releaseRequest(ctx, req.RequestID)
			}
		}()
	}

	now := s.timestamp()
	doc := domain.Document{
		ID:         id,
		Title:      title,
		Body:       body,
		Versioning: domain.Versioning{VersionNumber: brand.FirstVersion, ModifiedBy: by},
		Timestamps: domain.Timestamps{CreatedAt: now, ModifiedAt: now},
	}

	err = s.repo.WithinTx(ctx, func(tx port.DocumentTx) error {
		if err := tx.Insert(ctx, doc); err != nil {
			return err
		}
		return tx.AppendVersion(ctx, doc.Snapshot(line, now))
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, doc, domain.ChangeCreated, line.String())
	return &doc, nil
}

func (s *DocumentService) Get(ctx context.Context, rawID string) (_ *domain.Document, err error) {
	start := time.Now()
	defer func() { s.observe("get", rawID, start, err) }()

	id, err := brand.ToDocumentID(rawID, true)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		cached, err := s.cache.GetDocument(ctx, id)
		switch {
		case err != nil:
			s.metrics.RecordCacheLookup("error")
			s.log.Warn().Err(err).Str("document_id", rawID).Msg("cache read failed")
		case cached != nil:
			s.metrics.RecordCacheLookup("hit")
			if cached.IsDeleted() {
				return nil, domain.NotFound(rawID)
			}
			return cached, nil
		default:
			s.metrics.RecordCacheLookup("miss")
		}
	}

	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cachePut(ctx, *doc)

	if doc.IsDeleted() {
		return nil, domain.NotFound(rawID)
	}
	return doc, nil
}

// Update applies req if the stored version still equals req.ExpectedVersion. On a
// mismatch it returns a *domain.VersionConflictError and changes nothing; the caller
// re-reads and decides how to retry.
func (s *DocumentService) Update(ctx context.Context, req UpdateDocumentRequest) (_ *domain.Document, err error) {
	start := time.Now()
	defer func() { s.observe("update", req.ID, start, err) }()

	id, err := brand.ToDocumentID(req.ID, true)
	if err != nil {
		return nil, err
	}
	expected, err := brand.ToVersionNumber(req.ExpectedVersion, true)
	if err != nil {
		return nil, err
	}
	by, err := brand.ToUserID(req.ModifiedBy, true)
	if err != nil {
		return nil, err
	}
	line, err := brand.ToWhatChangedLine(req.WhatChangedLine, true)
	if err != nil {
		return nil, err
	}

	var title *brand.Title
	if req.Title != nil {
		t, err := brand.ToTitle(*req.Title, true)
		if err != nil {
			return nil, err
		}
		title = &t
	}
	var body *brand.Body
	if req.Body != nil {
		b, err := brand.ToBody(*req.Body, true)
		if err != nil {
			return nil, err
		}
		body = &b
	}

	now := s.timestamp()
	var next domain.Document

	err = s.repo.WithinTx(ctx, func(tx port.DocumentTx) error {
		cur, err := tx.Current(ctx, id)
		if err != nil {
			return err
		}
		if cur.IsDeleted() {
			return domain.NotFound(req.ID)
		}
		if cur.VersionNumber != expected {
			return &domain.VersionConflictError{
				ID:       req.ID,
				Expected: expected.Int64(),
				Actual:   cur.VersionNumber.Int64(),
			}
		}

		next = *cur
		if title != nil {
			next.Title = *title
		}
		if body != nil {
			next.Body = *body
		}
		next.VersionNumber = cur.VersionNumber.Next()
		next.ModifiedBy = by
		next.ModifiedAt = laterOf(now, cur.ModifiedAt)

		ok, err := tx.CompareAndSwap(ctx, next, expected)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.VersionConflictError{ID: req.ID, Expected: expected.Int64()}
		}

		return tx.AppendVersion(ctx, next.Snapshot(line, next.ModifiedAt))
	})
	if err != nil {
		s.evictOnConflict(ctx, id, err)
		return nil, err
	}

	s.afterCommit(ctx, next, domain.ChangeUpdated, line.String())
	return &next, nil
}

// Delete tombstones the document. Its history is kept.
func (s *DocumentService) Delete(ctx context.Context, req DeleteDocumentRequest) (err error) {
	start := time.Now()
	defer func() { s.observe("delete", req.ID, start, err) }()

	id, err := brand.ToDocumentID(req.ID, true)
	if err != nil {
		return err
	}
	expected, err := brand.ToVersionNumber(req.ExpectedVersion, true)
	if err != nil {
		return err
	}
	by, err := brand.ToUserID(req.ModifiedBy, true)
	if err != nil {
		return err
	}

	now := s.timestamp()
	var deleted domain.Document

	err = s.repo.WithinTx(ctx, func(tx port.DocumentTx) error {
		cur, err := tx.Current(ctx, id)
		if err != nil {
			return err
		}
		if cur.IsDeleted() {
			return domain.NotFound(req.ID)
		}
		if cur.VersionNumber != expected {
			return &domain.VersionConflictError{
				ID:       req.ID,
				Expected: expected.Int64(),
				Actual:   cur.VersionNumber.Int64(),
			}
		}

		at := laterOf(now, cur.ModifiedAt)
		ok, err := tx.Tombstone(ctx, id, expected, by, at)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.VersionConflictError{ID: req.ID, Expected: expected.Int64()}
		}

		deleted = *cur
		deleted.ModifiedBy = by
		deleted.ModifiedAt = at
		deleted.DeletedAt = &at
		return nil
	})
	if err != nil {
		s.evictOnConflict(ctx, id, err)
		return err
	}

	s.afterCommit(ctx, deleted, domain.ChangeDeleted, "")
	return nil
}

// History returns snapshots ordered by version ascending. Tombstoned documents keep
// their history.
func (s *DocumentService) History(ctx context.Context, rawID string, r domain.HistoryRange) (_ []domain.DocumentVersion, err error) {
	start := time.Now()
	defer func() { s.observe("history", rawID, start, err) }()

	id, err := brand.ToDocumentID(rawID, true)
	if err != nil {
		return nil, err
	}

	r = r.Normalize()
	var versions []domain.DocumentVersion
	if !r.Empty() {
		versions, err = s.repo.History(ctx, id, r)
		if err != nil {
			return nil, err
		}
	}

	if len(versions) == 0 {
		exists, err := s.repo.Exists(ctx, id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, domain.NotFound(rawID)
		}
	}
	return versions, nil
}

// Versions iterates over the whole history, fetching pageSize snapshots per query.
// Each call of the returned sequence starts again from version 1.
func (s *DocumentService) Versions(ctx context.Context, rawID string, pageSize int) iter.Seq2[domain.DocumentVersion, error] {
	limit := domain.HistoryRange{Limit: pageSize}.Normalize().Limit

	return func(yield func(domain.DocumentVersion, error) bool) {
		from := brand.FirstVersion
		for {
			page, err := s.History(ctx, rawID, domain.HistoryRange{From: from, Limit: limit})
			if err != nil {
				yield(domain.DocumentVersion{}, err)
				return
			}
			for _, v := range page {
				if !yield(v, nil) {
					return
				}
			}
			if len(page) < limit {
				return
			}
			from = page[len(page)-1].VersionNumber.Next()
		}
	}
}

func (s *DocumentService) GetVersion(ctx context.Context, rawID string, version int64) (_ *domain.DocumentVersion, err error) {
	start := time.Now()
	defer func() { s.observe("get_version", rawID, start, err) }()

	id, err := brand.ToDocumentID(rawID, true)
	if err != nil {
		return nil, err
	}
	v, err := brand.ToVersionNumber(version, true)
	if err != nil {
		return nil, err
	}
	return s.repo.GetVersion(ctx, id, v)
}

// Changes returns the change feed, or nil when WithChangeFeed was not given.
func (s *DocumentService) Changes() <-chan domain.ChangeEvent {
	return s.changes
}

// Close closes the change feed. Mutations after Close no longer publish events.
func (s *DocumentService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.changes != nil {
		close(s.changes)
	}
}

func (s *DocumentService) afterCommit(ctx context.Context, doc domain.Document, kind domain.ChangeKind, line string) {
	ctx = context.WithoutCancel(ctx)
	s.cachePut(ctx, doc)

	at := doc.ModifiedAt
	if doc.DeletedAt != nil {
		at = *doc.DeletedAt
	}
	s.publish(domain.ChangeEvent{
		DocumentID:      doc.ID,
		VersionNumber:   doc.VersionNumber,
		Kind:            kind,
		ModifiedBy:      doc.ModifiedBy,
		WhatChangedLine: line,
		At:              at,
	})
}

func (s *DocumentService) cachePut(ctx context.Context, doc domain.Document) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.PutDocument(ctx, doc); err != nil {
		s.log.Warn().Err(err).Str("document_id", doc.ID.String()).Msg("cache write failed")
		s.invalidate(ctx, doc.ID)
	}
}

// evictOnConflict drops the cached entry after a version conflict, since the caller
// most likely read that version from the cache.
func (s *DocumentService) evictOnConflict(ctx context.Context, id brand.DocumentID, err error) {
	var conflict *domain.VersionConflictError
	if s.cache == nil || !errors.As(err, &conflict) {
		return
	}
	s.invalidate(context.WithoutCancel(ctx), id)
}

func (s *DocumentService) invalidate(ctx context.Context, id brand.DocumentID) {
	if err := s.cache.InvalidateDocument(ctx, id); err != nil {
		s.log.Error().Err(err).Str("document_id", id.String()).Msg("cache invalidation failed")
	}
}

func (s *DocumentService) releaseRequest(ctx context.Context, requestID string) {
	if err := s.cache.ReleaseRequest(context.WithoutCancel(ctx), requestID); err != nil {
		s.log.Error().Err(err).Str("request_id", requestID).Msg("failed to release request claim")
	}
}

func (s *DocumentService) publish(ev domain.ChangeEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.changes == nil || s.closed {
		return
	}

	select {
	case s.changes <- ev:
	default:
		s.metrics.RecordChangeDropped()
		s.log.Warn().
			Str("document_id", ev.DocumentID.String()).
			Str("version", ev.VersionNumber.String()).
			Msg("change feed full, event dropped")
	}
}

func (s *DocumentService) observe(operation, id string, start time.Time, err error) {
	duration := time.Since(start)
	status := statusOf(err)

	s.metrics.RecordOperation(operation, status, duration)
	if status == "conflict" {
		s.metrics.RecordConflict(operation)
	}
	s.log.LogDbOperation(operation, id, duration, err, status != "error")
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrFormat):
		return "invalid"
	case errors.Is(err, domain.ErrOptimisticConcurrency):
		return "conflict"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConflict):
		return "exists"
	default:
		return "error"
	}
}

// timestamp is truncated to microseconds, the finest resolution every supported
// database stores.
func (s *DocumentService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

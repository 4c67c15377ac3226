package port

import (
	"context"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
)

type CacheRepository interface {
	// GetDocument returns the cached document, or nil on a miss. A cached tombstone is
	// returned with DeletedAt set.
	GetDocument(ctx context.Context, id brand.DocumentID) (*domain.Document, error)

	// PutDocument stores doc unless the cache already holds a newer version, or a
	// tombstone at the same version. It reports whether the entry was written.
	PutDocument(ctx context.Context, doc domain.Document) (bool, error)

	// InvalidateDocument drops the cached entry so the next read goes to the database.
	InvalidateDocument(ctx context.Context, id brand.DocumentID) error

	// ClaimRequest sets a key for idempotency check, returns false if already exists
	ClaimRequest(ctx context.Context, requestID string) (bool, error)

	// ReleaseRequest drops a claim so the request can be retried after a failure.
	ReleaseRequest(ctx context.Context, requestID string) error
}

type ChangePublisher interface {
	PublishChange(ctx context.Context, ev domain.ChangeEvent) error
}

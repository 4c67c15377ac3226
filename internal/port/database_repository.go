package port

import (
	"context"
	"time"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
)

type DocumentRepository interface {
	// WithinTx runs fn in one transaction. It commits when fn returns nil and rolls
	// back otherwise; the rollback has completed by the time WithinTx returns.
	WithinTx(ctx context.Context, fn func(tx DocumentTx) error) error

	// Get reads the current row, tombstoned or not. Missing rows yield domain.ErrNotFound.
	Get(ctx context.Context, id brand.DocumentID) (*domain.Document, error)

	// Exists reports whether any row, live or tombstoned, has the given id.
	Exists(ctx context.Context, id brand.DocumentID) (bool, error)

	// History returns snapshots in the range ordered by version ascending.
	History(ctx context.Context, id brand.DocumentID, r domain.HistoryRange) ([]domain.DocumentVersion, error)

	// GetVersion returns one snapshot or domain.ErrNotFound.
	GetVersion(ctx context.Context, id brand.DocumentID, v brand.VersionNumber) (*domain.DocumentVersion, error)
}

type DocumentTx interface {
	// Current reads the row inside the transaction, or domain.ErrNotFound.
	Current(ctx context.Context, id brand.DocumentID) (*domain.Document, error)

	// Insert writes a new primary row; an existing id yields domain.ErrConflict.
	Insert(ctx context.Context, doc domain.Document) error

	// CompareAndSwap overwrites the live row only if its stored version equals expected.
	// It reports false when no row matched.
	CompareAndSwap(ctx context.Context, next domain.Document, expected brand.VersionNumber) (bool, error)

	// Tombstone marks the live row deleted if its stored version equals expected.
	Tombstone(ctx context.Context, id brand.DocumentID, expected brand.VersionNumber, by brand.UserID, at time.Time) (bool, error)

	// AppendVersion inserts a snapshot row.
	AppendVersion(ctx context.Context, v domain.DocumentVersion) error
}

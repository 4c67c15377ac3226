package domain

import (
	"errors"
	"fmt"

	"github.com/rl1809/versioned-store/internal/core/brand"
)

var (
	ErrFormat                = brand.ErrFormat
	ErrOptimisticConcurrency = errors.New("optimistic concurrency conflict")
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("already exists")
	ErrTransaction           = errors.New("transaction failed")
)

// VersionConflictError is returned when the caller's expected version is stale.
// Actual is 0 when the row changed between the read and the conditional write.
type VersionConflictError struct {
	ID       string
	Expected int64
	Actual   int64
}

func (e *VersionConflictError) Error() string {
	if e.Actual == 0 {
		return fmt.Sprintf("document %s: expected version %d: concurrent modification", e.ID, e.Expected)
	}
	return fmt.Sprintf("document %s: expected version %d, current is %d", e.ID, e.Expected, e.Actual)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrOptimisticConcurrency
}

func NotFound(id string) error {
	return fmt.Errorf("document %s: %w", id, ErrNotFound)
}

package domain

import "github.com/rl1809/versioned-store/internal/core/brand"

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// HistoryRange selects snapshots with From <= version <= To. A zero bound is open.
type HistoryRange struct {
	From  brand.VersionNumber
	To    brand.VersionNumber
	Limit int
}

// Normalize clamps Limit into (0, MaxHistoryLimit].
func (r HistoryRange) Normalize() HistoryRange {
	switch {
	case r.Limit <= 0:
		r.Limit = DefaultHistoryLimit
	case r.Limit > MaxHistoryLimit:
		r.Limit = MaxHistoryLimit
	}
	return r
}

// Empty reports whether the bounds exclude every version.
func (r HistoryRange) Empty() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.From.Int64() > r.To.Int64()
}

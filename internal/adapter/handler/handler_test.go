package handler

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rl1809/versioned-store/internal/adapter/storage"
	"github.com/rl1809/versioned-store/internal/core/compactid"
	"github.com/rl1809/versioned-store/internal/core/service"
)

func newTestDocumentService(t *testing.T) *service.DocumentService {
	t.Helper()
	ctx := context.Background()
	db, d, err := storage.Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "handler.db"), storage.PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, storage.EnsureSchema(ctx, db, d))

	svc := service.NewDocumentService(storage.NewSQLAdapter(db, d), compactid.Default())
	t.Cleanup(svc.Close)
	return svc
}

var testUser = compactid.Default().New()

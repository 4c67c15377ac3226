package storage

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/compactid"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/port"
)

func newTestSQLite(t *testing.T) *SQLAdapter {
	t.Helper()
	ctx := context.Background()

	db, d, err := Open(ctx, "sqlite3", filepath.Join(t.TempDir(), "documents.db"), PoolOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, EnsureSchema(ctx, db, d))

	return NewSQLAdapter(db, d)
}

func newDoc(t *testing.T, title string) domain.Document {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	tt, err := brand.ToTitle(title, true)
	require.NoError(t, err)
	body, err := brand.ToBody("first draft", true)
	require.NoError(t, err)
	by, err := brand.ToUserID(compactid.Default().New(), true)
	require.NoError(t, err)

	return domain.Document{
		ID:         brand.NewDocumentID(compactid.Default()),
		Title:      tt,
		Body:       body,
		Versioning: domain.Versioning{VersionNumber: brand.FirstVersion, ModifiedBy: by},
		Timestamps: domain.Timestamps{CreatedAt: now, ModifiedAt: now},
	}
}

func mustLine(t *testing.T, s string) brand.WhatChangedLine {
	t.Helper()
	line, err := brand.ToWhatChangedLine(s, true)
	require.NoError(t, err)
	return line
}

func createDoc(t *testing.T, a *SQLAdapter, doc domain.Document) {
	t.Helper()
	err := a.WithinTx(context.Background(), func(tx port.DocumentTx) error {
		if err := tx.Insert(context.Background(), doc); err != nil {
			return err
		}
		return tx.AppendVersion(context.Background(), doc.Snapshot(mustLine(t, "Created"), doc.CreatedAt))
	})
	require.NoError(t, err)
}

// bump moves doc forward one version through CompareAndSwap and records the snapshot.
func bump(t *testing.T, a *SQLAdapter, doc domain.Document, title string) domain.Document {
	t.Helper()
	ctx := context.Background()
	next := doc
	next.Title, _ = brand.ToTitle(title, true)
	next.VersionNumber = doc.VersionNumber.Next()
	next.ModifiedAt = doc.ModifiedAt.Add(time.Millisecond)

	err := a.WithinTx(ctx, func(tx port.DocumentTx) error {
		ok, err := tx.CompareAndSwap(ctx, next, doc.VersionNumber)
		if err != nil {
			return err
		}
		require.True(t, ok)
		return tx.AppendVersion(ctx, next.Snapshot(mustLine(t, "Retitled"), next.ModifiedAt))
	})
	require.NoError(t, err)
	return next
}

func TestSQLAdapter_InsertAndGet(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "Design notes")
	createDoc(t, a, doc)

	got, err := a.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, doc.Body, got.Body)
	assert.Equal(t, brand.FirstVersion, got.VersionNumber)
	assert.Equal(t, doc.ModifiedBy, got.ModifiedBy)
	assert.True(t, doc.CreatedAt.Equal(got.CreatedAt))
	assert.False(t, got.IsDeleted())

	exists, err := a.Exists(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLAdapter_GetMissing(t *testing.T) {
	a := newTestSQLite(t)
	id := brand.NewDocumentID(compactid.Default())

	_, err := a.Get(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	exists, err := a.Exists(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSQLAdapter_InsertDuplicateID(t *testing.T) {
	a := newTestSQLite(t)
	doc := newDoc(t, "Original")
	createDoc(t, a, doc)

	err := a.WithinTx(context.Background(), func(tx port.DocumentTx) error {
		return tx.Insert(context.Background(), doc)
	})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestSQLAdapter_CompareAndSwap(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "v1")
	createDoc(t, a, doc)

	v2 := bump(t, a, doc, "v2")

	// Stale expected version matches no row.
	stale := v2
	stale.Title, _ = brand.ToTitle("stale", true)
	stale.VersionNumber = v2.VersionNumber.Next()
	err := a.WithinTx(ctx, func(tx port.DocumentTx) error {
		ok, err := tx.CompareAndSwap(ctx, stale, brand.FirstVersion)
		require.NoError(t, err)
		assert.False(t, ok)
		return nil
	})
	require.NoError(t, err)

	got, err := a.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Title.String())
	assert.Equal(t, int64(2), got.VersionNumber.Int64())
}

func TestSQLAdapter_HistoryMonotonicAndComplete(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "v1")
	createDoc(t, a, doc)

	cur := doc
	for _, title := range []string{"v2", "v3", "v4", "v5"} {
		cur = bump(t, a, cur, title)
	}

	versions, err := a.History(ctx, doc.ID, domain.HistoryRange{})
	require.NoError(t, err)
	require.Len(t, versions, 5)
	for i, v := range versions {
		assert.Equal(t, int64(i+1), v.VersionNumber.Int64())
		assert.Equal(t, doc.ID, v.DocumentID)
	}
	assert.Equal(t, "v1", versions[0].Title.String())
	assert.Equal(t, "Created", versions[0].WhatChangedLine.String())
	assert.Equal(t, "v5", versions[4].Title.String())

	from, _ := brand.ToVersionNumber(2, true)
	to, _ := brand.ToVersionNumber(4, true)
	window, err := a.History(ctx, doc.ID, domain.HistoryRange{From: from, To: to, Limit: 2})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, int64(2), window[0].VersionNumber.Int64())
	assert.Equal(t, int64(3), window[1].VersionNumber.Int64())

	v3, err := a.GetVersion(ctx, doc.ID, window[1].VersionNumber)
	require.NoError(t, err)
	assert.Equal(t, "v3", v3.Title.String())

	missing, _ := brand.ToVersionNumber(99, true)
	_, err = a.GetVersion(ctx, doc.ID, missing)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSQLAdapter_Tombstone(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "Doomed")
	createDoc(t, a, doc)
	at := doc.ModifiedAt.Add(time.Second)

	err := a.WithinTx(ctx, func(tx port.DocumentTx) error {
		ok, err := tx.Tombstone(ctx, doc.ID, brand.FirstVersion, doc.ModifiedBy, at)
		require.NoError(t, err)
		assert.True(t, ok)

		// Already tombstoned.
		ok, err = tx.Tombstone(ctx, doc.ID, brand.FirstVersion, doc.ModifiedBy, at)
		require.NoError(t, err)
		assert.False(t, ok)

		next := doc
		next.VersionNumber = doc.VersionNumber.Next()
		ok, err = tx.CompareAndSwap(ctx, next, brand.FirstVersion)
		require.NoError(t, err)
		assert.False(t, ok, "tombstoned rows must not be updated")
		return nil
	})
	require.NoError(t, err)

	got, err := a.Get(ctx, doc.ID)
	require.NoError(t, err)
	require.True(t, got.IsDeleted())
	assert.True(t, at.Equal(*got.DeletedAt))
	assert.Equal(t, brand.FirstVersion, got.VersionNumber)

	versions, err := a.History(ctx, doc.ID, domain.HistoryRange{})
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestSQLAdapter_RollbackOnError(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "v1")
	createDoc(t, a, doc)

	boom := errors.New("boom")
	next := doc
	next.Title, _ = brand.ToTitle("never committed", true)
	next.VersionNumber = doc.VersionNumber.Next()

	err := a.WithinTx(ctx, func(tx port.DocumentTx) error {
		ok, err := tx.CompareAndSwap(ctx, next, doc.VersionNumber)
		require.NoError(t, err)
		require.True(t, ok)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, err := a.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Title.String())
	assert.Equal(t, brand.FirstVersion, got.VersionNumber)
}

func TestSQLAdapter_DuplicateSnapshotRollsBackUpdate(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "v1")
	createDoc(t, a, doc)

	next := doc
	next.Title, _ = brand.ToTitle("v2", true)
	next.VersionNumber = doc.VersionNumber.Next()

	err := a.WithinTx(ctx, func(tx port.DocumentTx) error {
		if _, err := tx.CompareAndSwap(ctx, next, doc.VersionNumber); err != nil {
			return err
		}
		// Version 1 already has a snapshot; the primary key rejects it.
		return tx.AppendVersion(ctx, doc.Snapshot(mustLine(t, "dup"), doc.ModifiedAt))
	})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := a.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, brand.FirstVersion, got.VersionNumber)
}

func TestSQLAdapter_ConcurrentCompareAndSwap(t *testing.T) {
	a := newTestSQLite(t)
	ctx := context.Background()
	doc := newDoc(t, "v1")
	createDoc(t, a, doc)
	line := mustLine(t, "race")

	var winners atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			next := doc
			next.VersionNumber = doc.VersionNumber.Next()
			err := a.WithinTx(ctx, func(tx port.DocumentTx) error {
				ok, err := tx.CompareAndSwap(ctx, next, doc.VersionNumber)
				if err != nil {
					return err
				}
				if !ok {
					return nil
				}
				winners.Add(1)
				return tx.AppendVersion(ctx, next.Snapshot(line, next.ModifiedAt))
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners.Load())
	versions, err := a.History(ctx, doc.ID, domain.HistoryRange{})
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestSQLAdapter_RollbackIssuedOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, err := DialectFor("mysql")
	require.NoError(t, err)
	a := NewSQLAdapter(db, d)
	doc := newDoc(t, "mocked")

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE documents").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO document_versions").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	next := doc
	next.VersionNumber = doc.VersionNumber.Next()
	err = a.WithinTx(context.Background(), func(tx port.DocumentTx) error {
		ok, err := tx.CompareAndSwap(context.Background(), next, doc.VersionNumber)
		if err != nil || !ok {
			return err
		}
		return tx.AppendVersion(context.Background(), next.Snapshot(mustLine(t, "mock"), next.ModifiedAt))
	})
	assert.ErrorIs(t, err, domain.ErrTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdapter_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, _ := DialectFor("postgres")
	a := NewSQLAdapter(db, d)

	mock.ExpectBegin()
	mock.ExpectCommit().WillReturnError(errors.New("connection reset"))

	err = a.WithinTx(context.Background(), func(tx port.DocumentTx) error { return nil })
	assert.ErrorIs(t, err, domain.ErrTransaction)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLAdapter_PostgresPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	d, _ := DialectFor("pgx")
	a := NewSQLAdapter(db, d)
	doc := newDoc(t, "pg")

	mock.ExpectBegin()
	mock.ExpectExec(`WHERE id = \$6 AND version_number = \$7 AND deleted_at IS NULL`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err = a.WithinTx(context.Background(), func(tx port.DocumentTx) error {
		ok, err := tx.CompareAndSwap(context.Background(), doc, doc.VersionNumber)
		assert.False(t, ok)
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDialect_Rebind(t *testing.T) {
	pg, _ := DialectFor("postgres")
	my, _ := DialectFor("mysql")

	q := "SELECT * FROM t WHERE a = ? AND b = ? LIMIT ?"
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2 LIMIT $3", pg.Rebind(q))
	assert.Equal(t, q, my.Rebind(q))

	_, err := DialectFor("oracle")
	assert.Error(t, err)
}

func TestIsDuplicateKey(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"mysql duplicate", &mysql.MySQLError{Number: 1062}, true},
		{"mysql other", &mysql.MySQLError{Number: 1213}, false},
		{"pq unique", &pq.Error{Code: "23505"}, true},
		{"pq fk", &pq.Error{Code: "23503"}, false},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, true},
		{"sqlite pk", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintPrimaryKey}, true},
		{"sqlite fk", sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintForeignKey}, false},
		{"plain", errors.New("nope"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, isDuplicateKey(tc.err))
			wrapped := wrapErr("op", tc.err)
			assert.ErrorIs(t, wrapped, tc.err)
			if tc.want {
				assert.ErrorIs(t, wrapped, domain.ErrConflict)
			} else {
				assert.ErrorIs(t, wrapped, domain.ErrTransaction)
			}
		})
	}
}

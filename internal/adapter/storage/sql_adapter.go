package storage

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/port"
)

const (
	documentColumns = `id, title, body, version_number, modified_by, created_at, modified_at, deleted_at`
	versionColumns  = `document_id, version_number, title, body, modified_by, what_changed_line, created_at`
)

var _ port.DocumentRepository = (*SQLAdapter)(nil)

type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (a *SQLAdapter) WithinTx(ctx context.Context, fn func(tx port.DocumentTx) error) error {
	tx, err := a.db.BeginTx(ctx, a.dialect.txOptions())
	if err != nil {
		return wrapErr("begin tx", err)
	}
	defer tx.Rollback()

	if err := fn(&sqlTx{q: tx, dialect: a.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapErr("commit tx", err)
	}
	return nil
}

func (a *SQLAdapter) Get(ctx context.Context, id brand.DocumentID) (*domain.Document, error) {
	return getDocument(ctx, a.db, a.dialect, id)
}

func (a *SQLAdapter) Exists(ctx context.Context, id brand.DocumentID) (bool, error) {
	var count int
	err := a.db.QueryRowContext(ctx, a.dialect.Rebind(
		`SELECT COUNT(*) FROM documents WHERE id = ?`), id,
	).Scan(&count)
	if err != nil {
		return false, wrapErr("count document", err)
	}
	return count > 0, nil
}

func (a *SQLAdapter) History(ctx context.Context, id brand.DocumentID, r domain.HistoryRange) ([]domain.DocumentVersion, error) {
	from, to := int64(1), int64(math.MaxInt64)
	if !r.From.IsZero() {
		from = r.From.Int64()
	}
	if !r.To.IsZero() {
		to = r.To.Int64()
	}
	limit := r.Normalize().Limit

	rows, err := a.db.QueryContext(ctx, a.dialect.Rebind(`
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id = ? AND version_number >= ? AND version_number <= ?
		ORDER BY version_number ASC
		LIMIT ?`),
		id, from, to, limit,
	)
	if err != nil {
		return nil, wrapErr("query history", err)
	}
	defer rows.Close()

	versions := make([]domain.DocumentVersion, 0, min(limit, 64))
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate history", err)
	}
	return versions, nil
}

func (a *SQLAdapter) GetVersion(ctx context.Context, id brand.DocumentID, v brand.VersionNumber) (*domain.DocumentVersion, error) {
	row := a.db.QueryRowContext(ctx, a.dialect.Rebind(`
		SELECT `+versionColumns+`
		FROM document_versions
		WHERE document_id = ? AND version_number = ?`),
		id, v,
	)
	version, err := scanVersion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(id.String() + "@" + v.String())
	}
	if err != nil {
		return nil, err
	}
	return version, nil
}

type sqlTx struct {
	q       queryer
	dialect Dialect
}

func (t *sqlTx) Current(ctx context.Context, id brand.DocumentID) (*domain.Document, error) {
	return getDocument(ctx, t.q, t.dialect, id)
}

func (t *sqlTx) Insert(ctx context.Context, doc domain.Document) error {
	_, err := t.q.ExecContext(ctx, t.dialect.Rebind(`
		INSERT INTO documents (`+documentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		doc.ID, doc.Title, doc.Body, doc.VersionNumber, doc.ModifiedBy,
		doc.CreatedAt, doc.ModifiedAt, nullTime(doc.DeletedAt),
	)
	if err != nil {
		return wrapErr("insert document", err)
	}
	return nil
}

func (t *sqlTx) CompareAndSwap(ctx context.Context, next domain.Document, expected brand.VersionNumber) (bool, error) {
	result, err := t.q.ExecContext(ctx, t.dialect.Rebind(`
		UPDATE documents
		SET title = ?, body = ?, version_number = ?, modified_by = ?, modified_at = ?
		WHERE id = ? AND version_number = ? AND deleted_at IS NULL`),
		next.Title, next.Body, next.VersionNumber, next.ModifiedBy, next.ModifiedAt,
		next.ID, expected,
	)
	if err != nil {
		return false, wrapErr("update document", err)
	}
	return affectedOne(result)
}

func (t *sqlTx) Tombstone(ctx context.Context, id brand.DocumentID, expected brand.VersionNumber, by brand.UserID, at time.Time) (bool, error) {
	result, err := t.q.ExecContext(ctx, t.dialect.Rebind(`
		UPDATE documents
		SET deleted_at = ?, modified_by = ?, modified_at = ?
		WHERE id = ? AND version_number = ? AND deleted_at IS NULL`),
		at, by, at, id, expected,
	)
	if err != nil {
		return false, wrapErr("tombstone document", err)
	}
	return affectedOne(result)
}

func (t *sqlTx) AppendVersion(ctx context.Context, v domain.DocumentVersion) error {
	_, err := t.q.ExecContext(ctx, t.dialect.Rebind(`
		INSERT INTO document_versions (`+versionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		v.DocumentID, v.VersionNumber, v.Title, v.Body, v.ModifiedBy, v.WhatChangedLine, v.CreatedAt,
	)
	if err != nil {
		return wrapErr("append version", err)
	}
	return nil
}

func getDocument(ctx context.Context, q queryer, d Dialect, id brand.DocumentID) (*domain.Document, error) {
	row := q.QueryRowContext(ctx, d.Rebind(`
		SELECT `+documentColumns+`
		FROM documents WHERE id = ?`), id,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(id.String())
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, wrapErr("rows affected", err)
	}
	return rows == 1, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
)

type scanner interface {
	Scan(dest ...any) error
}

// Stored values were validated on the way in, so rows are re-branded with the
// lenient check.

func scanDocument(row scanner) (*domain.Document, error) {
	var (
		id, title, body, modifiedBy string
		version                     int64
		createdAt, modifiedAt       time.Time
		deletedAt                   sql.NullTime
	)
	err := row.Scan(&id, &title, &body, &version, &modifiedBy, &createdAt, &modifiedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, wrapErr("scan document", err)
	}

	doc := domain.Document{
		Timestamps: domain.Timestamps{CreatedAt: createdAt.UTC(), ModifiedAt: modifiedAt.UTC()},
	}
	if deletedAt.Valid {
		at := deletedAt.Time.UTC()
		doc.DeletedAt = &at
	}

	if doc.ID, err = brand.ToDocumentID(id, false); err != nil {
		return nil, corrupt("documents", id, err)
	}
	if doc.Title, err = brand.ToTitle(title, false); err != nil {
		return nil, corrupt("documents", id, err)
	}
	if doc.Body, err = brand.ToBody(body, false); err != nil {
		return nil, corrupt("documents", id, err)
	}
	if doc.VersionNumber, err = brand.ToVersionNumber(version, false); err != nil {
		return nil, corrupt("documents", id, err)
	}
	if doc.ModifiedBy, err = brand.ToUserID(modifiedBy, false); err != nil {
		return nil, corrupt("documents", id, err)
	}
	return &doc, nil
}

func scanVersion(row scanner) (*domain.DocumentVersion, error) {
	var (
		id, title, body, modifiedBy, line string
		version                           int64
		createdAt                         time.Time
	)
	err := row.Scan(&id, &version, &title, &body, &modifiedBy, &line, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, wrapErr("scan version", err)
	}

	v := domain.DocumentVersion{CreatedAt: createdAt.UTC()}
	if v.DocumentID, err = brand.ToDocumentID(id, false); err != nil {
		return nil, corrupt("document_versions", id, err)
	}
	if v.VersionNumber, err = brand.ToVersionNumber(version, false); err != nil {
		return nil, corrupt("document_versions", id, err)
	}
	if v.Title, err = brand.ToTitle(title, false); err != nil {
		return nil, corrupt("document_versions", id, err)
	}
	if v.Body, err = brand.ToBody(body, false); err != nil {
		return nil, corrupt("document_versions", id, err)
	}
	if v.ModifiedBy, err = brand.ToUserID(modifiedBy, false); err != nil {
		return nil, corrupt("document_versions", id, err)
	}
	if v.WhatChangedLine, err = brand.ToWhatChangedLine(line, false); err != nil {
		return nil, corrupt("document_versions", id, err)
	}
	return &v, nil
}

// corrupt reports a stored row that no longer satisfies its contract. It is a storage
// fault, not a client error, so the format error is not left in the chain.
func corrupt(table, id string, err error) error {
	return fmt.Errorf("%w: %s row %q: %s", domain.ErrTransaction, table, id, err.Error())
}

package domain

import (
	"time"

	"github.com/rl1809/versioned-store/internal/core/brand"
)

// Timestamps is embedded by entities that track creation and modification time.
type Timestamps struct {
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
}

// Versioning is embedded by entities under optimistic concurrency control.
type Versioning struct {
	VersionNumber brand.VersionNumber `json:"version_number"`
	ModifiedBy    brand.UserID        `json:"modified_by"`
}

type Document struct {
	ID    brand.DocumentID `json:"id"`
	Title brand.Title      `json:"title"`
	Body  brand.Body       `json:"body"`
	Versioning
	Timestamps
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

func (d Document) IsDeleted() bool {
	return d.DeletedAt != nil
}

// Snapshot captures the document as committed at version d.VersionNumber.
func (d Document) Snapshot(line brand.WhatChangedLine, at time.Time) DocumentVersion {
	return DocumentVersion{
		DocumentID:      d.ID,
		VersionNumber:   d.VersionNumber,
		Title:           d.Title,
		Body:            d.Body,
		ModifiedBy:      d.ModifiedBy,
		WhatChangedLine: line,
		CreatedAt:       at,
	}
}

// DocumentVersion is an archived state of a document. Rows are only ever inserted.
type DocumentVersion struct {
	DocumentID      brand.DocumentID      `json:"document_id"`
	VersionNumber   brand.VersionNumber   `json:"version_number"`
	Title           brand.Title           `json:"title"`
	Body            brand.Body            `json:"body"`
	ModifiedBy      brand.UserID          `json:"modified_by"`
	WhatChangedLine brand.WhatChangedLine `json:"what_changed_line"`
	CreatedAt       time.Time             `json:"created_at"`
}

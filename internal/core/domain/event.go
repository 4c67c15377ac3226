package domain

import (
	"time"

	"github.com/rl1809/versioned-store/internal/core/brand"
)

type ChangeKind string

const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
	ChangeDeleted ChangeKind = "deleted"
)

// ChangeEvent is published after a mutation commits.
type ChangeEvent struct {
	DocumentID      brand.DocumentID    `json:"document_id"`
	VersionNumber   brand.VersionNumber `json:"version_number"`
	Kind            ChangeKind          `json:"kind"`
	ModifiedBy      brand.UserID        `json:"modified_by"`
	WhatChangedLine string              `json:"what_changed_line,omitempty"`
	At              time.Time           `json:"at"`
}

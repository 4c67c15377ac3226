package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/versioned-store/internal/core/brand"
	"github.com/rl1809/versioned-store/internal/core/domain"
	"github.com/rl1809/versioned-store/internal/port"
)

const (
	documentKeyPrefix    = "document:"
	idempotencyKeyPrefix = "idempotency:create:"
	ChangeStream         = "document-changes"

	defaultCacheTTL       = 10 * time.Minute
	defaultIdempotencyTTL = 24 * time.Hour
	defaultStreamMaxLen   = 100000
)

var (
	_ port.CacheRepository = (*RedisAdapter)(nil)
	_ port.ChangePublisher = (*RedisAdapter)(nil)
)

// putDocumentScript replaces the cached hash unless it already holds a newer version
// or a tombstone at the same version.
//
// KEYS[1] document key
// ARGV[1] version, ARGV[2] deleted flag, ARGV[3] ttl in ms, ARGV[4..] field/value pairs
var putDocumentScript = redis.NewScript(`
local key = KEYS[1]
local incoming = tonumber(ARGV[1])

local cur = redis.call('HMGET', key, 'version', 'deleted')
local cached = tonumber(cur[1])
if cached then
	if cached > incoming then
		return 0
	end
	if cached == incoming and cur[2] == '1' and ARGV[2] ~= '1' then
		return 0
	end
end

redis.call('DEL', key)
redis.call('HSET', key, 'version', ARGV[1], 'deleted', ARGV[2], unpack(ARGV, 4))

local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end

return 1
`)

type RedisOptions struct {
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	StreamMaxLen   int64
}

type RedisAdapter struct {
	client *redis.Client
	opts   RedisOptions
}

func NewRedisAdapter(client *redis.Client, opts RedisOptions) *RedisAdapter {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = defaultCacheTTL
	}
	if opts.IdempotencyTTL <= 0 {
		opts.IdempotencyTTL = defaultIdempotencyTTL
	}
	if opts.StreamMaxLen <= 0 {
		opts.StreamMaxLen = defaultStreamMaxLen
	}
	return &RedisAdapter{client: client, opts: opts}
}

func (r *RedisAdapter) GetDocument(ctx context.Context, id brand.DocumentID) (*domain.Document, error) {
	fields, err := r.client.HGetAll(ctx, documentKeyPrefix+id.String()).Result()
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	doc, err := decodeDocument(fields)
	if err != nil {
		// An entry written by an incompatible build is treated as a miss.
		r.client.Del(ctx, documentKeyPrefix+id.String())
		return nil, nil
	}
	return doc, nil
}

func (r *RedisAdapter) PutDocument(ctx context.Context, doc domain.Document) (bool, error) {
	deleted := "0"
	deletedAt := ""
	if doc.DeletedAt != nil {
		deleted = "1"
		deletedAt = doc.DeletedAt.Format(time.RFC3339Nano)
	}

	args := []any{
		doc.VersionNumber.Int64(),
		deleted,
		r.opts.CacheTTL.Milliseconds(),
		"id", doc.ID.String(),
		"title", doc.Title.String(),
		"body", doc.Body.String(),
		"modified_by", doc.ModifiedBy.String(),
		"created_at", doc.CreatedAt.Format(time.RFC3339Nano),
		"modified_at", doc.ModifiedAt.Format(time.RFC3339Nano),
		"deleted_at", deletedAt,
	}

	result, err := putDocumentScript.Run(ctx, r.client, []string{documentKeyPrefix + doc.ID.String()}, args...).Int()
	if err != nil {
		return false, fmt.Errorf("cache put %s: %w", doc.ID, err)
	}
	return result == 1, nil
}

func (r *RedisAdapter) InvalidateDocument(ctx context.Context, id brand.DocumentID) error {
	return r.client.Del(ctx, documentKeyPrefix+id.String()).Err()
}

func (r *RedisAdapter) ClaimRequest(ctx context.Context, requestID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+requestID, 1, r.opts.IdempotencyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseRequest(ctx context.Context, requestID string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+requestID).Err()
}

func (r *RedisAdapter) PublishChange(ctx context.Context, ev domain.ChangeEvent) error {
	err := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: ChangeStream,
		MaxLen: r.opts.StreamMaxLen,
		Approx: true,
		Values: map[string]any{
			"document_id":       ev.DocumentID.String(),
			"version_number":    ev.VersionNumber.Int64(),
			"kind":              string(ev.Kind),
			"modified_by":       ev.ModifiedBy.String(),
			"what_changed_line": ev.WhatChangedLine,
			"at":                ev.At.Format(time.RFC3339Nano),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("publish change %s@%d: %w", ev.DocumentID, ev.VersionNumber.Int64(), err)
	}
	return nil
}

var errCacheEntry = errors.New("malformed cache entry")

func decodeDocument(fields map[string]string) (*domain.Document, error) {
	var (
		doc domain.Document
		err error
	)

	if doc.ID, err = brand.ToDocumentID(fields["id"], false); err != nil {
		return nil, err
	}
	if doc.Title, err = brand.ToTitle(fields["title"], false); err != nil {
		return nil, err
	}
	if doc.Body, err = brand.ToBody(fields["body"], false); err != nil {
		return nil, err
	}
	if doc.ModifiedBy, err = brand.ToUserID(fields["modified_by"], false); err != nil {
		return nil, err
	}

	version, err := strconv.ParseInt(fields["version"], 10, 64)
	if err != nil {
		return nil, errCacheEntry
	}
	if doc.VersionNumber, err = brand.ToVersionNumber(version, false); err != nil {
		return nil, err
	}

	if doc.CreatedAt, err = time.Parse(time.RFC3339Nano, fields["created_at"]); err != nil {
		return nil, errCacheEntry
	}
	if doc.ModifiedAt, err = time.Parse(time.RFC3339Nano, fields["modified_at"]); err != nil {
		return nil, errCacheEntry
	}
	if fields["deleted"] == "1" {
		at, err := time.Parse(time.RFC3339Nano, fields["deleted_at"])
		if err != nil {
			return nil, errCacheEntry
		}
		doc.DeletedAt = &at
	}
	return &doc, nil
}

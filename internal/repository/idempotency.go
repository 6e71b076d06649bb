package repository

import (
	"context"
	"fmt"
)

// IdempotencyKeyRow is the durable record behind the idempotency middleware.
type IdempotencyKeyRow struct {
	IdempotencyKey string
	RequestHash    string
	Method         string
	Path           string
	ResponseStatus int32
	ResponseBody   []byte
	ContentType    string
	InProgress     bool
}

// GetIdempotencyKey loads a reservation by key.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		SELECT idempotency_key, request_hash, method, path,
		       COALESCE(response_status, 0), COALESCE(response_body, ''::bytea),
		       COALESCE(content_type, ''), in_progress
		FROM idempotency_keys WHERE idempotency_key = $1`, key).
		Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
			&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress)
	if err != nil {
		return IdempotencyKeyRow{}, err
	}
	return row, nil
}

// ReserveIdempotencyKey claims a key for an in-flight request. The insert is
// a no-op when the key already exists, in which case no row is returned.
func (q *Queries) ReserveIdempotencyKey(ctx context.Context, key, requestHash, method, path string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		INSERT INTO idempotency_keys (idempotency_key, request_hash, method, path, in_progress, created_at)
		VALUES ($1, $2, $3, $4, true, NOW())
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING idempotency_key, request_hash, method, path, 0, ''::bytea, '', in_progress`,
		key, requestHash, method, path).
		Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
			&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress)
	if err != nil {
		return IdempotencyKeyRow{}, err
	}
	return row, nil
}

// FinalizeIdempotencyKey stores the response captured for a reserved key.
func (q *Queries) FinalizeIdempotencyKey(ctx context.Context, key, requestHash string, status int32, body []byte, contentType string) (IdempotencyKeyRow, error) {
	var row IdempotencyKeyRow
	err := q.db.QueryRow(ctx, `
		UPDATE idempotency_keys
		SET response_status = $3, response_body = $4, content_type = $5, in_progress = false
		WHERE idempotency_key = $1 AND request_hash = $2
		RETURNING idempotency_key, request_hash, method, path, response_status, response_body, content_type, in_progress`,
		key, requestHash, status, body, contentType).
		Scan(&row.IdempotencyKey, &row.RequestHash, &row.Method, &row.Path,
			&row.ResponseStatus, &row.ResponseBody, &row.ContentType, &row.InProgress)
	if err != nil {
		return IdempotencyKeyRow{}, fmt.Errorf("finalize idempotency key: %w", err)
	}
	return row, nil
}

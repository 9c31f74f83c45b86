package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// OutboxRepository is the durable email outbox. The resolution core only ever
// appends; a background drainer claims batches and records delivery outcomes.
type OutboxRepository struct {
	db *database.DB
}

// NewOutboxRepository creates a new OutboxRepository.
func NewOutboxRepository(db *database.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// Enqueue appends one pending message. Fire-and-forget from the caller's
// perspective; delivery is the drainer's problem.
func (r *OutboxRepository) Enqueue(ctx context.Context, toAddress, subject, htmlBody string, cc *string) error {
	query := `
		INSERT INTO email_outbox (id, to_address, cc, subject, html_body, status, attempts)
		VALUES ($1, $2, $3, $4, $5, 'pending'::outbox_status, 0)
	`

	id := uuid.NewString()
	if _, err := r.db.Exec(ctx, query, id, toAddress, cc, subject, htmlBody); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to enqueue outbox message")
	}
	return nil
}

// ClaimBatch atomically claims up to limit pending messages, incrementing
// their attempt counter. SKIP LOCKED keeps concurrent drainers from claiming
// the same rows.
func (r *OutboxRepository) ClaimBatch(ctx context.Context, limit int) ([]*OutboxMessage, error) {
	query := `
		UPDATE email_outbox
		SET attempts = attempts + 1
		WHERE id IN (
		    SELECT id FROM email_outbox
		    WHERE status = 'pending'
		    ORDER BY created_at ASC
		    LIMIT $1
		    FOR UPDATE SKIP LOCKED
		)
		RETURNING id, to_address, cc, subject, html_body,
		          status, attempts, last_error, created_at, sent_at
	`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to claim outbox batch")
	}
	defer rows.Close()

	messages := make([]*OutboxMessage, 0)
	for rows.Next() {
		m := &OutboxMessage{}
		err := rows.Scan(
			&m.ID,
			&m.ToAddress,
			&m.CC,
			&m.Subject,
			&m.HTMLBody,
			&m.Status,
			&m.Attempts,
			&m.LastError,
			&m.CreatedAt,
			&m.SentAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan outbox message")
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// MarkSent records successful delivery.
func (r *OutboxRepository) MarkSent(ctx context.Context, id string) error {
	query := `
		UPDATE email_outbox
		SET status  = 'sent'::outbox_status,
		    sent_at = NOW()
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to mark outbox message sent")
	}
	return nil
}

// MarkFailed records a delivery failure, keeping the message pending so it is
// retried on a later drain pass, unless attempts exhausted the retry budget.
func (r *OutboxRepository) MarkFailed(ctx context.Context, id, lastError string, maxAttempts int) error {
	query := `
		UPDATE email_outbox
		SET last_error = $2,
		    status     = CASE WHEN attempts >= $3
		                      THEN 'failed'::outbox_status
		                      ELSE 'pending'::outbox_status END
		WHERE id = $1
	`
	if _, err := r.db.Exec(ctx, query, id, lastError, maxAttempts); err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to mark outbox message failed")
	}
	return nil
}

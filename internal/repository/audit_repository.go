package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// AuditRepository appends and reads immutable request audit events.
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Append inserts one audit event. The table is append-only.
func (r *AuditRepository) Append(ctx context.Context, event *AuditEvent) error {
	var metadataJSON []byte
	if event.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(event.Metadata)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to marshal audit metadata")
		}
	}

	query := `
		INSERT INTO request_audit_log
		    (request_id, approval_id, action, actor_id,
		     status_before, status_after, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, occurred_at
	`

	return r.db.QueryRow(ctx, query,
		event.RequestID,
		event.ApprovalID,
		event.Action,
		event.ActorID,
		event.StatusBefore,
		event.StatusAfter,
		metadataJSON,
	).Scan(&event.ID, &event.OccurredAt)
}

// GetByRequestID returns the full audit trail for a request, oldest first.
func (r *AuditRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*AuditEvent, error) {
	query := `
		SELECT id, request_id, approval_id, action, actor_id,
		       status_before, status_after, metadata, occurred_at
		FROM request_audit_log
		WHERE request_id = $1
		ORDER BY occurred_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get audit log")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ── scan helpers ──────────────────────────────────────────────────────────────

func (r *AuditRepository) scanRows(rows pgx.Rows) ([]*AuditEvent, error) {
	var events []*AuditEvent
	for rows.Next() {
		event := &AuditEvent{}
		var metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.RequestID,
			&event.ApprovalID,
			&event.Action,
			&event.ActorID,
			&event.StatusBefore,
			&event.StatusAfter,
			&metadataJSON,
			&event.OccurredAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan audit event")
		}

		if metadataJSON != nil {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to unmarshal audit metadata")
			}
		}
		events = append(events, event)
	}
	return events, nil
}

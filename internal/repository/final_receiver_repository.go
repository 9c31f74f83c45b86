package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// FinalReceiverRepository tracks per-request final receiver assignments.
type FinalReceiverRepository struct {
	db *database.DB
}

// NewFinalReceiverRepository creates a new FinalReceiverRepository.
func NewFinalReceiverRepository(db *database.DB) *FinalReceiverRepository {
	return &FinalReceiverRepository{db: db}
}

// CreateAssignments inserts one pending assignment per receiver in a single
// transaction.
func (r *FinalReceiverRepository) CreateAssignments(ctx context.Context, requestID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO final_receiver_assignments (request_id, user_id, status)
			VALUES ($1, $2, 'pending'::assignment_status)
			ON CONFLICT (request_id, user_id) DO NOTHING
		`
		for _, userID := range userIDs {
			if _, err := tx.Exec(ctx, query, requestID, userID); err != nil {
				return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create final receiver assignment")
			}
		}
		return nil
	})
}

// Complete marks the acting receiver's assignment completed and auto-closes
// every other pending assignment on the request, transactionally. The first
// receiver to act wins; a second completion attempt gets a conflict error.
func (r *FinalReceiverRepository) Complete(ctx context.Context, requestID, userID int64) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		completeQuery := `
			UPDATE final_receiver_assignments
			SET status       = 'completed'::assignment_status,
			    completed_at = NOW()
			WHERE request_id = $1 AND user_id = $2 AND status = 'pending'
			RETURNING id
		`

		var completedID int64
		err := tx.QueryRow(ctx, completeQuery, requestID, userID).Scan(&completedID)
		if err == pgx.ErrNoRows {
			return apperr.New(apperr.ErrCodeConflict,
				"no pending final receiver assignment for this user (already completed or auto-closed)")
		}
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to complete final receiver assignment")
		}

		closeQuery := `
			UPDATE final_receiver_assignments
			SET status = 'auto_closed'::assignment_status
			WHERE request_id = $1 AND status = 'pending'
		`
		if _, err := tx.Exec(ctx, closeQuery, requestID); err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to auto-close final receiver assignments")
		}
		return nil
	})
}

// GetByRequestID returns all assignments for a request.
func (r *FinalReceiverRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*FinalReceiverAssignment, error) {
	query := `
		SELECT id, request_id, user_id, status, created_at, completed_at
		FROM final_receiver_assignments
		WHERE request_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get final receiver assignments")
	}
	defer rows.Close()

	assignments := make([]*FinalReceiverAssignment, 0)
	for rows.Next() {
		a := &FinalReceiverAssignment{}
		err := rows.Scan(&a.ID, &a.RequestID, &a.UserID, &a.Status, &a.CreatedAt, &a.CompletedAt)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan final receiver assignment")
		}
		assignments = append(assignments, a)
	}
	return assignments, nil
}

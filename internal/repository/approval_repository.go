package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// ErrDuplicatePending signals that a pending approval already exists for the
// same (request, level, approver). Callers treat it as a benign concurrent
// advance, not a failure.
var ErrDuplicatePending = errors.New("pending approval already exists for this request, level and approver")

const pgUniqueViolation = "23505"

// ApprovalRepository handles reads and writes on approval rows.
type ApprovalRepository struct {
	db *database.DB
}

// NewApprovalRepository creates a new ApprovalRepository.
func NewApprovalRepository(db *database.DB) *ApprovalRepository {
	return &ApprovalRepository{db: db}
}

// CreatePending inserts a pending approval. The approvals_one_pending partial
// unique index guarantees at most one pending row per (request, level,
// approver); a conflict maps to ErrDuplicatePending.
func (r *ApprovalRepository) CreatePending(ctx context.Context, a *Approval) error {
	query := `
		INSERT INTO approvals (request_id, level, approver_id, approver_name,
		                       designation_id, status)
		VALUES ($1, $2, $3, $4, $5, 'pending'::approval_status)
		RETURNING id, assigned_at
	`

	err := r.db.QueryRow(ctx, query,
		a.RequestID,
		a.Level,
		a.ApproverID,
		a.ApproverName,
		a.DesignationID,
	).Scan(&a.ID, &a.AssignedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicatePending
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create pending approval")
	}
	a.Status = ApprovalPending
	return nil
}

// GetPendingAtLevel returns the pending approval for a request level, or nil
// when none exists.
func (r *ApprovalRepository) GetPendingAtLevel(ctx context.Context, requestID int64, level int) (*Approval, error) {
	query := approvalSelect + `
		WHERE request_id = $1 AND level = $2 AND status = 'pending'
		LIMIT 1
	`

	a, err := r.scanApproval(r.db.QueryRow(ctx, query, requestID, level))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get pending approval")
	}
	return a, nil
}

// GetByRequestID returns the full approval history for a request, ordered by
// level then assignment time.
func (r *ApprovalRepository) GetByRequestID(ctx context.Context, requestID int64) ([]*Approval, error) {
	query := approvalSelect + `
		WHERE request_id = $1
		ORDER BY level ASC, assigned_at ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get approvals")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// GetPendingForUser returns all pending approvals assigned to a user.
func (r *ApprovalRepository) GetPendingForUser(ctx context.Context, userID int64) ([]*Approval, error) {
	query := approvalSelect + `
		WHERE approver_id = $1 AND status = 'pending'
		ORDER BY assigned_at ASC
	`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get pending approvals for user")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// RecordAction sets the outcome of a pending approval. approved_at is stamped
// only for approvals.
func (r *ApprovalRepository) RecordAction(ctx context.Context, id int64, status ApprovalStatus, comment *string) error {
	query := `
		UPDATE approvals
		SET status      = $2::approval_status,
		    comment     = $3,
		    actioned_at = NOW(),
		    approved_at = CASE WHEN $2::text = 'approved' THEN NOW() ELSE approved_at END
		WHERE id = $1 AND status = 'pending'
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id, status, comment).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.New(apperr.ErrCodeConflict, "approval not found or not pending")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to record approval action")
	}
	return nil
}

// Reassign records a manual override of the approver on a pending approval.
func (r *ApprovalRepository) Reassign(ctx context.Context, id, newApproverID int64, newApproverName string) error {
	query := `
		UPDATE approvals
		SET overridden_user_id = approver_id,
		    approver_id        = $2,
		    approver_name      = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id, newApproverID, newApproverName).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.New(apperr.ErrCodeConflict, "approval not found or not pending")
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to reassign approval")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

const approvalSelect = `
	SELECT id, request_id, level, approver_id, approver_name,
	       designation_id, status, comment, overridden_user_id,
	       assigned_at, actioned_at, approved_at
	FROM approvals
`

type approvalScanner interface {
	Scan(dest ...any) error
}

func (r *ApprovalRepository) scanApproval(row approvalScanner) (*Approval, error) {
	a := &Approval{}
	err := row.Scan(
		&a.ID,
		&a.RequestID,
		&a.Level,
		&a.ApproverID,
		&a.ApproverName,
		&a.DesignationID,
		&a.Status,
		&a.Comment,
		&a.OverriddenUserID,
		&a.AssignedAt,
		&a.ActionedAt,
		&a.ApprovedAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *ApprovalRepository) scanRows(rows pgx.Rows) ([]*Approval, error) {
	var approvals []*Approval
	for rows.Next() {
		a, err := r.scanApproval(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan approval")
		}
		approvals = append(approvals, a)
	}
	return approvals, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// FundRequestRepository handles fund request data operations.
type FundRequestRepository struct {
	db *database.DB
}

// NewFundRequestRepository creates a new fund request repository.
func NewFundRequestRepository(db *database.DB) *FundRequestRepository {
	return &FundRequestRepository{db: db}
}

// Create inserts a request with its initial field values in one transaction.
func (r *FundRequestRepository) Create(ctx context.Context, req *FundRequest) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO fund_requests (title, description, amount, initiator_id,
			                           workflow_id, department_id, project_id,
			                           status, current_level)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8::request_status, $9)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			req.Title,
			req.Description,
			req.Amount,
			req.InitiatorID,
			req.WorkflowID,
			req.DepartmentID,
			req.ProjectID,
			req.Status,
			req.CurrentLevel,
		).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create fund request")
		}

		fieldQuery := `
			INSERT INTO request_fields (request_id, field_key, field_value, revision)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`
		for _, f := range req.Fields {
			f.RequestID = req.ID
			if f.Revision == 0 {
				f.Revision = 1
			}
			err := tx.QueryRow(ctx, fieldQuery, f.RequestID, f.Key, f.Value, f.Revision).
				Scan(&f.ID, &f.CreatedAt)
			if err != nil {
				return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create request field")
			}
		}

		return nil
	})
}

// GetByID retrieves a request with its fields and approval history.
func (r *FundRequestRepository) GetByID(ctx context.Context, id int64) (*FundRequest, error) {
	req := &FundRequest{}

	query := `
		SELECT id, title, description, amount, initiator_id,
		       workflow_id, department_id, project_id,
		       status, current_level, created_at, updated_at
		FROM fund_requests
		WHERE id = $1
	`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.Title,
		&req.Description,
		&req.Amount,
		&req.InitiatorID,
		&req.WorkflowID,
		&req.DepartmentID,
		&req.ProjectID,
		&req.Status,
		&req.CurrentLevel,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("fund_request", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get fund request")
	}

	fields, err := r.GetFields(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	req.Fields = fields

	return req, nil
}

// GetFields returns all field values for a request, all revisions, oldest first.
func (r *FundRequestRepository) GetFields(ctx context.Context, requestID int64) ([]*RequestField, error) {
	query := `
		SELECT id, request_id, field_key, field_value, revision, created_at
		FROM request_fields
		WHERE request_id = $1
		ORDER BY revision ASC, id ASC
	`

	rows, err := r.db.Query(ctx, query, requestID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get request fields")
	}
	defer rows.Close()

	fields := make([]*RequestField, 0)
	for rows.Next() {
		f := &RequestField{}
		if err := rows.Scan(&f.ID, &f.RequestID, &f.Key, &f.Value, &f.Revision, &f.CreatedAt); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan request field")
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// AppendFields inserts a new revision of field values for a resubmission.
// Earlier revisions are kept untouched.
func (r *FundRequestRepository) AppendFields(ctx context.Context, requestID int64, fields []*RequestField) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var revision int
		err := tx.QueryRow(ctx,
			`SELECT COALESCE(MAX(revision), 0) + 1 FROM request_fields WHERE request_id = $1`,
			requestID,
		).Scan(&revision)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to determine field revision")
		}

		query := `
			INSERT INTO request_fields (request_id, field_key, field_value, revision)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`
		for _, f := range fields {
			f.RequestID = requestID
			f.Revision = revision
			err := tx.QueryRow(ctx, query, requestID, f.Key, f.Value, revision).
				Scan(&f.ID, &f.CreatedAt)
			if err != nil {
				return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to append request field")
			}
		}
		return nil
	})
}

// UpdateStatus sets the request status and current level.
func (r *FundRequestRepository) UpdateStatus(ctx context.Context, id int64, status RequestStatus, currentLevel int) error {
	query := `
		UPDATE fund_requests
		SET status        = $2::request_status,
		    current_level = $3,
		    updated_at    = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID int64
	err := r.db.QueryRow(ctx, query, id, status, currentLevel).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("fund_request", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to update fund request status")
	}
	return nil
}

// List retrieves requests with optional filtering and pagination.
func (r *FundRequestRepository) List(ctx context.Context, initiatorID *int64, status *RequestStatus, limit, offset int) ([]*FundRequest, int64, error) {
	query := `
		SELECT id, title, description, amount, initiator_id,
		       workflow_id, department_id, project_id,
		       status, current_level, created_at, updated_at
		FROM fund_requests
		WHERE TRUE
	`
	countQuery := `SELECT COUNT(*) FROM fund_requests WHERE TRUE`

	args := []interface{}{}
	argCount := 1

	if initiatorID != nil {
		query += fmt.Sprintf(" AND initiator_id = $%d", argCount)
		countQuery += fmt.Sprintf(" AND initiator_id = $%d", argCount)
		args = append(args, *initiatorID)
		argCount++
	}
	if status != nil {
		query += fmt.Sprintf(" AND status = $%d::request_status", argCount)
		countQuery += fmt.Sprintf(" AND status = $%d::request_status", argCount)
		args = append(args, *status)
		argCount++
	}

	query += " ORDER BY created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argCount, argCount+1)
	queryArgs := append(args, limit, offset)

	var total int64
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to count fund requests")
	}

	rows, err := r.db.Query(ctx, query, queryArgs...)
	if err != nil {
		return nil, 0, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list fund requests")
	}
	defer rows.Close()

	requests := make([]*FundRequest, 0)
	for rows.Next() {
		req := &FundRequest{}
		err := rows.Scan(
			&req.ID,
			&req.Title,
			&req.Description,
			&req.Amount,
			&req.InitiatorID,
			&req.WorkflowID,
			&req.DepartmentID,
			&req.ProjectID,
			&req.Status,
			&req.CurrentLevel,
			&req.CreatedAt,
			&req.UpdatedAt,
		)
		if err != nil {
			return nil, 0, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan fund request")
		}
		requests = append(requests, req)
	}

	return requests, total, nil
}

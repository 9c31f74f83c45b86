package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/database"
)

// WorkflowRepository manages workflow templates, their steps and legacy final
// receiver rows. Template creation is always done together in one transaction.
type WorkflowRepository struct {
	db *database.DB
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(db *database.DB) *WorkflowRepository {
	return &WorkflowRepository{db: db}
}

// Create inserts a workflow with its steps and final receiver rows.
func (r *WorkflowRepository) Create(ctx context.Context, wf *Workflow) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		wfQuery := `
			INSERT INTO workflows (name)
			VALUES ($1)
			RETURNING id, created_at, updated_at
		`
		err := tx.QueryRow(ctx, wfQuery, wf.Name).Scan(&wf.ID, &wf.CreatedAt, &wf.UpdatedAt)
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create workflow")
		}

		stepQuery := `
			INSERT INTO workflow_steps
			    (workflow_id, name, sequence, sla_hours,
			     auto_approve, is_final_receiver,
			     designation_id, assigned_user_name)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id
		`
		for _, step := range wf.Steps {
			step.WorkflowID = wf.ID
			err := tx.QueryRow(ctx, stepQuery,
				step.WorkflowID,
				step.Name,
				step.Sequence,
				step.SLAHours,
				step.AutoApprove,
				step.IsFinalReceiver,
				step.DesignationID,
				step.AssignedUserName,
			).Scan(&step.ID)
			if err != nil {
				return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create workflow step")
			}
		}

		recvQuery := `
			INSERT INTO workflow_final_receivers (workflow_id, receiver_name, user_id)
			VALUES ($1, $2, $3)
			RETURNING id
		`
		for _, recv := range wf.FinalReceivers {
			recv.WorkflowID = wf.ID
			err := tx.QueryRow(ctx, recvQuery, recv.WorkflowID, recv.ReceiverName, recv.UserID).
				Scan(&recv.ID)
			if err != nil {
				return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create workflow final receiver")
			}
		}

		return nil
	})
}

// GetByID retrieves a workflow with steps ordered by sequence and its legacy
// final receiver rows.
func (r *WorkflowRepository) GetByID(ctx context.Context, id int64) (*Workflow, error) {
	wf := &Workflow{}

	query := `
		SELECT id, name, created_at, updated_at
		FROM workflows
		WHERE id = $1
	`
	err := r.db.QueryRow(ctx, query, id).Scan(&wf.ID, &wf.Name, &wf.CreatedAt, &wf.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("workflow", id)
	}
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get workflow")
	}

	steps, err := r.GetSteps(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.Steps = steps

	receivers, err := r.GetFinalReceivers(ctx, id)
	if err != nil {
		return nil, err
	}
	wf.FinalReceivers = receivers

	return wf, nil
}

// GetSteps returns all steps for a workflow ordered by sequence.
func (r *WorkflowRepository) GetSteps(ctx context.Context, workflowID int64) ([]*WorkflowStep, error) {
	query := `
		SELECT id, workflow_id, name, sequence, sla_hours,
		       auto_approve, is_final_receiver,
		       designation_id, assigned_user_name
		FROM workflow_steps
		WHERE workflow_id = $1
		ORDER BY sequence ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get workflow steps")
	}
	defer rows.Close()

	steps := make([]*WorkflowStep, 0)
	for rows.Next() {
		s := &WorkflowStep{}
		err := rows.Scan(
			&s.ID,
			&s.WorkflowID,
			&s.Name,
			&s.Sequence,
			&s.SLAHours,
			&s.AutoApprove,
			&s.IsFinalReceiver,
			&s.DesignationID,
			&s.AssignedUserName,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan workflow step")
		}
		steps = append(steps, s)
	}
	return steps, nil
}

// GetFinalReceivers returns the legacy per-workflow receiver rows.
func (r *WorkflowRepository) GetFinalReceivers(ctx context.Context, workflowID int64) ([]*WorkflowFinalReceiver, error) {
	query := `
		SELECT id, workflow_id, receiver_name, user_id
		FROM workflow_final_receivers
		WHERE workflow_id = $1
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, workflowID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to get workflow final receivers")
	}
	defer rows.Close()

	receivers := make([]*WorkflowFinalReceiver, 0)
	for rows.Next() {
		recv := &WorkflowFinalReceiver{}
		if err := rows.Scan(&recv.ID, &recv.WorkflowID, &recv.ReceiverName, &recv.UserID); err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan workflow final receiver")
		}
		receivers = append(receivers, recv)
	}
	return receivers, nil
}

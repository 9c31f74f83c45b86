package service

import (
	"context"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/repository"
)

// initiatorMarkers are the step name / fixed-assignee values that denote
// self-approval by the request initiator rather than a real actor.
var initiatorMarkers = map[string]bool{
	"initiator":         true,
	"default initiator": true,
}

// ResolvedApprover is the concrete user who must act on a step.
type ResolvedApprover struct {
	UserID        int64
	Name          string
	Email         string
	DesignationID int64
}

// ApproverResolver finds the concrete approver for a workflow step. It is
// read-only; the caller persists the resulting approval row.
type ApproverResolver struct {
	directory     ApproverDirectory
	allowFallback bool
	log           zerolog.Logger
}

// NewApproverResolver creates a resolver. allowFallback gates the global
// designation-only search used when the scoped search is empty and no
// explicit project was requested.
func NewApproverResolver(directory ApproverDirectory, allowFallback bool, log zerolog.Logger) *ApproverResolver {
	return &ApproverResolver{directory: directory, allowFallback: allowFallback, log: log}
}

// Resolve determines who must act on step for a request raised by
// initiatorID, optionally scoped to a project and department.
func (r *ApproverResolver) Resolve(
	ctx context.Context,
	step *repository.WorkflowStep,
	initiatorID int64,
	projectID, departmentID *int64,
) (*ResolvedApprover, error) {
	if isInitiatorStep(step) {
		return r.resolveInitiator(ctx, step, initiatorID)
	}

	designationID, err := r.resolveDesignation(ctx, step)
	if err != nil {
		return nil, err
	}

	// Only a positive project id constrains the search.
	var explicitProject *int64
	if projectID != nil && *projectID > 0 {
		explicitProject = projectID
	}

	candidates, err := r.directory.ScopedCandidates(ctx, designationID, explicitProject)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 && explicitProject != nil {
		// An explicit project constraint must never silently widen to a
		// global search.
		return nil, apperr.Newf(apperr.ErrCodeNotFound,
			"no approver found for DesignationId=%d in ProjectId=%d", designationID, *explicitProject)
	}

	if len(candidates) == 0 && r.allowFallback {
		candidates, err = r.directory.GlobalCandidates(ctx, designationID)
		if err != nil {
			return nil, err
		}
	}

	if len(candidates) == 0 {
		return nil, apperr.Newf(apperr.ErrCodeNotFound,
			"no approver found for DesignationId=%d (DepartmentId=%s, ProjectId=%s)",
			designationID, formatID(departmentID), formatID(projectID))
	}

	chosen := pickLeastBusy(candidates)

	r.log.Debug().
		Int64("designation_id", designationID).
		Int64("approver_id", chosen.ID).
		Int("pending_count", chosen.PendingCount).
		Int("candidates", len(candidates)).
		Msg("Approver resolved")

	return &ResolvedApprover{
		UserID:        chosen.ID,
		Name:          chosen.Name,
		Email:         chosen.Email,
		DesignationID: designationID,
	}, nil
}

// resolveInitiator handles the initiator marker step: the approver is the
// initiator themself, who must carry a designation.
func (r *ApproverResolver) resolveInitiator(ctx context.Context, step *repository.WorkflowStep, initiatorID int64) (*ResolvedApprover, error) {
	initiator, err := r.directory.GetByID(ctx, initiatorID)
	if err != nil {
		return nil, err
	}
	if initiator.DesignationID == nil {
		return nil, apperr.Newf(apperr.ErrCodeConflict,
			"initiator %d has no designation and cannot self-approve step %q", initiatorID, step.Name)
	}
	return &ResolvedApprover{
		UserID:        initiator.ID,
		Name:          initiator.Name,
		Email:         initiator.Email,
		DesignationID: *initiator.DesignationID,
	}, nil
}

// resolveDesignation determines which designation may act on the step: the
// step's explicit designation id, else the designation of the step's fixed
// assigned username. Failing both is a configuration error.
func (r *ApproverResolver) resolveDesignation(ctx context.Context, step *repository.WorkflowStep) (int64, error) {
	if step.DesignationID != nil {
		return *step.DesignationID, nil
	}

	if step.AssignedUserName != nil && strings.TrimSpace(*step.AssignedUserName) != "" {
		designationID, err := r.directory.DesignationIDForUsername(ctx, *step.AssignedUserName)
		if err != nil {
			return 0, err
		}
		if designationID != nil {
			return *designationID, nil
		}
		return 0, apperr.Newf(apperr.ErrCodeConflict,
			"step %q has no designation id and assigned user %q carries no designation",
			step.Name, *step.AssignedUserName)
	}

	return 0, apperr.Newf(apperr.ErrCodeConflict,
		"step %q has neither a designation id nor an assigned user", step.Name)
}

// pickLeastBusy orders candidates by system-wide pending approval count, then
// by user id for determinism, and returns the first. Advisory under
// concurrent assignment; deterministic for a given snapshot.
func pickLeastBusy(candidates []*repository.Candidate) *repository.Candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].PendingCount != candidates[j].PendingCount {
			return candidates[i].PendingCount < candidates[j].PendingCount
		}
		return candidates[i].ID < candidates[j].ID
	})
	return candidates[0]
}

func isInitiatorStep(step *repository.WorkflowStep) bool {
	if initiatorMarkers[strings.ToLower(strings.TrimSpace(step.Name))] {
		return true
	}
	if step.AssignedUserName != nil {
		return initiatorMarkers[strings.ToLower(strings.TrimSpace(*step.AssignedUserName))]
	}
	return false
}

func formatID(id *int64) string {
	if id == nil {
		return "none"
	}
	return strconv.FormatInt(*id, 10)
}

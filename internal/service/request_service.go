package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/repository"
)

// Notifier is the transition-to-outbox contract the state machine calls.
type Notifier interface {
	OnInitiated(ctx context.Context, req *repository.FundRequest, initiator *repository.User, approver *ResolvedApprover)
	OnStepApproved(ctx context.Context, req *repository.FundRequest, level int, nextApprover *ResolvedApprover)
	OnRejected(ctx context.Context, req *repository.FundRequest, initiator *repository.User, reason string)
	OnSentBack(ctx context.Context, req *repository.FundRequest, initiator *repository.User, comment *string)
	OnFinalApproved(ctx context.Context, req *repository.FundRequest, receivers []*repository.User)
}

// RequestService owns the fund request approval state machine: level-0
// assignment on submission, advance on approval, terminal reject, send-back
// and resubmission, and final receiver fan-out.
type RequestService struct {
	requests    RequestStore
	approvals   ApprovalStore
	workflows   WorkflowStore
	assignments AssignmentStore
	users       UserStore
	audit       AuditStore
	delegations DelegationAdminStore

	approverResolver   *ApproverResolver
	delegationResolver *DelegationResolver
	finalReceivers     *FinalReceiverProvider
	notifier           Notifier

	log zerolog.Logger
}

// NewRequestService wires the state machine.
func NewRequestService(
	requests RequestStore,
	approvals ApprovalStore,
	workflows WorkflowStore,
	assignments AssignmentStore,
	users UserStore,
	audit AuditStore,
	delegations DelegationAdminStore,
	approverResolver *ApproverResolver,
	delegationResolver *DelegationResolver,
	finalReceivers *FinalReceiverProvider,
	notifier Notifier,
	log zerolog.Logger,
) *RequestService {
	return &RequestService{
		requests:           requests,
		approvals:          approvals,
		workflows:          workflows,
		assignments:        assignments,
		users:              users,
		audit:              audit,
		delegations:        delegations,
		approverResolver:   approverResolver,
		delegationResolver: delegationResolver,
		finalReceivers:     finalReceivers,
		notifier:           notifier,
		log:                log,
	}
}

// FieldInput is one free-form form value on a submission.
type FieldInput struct {
	Key   string
	Value string
}

// CreateRequestInput carries a new submission.
type CreateRequestInput struct {
	Title        string
	Description  string
	Amount       int64
	InitiatorID  int64
	WorkflowID   int64
	DepartmentID *int64
	ProjectID    *int64
	Fields       []FieldInput
}

// ── Submission ────────────────────────────────────────────────────────────────

// CreateRequest validates and persists a new fund request, then assigns the
// level-0 approval (walking through any auto-approve steps).
func (s *RequestService) CreateRequest(ctx context.Context, in *CreateRequestInput) (*repository.FundRequest, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, apperr.InvalidInput("title", "title is required")
	}
	if in.Amount <= 0 {
		return nil, apperr.InvalidInput("amount", "amount must be positive")
	}

	wf, err := s.workflows.GetByID(ctx, in.WorkflowID)
	if err != nil {
		return nil, err
	}
	if len(wf.Steps) == 0 {
		return nil, apperr.Newf(apperr.ErrCodeConflict, "workflow %d has no steps configured", wf.ID)
	}

	initiator, err := s.users.GetByID(ctx, in.InitiatorID)
	if err != nil {
		return nil, err
	}

	req := &repository.FundRequest{
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Amount:       in.Amount,
		InitiatorID:  in.InitiatorID,
		WorkflowID:   in.WorkflowID,
		DepartmentID: in.DepartmentID,
		ProjectID:    in.ProjectID,
		Status:       repository.RequestPending,
		CurrentLevel: 0,
	}
	for _, f := range in.Fields {
		req.Fields = append(req.Fields, &repository.RequestField{Key: f.Key, Value: f.Value, Revision: 1})
	}

	if err := s.requests.Create(ctx, req); err != nil {
		return nil, err
	}
	s.appendAudit(ctx, req.ID, nil, "submitted", in.InitiatorID, nil, strPtr(string(req.Status)), nil)

	err = s.advanceTo(ctx, req, wf, 0, func(resolved *ResolvedApprover, level int) {
		s.notifier.OnInitiated(ctx, req, initiator, resolved)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("request_id", req.ID).
		Int64("workflow_id", wf.ID).
		Int64("initiator_id", in.InitiatorID).
		Int64("amount", in.Amount).
		Msg("Fund request created")

	return req, nil
}

// ── Actions ───────────────────────────────────────────────────────────────────

// Approve records approval at the given level and either advances the chain
// or finalizes the request.
func (s *RequestService) Approve(ctx context.Context, requestID int64, level int, actedBy int64, comment *string) error {
	req, approval, err := s.loadActionable(ctx, requestID, level, actedBy)
	if err != nil {
		return err
	}

	if err := s.recordApprovalAction(ctx, approval, repository.ApprovalApproved, comment); err != nil {
		return err
	}
	s.appendAudit(ctx, req.ID, &approval.ID, "approved", actedBy, strPtr(string(req.Status)), nil,
		map[string]interface{}{"level": level})

	wf, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return err
	}

	return s.advanceTo(ctx, req, wf, level+1, func(resolved *ResolvedApprover, nextLevel int) {
		s.notifier.OnStepApproved(ctx, req, nextLevel, resolved)
	})
}

// Reject terminates the request at any level. The reason is mandatory and is
// relayed to the initiator.
func (s *RequestService) Reject(ctx context.Context, requestID int64, level int, actedBy int64, reason string) error {
	if strings.TrimSpace(reason) == "" {
		return apperr.InvalidInput("reason", "rejection reason is required")
	}

	req, approval, err := s.loadActionable(ctx, requestID, level, actedBy)
	if err != nil {
		return err
	}

	if err := s.recordApprovalAction(ctx, approval, repository.ApprovalRejected, &reason); err != nil {
		return err
	}
	if err := s.transitionRequest(ctx, req, repository.RequestRejected, level); err != nil {
		return err
	}
	s.appendAudit(ctx, req.ID, &approval.ID, "rejected", actedBy,
		strPtr(string(repository.RequestPending)), strPtr(string(repository.RequestRejected)),
		map[string]interface{}{"level": level, "reason": reason})

	initiator, err := s.users.GetByID(ctx, req.InitiatorID)
	if err != nil {
		s.log.Warn().Err(err).Int64("request_id", req.ID).Msg("Could not load initiator for rejection notice")
		return nil
	}
	s.notifier.OnRejected(ctx, req, initiator, reason)
	return nil
}

// SendBack returns the request to the initiator for rework. No deeper levels
// are created; the level counter does not advance.
func (s *RequestService) SendBack(ctx context.Context, requestID int64, level int, actedBy int64, comment *string) error {
	req, approval, err := s.loadActionable(ctx, requestID, level, actedBy)
	if err != nil {
		return err
	}

	if err := s.recordApprovalAction(ctx, approval, repository.ApprovalSentBack, comment); err != nil {
		return err
	}
	if err := s.transitionRequest(ctx, req, repository.RequestSentBack, level); err != nil {
		return err
	}
	s.appendAudit(ctx, req.ID, &approval.ID, "sent_back", actedBy,
		strPtr(string(repository.RequestPending)), strPtr(string(repository.RequestSentBack)),
		map[string]interface{}{"level": level})

	initiator, err := s.users.GetByID(ctx, req.InitiatorID)
	if err != nil {
		s.log.Warn().Err(err).Int64("request_id", req.ID).Msg("Could not load initiator for send-back notice")
		return nil
	}
	s.notifier.OnSentBack(ctx, req, initiator, comment)
	return nil
}

// Resubmit re-enters a sent-back request into the approval chain. Only the
// initiator may resubmit. New field values are appended under a fresh
// revision; the existing approval history is preserved. Re-entry is at level
// 0, restarting the full chain.
func (s *RequestService) Resubmit(ctx context.Context, requestID, byUserID int64, fields []FieldInput) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.InitiatorID != byUserID {
		return apperr.New(apperr.ErrCodeUnauthorized, "only the initiator can resubmit a request")
	}
	if !req.Status.CanTransitionTo(repository.RequestPending) {
		return apperr.Newf(apperr.ErrCodeConflict,
			"cannot resubmit request with status '%s'", req.Status)
	}

	if len(fields) > 0 {
		newFields := make([]*repository.RequestField, 0, len(fields))
		for _, f := range fields {
			newFields = append(newFields, &repository.RequestField{Key: f.Key, Value: f.Value})
		}
		if err := s.requests.AppendFields(ctx, requestID, newFields); err != nil {
			return err
		}
	}

	if err := s.transitionRequest(ctx, req, repository.RequestPending, 0); err != nil {
		return err
	}
	s.appendAudit(ctx, req.ID, nil, "resubmitted", byUserID,
		strPtr(string(repository.RequestSentBack)), strPtr(string(repository.RequestPending)), nil)

	wf, err := s.workflows.GetByID(ctx, req.WorkflowID)
	if err != nil {
		return err
	}
	initiator, err := s.users.GetByID(ctx, req.InitiatorID)
	if err != nil {
		return err
	}

	return s.advanceTo(ctx, req, wf, 0, func(resolved *ResolvedApprover, level int) {
		s.notifier.OnInitiated(ctx, req, initiator, resolved)
	})
}

// ReassignApproval manually moves a pending approval to another user,
// recording the original approver as overridden. The new approver is notified.
func (s *RequestService) ReassignApproval(ctx context.Context, requestID int64, level int, newApproverID, actedBy int64) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != repository.RequestPending {
		return apperr.Newf(apperr.ErrCodeConflict,
			"cannot reassign on request with status '%s'", req.Status)
	}

	approval, err := s.approvals.GetPendingAtLevel(ctx, requestID, level)
	if err != nil {
		return err
	}
	if approval == nil {
		return apperr.Newf(apperr.ErrCodeConflict, "no pending approval at level %d", level)
	}

	newApprover, err := s.users.GetByID(ctx, newApproverID)
	if err != nil {
		return err
	}

	if err := s.approvals.Reassign(ctx, approval.ID, newApprover.ID, newApprover.Name); err != nil {
		return err
	}
	s.appendAudit(ctx, requestID, &approval.ID, "reassigned", actedBy, nil, nil,
		map[string]interface{}{"level": level, "from": approval.ApproverID, "to": newApprover.ID})

	resolved := &ResolvedApprover{
		UserID: newApprover.ID,
		Name:   newApprover.Name,
		Email:  newApprover.Email,
	}
	if newApprover.DesignationID != nil {
		resolved.DesignationID = *newApprover.DesignationID
	}
	s.notifier.OnStepApproved(ctx, req, level, resolved)

	s.log.Info().
		Int64("request_id", requestID).
		Int("level", level).
		Int64("from_user_id", approval.ApproverID).
		Int64("to_user_id", newApprover.ID).
		Msg("Approval reassigned")
	return nil
}

// CompleteFinalReceiver records a final receiver acting on an approved
// request. The first receiver to act completes; all other pending assignments
// are auto-closed.
func (s *RequestService) CompleteFinalReceiver(ctx context.Context, requestID, userID int64) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if req.Status != repository.RequestApproved {
		return apperr.Newf(apperr.ErrCodeConflict,
			"request is not approved (status: %s)", req.Status)
	}

	if err := s.assignments.Complete(ctx, requestID, userID); err != nil {
		return err
	}
	s.appendAudit(ctx, requestID, nil, "final_completed", userID, nil, nil, nil)

	s.log.Info().
		Int64("request_id", requestID).
		Int64("user_id", userID).
		Msg("Final receiver completed request")
	return nil
}

// ── Queries ───────────────────────────────────────────────────────────────────

// GetRequest returns a request with its approval history and final receiver
// assignments.
func (s *RequestService) GetRequest(ctx context.Context, id int64) (*repository.FundRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	approvals, err := s.approvals.GetByRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Approvals = approvals

	assignments, err := s.assignments.GetByRequestID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.Assignments = assignments
	return req, nil
}

// ListRequests returns a page of requests with optional filters.
func (s *RequestService) ListRequests(ctx context.Context, initiatorID *int64, status *repository.RequestStatus, limit, offset int) ([]*repository.FundRequest, int64, error) {
	if status != nil && !status.Valid() {
		return nil, 0, apperr.InvalidInput("status", "unknown request status")
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.requests.List(ctx, initiatorID, status, limit, offset)
}

// GetPendingApprovals returns all approvals awaiting action from a user.
func (s *RequestService) GetPendingApprovals(ctx context.Context, userID int64) ([]*repository.Approval, error) {
	return s.approvals.GetPendingForUser(ctx, userID)
}

// GetAuditTrail returns the full audit trail for a request.
func (s *RequestService) GetAuditTrail(ctx context.Context, requestID int64) ([]*repository.AuditEvent, error) {
	return s.audit.GetByRequestID(ctx, requestID)
}

// ── Delegation administration ─────────────────────────────────────────────────

// CreateDelegation records a time-bounded delegation window.
func (s *RequestService) CreateDelegation(ctx context.Context, fromUserID, toUserID int64, startsAt, endsAt time.Time) (*repository.Delegation, error) {
	if fromUserID == toUserID {
		return nil, apperr.InvalidInput("to_user_id", "cannot delegate to yourself")
	}
	if !endsAt.After(startsAt) {
		return nil, apperr.InvalidInput("ends_at", "delegation window must end after it starts")
	}
	if _, err := s.users.GetByID(ctx, toUserID); err != nil {
		return nil, err
	}

	d := &repository.Delegation{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		StartsAt:   startsAt.UTC(),
		EndsAt:     endsAt.UTC(),
	}
	if err := s.delegations.Create(ctx, d); err != nil {
		return nil, err
	}

	s.log.Info().
		Int64("from_user_id", fromUserID).
		Int64("to_user_id", toUserID).
		Time("starts_at", d.StartsAt).
		Time("ends_at", d.EndsAt).
		Msg("Delegation created")
	return d, nil
}

// RevokeDelegation deactivates a delegation immediately.
func (s *RequestService) RevokeDelegation(ctx context.Context, id int64) error {
	return s.delegations.Revoke(ctx, id)
}

// ListDelegations returns all delegations created by a user, newest first.
func (s *RequestService) ListDelegations(ctx context.Context, fromUserID int64) ([]*repository.Delegation, error) {
	return s.delegations.ListForUser(ctx, fromUserID)
}

// ── Workflow administration ───────────────────────────────────────────────────

// CreateWorkflow persists a workflow template. Steps are renumbered to their
// list order.
func (s *RequestService) CreateWorkflow(ctx context.Context, wf *repository.Workflow) error {
	if strings.TrimSpace(wf.Name) == "" {
		return apperr.InvalidInput("name", "workflow name is required")
	}
	if len(wf.Steps) == 0 {
		return apperr.InvalidInput("steps", "a workflow needs at least one step")
	}
	for i, step := range wf.Steps {
		if strings.TrimSpace(step.Name) == "" {
			return apperr.InvalidInput("steps", "every step needs a name")
		}
		step.Sequence = i
	}

	if err := s.workflows.Create(ctx, wf); err != nil {
		return err
	}

	s.log.Info().
		Int64("workflow_id", wf.ID).
		Int("steps", len(wf.Steps)).
		Int("final_receivers", len(wf.FinalReceivers)).
		Msg("Workflow created")
	return nil
}

// ── Internal helpers ──────────────────────────────────────────────────────────

// loadActionable loads the request and its pending approval at level and
// checks the actor is the assigned approver.
func (s *RequestService) loadActionable(ctx context.Context, requestID int64, level int, actedBy int64) (*repository.FundRequest, *repository.Approval, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != repository.RequestPending {
		return nil, nil, apperr.Newf(apperr.ErrCodeConflict,
			"cannot act on request with status '%s'", req.Status)
	}

	approval, err := s.approvals.GetPendingAtLevel(ctx, requestID, level)
	if err != nil {
		return nil, nil, err
	}
	if approval == nil {
		return nil, nil, apperr.Newf(apperr.ErrCodeConflict,
			"no pending approval at level %d", level)
	}
	if approval.ApproverID != actedBy {
		return nil, nil, apperr.New(apperr.ErrCodeUnauthorized,
			"user is not the assigned approver for this level")
	}
	return req, approval, nil
}

// recordApprovalAction applies the central transition check before persisting
// the outcome.
func (s *RequestService) recordApprovalAction(ctx context.Context, approval *repository.Approval, next repository.ApprovalStatus, comment *string) error {
	if !approval.Status.CanTransitionTo(next) {
		return apperr.Newf(apperr.ErrCodeConflict,
			"illegal approval transition %s -> %s", approval.Status, next)
	}
	if err := s.approvals.RecordAction(ctx, approval.ID, next, comment); err != nil {
		return err
	}
	approval.Status = next
	return nil
}

// transitionRequest applies the central request transition check. Same-status
// updates (level advances) bypass the check.
func (s *RequestService) transitionRequest(ctx context.Context, req *repository.FundRequest, next repository.RequestStatus, level int) error {
	if req.Status != next && !req.Status.CanTransitionTo(next) {
		return apperr.Newf(apperr.ErrCodeConflict,
			"illegal request transition %s -> %s", req.Status, next)
	}
	if err := s.requests.UpdateStatus(ctx, req.ID, next, level); err != nil {
		return err
	}
	req.Status = next
	req.CurrentLevel = level
	return nil
}

// advanceTo assigns the pending approval for level, walking through
// auto-approve steps, and finalizes the request when the chain runs out.
// notify fires once, for the first level that waits on a human.
func (s *RequestService) advanceTo(ctx context.Context, req *repository.FundRequest, wf *repository.Workflow, level int, notify func(*ResolvedApprover, int)) error {
	for {
		if level >= len(wf.Steps) {
			return s.finalize(ctx, req)
		}

		if err := s.transitionRequest(ctx, req, repository.RequestPending, level); err != nil {
			return err
		}

		step := wf.Steps[level]
		resolved, approval, err := s.assignLevel(ctx, req, step, level)
		if err != nil {
			return err
		}
		if approval == nil {
			// Someone else already advanced this level; nothing left to do.
			return nil
		}

		if !step.AutoApprove {
			if notify != nil {
				notify(resolved, level)
			}
			return nil
		}

		if err := s.recordApprovalAction(ctx, approval, repository.ApprovalApproved, nil); err != nil {
			return err
		}
		s.appendAudit(ctx, req.ID, &approval.ID, "approved", resolved.UserID, nil, nil,
			map[string]interface{}{"level": level, "auto": true})
		level++
	}
}

// assignLevel resolves the approver for a level (redirecting through
// delegations) and persists the pending approval. A nil approval return
// means a pending row already existed: a concurrent advance, absorbed.
func (s *RequestService) assignLevel(ctx context.Context, req *repository.FundRequest, step *repository.WorkflowStep, level int) (*ResolvedApprover, *repository.Approval, error) {
	existing, err := s.approvals.GetPendingAtLevel(ctx, req.ID, level)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, nil
	}

	resolved, err := s.approverResolver.Resolve(ctx, step, req.InitiatorID, req.ProjectID, req.DepartmentID)
	if err != nil {
		return nil, nil, err
	}

	if effectiveID := s.delegationResolver.ResolveAssignee(ctx, resolved.UserID); effectiveID != resolved.UserID {
		delegate, err := s.users.GetByID(ctx, effectiveID)
		if err != nil {
			// Malformed delegation target; fall back to the intended approver.
			s.log.Warn().Err(err).
				Int64("request_id", req.ID).
				Int64("delegate_id", effectiveID).
				Msg("Delegate lookup failed; keeping intended approver")
		} else {
			resolved = &ResolvedApprover{
				UserID:        delegate.ID,
				Name:          delegate.Name,
				Email:         delegate.Email,
				DesignationID: resolved.DesignationID,
			}
		}
	}

	approval := &repository.Approval{
		RequestID:     req.ID,
		Level:         level,
		ApproverID:    resolved.UserID,
		ApproverName:  resolved.Name,
		DesignationID: &resolved.DesignationID,
		Status:        repository.ApprovalPending,
	}
	err = s.approvals.CreatePending(ctx, approval)
	if errors.Is(err, repository.ErrDuplicatePending) {
		s.log.Info().
			Int64("request_id", req.ID).
			Int("level", level).
			Msg("Pending approval already exists; concurrent advance absorbed")
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return resolved, approval, nil
}

// finalize marks the request terminally approved, creates final receiver
// assignments and fans out notifications.
func (s *RequestService) finalize(ctx context.Context, req *repository.FundRequest) error {
	receivers, err := s.finalReceivers.GetFinalReceivers(ctx, req.WorkflowID, req.ProjectID, req.DepartmentID)
	if err != nil {
		return err
	}

	if err := s.transitionRequest(ctx, req, repository.RequestApproved, req.CurrentLevel); err != nil {
		return err
	}

	userIDs := make([]int64, 0, len(receivers))
	for _, r := range receivers {
		userIDs = append(userIDs, r.ID)
	}
	if err := s.assignments.CreateAssignments(ctx, req.ID, userIDs); err != nil {
		return err
	}

	s.appendAudit(ctx, req.ID, nil, "finalized", req.InitiatorID,
		strPtr(string(repository.RequestPending)), strPtr(string(repository.RequestApproved)),
		map[string]interface{}{"final_receivers": len(receivers)})

	s.notifier.OnFinalApproved(ctx, req, receivers)

	s.log.Info().
		Int64("request_id", req.ID).
		Int("final_receivers", len(receivers)).
		Msg("Fund request fully approved")
	return nil
}

// appendAudit writes an audit event, logging a warning on failure. Audit
// writes never fail the calling operation.
func (s *RequestService) appendAudit(ctx context.Context, requestID int64, approvalID *int64, action string, actorID int64, before, after *string, metadata map[string]interface{}) {
	event := &repository.AuditEvent{
		RequestID:    requestID,
		ApprovalID:   approvalID,
		Action:       action,
		ActorID:      actorID,
		StatusBefore: before,
		StatusAfter:  after,
		Metadata:     metadata,
	}
	if err := s.audit.Append(ctx, event); err != nil {
		s.log.Warn().Err(err).
			Int64("request_id", requestID).
			Str("action", action).
			Msg("Failed to write audit event")
	}
}

func strPtr(s string) *string { return &s }

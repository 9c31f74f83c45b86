package service

import (
	"context"
	"time"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

// Store interfaces consumed by the service layer. The repository types satisfy
// them; tests substitute in-memory fakes.

// DelegationStore looks up active delegations at resolution time.
type DelegationStore interface {
	ActiveDelegation(ctx context.Context, fromUserID int64, now time.Time) (*repository.Delegation, error)
}

// DelegationAdminStore manages delegation rows.
type DelegationAdminStore interface {
	Create(ctx context.Context, d *repository.Delegation) error
	Revoke(ctx context.Context, id int64) error
	ListForUser(ctx context.Context, fromUserID int64) ([]*repository.Delegation, error)
}

// ApproverDirectory answers the candidate and directory queries the approver
// resolver needs.
type ApproverDirectory interface {
	GetByID(ctx context.Context, id int64) (*repository.User, error)
	DesignationIDForUsername(ctx context.Context, username string) (*int64, error)
	ScopedCandidates(ctx context.Context, designationID int64, projectID *int64) ([]*repository.Candidate, error)
	GlobalCandidates(ctx context.Context, designationID int64) ([]*repository.Candidate, error)
}

// ReceiverDirectory answers the three final-receiver channel queries.
type ReceiverDirectory interface {
	FinalReceiversByDesignationIDs(ctx context.Context, ids []int64, scope repository.ReceiverScope) ([]*repository.User, error)
	FinalReceiversByNames(ctx context.Context, names []string, scope repository.ReceiverScope) ([]*repository.User, error)
	FinalReceiversByIDs(ctx context.Context, ids []int64, scope repository.ReceiverScope) ([]*repository.User, error)
}

// WorkflowStore manages workflow templates.
type WorkflowStore interface {
	GetByID(ctx context.Context, id int64) (*repository.Workflow, error)
	Create(ctx context.Context, wf *repository.Workflow) error
}

// RequestStore persists fund requests.
type RequestStore interface {
	Create(ctx context.Context, req *repository.FundRequest) error
	GetByID(ctx context.Context, id int64) (*repository.FundRequest, error)
	UpdateStatus(ctx context.Context, id int64, status repository.RequestStatus, currentLevel int) error
	AppendFields(ctx context.Context, requestID int64, fields []*repository.RequestField) error
	List(ctx context.Context, initiatorID *int64, status *repository.RequestStatus, limit, offset int) ([]*repository.FundRequest, int64, error)
}

// ApprovalStore persists approval rows.
type ApprovalStore interface {
	CreatePending(ctx context.Context, a *repository.Approval) error
	GetPendingAtLevel(ctx context.Context, requestID int64, level int) (*repository.Approval, error)
	GetByRequestID(ctx context.Context, requestID int64) ([]*repository.Approval, error)
	GetPendingForUser(ctx context.Context, userID int64) ([]*repository.Approval, error)
	RecordAction(ctx context.Context, id int64, status repository.ApprovalStatus, comment *string) error
	Reassign(ctx context.Context, id, newApproverID int64, newApproverName string) error
}

// AssignmentStore persists final receiver assignments.
type AssignmentStore interface {
	CreateAssignments(ctx context.Context, requestID int64, userIDs []int64) error
	Complete(ctx context.Context, requestID, userID int64) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*repository.FinalReceiverAssignment, error)
}

// AuditStore appends immutable audit events.
type AuditStore interface {
	Append(ctx context.Context, event *repository.AuditEvent) error
	GetByRequestID(ctx context.Context, requestID int64) ([]*repository.AuditEvent, error)
}

// UserStore resolves users by id.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (*repository.User, error)
}

// OutboxSink is the append-only email outbox contract. Delivery and retry are
// handled by the drainer, outside the resolution core.
type OutboxSink interface {
	Enqueue(ctx context.Context, toAddress, subject, htmlBody string, cc *string) error
}

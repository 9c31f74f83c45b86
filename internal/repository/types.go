package repository

import "time"

// ── Organizational entities ───────────────────────────────────────────────────

// User is a directory entry. ProjectID is the legacy direct project column;
// project membership is otherwise expressed through user_projects by email.
type User struct {
	ID            int64
	Name          string
	Email         string
	DesignationID *int64
	DepartmentID  *int64
	ProjectID     *int64
	CreatedAt     time.Time
}

// Designation is an organizational role that determines step eligibility.
type Designation struct {
	ID   int64
	Name string
}

// UserProject maps a user to a project by email.
type UserProject struct {
	ID        int64
	ProjectID int64
	Email     string
}

// ── Workflow template ─────────────────────────────────────────────────────────

// Workflow is an ordered approval template.
type Workflow struct {
	ID             int64
	Name           string
	Steps          []*WorkflowStep
	FinalReceivers []*WorkflowFinalReceiver
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// WorkflowStep is one ordered stage of a workflow. Sequence mirrors the
// request level. The first step conventionally denotes the initiator.
type WorkflowStep struct {
	ID               int64
	WorkflowID       int64
	Name             string
	Sequence         int
	SLAHours         int
	AutoApprove      bool
	IsFinalReceiver  bool
	DesignationID    *int64
	AssignedUserName *string
}

// WorkflowFinalReceiver is a legacy per-workflow receiver row, by name or
// explicit user id.
type WorkflowFinalReceiver struct {
	ID           int64
	WorkflowID   int64
	ReceiverName *string
	UserID       *int64
}

// ── Fund request ──────────────────────────────────────────────────────────────

// FundRequest is a request routed through a workflow's approval chain.
// Amount is in cents. Requests are never hard-deleted.
type FundRequest struct {
	ID           int64
	Title        string
	Description  string
	Amount       int64
	InitiatorID  int64
	WorkflowID   int64
	DepartmentID *int64
	ProjectID    *int64
	Status       RequestStatus
	CurrentLevel int
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Fields       []*RequestField
	Approvals    []*Approval
	Assignments  []*FinalReceiverAssignment
}

// RequestField is one free-form form value. Resubmissions append values under
// a higher revision instead of rewriting earlier ones.
type RequestField struct {
	ID        int64
	RequestID int64
	Key       string
	Value     string
	Revision  int
	CreatedAt time.Time
}

// Approval is one row per (request, level, approver). A partial unique index
// allows at most one pending row per that triple.
type Approval struct {
	ID               int64
	RequestID        int64
	Level            int
	ApproverID       int64
	ApproverName     string
	DesignationID    *int64
	Status           ApprovalStatus
	Comment          *string
	OverriddenUserID *int64
	AssignedAt       time.Time
	ActionedAt       *time.Time
	ApprovedAt       *time.Time
}

// Delegation is a time-bounded grant to act on another user's behalf.
// The most recently created active row per from-user is authoritative.
type Delegation struct {
	ID         int64
	FromUserID int64
	ToUserID   int64
	StartsAt   time.Time
	EndsAt     time.Time
	Revoked    bool
	CreatedAt  time.Time
}

// FinalReceiverAssignment tracks one terminal receiver's acknowledgement of an
// approved request.
type FinalReceiverAssignment struct {
	ID          int64
	RequestID   int64
	UserID      int64
	Status      AssignmentStatus
	CreatedAt   time.Time
	CompletedAt *time.Time
}

// ── Approver candidates ───────────────────────────────────────────────────────

// Candidate is a user eligible to act on a step, with the system-wide count of
// pending approvals used for least-busy tie-breaking.
type Candidate struct {
	ID            int64
	Name          string
	Email         string
	DesignationID int64
	PendingCount  int
}

// ReceiverScope narrows final-receiver channel queries. Department matches
// exactly; a project matches via the legacy direct column or email membership,
// whichever hits.
type ReceiverScope struct {
	ProjectID    *int64
	DepartmentID *int64
}

// ── Outbox and audit ──────────────────────────────────────────────────────────

// OutboxMessage is a durable not-yet-sent email row drained by a background
// worker.
type OutboxMessage struct {
	ID        string
	ToAddress string
	CC        *string
	Subject   string
	HTMLBody  string
	Status    OutboxStatus
	Attempts  int
	LastError *string
	CreatedAt time.Time
	SentAt    *time.Time
}

// AuditEvent is one immutable record in the request audit log.
type AuditEvent struct {
	ID           int64
	RequestID    int64
	ApprovalID   *int64
	Action       string // submitted | approved | rejected | sent_back | resubmitted | finalized | final_completed
	ActorID      int64
	StatusBefore *string
	StatusAfter  *string
	Metadata     map[string]interface{}
	OccurredAt   time.Time
}

package service

import (
	"context"
	"time"

	"github.com/fundflow/be-fund-requests/internal/apperr"
	"github.com/fundflow/be-fund-requests/internal/repository"
)

// In-memory fakes for the store interfaces. They mirror the repository
// semantics closely enough to exercise the state machine without a database.

// ── delegations ──────────────────────────────────────────────────────────

type fakeDelegationStore struct {
	delegations []*repository.Delegation
	err         error
	calls       int
	nextID      int64
}

func (f *fakeDelegationStore) ActiveDelegation(_ context.Context, fromUserID int64, now time.Time) (*repository.Delegation, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var best *repository.Delegation
	for _, d := range f.delegations {
		if d.FromUserID != fromUserID || d.Revoked {
			continue
		}
		if now.Before(d.StartsAt) || !d.EndsAt.After(now) {
			continue
		}
		if best == nil || d.CreatedAt.After(best.CreatedAt) {
			best = d
		}
	}
	return best, nil
}

func (f *fakeDelegationStore) Create(_ context.Context, d *repository.Delegation) error {
	f.nextID++
	d.ID = f.nextID
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now()
	}
	f.delegations = append(f.delegations, d)
	return nil
}

func (f *fakeDelegationStore) Revoke(_ context.Context, id int64) error {
	for _, d := range f.delegations {
		if d.ID == id {
			d.Revoked = true
			return nil
		}
	}
	return apperr.NotFound("delegation", id)
}

func (f *fakeDelegationStore) ListForUser(_ context.Context, fromUserID int64) ([]*repository.Delegation, error) {
	var out []*repository.Delegation
	for _, d := range f.delegations {
		if d.FromUserID == fromUserID {
			out = append(out, d)
		}
	}
	return out, nil
}

// ── directory ────────────────────────────────────────────────────────────

type fakeDirectory struct {
	users     map[int64]*repository.User
	usernames map[string]*int64

	scoped        []*repository.Candidate
	scopedErr     error
	scopedProject *int64
	global        []*repository.Candidate
	globalCalls   int

	byDesignation []*repository.User
	byName        []*repository.User
	byID          []*repository.User

	designationIDs []int64
	names          []string
	explicitIDs    []int64
	scope          repository.ReceiverScope
}

func (f *fakeDirectory) GetByID(_ context.Context, id int64) (*repository.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperr.NotFound("user", id)
	}
	return u, nil
}

func (f *fakeDirectory) DesignationIDForUsername(_ context.Context, username string) (*int64, error) {
	return f.usernames[username], nil
}

func (f *fakeDirectory) ScopedCandidates(_ context.Context, designationID int64, projectID *int64) ([]*repository.Candidate, error) {
	f.scopedProject = projectID
	if f.scopedErr != nil {
		return nil, f.scopedErr
	}
	return f.scoped, nil
}

func (f *fakeDirectory) GlobalCandidates(_ context.Context, designationID int64) ([]*repository.Candidate, error) {
	f.globalCalls++
	return f.global, nil
}

func (f *fakeDirectory) FinalReceiversByDesignationIDs(_ context.Context, ids []int64, scope repository.ReceiverScope) ([]*repository.User, error) {
	f.designationIDs = ids
	f.scope = scope
	return f.byDesignation, nil
}

func (f *fakeDirectory) FinalReceiversByNames(_ context.Context, names []string, scope repository.ReceiverScope) ([]*repository.User, error) {
	f.names = names
	return f.byName, nil
}

func (f *fakeDirectory) FinalReceiversByIDs(_ context.Context, ids []int64, scope repository.ReceiverScope) ([]*repository.User, error) {
	f.explicitIDs = ids
	return f.byID, nil
}

// ── workflows ────────────────────────────────────────────────────────────

type fakeWorkflowStore struct {
	workflows map[int64]*repository.Workflow
	nextID    int64
}

func (f *fakeWorkflowStore) GetByID(_ context.Context, id int64) (*repository.Workflow, error) {
	wf, ok := f.workflows[id]
	if !ok {
		return nil, apperr.NotFound("workflow", id)
	}
	return wf, nil
}

func (f *fakeWorkflowStore) Create(_ context.Context, wf *repository.Workflow) error {
	f.nextID++
	wf.ID = f.nextID + 100
	f.workflows[wf.ID] = wf
	return nil
}

// ── requests ─────────────────────────────────────────────────────────────

type fakeRequestStore struct {
	nextID   int64
	requests map[int64]*repository.FundRequest
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[int64]*repository.FundRequest)}
}

func (f *fakeRequestStore) Create(_ context.Context, req *repository.FundRequest) error {
	f.nextID++
	req.ID = f.nextID
	for _, field := range req.Fields {
		field.RequestID = req.ID
	}
	f.requests[req.ID] = req
	return nil
}

func (f *fakeRequestStore) GetByID(_ context.Context, id int64) (*repository.FundRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, apperr.NotFound("fund request", id)
	}
	return req, nil
}

func (f *fakeRequestStore) UpdateStatus(_ context.Context, id int64, status repository.RequestStatus, currentLevel int) error {
	req, ok := f.requests[id]
	if !ok {
		return apperr.NotFound("fund request", id)
	}
	req.Status = status
	req.CurrentLevel = currentLevel
	return nil
}

func (f *fakeRequestStore) AppendFields(_ context.Context, requestID int64, fields []*repository.RequestField) error {
	req, ok := f.requests[requestID]
	if !ok {
		return apperr.NotFound("fund request", requestID)
	}
	revision := 1
	for _, existing := range req.Fields {
		if existing.Revision >= revision {
			revision = existing.Revision + 1
		}
	}
	for _, field := range fields {
		field.RequestID = requestID
		field.Revision = revision
		req.Fields = append(req.Fields, field)
	}
	return nil
}

func (f *fakeRequestStore) List(_ context.Context, initiatorID *int64, status *repository.RequestStatus, limit, offset int) ([]*repository.FundRequest, int64, error) {
	var out []*repository.FundRequest
	for _, req := range f.requests {
		if initiatorID != nil && req.InitiatorID != *initiatorID {
			continue
		}
		if status != nil && req.Status != *status {
			continue
		}
		out = append(out, req)
	}
	total := int64(len(out))
	if offset >= len(out) {
		return nil, total, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, total, nil
}

// ── approvals ────────────────────────────────────────────────────────────

type fakeApprovalStore struct {
	nextID         int64
	approvals      []*repository.Approval
	forceDuplicate bool
}

func (f *fakeApprovalStore) CreatePending(_ context.Context, a *repository.Approval) error {
	if f.forceDuplicate {
		return repository.ErrDuplicatePending
	}
	for _, existing := range f.approvals {
		if existing.RequestID == a.RequestID && existing.Level == a.Level && existing.Status == repository.ApprovalPending {
			return repository.ErrDuplicatePending
		}
	}
	f.nextID++
	a.ID = f.nextID
	a.AssignedAt = time.Now()
	f.approvals = append(f.approvals, a)
	return nil
}

func (f *fakeApprovalStore) GetPendingAtLevel(_ context.Context, requestID int64, level int) (*repository.Approval, error) {
	for _, a := range f.approvals {
		if a.RequestID == requestID && a.Level == level && a.Status == repository.ApprovalPending {
			return a, nil
		}
	}
	return nil, nil
}

func (f *fakeApprovalStore) GetByRequestID(_ context.Context, requestID int64) ([]*repository.Approval, error) {
	var out []*repository.Approval
	for _, a := range f.approvals {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) GetPendingForUser(_ context.Context, userID int64) ([]*repository.Approval, error) {
	var out []*repository.Approval
	for _, a := range f.approvals {
		if a.ApproverID == userID && a.Status == repository.ApprovalPending {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeApprovalStore) RecordAction(_ context.Context, id int64, status repository.ApprovalStatus, comment *string) error {
	for _, a := range f.approvals {
		if a.ID == id && a.Status == repository.ApprovalPending {
			now := time.Now()
			a.Status = status
			a.Comment = comment
			a.ActionedAt = &now
			if status == repository.ApprovalApproved {
				a.ApprovedAt = &now
			}
			return nil
		}
	}
	return apperr.Newf(apperr.ErrCodeConflict, "approval %d is not pending", id)
}

func (f *fakeApprovalStore) Reassign(_ context.Context, id, newApproverID int64, newApproverName string) error {
	for _, a := range f.approvals {
		if a.ID == id && a.Status == repository.ApprovalPending {
			overridden := a.ApproverID
			a.OverriddenUserID = &overridden
			a.ApproverID = newApproverID
			a.ApproverName = newApproverName
			return nil
		}
	}
	return apperr.Newf(apperr.ErrCodeConflict, "approval %d is not pending", id)
}

// at finds an approval by request and level regardless of status.
func (f *fakeApprovalStore) at(requestID int64, level int) *repository.Approval {
	for _, a := range f.approvals {
		if a.RequestID == requestID && a.Level == level {
			return a
		}
	}
	return nil
}

// ── assignments ──────────────────────────────────────────────────────────

type fakeAssignmentStore struct {
	created   map[int64][]int64
	completed []int64
}

func newFakeAssignmentStore() *fakeAssignmentStore {
	return &fakeAssignmentStore{created: make(map[int64][]int64)}
}

func (f *fakeAssignmentStore) CreateAssignments(_ context.Context, requestID int64, userIDs []int64) error {
	f.created[requestID] = append(f.created[requestID], userIDs...)
	return nil
}

func (f *fakeAssignmentStore) Complete(_ context.Context, requestID, userID int64) error {
	for _, id := range f.created[requestID] {
		if id == userID {
			f.completed = append(f.completed, userID)
			return nil
		}
	}
	return apperr.Newf(apperr.ErrCodeConflict, "no pending assignment for user %d on request %d", userID, requestID)
}

func (f *fakeAssignmentStore) GetByRequestID(_ context.Context, requestID int64) ([]*repository.FinalReceiverAssignment, error) {
	var out []*repository.FinalReceiverAssignment
	for i, userID := range f.created[requestID] {
		a := &repository.FinalReceiverAssignment{
			ID:        int64(i + 1),
			RequestID: requestID,
			UserID:    userID,
			Status:    repository.AssignmentPending,
		}
		for _, done := range f.completed {
			if done == userID {
				a.Status = repository.AssignmentCompleted
			}
		}
		out = append(out, a)
	}
	return out, nil
}

// ── audit ────────────────────────────────────────────────────────────────

type fakeAuditStore struct {
	events []*repository.AuditEvent
}

func (f *fakeAuditStore) Append(_ context.Context, event *repository.AuditEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditStore) GetByRequestID(_ context.Context, requestID int64) ([]*repository.AuditEvent, error) {
	var out []*repository.AuditEvent
	for _, e := range f.events {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeAuditStore) actions() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Action)
	}
	return out
}

// ── outbox ───────────────────────────────────────────────────────────────

type outboxEntry struct {
	To      string
	Subject string
	Body    string
}

type fakeOutbox struct {
	entries []outboxEntry
	err     error
}

func (f *fakeOutbox) Enqueue(_ context.Context, toAddress, subject, htmlBody string, _ *string) error {
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, outboxEntry{To: toAddress, Subject: subject, Body: htmlBody})
	return nil
}

func (f *fakeOutbox) recipients() []string {
	out := make([]string, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.To)
	}
	return out
}

func int64Ptr(v int64) *int64 { return &v }

package repository

// RequestStatus is the lifecycle state of a fund request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
	RequestSentBack RequestStatus = "sent_back"
)

// requestTransitions is the closed set of legal request status transitions.
// Approved and Rejected are terminal; a sent-back request may be resubmitted.
var requestTransitions = map[RequestStatus][]RequestStatus{
	RequestPending:  {RequestApproved, RequestRejected, RequestSentBack},
	RequestSentBack: {RequestPending},
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s RequestStatus) CanTransitionTo(next RequestStatus) bool {
	for _, t := range requestTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s RequestStatus) Terminal() bool {
	return len(requestTransitions[s]) == 0
}

// Valid reports whether s is a known request status.
func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestApproved, RequestRejected, RequestSentBack:
		return true
	}
	return false
}

// ApprovalStatus is the state of a single approval row.
type ApprovalStatus string

const (
	ApprovalPending       ApprovalStatus = "pending"
	ApprovalApproved      ApprovalStatus = "approved"
	ApprovalRejected      ApprovalStatus = "rejected"
	ApprovalSentBack      ApprovalStatus = "sent_back"
	ApprovalFinalReceiver ApprovalStatus = "final_receiver"
)

// CanTransitionTo reports whether an approval may move from s to next.
// Only pending approvals can be actioned; every outcome is terminal per level.
func (s ApprovalStatus) CanTransitionTo(next ApprovalStatus) bool {
	if s != ApprovalPending {
		return false
	}
	switch next {
	case ApprovalApproved, ApprovalRejected, ApprovalSentBack:
		return true
	}
	return false
}

// AssignmentStatus is the state of a final receiver assignment. Exactly one
// assignment per request completes; the rest are auto-closed.
type AssignmentStatus string

const (
	AssignmentPending    AssignmentStatus = "pending"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentAutoClosed AssignmentStatus = "auto_closed"
)

// OutboxStatus is the delivery state of an outbox message.
type OutboxStatus string

const (
	OutboxPending OutboxStatus = "pending"
	OutboxSent    OutboxStatus = "sent"
	OutboxFailed  OutboxStatus = "failed"
)

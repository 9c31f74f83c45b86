package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to RequestStatus
		ok       bool
	}{
		{RequestPending, RequestApproved, true},
		{RequestPending, RequestRejected, true},
		{RequestPending, RequestSentBack, true},
		{RequestSentBack, RequestPending, true},
		{RequestSentBack, RequestApproved, false},
		{RequestApproved, RequestPending, false},
		{RequestApproved, RequestRejected, false},
		{RequestRejected, RequestPending, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.ok, c.from.CanTransitionTo(c.to), "%s -> %s", c.from, c.to)
	}
}

func TestRequestStatusTerminal(t *testing.T) {
	assert.False(t, RequestPending.Terminal())
	assert.False(t, RequestSentBack.Terminal())
	assert.True(t, RequestApproved.Terminal())
	assert.True(t, RequestRejected.Terminal())
}

func TestRequestStatusValid(t *testing.T) {
	assert.True(t, RequestPending.Valid())
	assert.False(t, RequestStatus("draft").Valid())
}

func TestApprovalStatusOnlyPendingIsActionable(t *testing.T) {
	assert.True(t, ApprovalPending.CanTransitionTo(ApprovalApproved))
	assert.True(t, ApprovalPending.CanTransitionTo(ApprovalRejected))
	assert.True(t, ApprovalPending.CanTransitionTo(ApprovalSentBack))

	assert.False(t, ApprovalPending.CanTransitionTo(ApprovalPending))
	assert.False(t, ApprovalApproved.CanTransitionTo(ApprovalRejected))
	assert.False(t, ApprovalSentBack.CanTransitionTo(ApprovalApproved))
	assert.False(t, ApprovalRejected.CanTransitionTo(ApprovalPending))
}

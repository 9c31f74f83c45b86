package service

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

func TestOnInitiatedEnqueuesBothParties(t *testing.T) {
	outbox := &fakeOutbox{}
	n := NewNotificationService(outbox, zerolog.Nop())

	req := &repository.FundRequest{Title: "Laptops", Amount: 250000}
	n.OnInitiated(context.Background(), req,
		&repository.User{Email: "ada@example.com"},
		&ResolvedApprover{Email: "boss@example.com"})

	assert.Equal(t, []string{"ada@example.com", "boss@example.com"}, outbox.recipients())
}

func TestEnqueueSkipsBlankAddress(t *testing.T) {
	outbox := &fakeOutbox{}
	n := NewNotificationService(outbox, zerolog.Nop())

	req := &repository.FundRequest{Title: "Laptops"}
	n.OnInitiated(context.Background(), req,
		&repository.User{Email: "   "},
		&ResolvedApprover{Email: "boss@example.com"})

	assert.Equal(t, []string{"boss@example.com"}, outbox.recipients())
}

func TestEnqueueErrorIsSwallowed(t *testing.T) {
	outbox := &fakeOutbox{err: errors.New("disk full")}
	n := NewNotificationService(outbox, zerolog.Nop())

	req := &repository.FundRequest{Title: "Laptops"}
	assert.NotPanics(t, func() {
		n.OnRejected(context.Background(), req, &repository.User{Email: "ada@example.com"}, "over budget")
	})
}

func TestOnRejectedIncludesReason(t *testing.T) {
	outbox := &fakeOutbox{}
	n := NewNotificationService(outbox, zerolog.Nop())

	req := &repository.FundRequest{Title: "Laptops"}
	n.OnRejected(context.Background(), req, &repository.User{Email: "ada@example.com"}, "over budget")

	require.Len(t, outbox.entries, 1)
	assert.Contains(t, outbox.entries[0].Body, "over budget")
}

func TestOnFinalApprovedFansOutPerReceiver(t *testing.T) {
	outbox := &fakeOutbox{}
	n := NewNotificationService(outbox, zerolog.Nop())

	req := &repository.FundRequest{Title: "Laptops", Amount: 250000}
	n.OnFinalApproved(context.Background(), req, []*repository.User{
		{Email: "fin1@example.com"},
		{Email: "fin2@example.com"},
		{Email: ""},
	})

	assert.Equal(t, []string{"fin1@example.com", "fin2@example.com"}, outbox.recipients())
}

func TestOnStepApprovedNilApproverIsNoop(t *testing.T) {
	outbox := &fakeOutbox{}
	n := NewNotificationService(outbox, zerolog.Nop())

	n.OnStepApproved(context.Background(), &repository.FundRequest{Title: "Laptops"}, 1, nil)

	assert.Empty(t, outbox.entries)
}

package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fundflow/be-fund-requests/internal/repository"
)

func receiverWorkflow() *fakeWorkflowStore {
	name := "Accounts Payable"
	return &fakeWorkflowStore{workflows: map[int64]*repository.Workflow{
		1: {
			ID: 1,
			Steps: []*repository.WorkflowStep{
				{Name: "Initiator", Sequence: 0},
				{Name: "Finance Head", Sequence: 1, DesignationID: int64Ptr(20), IsFinalReceiver: true},
			},
			FinalReceivers: []*repository.WorkflowFinalReceiver{
				{ReceiverName: &name},
				{UserID: int64Ptr(42)},
			},
		},
	}}
}

func TestGetFinalReceiversMergesChannelsDistinct(t *testing.T) {
	dir := &fakeDirectory{
		byDesignation: []*repository.User{
			{ID: 1, Name: "Zoe"},
			{ID: 2, Name: "Amir"},
		},
		byName: []*repository.User{
			{ID: 2, Name: "Amir"},
			{ID: 3, Name: "Mina"},
		},
		byID: []*repository.User{
			{ID: 3, Name: "Mina"},
			{ID: 42, Name: "Explicit"},
		},
	}
	p := NewFinalReceiverProvider(receiverWorkflow(), dir, zerolog.Nop())

	got, err := p.GetFinalReceivers(context.Background(), 1, nil, nil)

	require.NoError(t, err)
	require.Len(t, got, 4)
	// Sorted by name then id, one entry per user regardless of how many
	// channels produced them.
	assert.Equal(t, []int64{2, 42, 3, 1}, []int64{got[0].ID, got[1].ID, got[2].ID, got[3].ID})
}

func TestGetFinalReceiversCollectsChannelInputs(t *testing.T) {
	dir := &fakeDirectory{}
	p := NewFinalReceiverProvider(receiverWorkflow(), dir, zerolog.Nop())

	_, err := p.GetFinalReceivers(context.Background(), 1, int64Ptr(7), int64Ptr(9))

	require.NoError(t, err)
	assert.Equal(t, []int64{20}, dir.designationIDs)
	assert.Equal(t, []string{"Finance Head", "Accounts Payable"}, dir.names)
	assert.Equal(t, []int64{42}, dir.explicitIDs)
	require.NotNil(t, dir.scope.ProjectID)
	assert.Equal(t, int64(7), *dir.scope.ProjectID)
	require.NotNil(t, dir.scope.DepartmentID)
	assert.Equal(t, int64(9), *dir.scope.DepartmentID)
}

func TestGetFinalReceiversZeroProjectIgnored(t *testing.T) {
	dir := &fakeDirectory{}
	p := NewFinalReceiverProvider(receiverWorkflow(), dir, zerolog.Nop())

	_, err := p.GetFinalReceivers(context.Background(), 1, int64Ptr(0), nil)

	require.NoError(t, err)
	assert.Nil(t, dir.scope.ProjectID)
}

func TestGetFinalReceiversEmptyAudienceIsNotAnError(t *testing.T) {
	dir := &fakeDirectory{}
	p := NewFinalReceiverProvider(receiverWorkflow(), dir, zerolog.Nop())

	got, err := p.GetFinalReceivers(context.Background(), 1, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetFinalReceiversStableAcrossCalls(t *testing.T) {
	dir := &fakeDirectory{
		byDesignation: []*repository.User{{ID: 2, Name: "Amir"}, {ID: 1, Name: "Zoe"}},
		byName:        []*repository.User{{ID: 1, Name: "Zoe"}},
	}
	p := NewFinalReceiverProvider(receiverWorkflow(), dir, zerolog.Nop())

	first, err := p.GetFinalReceivers(context.Background(), 1, nil, nil)
	require.NoError(t, err)
	second, err := p.GetFinalReceivers(context.Background(), 1, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
